// Package protocol holds the packets exchanged between the map client and
// the map server. Packets are flat binary records; optional fields sit
// behind a presence flag and embedded chunk sets are versioned blobs.
package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"cartograph/api/codec"
	"cartograph/api/worldmap"
)

// ErrMalformedPacket is returned for packets that fail to decode.
var ErrMalformedPacket = errors.New("protocol: malformed packet")

// packetBufferSize bounds the inline fields. Blobs stream past it.
const packetBufferSize = 4096

// TableSyncData asks the server to synchronize with the cartography table
// at Position.
type TableSyncData struct {
	Position       worldmap.BlockPos
	UploadedChunks []byte
	// RequestedChunks restricts the reply to positions the table holds in
	// better quality than stated. Empty means the whole table.
	RequestedChunks map[worldmap.ChunkPosition]worldmap.ColorAndZoom
	BlockUpdateID   int32
}

type ClientToServerPacket struct {
	PlayerUID string
	// HasLastKnownPosition set with a nil LastKnownPosition clears it.
	HasLastKnownPosition bool
	LastKnownPosition    *worldmap.Vec3d
	RecoverMap           bool
	TableSync            *TableSyncData
}

type ServerToClientPacket struct {
	Changes              map[worldmap.ChunkPosition]worldmap.ColorAndZoom
	HasLastKnownPosition bool
	LastKnownPosition    *worldmap.Vec3d
	RecoverMap           bool
	SharedMapData        []byte
	DownloadedWaypoints  int32
	UploadedWaypoints    int32
	TableUpdateID        int32
}

func (p *ClientToServerPacket) Encode() ([]byte, error) {
	return encode(func(w *codec.BufferedWriter) {
		w.WriteString(p.PlayerUID)
		w.WriteBool(p.HasLastKnownPosition)
		if p.HasLastKnownPosition {
			worldmap.WriteOptionalVec3d(w, p.LastKnownPosition)
		}
		w.WriteBool(p.RecoverMap)
		w.WriteBool(p.TableSync != nil)
		if ts := p.TableSync; ts != nil {
			ts.Position.Write(w)
			w.WriteBlob(ts.UploadedChunks)
			worldmap.WriteChanges(w, ts.RequestedChunks)
			w.WriteInt32(ts.BlockUpdateID)
		}
	})
}

func DecodeClientToServer(data []byte) (*ClientToServerPacket, error) {
	p := &ClientToServerPacket{}
	err := decode(data, func(r *codec.BufferedReader) {
		p.PlayerUID = r.ReadString()
		p.HasLastKnownPosition = r.ReadBool()
		if p.HasLastKnownPosition {
			p.LastKnownPosition = worldmap.ReadOptionalVec3d(r)
		}
		p.RecoverMap = r.ReadBool()
		if r.ReadBool() {
			ts := &TableSyncData{Position: worldmap.ReadBlockPos(r)}
			ts.UploadedChunks = r.ReadBlob()
			ts.RequestedChunks = worldmap.ReadChanges(r)
			ts.BlockUpdateID = r.ReadInt32()
			p.TableSync = ts
		}
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ServerToClientPacket) Encode() ([]byte, error) {
	return encode(func(w *codec.BufferedWriter) {
		w.WriteBool(p.Changes != nil)
		if p.Changes != nil {
			worldmap.WriteChanges(w, p.Changes)
		}
		w.WriteBool(p.HasLastKnownPosition)
		if p.HasLastKnownPosition {
			worldmap.WriteOptionalVec3d(w, p.LastKnownPosition)
		}
		w.WriteBool(p.RecoverMap)
		w.WriteBool(p.SharedMapData != nil)
		if p.SharedMapData != nil {
			w.WriteBlob(p.SharedMapData)
		}
		w.WriteInt32(p.DownloadedWaypoints)
		w.WriteInt32(p.UploadedWaypoints)
		w.WriteInt32(p.TableUpdateID)
	})
}

func DecodeServerToClient(data []byte) (*ServerToClientPacket, error) {
	p := &ServerToClientPacket{}
	err := decode(data, func(r *codec.BufferedReader) {
		if r.ReadBool() {
			p.Changes = worldmap.ReadChanges(r)
		}
		p.HasLastKnownPosition = r.ReadBool()
		if p.HasLastKnownPosition {
			p.LastKnownPosition = worldmap.ReadOptionalVec3d(r)
		}
		p.RecoverMap = r.ReadBool()
		if r.ReadBool() {
			p.SharedMapData = r.ReadBlob()
		}
		p.DownloadedWaypoints = r.ReadInt32()
		p.UploadedWaypoints = r.ReadInt32()
		p.TableUpdateID = r.ReadInt32()
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func encode(fn func(w *codec.BufferedWriter)) ([]byte, error) {
	var out bytes.Buffer
	w := codec.NewBufferedWriter(&out, packetBufferSize)
	fn(w)
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decode(data []byte, fn func(r *codec.BufferedReader)) error {
	r := codec.NewBufferedReader(bytes.NewReader(data), packetBufferSize)
	fn(r)
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	return nil
}
