package service

import (
	"cartograph/api/codec"
	"cartograph/api/worldmap"
)

// ClientSink delivers an encoded ServerToClientPacket to one player. The
// server calls it while holding its lock, so it must queue and return.
type ClientSink interface {
	SendToClient(uid string, data []byte) error
}

// ServerSink delivers an encoded ClientToServerPacket to the server.
type ServerSink interface {
	SendToServer(data []byte) error
}

// Messenger 服务端给玩家发聊天提示，和 ClientSink 一样不能阻塞
type Messenger interface {
	SendMessage(uid, text string)
	// Language returns the player's language code, "" when unknown.
	Language(uid string) string
}

// Notifier shows a chat notification on the client.
type Notifier interface {
	Notify(text string)
}

// ChunkRenderer renders the terrain of a chunk into ABGR pixels. ok is
// false while the terrain is not available yet.
type ChunkRenderer interface {
	RenderChunk(pos worldmap.ChunkPosition, fullColor bool) (pixels []uint32, ok bool)
}

// MapDisplay is the texture side of the client map.
type MapDisplay interface {
	ShowPieces(pieces []worldmap.ReadyMapPiece)
	// RequestedChunks drains the positions the display wants (re)uploaded.
	RequestedChunks() []worldmap.ChunkPosition
}

// PlayerState exposes the local player to the client engine.
type PlayerState interface {
	Position() (worldmap.Vec3d, bool)
	// CompassScale is the scale factor of a held compass, if any.
	CompassScale() (int, bool)
}

// WaypointProvider is the host's per-player waypoint layer.
type WaypointProvider interface {
	PlayerWaypoints(uid string) []worldmap.Waypoint
	ReplacePlayerWaypoints(uid string, waypoints []worldmap.Waypoint)
}

// TableStore persists cartography table attributes by block position.
type TableStore interface {
	Create(pos worldmap.BlockPos) error
	Load(pos worldmap.BlockPos) (*codec.MemoryTree, error)
	Save(pos worldmap.BlockPos, tree *codec.MemoryTree) error
	Delete(pos worldmap.BlockPos) error
}
