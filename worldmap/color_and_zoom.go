package worldmap

import "cartograph/api/codec"

const (
	ZoomBits  = 5
	ZoomMask  = 1<<ZoomBits - 1
	EmptyZoom = ZoomMask
	MaxColor  = 3
)

// ColorAndZoom packs a color level (high 3 bits) and a zoom level (low 5
// bits) into one byte. Zoom 31 marks an unexplored cell.
type ColorAndZoom uint8

// EmptyColorAndZoom is the value of an unexplored cell.
const EmptyColorAndZoom ColorAndZoom = EmptyZoom

func NewColorAndZoom(color, zoom uint8) ColorAndZoom {
	return ColorAndZoom(color<<ZoomBits | zoom&ZoomMask)
}

func (c ColorAndZoom) IsEmpty() bool { return c == EmptyColorAndZoom }
func (c ColorAndZoom) Color() uint8  { return uint8(c) >> ZoomBits }
func (c ColorAndZoom) Zoom() uint8   { return uint8(c) & ZoomMask }

// BetterThan orders exploration quality: a finer zoom always wins, and on
// equal zoom the higher color level wins. Every merge in the package goes
// through this method.
func (c ColorAndZoom) BetterThan(other ColorAndZoom) bool {
	return c.Zoom() < other.Zoom() || c.Zoom() == other.Zoom() && c.Color() > other.Color()
}

func (c ColorAndZoom) Write(w *codec.BufferedWriter) { w.WriteUint8(uint8(c)) }

func ReadColorAndZoom(r *codec.BufferedReader) ColorAndZoom {
	return ColorAndZoom(r.ReadUint8())
}

// WriteChanges encodes a position to quality map as a count-prefixed list
// in position order.
func WriteChanges(w *codec.BufferedWriter, changes map[ChunkPosition]ColorAndZoom) {
	w.WriteInt32(int32(len(changes)))
	for _, pos := range sortedPositions(changes) {
		pos.Write(w)
		changes[pos].Write(w)
	}
}

func ReadChanges(r *codec.BufferedReader) map[ChunkPosition]ColorAndZoom {
	count := r.ReadCount()
	changes := make(map[ChunkPosition]ColorAndZoom, codec.InitialCapacity(count))
	for i := 0; i < count && r.Err() == nil; i++ {
		pos := ReadChunkPosition(r)
		changes[pos] = ReadColorAndZoom(r)
	}
	return changes
}
