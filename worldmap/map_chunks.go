package worldmap

import (
	"fmt"

	"cartograph/api/codec"
)

// MapChunks is a set of chunk rasters keyed by position, the payload
// exchanged with cartography tables.
type MapChunks map[ChunkPosition]MapChunk

func (m MapChunks) Write(w *codec.BufferedWriter) {
	w.WriteInt32(int32(len(m)))
	for _, pos := range sortedPositions(m) {
		pos.Write(w)
		m[pos].Write(w)
	}
}

// ReadMapChunks decodes a count-prefixed chunk list.
func ReadMapChunks(r *codec.BufferedReader, background *MapBackground) MapChunks {
	count := r.ReadCount()
	chunks := make(MapChunks, codec.InitialCapacity(count))
	for i := 0; i < count && r.Err() == nil; i++ {
		pos := ReadChunkPosition(r)
		chunks[pos] = ReadMapChunk(r, pos, background)
	}
	return chunks
}

// ToBytes encodes the set with the compressed versioned codec. An empty
// set encodes to nil.
func (m MapChunks) ToBytes(bufferSize int) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return codec.EncodeBytes(bufferSize, true, func(w *codec.VersionedWriter) {
		m.Write(w.BufferedWriter)
	})
}

// MapChunksFromBytes is the inverse of ToBytes. Nil data is an empty set.
func MapChunksFromBytes(data []byte, bufferSize int, background *MapBackground) (MapChunks, error) {
	if len(data) == 0 {
		return MapChunks{}, nil
	}
	var chunks MapChunks
	err := codec.DecodeBytes(data, bufferSize, true, func(r *codec.VersionedReader) error {
		chunks = ReadMapChunks(r.BufferedReader, background)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: map chunks: %v", ErrCorrupted, err)
	}
	return chunks, nil
}

// FindBetter returns the explored chunks of other that are missing here
// or better than the local copy.
func (m MapChunks) FindBetter(other MapChunks) MapChunks {
	result := MapChunks{}
	for pos, chunk := range other {
		if chunk.Color == 0 {
			continue
		}
		if existing, ok := m[pos]; !ok || chunk.BetterThan(existing) {
			result[pos] = chunk
		}
	}
	return result
}

// Merge stores every incoming chunk that is missing or better and
// returns how many were taken.
func (m MapChunks) Merge(incoming MapChunks) int {
	updated := 0
	for pos, chunk := range incoming {
		if existing, ok := m[pos]; !ok || chunk.BetterThan(existing) {
			m[pos] = chunk
			updated++
		}
	}
	return updated
}

func (m MapChunks) Clone() MapChunks {
	out := make(MapChunks, len(m))
	for pos, chunk := range m {
		out[pos] = chunk
	}
	return out
}
