package worldmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sasha-s/go-deadlock"

	"cartograph/api/codec"
	"cartograph/api/log"
)

// ReadyMapPiece is a chunk raster ready to be uploaded to the map texture.
type ReadyMapPiece struct {
	Position ChunkPosition
	Pixels   []uint32
}

// RedrawRequest asks for a chunk to be rendered locally at a quality.
type RedrawRequest struct {
	Position ChunkPosition
	Quality  ColorAndZoom
}

// ClientMapStorage is the local raster cache of one save game plus the
// queue of chunks waiting to be rendered.
//
// chunkLock guards the chunk map: writers and whole-map walks take it
// exclusively, point lookups share it. queueLock guards the redraw queue,
// which is drained a few entries at a time by the redraw tick.
type ClientMapStorage struct {
	chunkLock deadlock.RWMutex
	chunks    map[ChunkPosition]MapChunk

	queueLock deadlock.Mutex
	redraw    *DictionaryQueue[ChunkPosition, ColorAndZoom]

	bufferSize int
}

func NewClientMapStorage(bufferSize int) *ClientMapStorage {
	if bufferSize <= 0 {
		bufferSize = codec.DefaultBufferSize
	}
	return &ClientMapStorage{
		chunks:     make(map[ChunkPosition]MapChunk),
		redraw:     NewDictionaryQueue[ChunkPosition, ColorAndZoom](),
		bufferSize: bufferSize,
	}
}

func (s *ClientMapStorage) Chunk(pos ChunkPosition) (MapChunk, bool) {
	s.chunkLock.RLock()
	defer s.chunkLock.RUnlock()
	c, ok := s.chunks[pos]
	return c, ok
}

func (s *ClientMapStorage) SetChunk(pos ChunkPosition, chunk MapChunk) {
	s.chunkLock.Lock()
	s.chunks[pos] = chunk
	s.chunkLock.Unlock()
}

func (s *ClientMapStorage) Len() int {
	s.chunkLock.RLock()
	defer s.chunkLock.RUnlock()
	return len(s.chunks)
}

// Stats counts stored chunks per quality descriptor.
func (s *ClientMapStorage) Stats() map[ColorAndZoom]int {
	s.chunkLock.RLock()
	defer s.chunkLock.RUnlock()
	stats := make(map[ColorAndZoom]int)
	for _, c := range s.chunks {
		stats[c.ColorAndZoom()]++
	}
	return stats
}

func (s *ClientMapStorage) EnqueueRedraw(pos ChunkPosition, quality ColorAndZoom) {
	s.queueLock.Lock()
	s.redraw.Enqueue(pos, quality)
	s.queueLock.Unlock()
}

// RequeueRedraw puts a dequeued request back at the tail unless a newer
// request for the same chunk arrived meanwhile.
func (s *ClientMapStorage) RequeueRedraw(req RedrawRequest) {
	s.queueLock.Lock()
	if _, ok := s.redraw.Get(req.Position); !ok {
		s.redraw.Enqueue(req.Position, req.Quality)
	}
	s.queueLock.Unlock()
}

func (s *ClientMapStorage) DequeueRedraw() (RedrawRequest, bool) {
	s.queueLock.Lock()
	defer s.queueLock.Unlock()
	pos, quality, ok := s.redraw.Dequeue()
	return RedrawRequest{Position: pos, Quality: quality}, ok
}

func (s *ClientMapStorage) RedrawLen() int {
	s.queueLock.Lock()
	defer s.queueLock.Unlock()
	return s.redraw.Len()
}

// PendingRedraws returns a snapshot of the queue in FIFO order.
func (s *ClientMapStorage) PendingRedraws() []RedrawRequest {
	s.queueLock.Lock()
	defer s.queueLock.Unlock()
	out := make([]RedrawRequest, 0, s.redraw.Len())
	s.redraw.All(func(pos ChunkPosition, quality ColorAndZoom) {
		out = append(out, RedrawRequest{Position: pos, Quality: quality})
	})
	return out
}

// Clear drops every chunk and queued redraw.
func (s *ClientMapStorage) Clear() {
	s.chunkLock.Lock()
	clear(s.chunks)
	s.chunkLock.Unlock()
	s.queueLock.Lock()
	s.redraw.Clear()
	s.queueLock.Unlock()
}

// UpdateChunks applies a region delta from the server. Unknown chunks and
// color 0 deltas get a background placeholder right away; deltas with
// color are queued for rendering.
func (s *ClientMapStorage) UpdateChunks(changes map[ChunkPosition]ColorAndZoom, background *MapBackground) []ReadyMapPiece {
	var ready []ReadyMapPiece
	s.chunkLock.Lock()
	s.queueLock.Lock()
	for _, pos := range sortedPositions(changes) {
		quality := changes[pos]
		if _, ok := s.chunks[pos]; !ok || quality.Color() == 0 {
			chunk := NewBackgroundChunk(pos, quality.Zoom(), background)
			s.chunks[pos] = chunk
			ready = append(ready, ReadyMapPiece{Position: pos, Pixels: chunk.Pixels})
		}
		if quality.Color() > 0 {
			s.redraw.Enqueue(pos, quality)
		}
	}
	s.queueLock.Unlock()
	s.chunkLock.Unlock()
	return ready
}

// Write encodes the chunks followed by the redraw queue.
func (s *ClientMapStorage) Write(w *codec.BufferedWriter) {
	s.chunkLock.Lock()
	defer s.chunkLock.Unlock()
	MapChunks(s.chunks).Write(w)

	s.queueLock.Lock()
	defer s.queueLock.Unlock()
	w.WriteInt32(int32(s.redraw.Len()))
	s.redraw.All(func(pos ChunkPosition, quality ColorAndZoom) {
		pos.Write(w)
		quality.Write(w)
	})
}

// Read replaces the content with a stream written by Write. The caller
// checks the reader error and clears the storage on failure.
func (s *ClientMapStorage) Read(r *codec.BufferedReader, background *MapBackground) {
	chunks := ReadMapChunks(r, background)
	count := r.ReadCount()
	queue := NewDictionaryQueue[ChunkPosition, ColorAndZoom]()
	for i := 0; i < count && r.Err() == nil; i++ {
		pos := ReadChunkPosition(r)
		queue.Enqueue(pos, ReadColorAndZoom(r))
	}

	s.chunkLock.Lock()
	s.chunks = chunks
	s.chunkLock.Unlock()
	s.queueLock.Lock()
	s.redraw = queue
	s.queueLock.Unlock()
}

// Load reads the local cache file. A missing file is an empty cache. On
// failure the storage is left empty and false is returned.
func (s *ClientMapStorage) Load(path string, background *MapBackground) bool {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil {
		log.Error("Failed to load client map storage: ", err)
		return false
	}
	defer f.Close()

	if err := s.decodeFrom(bufio.NewReaderSize(f, s.bufferSize), background); err != nil {
		log.Error("Failed to load client map storage: ", err)
		s.Clear()
		return false
	}
	log.Infof("Loaded %d chunks out of which %d are waiting for refresh", s.Len(), s.RedrawLen())
	return true
}

func (s *ClientMapStorage) decodeFrom(src io.Reader, background *MapBackground) error {
	r, err := codec.NewVersionedReader(src, s.bufferSize, true)
	if err != nil {
		return err
	}
	defer r.Close()
	s.Read(r.BufferedReader, background)
	if r.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, r.Err())
	}
	return nil
}

// Save writes the cache next to path and renames it into place, so a
// crash mid-write never truncates the previous file.
func (s *ClientMapStorage) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w, err := codec.NewVersionedWriter(f, s.bufferSize, true)
	if err == nil {
		s.Write(w.BufferedWriter)
		err = w.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save client map storage: %w", err)
	}
	return os.Rename(tmp, path)
}

// SerializeForSharing encodes every chunk with an explored zoom for upload
// to a cartography table.
func (s *ClientMapStorage) SerializeForSharing() ([]byte, error) {
	s.chunkLock.RLock()
	shared := make(MapChunks, len(s.chunks))
	for pos, c := range s.chunks {
		if c.Zoom != EmptyZoom {
			shared[pos] = c
		}
	}
	s.chunkLock.RUnlock()
	return codec.EncodeBytes(s.bufferSize, true, func(w *codec.VersionedWriter) {
		shared.Write(w.BufferedWriter)
	})
}

// MergeSharedData folds a downloaded chunk set into the cache. Every chunk
// that is missing locally or better than the local one is stored, dropped
// from the redraw queue and returned for display.
func (s *ClientMapStorage) MergeSharedData(data []byte, background *MapBackground) ([]ReadyMapPiece, error) {
	incoming, err := MapChunksFromBytes(data, s.bufferSize, background)
	if err != nil {
		return nil, err
	}

	var ready []ReadyMapPiece
	s.chunkLock.Lock()
	s.queueLock.Lock()
	for _, pos := range sortedPositions(incoming) {
		chunk := incoming[pos]
		if existing, ok := s.chunks[pos]; ok && !chunk.BetterThan(existing) {
			continue
		}
		s.chunks[pos] = chunk
		s.redraw.Remove(pos)
		ready = append(ready, ReadyMapPiece{Position: pos, Pixels: chunk.Pixels})
	}
	s.queueLock.Unlock()
	s.chunkLock.Unlock()
	return ready, nil
}
