package worldmap

import (
	"fmt"
	"slices"

	"cartograph/api/codec"
	"cartograph/api/log"
)

// SaveKey is the save game key of the server exploration blob.
const SaveKey = "mapper:mapregions"

// SaveGame is the keyed blob store of the host save file.
type SaveGame interface {
	GetData(key string) ([]byte, error)
	StoreData(key string, data []byte) error
}

// ServerMapStorage maps player UIDs to their exploration records. Records
// are created on demand and never removed. It is not safe for concurrent
// use; the map server serializes access.
type ServerMapStorage struct {
	players    map[string]*ServerPlayerMap
	bufferSize int
	compressed bool
}

func NewServerMapStorage(bufferSize int, compressed bool) *ServerMapStorage {
	if bufferSize <= 0 {
		bufferSize = codec.DefaultBufferSize
	}
	return &ServerMapStorage{
		players:    make(map[string]*ServerPlayerMap),
		bufferSize: bufferSize,
		compressed: compressed,
	}
}

func (s *ServerMapStorage) GetOrCreate(uid string) *ServerPlayerMap {
	p, ok := s.players[uid]
	if !ok {
		p = NewServerPlayerMap()
		s.players[uid] = p
	}
	return p
}

func (s *ServerMapStorage) Get(uid string) (*ServerPlayerMap, bool) {
	p, ok := s.players[uid]
	return p, ok
}

func (s *ServerMapStorage) Len() int { return len(s.players) }

// Players returns the known UIDs in sorted order.
func (s *ServerMapStorage) Players() []string {
	uids := make([]string, 0, len(s.players))
	for uid := range s.players {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	return uids
}

func (s *ServerMapStorage) RegionCount() int {
	n := 0
	for _, p := range s.players {
		n += len(p.Regions)
	}
	return n
}

func (s *ServerMapStorage) Clear() { clear(s.players) }

// Encode serializes every record as a count-prefixed (uid, record) list.
func (s *ServerMapStorage) Encode() ([]byte, error) {
	return codec.EncodeBytes(s.bufferSize, s.compressed, func(w *codec.VersionedWriter) {
		w.WriteInt32(int32(len(s.players)))
		for _, uid := range s.Players() {
			w.WriteString(uid)
			s.players[uid].Write(w.BufferedWriter)
		}
	})
}

// Decode replaces the content with data. On error the storage is empty.
func (s *ServerMapStorage) Decode(data []byte) error {
	clear(s.players)
	err := codec.DecodeBytes(data, s.bufferSize, s.compressed, func(r *codec.VersionedReader) error {
		count := r.ReadCount()
		for i := 0; i < count && r.Err() == nil; i++ {
			uid := r.ReadString()
			s.players[uid] = ReadServerPlayerMap(r.BufferedReader)
		}
		return nil
	})
	if err != nil {
		clear(s.players)
		return fmt.Errorf("%w: server map storage: %v", ErrCorrupted, err)
	}
	return nil
}

// Load reads the blob from save. A missing blob is an empty world. It
// returns false and leaves the storage empty when the data is unusable.
func (s *ServerMapStorage) Load(save SaveGame) bool {
	data, err := save.GetData(SaveKey)
	if err != nil {
		log.Error("Failed to load map regions: ", err)
		clear(s.players)
		return false
	}
	if data == nil {
		return true
	}
	if err := s.Decode(data); err != nil {
		log.Error("Failed to load map regions: ", err)
		return false
	}
	log.Infof("Loaded %d players having %d map regions total", s.Len(), s.RegionCount())
	return true
}

// Save writes the blob to save. The caller keeps its dirty flag on error.
func (s *ServerMapStorage) Save(save SaveGame) error {
	data, err := s.Encode()
	if err != nil {
		return fmt.Errorf("encode map regions: %w", err)
	}
	if err := save.StoreData(SaveKey, data); err != nil {
		return fmt.Errorf("store map regions: %w", err)
	}
	return nil
}
