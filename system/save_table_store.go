package system

import (
	"fmt"
	"sync"

	"cartograph/api/codec"
	"cartograph/api/worldmap"
)

const (
	tableKeyPrefix = "mapper:table:"
	attrKindInt    = 0
	attrKindBytes  = 1
)

// SaveGameTableStore 把制图桌属性编码后存进 SaveGame，每个制图桌一个键。
// 删除写入空值作为墓碑。
type SaveGameTableStore struct {
	save       worldmap.SaveGame
	bufferSize int
	mu         sync.Mutex
}

func NewSaveGameTableStore(save worldmap.SaveGame) *SaveGameTableStore {
	return &SaveGameTableStore{save: save, bufferSize: codec.DefaultBufferSize}
}

func tableKey(pos worldmap.BlockPos) string {
	return tableKeyPrefix + pos.String()
}

func (s *SaveGameTableStore) Create(pos worldmap.BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.save.GetData(tableKey(pos))
	if err != nil {
		return err
	}
	if len(data) > 0 {
		return ErrTableExists
	}
	return s.store(pos, codec.NewMemoryTree())
}

func (s *SaveGameTableStore) Load(pos worldmap.BlockPos) (*codec.MemoryTree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.save.GetData(tableKey(pos))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrTableNotFound
	}
	return decodeTree(data, s.bufferSize)
}

func (s *SaveGameTableStore) Save(pos worldmap.BlockPos, tree *codec.MemoryTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.save.GetData(tableKey(pos))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrTableNotFound
	}
	return s.store(pos, tree)
}

func (s *SaveGameTableStore) Delete(pos worldmap.BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save.StoreData(tableKey(pos), []byte{})
}

func (s *SaveGameTableStore) store(pos worldmap.BlockPos, tree *codec.MemoryTree) error {
	data, err := encodeTree(tree, s.bufferSize)
	if err != nil {
		return err
	}
	return s.save.StoreData(tableKey(pos), data)
}

func encodeTree(tree *codec.MemoryTree, bufferSize int) ([]byte, error) {
	ints := tree.IntAttributes()
	return codec.EncodeBytes(bufferSize, false, func(w *codec.VersionedWriter) {
		keys := tree.Keys()
		w.WriteInt32(int32(len(keys)))
		for _, key := range keys {
			if v, ok := ints[key]; ok {
				w.WriteUint8(attrKindInt)
				w.WriteString(key)
				w.WriteInt64(int64(v))
				continue
			}
			w.WriteUint8(attrKindBytes)
			w.WriteString(key)
			w.WriteBlob(tree.GetBytes(key))
		}
	})
}

func decodeTree(data []byte, bufferSize int) (*codec.MemoryTree, error) {
	tree := codec.NewMemoryTree()
	err := codec.DecodeBytes(data, bufferSize, false, func(r *codec.VersionedReader) error {
		count := r.ReadCount()
		for i := 0; i < count && r.Err() == nil; i++ {
			kind := r.ReadUint8()
			key := r.ReadString()
			switch kind {
			case attrKindInt:
				tree.SetInt(key, int(r.ReadInt64()))
			case attrKindBytes:
				tree.SetBytes(key, r.ReadBlob())
			default:
				return fmt.Errorf("unknown attribute kind %d", kind)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: table attributes: %v", codec.ErrCorrupted, err)
	}
	return tree, nil
}
