package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cartograph/api/model"
	"cartograph/api/tools"
)

// DBSaveGame 基于 n_mapper_save_data 表的存档
type DBSaveGame struct {
	db *gorm.DB
}

func NewDBSaveGame(db *gorm.DB) *DBSaveGame {
	return &DBSaveGame{db: db}
}

func (s *DBSaveGame) GetData(key string) ([]byte, error) {
	var row model.SaveData
	err := s.db.Where("save_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query save data %s: %w", key, err)
	}
	return row.Data, nil
}

func (s *DBSaveGame) StoreData(key string, data []byte) error {
	row := model.SaveData{SaveKey: key, Data: data, Size: len(data), UpdateTime: tools.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "save_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "size", "update_time"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store save data %s: %w", key, err)
	}
	return nil
}

// FileSaveGame 每个键一个文件，先写临时文件再改名
type FileSaveGame struct {
	dir string
	mu  sync.Mutex
}

func NewFileSaveGame(dir string) *FileSaveGame {
	return &FileSaveGame{dir: dir}
}

func (s *FileSaveGame) path(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(s.dir, name+".bin")
}

func (s *FileSaveGame) GetData(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (s *FileSaveGame) StoreData(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// MemorySaveGame 仅用于测试与无持久化运行
type MemorySaveGame struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemorySaveGame() *MemorySaveGame {
	return &MemorySaveGame{data: make(map[string][]byte)}
}

func (s *MemorySaveGame) GetData(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.data[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (s *MemorySaveGame) StoreData(key string, data []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}
