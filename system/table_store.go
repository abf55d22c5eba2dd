package system

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cartograph/api/codec"
	"cartograph/api/model"
	"cartograph/api/tools"
	"cartograph/api/worldmap"
)

var (
	ErrTableNotFound = errors.New("system: cartography table not found")
	ErrTableExists   = errors.New("system: cartography table already exists")
)

const mysqlDuplicateEntry = 1062

// DBTableStore 每个制图桌的属性按行存放在 n_mapper_table_attr
type DBTableStore struct {
	db *gorm.DB
}

func NewDBTableStore(db *gorm.DB) *DBTableStore {
	return &DBTableStore{db: db}
}

func (s *DBTableStore) Create(pos worldmap.BlockPos) error {
	row := model.TableAttr{TablePos: pos.String(), AttrKey: model.TableMarkerKey, UpdateTime: tools.Now()}
	if err := s.db.Create(&row).Error; err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return ErrTableExists
		}
		return fmt.Errorf("create table %s: %w", pos, err)
	}
	return nil
}

func (s *DBTableStore) Load(pos worldmap.BlockPos) (*codec.MemoryTree, error) {
	var rows []model.TableAttr
	if err := s.db.Where("table_pos = ?", pos.String()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load table %s: %w", pos, err)
	}
	tree := codec.NewMemoryTree()
	found := false
	for _, row := range rows {
		switch {
		case row.AttrKey == model.TableMarkerKey:
			found = true
		case row.IntValue != nil:
			tree.SetInt(row.AttrKey, int(*row.IntValue))
		default:
			tree.SetBytes(row.AttrKey, row.BytesValue)
		}
	}
	if !found {
		return nil, ErrTableNotFound
	}
	return tree, nil
}

// Save 整体替换一个制图桌的属性；桌子不存在时返回 ErrTableNotFound
func (s *DBTableStore) Save(pos worldmap.BlockPos, tree *codec.MemoryTree) error {
	key := pos.String()
	now := tools.Now()
	rows := []model.TableAttr{{TablePos: key, AttrKey: model.TableMarkerKey, UpdateTime: now}}
	for k, v := range tree.ByteAttributes() {
		rows = append(rows, model.TableAttr{TablePos: key, AttrKey: k, BytesValue: v, UpdateTime: now})
	}
	for k, v := range tree.IntAttributes() {
		iv := int64(v)
		rows = append(rows, model.TableAttr{TablePos: key, AttrKey: k, IntValue: &iv, UpdateTime: now})
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		// 已拆除的制图桌不能被写回
		var markers int64
		err := tx.Model(&model.TableAttr{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("table_pos = ? AND attr_key = ?", key, model.TableMarkerKey).
			Count(&markers).Error
		if err != nil {
			return err
		}
		if markers == 0 {
			return ErrTableNotFound
		}
		if err := tx.Where("table_pos = ?", key).Delete(&model.TableAttr{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 50).Error
	})
}

func (s *DBTableStore) Delete(pos worldmap.BlockPos) error {
	return s.db.Where("table_pos = ?", pos.String()).Delete(&model.TableAttr{}).Error
}

func (s *DBTableStore) Positions() ([]worldmap.BlockPos, error) {
	var keys []string
	err := s.db.Model(&model.TableAttr{}).
		Where("attr_key = ?", model.TableMarkerKey).
		Pluck("table_pos", &keys).Error
	if err != nil {
		return nil, err
	}
	out := make([]worldmap.BlockPos, 0, len(keys))
	for _, k := range keys {
		pos, err := ParseBlockPos(k)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

// ParseBlockPos 解析 "x,y,z"
func ParseBlockPos(s string) (worldmap.BlockPos, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return worldmap.BlockPos{}, fmt.Errorf("invalid block position %q", s)
	}
	var v [3]int32
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return worldmap.BlockPos{}, fmt.Errorf("invalid block position %q: %w", s, err)
		}
		v[i] = int32(n)
	}
	return worldmap.BlockPos{X: v[0], Y: v[1], Z: v[2]}, nil
}

// MemoryTableStore 内存实现
type MemoryTableStore struct {
	mu     sync.Mutex
	tables map[worldmap.BlockPos]*codec.MemoryTree
}

func NewMemoryTableStore() *MemoryTableStore {
	return &MemoryTableStore{tables: make(map[worldmap.BlockPos]*codec.MemoryTree)}
}

func (s *MemoryTableStore) Create(pos worldmap.BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[pos]; ok {
		return ErrTableExists
	}
	s.tables[pos] = codec.NewMemoryTree()
	return nil
}

func (s *MemoryTableStore) Load(pos worldmap.BlockPos) (*codec.MemoryTree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.tables[pos]
	if !ok {
		return nil, ErrTableNotFound
	}
	return tree.Clone(), nil
}

func (s *MemoryTableStore) Save(pos worldmap.BlockPos, tree *codec.MemoryTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[pos]; !ok {
		return ErrTableNotFound
	}
	s.tables[pos] = tree.Clone()
	return nil
}

func (s *MemoryTableStore) Delete(pos worldmap.BlockPos) error {
	s.mu.Lock()
	delete(s.tables, pos)
	s.mu.Unlock()
	return nil
}

func (s *MemoryTableStore) Positions() ([]worldmap.BlockPos, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]worldmap.BlockPos, 0, len(s.tables))
	for pos := range s.tables {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
