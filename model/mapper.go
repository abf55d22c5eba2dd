package model

import "cartograph/api/tools"

// SaveData 存档键值数据，世界地图的探索记录存放在 mapper:mapregions 键下
type SaveData struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SaveKey    string     `gorm:"column:save_key;type:varchar(128);not null;uniqueIndex" json:"save_key"`
	Data       []byte     `gorm:"column:data;type:longblob" json:"-"`
	Size       int        `gorm:"column:size" json:"size"`
	UpdateTime tools.Time `gorm:"column:update_time" json:"update_time"`
}

func (SaveData) TableName() string {
	return "n_mapper_save_data"
}

// TableAttr 制图桌属性，一行一个属性；大字段已按 30000 字节拆分
type TableAttr struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TablePos   string     `gorm:"column:table_pos;type:varchar(64);not null;uniqueIndex:uk_table_attr" json:"table_pos"`
	AttrKey    string     `gorm:"column:attr_key;type:varchar(128);not null;uniqueIndex:uk_table_attr" json:"attr_key"`
	BytesValue []byte     `gorm:"column:bytes_value;type:blob" json:"-"`
	IntValue   *int64     `gorm:"column:int_value" json:"int_value,omitempty"`
	UpdateTime tools.Time `gorm:"column:update_time" json:"update_time"`
}

func (TableAttr) TableName() string {
	return "n_mapper_table_attr"
}

// TableMarkerKey 标记一个已放置的制图桌，没有任何属性的新桌子也能被找到
const TableMarkerKey = "__table"
