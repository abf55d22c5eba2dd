package system

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cartograph/api/config"
	"cartograph/api/log"
	"cartograph/api/model"
)

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// ErrNoDatabase 未初始化数据库时返回
var ErrNoDatabase = errors.New("system: database not initialized")

// InitDb 打开 MySQL 连接并迁移地图相关表
func InitDb(cfg config.DatabaseConfig) error {
	if cfg.DSN == "" {
		return fmt.Errorf("%w: empty dsn", ErrNoDatabase)
	}
	conn, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.New(log.Logger(), logger.Config{
			SlowThreshold: 500 * time.Millisecond,
			LogLevel:      logger.Warn,
		}),
	})
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := conn.AutoMigrate(&model.SaveData{}, &model.TableAttr{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	SetDb(conn)
	log.Info("database connected")
	return nil
}

func SetDb(conn *gorm.DB) {
	dbMu.Lock()
	db = conn
	dbMu.Unlock()
}

func GetDb() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// CloseDb 关闭连接池
func CloseDb() error {
	conn := GetDb()
	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
