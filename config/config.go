package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	SaveBackendMySQL  = "mysql"
	SaveBackendFile   = "file"
	SaveBackendMemory = "memory"
)

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CorsOrigins []string `mapstructure:"cors_origins"`
	JwtSecret   string   `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MapperConfig 世界地图引擎相关配置
type MapperConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	SaveBackend        string  `mapstructure:"save_backend"`
	SaveDir            string  `mapstructure:"save_dir"`
	ClientDataDir      string  `mapstructure:"client_data_dir"`
	Compress           bool    `mapstructure:"compress"`
	BufferSize         int     `mapstructure:"buffer_size"`
	AttributePartLimit int     `mapstructure:"attribute_part_limit"`
	AutosaveSeconds    float64 `mapstructure:"autosave_seconds"`
	RedrawIntervalMs   int     `mapstructure:"redraw_interval_ms"`
	WorldSaveSeconds   int     `mapstructure:"world_save_seconds"`
	OceanColor         uint32  `mapstructure:"ocean_color"`
	TableCacheMB       int64   `mapstructure:"table_cache_mb"`
	Language           string  `mapstructure:"language"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Mapper   MapperConfig   `mapstructure:"mapper"`
}

var (
	conf     *Config
	confOnce sync.Once
)

// GetConfig 返回进程级配置；首次调用时从 .env / config.yaml / 环境变量加载
func GetConfig() *Config {
	confOnce.Do(func() {
		_ = godotenv.Load()
		c, err := Load("")
		if err != nil {
			panic(err)
		}
		conf = c
	})
	return conf
}

// Load 读取指定配置文件；path 为空时在 . 与 ./config 下寻找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MAPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8086")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("mapper.enabled", true)
	v.SetDefault("mapper.save_backend", SaveBackendFile)
	v.SetDefault("mapper.save_dir", "data/save")
	v.SetDefault("mapper.client_data_dir", "data/maps")
	v.SetDefault("mapper.compress", true)
	v.SetDefault("mapper.buffer_size", 64*1024)
	v.SetDefault("mapper.attribute_part_limit", 30000)
	v.SetDefault("mapper.autosave_seconds", 300)
	v.SetDefault("mapper.redraw_interval_ms", 100)
	v.SetDefault("mapper.world_save_seconds", 60)
	v.SetDefault("mapper.ocean_color", 0xFFB5854E)
	v.SetDefault("mapper.table_cache_mb", 32)
	v.SetDefault("mapper.language", "en")
}
