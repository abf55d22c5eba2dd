package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志输出配置
type Options struct {
	Level      string // debug | info | warn | error
	File       string // 为空则只输出到 stdout
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	logger = newDefault()
	mu     sync.Mutex
	rotate *lumberjack.Logger
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init 根据配置重建全局 logger，可重复调用
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return err
		}
		if rotate != nil {
			_ = rotate.Close()
		}
		rotate = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 7),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotate)
	}

	logger.SetOutput(out)
	logger.SetLevel(level)
	return nil
}

// Close 关闭滚动文件
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotate == nil {
		return nil
	}
	err := rotate.Close()
	rotate = nil
	return err
}

// Logger 返回底层 logrus 实例，供 gin 等组件接入
func Logger() *logrus.Logger { return logger }

func WithField(key string, value interface{}) *logrus.Entry {
	return logger.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

func Debug(args ...interface{}) { logger.Debug(args...) }
func Debugf(format string, args ...interface{}) { logger.Debugf(format, args...) }
func Info(args ...interface{}) { logger.Info(args...) }
func Infof(format string, args ...interface{}) { logger.Infof(format, args...) }
func Warn(args ...interface{}) { logger.Warn(args...) }
func Warnf(format string, args ...interface{}) { logger.Warnf(format, args...) }
func Error(args ...interface{}) { logger.Error(args...) }
func Errorf(format string, args ...interface{}) { logger.Errorf(format, args...) }
func Fatal(args ...interface{}) { logger.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { logger.Fatalf(format, args...) }
func Printf(format string, args ...interface{}) { logger.Printf(format, args...) }
func Println(args ...interface{}) { logger.Println(args...) }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
