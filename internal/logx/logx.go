// Package logx 构造全局 zerolog logger；配置了 Path 时经 lumberjack 轮转写文件。
package logx

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const fileName = "ammds-bridge.log"

type Config struct {
	Level      string
	Format     string // console | json
	Path       string // 日志目录；为空时只写 Out
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger 持有轮转文件句柄，退出前需要 Close。
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// New 把日志写到 out（通常是 stderr，stdout 留给 JSON 报告）。
func New(cfg Config, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	var console io.Writer = out
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var (
		w       = console
		rotator *lumberjack.Logger
	)
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err == nil {
			rotator = &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Path, fileName),
				MaxSize:    orDefault(cfg.MaxSizeMB, 20),
				MaxBackups: orDefault(cfg.MaxBackups, 3),
				MaxAge:     orDefault(cfg.MaxAgeDays, 28),
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			// 文件里始终是 JSON 行，便于检索。
			w = io.MultiWriter(console, rotator)
		}
	}

	l := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return &Logger{Logger: l, rotator: rotator}
}

func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// ParseLevel 解析日志级别；未知值回退 info。
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
