package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for session log sinks.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// RotationConfig carries lumberjack knobs for session sinks.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Setup installs the process-wide slog default: colored text on stderr.
func Setup(level slog.Level) *slog.Logger {
	h := NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}, true)
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

// SessionSink opens a fresh append-only log file for one operation against
// one project: dir/<op>_<timestamp>.log. A new file per session keeps each
// run's output separately inspectable; lumberjack caps runaway output.
func SessionSink(dir, op string, rc RotationConfig) (io.WriteCloser, string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.log", op, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	w := &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(rc.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(rc.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(rc.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   rc.Compress,
	}
	return w, path, nil
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
