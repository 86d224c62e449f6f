package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default file rotation constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config unifies structured logging (Slog) and rotated file output (File).
type Config struct {
	Slog SlogConfig `mapstructure:"slog"`
	File FileConfig `mapstructure:"file"`
}

// SlogConfig controls the console/structured logger.
type SlogConfig struct {
	Level      Level  `mapstructure:"level"`
	Format     Format `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	TimeStamps bool   `mapstructure:"timestamps"`
	Source     bool   `mapstructure:"source"`
}

// FileConfig describes where kernel logs are mirrored on disk.
// If Path is empty and Dir is set, logs go to Dir/<name>.log.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string `mapstructure:"dir"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Slog: SlogConfig{
			Level:      LevelInfo,
			Format:     FormatText,
			Color:      false,
			TimeStamps: true,
		},
	}
}

// ParseLevel maps a level name onto slog.Level. Unknown names are an error.
func ParseLevel(l Level) (slog.Level, error) {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo, "":
		return slog.LevelInfo, nil
	case LevelWarn, "warning":
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", l)
	}
}

// FileWriter returns a rotating writer for name, or nil when no file output is configured.
func (c Config) FileWriter(name string) io.WriteCloser {
	path := c.File.Path
	if path == "" && c.File.Dir != "" {
		path = filepath.Join(c.File.Dir, fmt.Sprintf("%s.log", name))
	}
	if path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

// NewSlogger builds a logger writing to stdout and, when configured, to a
// rotated file as well. File output is never coloured.
func (c Config) NewSlogger() *slog.Logger {
	return c.NewSloggerTo(os.Stdout, "nexus")
}

// NewSloggerTo is NewSlogger with an explicit console writer and file name.
func (c Config) NewSloggerTo(console io.Writer, name string) *slog.Logger {
	lvl, _ := ParseLevel(c.Slog.Level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: c.Slog.Source}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	var handlers []slog.Handler
	if console != nil {
		handlers = append(handlers, c.handler(console, opts, c.Slog.Color))
	}
	if fw := c.FileWriter(name); fw != nil {
		handlers = append(handlers, c.handler(fw, opts, false))
	}
	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, opts))
	case 1:
		return slog.New(handlers[0])
	default:
		return slog.New(fanout(handlers))
	}
}

func (c Config) handler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	if c.Slog.Format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	if color {
		return NewColorTextHandler(w, opts, c.Slog.TimeStamps)
	}
	return slog.NewTextHandler(w, opts)
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
