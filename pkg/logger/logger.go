// Package logger provides the process-wide zerolog logger used by every relay component.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`    // debug, info, warn, error
	Format string `json:"format" mapstructure:"format" yaml:"format"` // console, json
	File   string `json:"file" mapstructure:"file" yaml:"file"`       // 追加写入的日志文件，空表示不写文件
}

var (
	root        zerolog.Logger
	logFile     *os.File
	mu          sync.RWMutex
	initialized bool
)

// ParseLevel converts a level name to a zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
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

// Init configures the root logger. It may be called again to reconfigure;
// a previously opened log file is closed first.
func Init(cfg LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if strings.ToLower(cfg.Format) == "json" {
		writers = append(writers, os.Stderr)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		logFile = f
		writers = append(writers, f)
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	root = zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	initialized = true
	return nil
}

// Get returns the root logger. Before Init it writes JSON to stderr.
func Get() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !initialized {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		return &l
	}
	l := root
	return &l
}

// Component returns a child of base tagged with the component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// Close closes the log file if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Debug returns a debug level event on the root logger.
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info returns an info level event on the root logger.
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn returns a warn level event on the root logger.
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error returns an error level event on the root logger.
func Error() *zerolog.Event {
	return Get().Error()
}
