package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
)

// Setup configures the global logger. When file is non-empty, log lines are
// appended there as JSON instead of being written to stderr. The UI owns the
// terminal while the widget is mounted, so interactive commands always pass a
// file sink.
func Setup(level, file string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	mu.Lock()
	defer mu.Unlock()

	if file == "" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			Level(lvl).With().Timestamp().Logger()
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	log = zerolog.New(f).Level(lvl).With().Timestamp().Logger()
	return nil
}

func DebugCF(component, msg string, fields map[string]interface{}) {
	l := logger()
	emit(l.Debug(), component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	l := logger()
	emit(l.Info(), component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	l := logger()
	emit(l.Warn(), component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	l := logger()
	emit(l.Error(), component, msg, fields)
}

func logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func emit(e *zerolog.Event, component, msg string, fields map[string]interface{}) {
	e = e.Str("component", component)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
