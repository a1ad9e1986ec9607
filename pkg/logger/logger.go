package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
)

// Init sets the global log level. Unknown levels fall back to info.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()

	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}
	log = log.Level(lvl)
}

// DebugCF logs a debug message for a component with structured fields.
func DebugCF(component, msg string, fields map[string]any) {
	emit(zerolog.DebugLevel, component, msg, fields)
}

// InfoCF logs an info message for a component with structured fields.
func InfoCF(component, msg string, fields map[string]any) {
	emit(zerolog.InfoLevel, component, msg, fields)
}

// WarnCF logs a warning for a component with structured fields.
func WarnCF(component, msg string, fields map[string]any) {
	emit(zerolog.WarnLevel, component, msg, fields)
}

// ErrorCF logs an error for a component with structured fields.
func ErrorCF(component, msg string, fields map[string]any) {
	emit(zerolog.ErrorLevel, component, msg, fields)
}

func emit(lvl zerolog.Level, component, msg string, fields map[string]any) {
	mu.RLock()
	l := log
	mu.RUnlock()

	ev := l.WithLevel(lvl).Str("component", component)
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}
