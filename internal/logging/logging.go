// Package logging builds the process logger. Output goes to a file under the base
// directory; stdout is reserved for MCP frames and CLI JSON.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file created in the base directory.
const FileName = "banter.log"

// ParseLevel maps a config level name to a zap level. Unknown names fall back to info.
func ParseLevel(name string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// New returns a production JSON logger appending to baseDir/banter.log.
func New(baseDir, level string) (*zap.Logger, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	config.OutputPaths = []string{filepath.Join(baseDir, FileName)}
	config.ErrorOutputPaths = []string{filepath.Join(baseDir, FileName)}
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Sampling = nil

	return config.Build()
}

// NewOrNop returns New's logger, or a no-op logger if the file cannot be opened.
// A missing log must never stop the chat.
func NewOrNop(baseDir, level string) *zap.Logger {
	logger, err := New(baseDir, level)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
