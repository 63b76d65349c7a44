// Package logging builds the process logger: zap over an optional
// lumberjack-rotated file, optionally teed to the console.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeLayout = "2006-01-02 15:04:05.000"

// Options configures New. The zero value logs info and above to stderr in
// console format.
type Options struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	File       string // rotated log file; empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Console    bool // also write to stderr when File is set
	ShowCaller bool
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	encoder, err := newEncoder(opts.Format)
	if err != nil {
		return nil, err
	}

	writer, err := newWriteSyncer(opts)
	if err != nil {
		return nil, err
	}

	var zopts []zap.Option
	if level == zapcore.DebugLevel {
		zopts = append(zopts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if opts.ShowCaller {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(zapcore.NewCore(encoder, writer, level), zopts...), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func newEncoder(format string) (zapcore.Encoder, error) {
	switch strings.ToLower(format) {
	case "json":
		return zapcore.NewJSONEncoder(encoderConfig()), nil
	case "", "console":
		return zapcore.NewConsoleEncoder(encoderConfig()), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func newWriteSyncer(opts Options) (zapcore.WriteSyncer, error) {
	stderr := zapcore.Lock(os.Stderr)
	if opts.File == "" {
		return stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefault(opts.MaxSizeMB, 100),
		MaxAge:     orDefault(opts.MaxAgeDays, 7),
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
		LocalTime:  true,
	})
	if opts.Console {
		return zapcore.NewMultiWriteSyncer(stderr, file), nil
	}
	return file, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Elapsed returns a field recording the time since start.
func Elapsed(start time.Time) zap.Field {
	return zap.Duration("elapsed", time.Since(start))
}
