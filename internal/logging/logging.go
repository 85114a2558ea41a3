// Package logging builds the zap logger shared by every component
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the console sink and the optional rotated JSON file
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
	File   string `yaml:"file"`
	// Quiet drops the console sink, e.g. while a full-screen view owns the terminal
	Quiet bool `yaml:"-"`
}

// New builds a logger writing to stderr and, when File is set, to a
// rotated JSON file. The returned func flushes and closes the file.
func New(cfg Config) (*zap.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
		if err != nil {
			return nil, nil, err
		}
		level = l
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var console zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		console = zapcore.NewJSONEncoder(encCfg)
	} else {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		console = zapcore.NewConsoleEncoder(consoleCfg)
	}

	var cores []zapcore.Core
	if !cfg.Quiet {
		cores = append(cores, zapcore.NewCore(console, zapcore.Lock(os.Stderr), level))
	}

	closeFile := func() error { return nil }
	if file := strings.TrimSpace(cfg.File); file != "" {
		w := &lj.Logger{Filename: file, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level))
		closeFile = w.Close
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, func() error {
		_ = logger.Sync()
		return closeFile()
	}, nil
}
