package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"b3repro/config"
)

func NewLogger(appConfig *config.AppConfig) *zap.Logger {
	level := zapcore.InfoLevel
	switch strings.ToLower(appConfig.LogLevel) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var cfg zap.Config
	if level > zapcore.InfoLevel {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	lg, err := cfg.Build(zap.AddCaller())
	if err != nil {
		// log failed to build, return a default one
		return zap.NewExample()
	}
	return lg
}
