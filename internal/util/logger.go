package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger initializes the global logger. Production emits JSON, everything
// else the colored console encoder.
func InitLogger(env, service string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := config.Build(zap.Fields(zap.String("service", service)))
	if err != nil {
		return err
	}

	SetLogger(l)
	return nil
}

// SetLogger replaces the global logger
func SetLogger(l *zap.Logger) {
	logger = l
	zap.ReplaceGlobals(l)
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
