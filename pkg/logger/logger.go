package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.LevelKey = "level"

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(parsed)
	}

	return config.Build()
}

func NewSugared() (*zap.SugaredLogger, error) {
	logger, err := New()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
