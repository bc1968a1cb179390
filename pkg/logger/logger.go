package logger

import (
	"os"

	"go.uber.org/zap"
)

// NewFromConfig creates a new logger from configuration
func NewFromConfig(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	if hostname, err := os.Hostname(); err == nil {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, nil
}
