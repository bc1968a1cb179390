package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	ServiceName string   `koanf:"service_name" json:"service_name" yaml:"service_name"`
	Environment string   `koanf:"environment" json:"environment" yaml:"environment"`
	Level       string   `koanf:"level" json:"level" yaml:"level"`
	Encoding    string   `koanf:"encoding" json:"encoding" yaml:"encoding"` // json or console
	OutputPaths []string `koanf:"output_paths" json:"output_paths" yaml:"output_paths"`
	ErrorPaths  []string `koanf:"error_paths" json:"error_paths" yaml:"error_paths"`
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Level:       "info",
		Encoding:    "json",
		OutputPaths: []string{"stdout"},
		ErrorPaths:  []string{"stderr"},
	}
}

// DevelopmentConfig returns development logger configuration
func DevelopmentConfig() *Config {
	return &Config{
		Environment: "development",
		Level:       "debug",
		Encoding:    "console",
		OutputPaths: []string{"stdout"},
		ErrorPaths:  []string{"stderr"},
	}
}

// Development reports whether the config targets a local environment.
func (c *Config) Development() bool {
	return c.Environment == "" || c.Environment == "development" || c.Environment == "dev"
}

// Build creates a logger from the configuration
func (c *Config) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if c.Development() {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.EncoderConfig.MessageKey = "message"
		zapConfig.EncoderConfig.LevelKey = "level"
		zapConfig.EncoderConfig.CallerKey = "caller"
		zapConfig.EncoderConfig.StacktraceKey = "stacktrace"
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)
	if c.Encoding != "" {
		zapConfig.Encoding = c.Encoding
	}
	if len(c.OutputPaths) > 0 {
		zapConfig.OutputPaths = c.OutputPaths
	}
	if len(c.ErrorPaths) > 0 {
		zapConfig.ErrorOutputPaths = c.ErrorPaths
	}

	initial := map[string]interface{}{}
	if c.ServiceName != "" {
		initial["service"] = c.ServiceName
	}
	if c.Environment != "" {
		initial["env"] = c.Environment
	}
	zapConfig.InitialFields = initial

	return zapConfig.Build()
}
