// Package logging builds the zap loggers used across the harvester.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the harvester's logger. Development mode uses the console
// encoder with colored levels; production mode emits JSON without
// stacktraces, since every failure here already carries a typed error
// with its own context.
func New(development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("harvester"), nil
}
