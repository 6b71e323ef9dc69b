// Package logging builds the zap logger used across queryweaver.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New creates a logger appropriate for the given environment.
// "local" and "dev" get human-readable console output at debug level;
// anything else gets production JSON at info level.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "local", "dev":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
