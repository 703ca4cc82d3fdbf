// Package logging builds the zap logger used by the binaries. *zap.SugaredLogger
// satisfies loader.Logger directly.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a sugared logger for mode "prod"/"production" or development otherwise.
func New(mode string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
