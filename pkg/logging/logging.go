// Package logging builds the zap logger shared by all binaries.
package logging

import (
	"go.uber.org/zap"
)

// New returns a production JSON logger, or a human-readable development
// logger when debug is set.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
