// Package-level logger for the modelstore package.
package modelstore

import (
	"log/slog"
	"sync"

	"github.com/shroudml/shroud-go/internal/logging"
)

var (
	serviceLogger *slog.Logger
	initOnce      sync.Once
)

// getLogger returns the modelstore package logger.
// Uses sync.Once to ensure the logger is only initialized once.
func getLogger() *slog.Logger {
	initOnce.Do(func() {
		serviceLogger = logging.ForService("modelstore")
		if serviceLogger == nil {
			serviceLogger = slog.Default().With("service", "modelstore")
		}
	})
	return serviceLogger
}
