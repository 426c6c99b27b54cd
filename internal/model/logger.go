// Package-level logger for the model package.
package model

import (
	"log/slog"
	"sync"

	"github.com/shroudml/shroud-go/internal/logging"
)

var (
	serviceLogger *slog.Logger
	initOnce      sync.Once
)

// getLogger returns the model package logger scoped to the model service.
// Uses sync.Once to ensure the logger is only initialized once.
func getLogger() *slog.Logger {
	initOnce.Do(func() {
		serviceLogger = logging.ForService("model")
		if serviceLogger == nil {
			serviceLogger = slog.Default().With("service", "model")
		}
	})
	return serviceLogger
}
