// Package serve runs the model store service: restores sealed models,
// preloads configured models, and exposes the HTTP operation surface.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/shroudml/shroud-go/internal/api"
	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/logging"
	"github.com/shroudml/shroud-go/internal/model"
	"github.com/shroudml/shroud-go/internal/modelstore"
	"github.com/shroudml/shroud-go/internal/observability"
	"github.com/shroudml/shroud-go/internal/sealing"
)

const shutdownTimeout = 10 * time.Second

// Command returns the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the model store service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}

	cmd.PersistentFlags().StringVar(&settings.WebServer.Host, "host", settings.WebServer.Host, "Bind address for the HTTP API")
	cmd.PersistentFlags().StringVar(&settings.WebServer.Port, "port", settings.WebServer.Port, "Bind port for the HTTP API")
	cmd.PersistentFlags().IntVar(&settings.Model.Threads, "threads", settings.Model.Threads, "Interpreter threads per loaded model, 0 for runtime default")

	return cmd
}

func run(settings *conf.Settings) error {
	log := logging.ForService("serve")

	if settings.Main.Log.Enabled {
		level := slog.LevelInfo
		if settings.Main.Debug {
			level = slog.LevelDebug
		}
		fileLogger, closeLogger, err := logging.NewFileLogger(
			settings.Main.Log.Path, "serve", level,
			&logging.FileLoggerOptions{
				MaxSizeMB:  settings.Main.Log.MaxSize,
				MaxBackups: settings.Main.Log.MaxBackups,
				MaxAgeDays: settings.Main.Log.MaxAge,
			})
		if err != nil {
			log.Warn("file logging disabled", "path", settings.Main.Log.Path, "error", err)
		} else {
			defer func() {
				if err := closeLogger(); err != nil {
					log.Warn("closing log file failed", "error", err)
				}
			}()
			log = fileLogger
		}
	}

	sealer, err := sealing.NewFileSealer(settings.Sealing.KeyPath)
	if err != nil {
		return fmt.Errorf("initializing sealer: %w", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	loader := model.NewTFLiteLoader(settings.Model.Threads)
	store := modelstore.New(settings, sealer, loader, metrics.ModelStore)

	if err := store.StartupUnseal(); err != nil {
		return fmt.Errorf("restoring sealed models: %w", err)
	}
	if err := store.LoadConfigModels(); err != nil {
		return fmt.Errorf("loading configured models: %w", err)
	}
	log.Info("model store ready", "models", store.Len())

	if !settings.WebServer.Enabled {
		log.Warn("web server disabled, nothing to serve")
		return nil
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("512M"))
	api.New(e, store, settings, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		addr := settings.WebServer.Host + ":" + settings.WebServer.Port
		log.Info("starting HTTP API", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
