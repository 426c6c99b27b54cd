// internal/api/api.go
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shroudml/shroud-go/internal/buildinfo"
	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/errors"
	"github.com/shroudml/shroud-go/internal/logging"
	"github.com/shroudml/shroud-go/internal/modelstore"
	"github.com/shroudml/shroud-go/internal/observability"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	Store     *modelstore.ModelStore
	Settings  *conf.Settings
	apiLogger *slog.Logger
	metrics   *observability.Metrics
	startTime time.Time
}

// New creates the API controller and registers its routes on e.
// The metrics instance may be nil; the /metrics endpoint is then omitted.
func New(e *echo.Echo, store *modelstore.ModelStore, settings *conf.Settings, metrics *observability.Metrics) *Controller {
	c := &Controller{
		Echo:      e,
		Store:     store,
		Settings:  settings,
		metrics:   metrics,
		startTime: time.Now(),
	}

	c.apiLogger = logging.ForService("api")
	if c.apiLogger == nil {
		c.apiLogger = slog.Default().With("service", "api")
	}

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group = c.Echo.Group("/api/v1")

	c.Group.POST("/models", c.UploadModel)
	c.Group.GET("/models", c.ListModels)
	c.Group.GET("/models/:id", c.GetModel)
	c.Group.DELETE("/models/:id", c.DeleteModel)

	c.Echo.GET("/healthz", c.HealthCheck)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// HealthCheck handles the health check endpoint.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        buildinfo.Version,
		"build_date":     buildinfo.BuildDate,
		"timestamp":      time.Now().Format(time.RFC3339),
		"models_stored":  c.Store.Len(),
		"uptime_seconds": uptime.Seconds(),
	})
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a unique identifier for error tracking using
// cryptographic randomness.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// statusForError maps an error's category to an HTTP status code.
func statusForError(err error) int {
	switch {
	case errors.HasCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.HasCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.HasCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	case errors.HasCategory(err, errors.CategoryModelLoad):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HandleError constructs and returns an appropriate error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}
	c.apiLogger.Error("API Error",
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"error", errorStr,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, errorResp)
}
