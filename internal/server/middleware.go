package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey       = "request_id"
	sentryFlushTimeout = 2 * time.Second
)

// RequestTracking tags each request with an id and logs its outcome.
func RequestTracking(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		l := logger.With(
			"request_id", requestID,
			"duration_ms", time.Since(start).Milliseconds(),
			"status_code", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		switch {
		case status >= http.StatusInternalServerError:
			l.Error("request failed with server error", "errors", c.Errors.String())
		case status >= http.StatusBadRequest:
			l.Warn("request failed with client error", "errors", c.Errors.String())
		default:
			l.Info("request completed")
		}
	}
}

func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         sentryFlushTimeout,
	})
}

// RecoverWithSentry turns panics into 500 responses, reporting them when a
// Sentry hub is attached to the request.
func RecoverWithSentry(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				if hub := sentrygin.GetHubFromContext(c); hub != nil {
					hub.WithScope(func(scope *sentry.Scope) {
						scope.SetRequest(c.Request)
						scope.SetTag("request_id", c.GetString(requestIDKey))
						hub.RecoverWithContext(c.Request.Context(), err)
					})
				}
				logger.Error("panic recovered", "request_id", c.GetString(requestIDKey), "err", err, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal server error",
					"request_id": c.GetString(requestIDKey),
				})
			}
		}()
		c.Next()
	}
}

func captureError(c *gin.Context, err error) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("request_id", c.GetString(requestIDKey))
			hub.CaptureException(err)
		})
	}
}
