// Package middleware provides HTTP middleware components for the control API.
package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/voicechanger/internal/logger"
)

// RequestRecorder records completed requests.
type RequestRecorder interface {
	RecordRequest(method, path string, statusCode int, duration time.Duration)
}

// NewRequestLogger creates a request logging middleware. Requests are logged
// at debug level and recorded under their route pattern when rec is not nil.
func NewRequestLogger(log logger.Logger, rec RequestRecorder) echo.MiddlewareFunc {
	return NewRequestLoggerWithSkipper(log, rec, nil)
}

// NewRequestLoggerWithSkipper creates a request logging middleware with a custom skipper.
func NewRequestLoggerWithSkipper(log logger.Logger, rec RequestRecorder, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:      skipper,
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if rec != nil {
				path := c.Path()
				if path == "" {
					path = "unmatched"
				}
				rec.RecordRequest(v.Method, path, v.Status, v.Latency)
			}
			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			log.Debug("request", fields...)
			return nil
		},
	})
}

// NewTraceContext stores the request ID as the logger trace ID of the request
// context. It must run after the RequestID middleware.
func NewTraceContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
			}
			return next(c)
		}
	}
}
