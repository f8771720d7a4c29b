package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/voicechanger/internal/logger"
)

// bearerTokenParts is the expected number of parts when splitting Authorization header.
const bearerTokenParts = 2

// Context keys for authentication values stored in echo.Context.
// They are prefixed with "auth:" to prevent collisions with other packages.
const (
	CtxKeyIsAuthenticated = "auth:isAuthenticated"
	CtxKeyAuthMethod      = "auth:authMethod"
)

// Middleware provides authentication middleware with the Service
type Middleware struct {
	AuthService Service
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(service Service) *Middleware {
	return &Middleware{
		AuthService: service,
	}
}

// Authenticate rejects requests without a valid bearer token when one is required
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.AuthService == nil {
			m.log().Error("Authentication middleware called with nil AuthService",
				logger.String("path", c.Request().URL.Path),
				logger.String("ip", c.RealIP()))
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "Internal configuration error: authentication service not available",
			})
		}

		required, method := m.AuthService.IsAuthRequired(c)
		if !required {
			c.Set(CtxKeyIsAuthenticated, true)
			c.Set(CtxKeyAuthMethod, method)
			return next(c)
		}

		path := c.Request().URL.Path
		ip := c.RealIP()

		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			m.log().Info("Authentication required but not provided",
				logger.String("path", path),
				logger.String("ip", ip))
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="api"`)
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Authentication required",
			})
		}

		parts := strings.SplitN(authHeader, " ", bearerTokenParts)
		if len(parts) != bearerTokenParts || !strings.EqualFold(parts[0], "bearer") {
			m.log().Warn("Malformed Authorization header",
				logger.String("path", path),
				logger.String("ip", ip))
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="api"`)
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Invalid Authorization header",
			})
		}

		if err := m.AuthService.ValidateToken(strings.TrimSpace(parts[1])); err != nil {
			m.log().Warn("Token validation failed",
				logger.String("path", path),
				logger.String("ip", ip))
			c.Response().Header().Set(echo.HeaderWWWAuthenticate,
				`Bearer realm="api", error="invalid_token", error_description="Invalid or expired token"`)
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Invalid or expired token",
			})
		}

		c.Set(CtxKeyIsAuthenticated, true)
		c.Set(CtxKeyAuthMethod, AuthMethodToken)
		return next(c)
	}
}

func (m *Middleware) log() logger.Logger {
	return GetLogger()
}
