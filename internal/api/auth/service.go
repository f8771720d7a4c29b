// Package auth protects the control API with a static bearer token
package auth

import (
	"crypto/subtle"
	"net"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
)

// GetLogger returns the auth package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("auth")
}

// ErrInvalidToken is returned for a missing or wrong bearer token
var ErrInvalidToken = errors.NewStd("invalid or expired token")

// AuthMethod represents the type of authentication used
type AuthMethod int

const (
	AuthMethodUnknown AuthMethod = iota
	AuthMethodNone               // auth was not required for the request
	AuthMethodToken
	AuthMethodLoopback // bypassed for a loopback client
)

// String returns the method name used in logs
func (m AuthMethod) String() string {
	switch m {
	case AuthMethodNone:
		return "none"
	case AuthMethodToken:
		return "token"
	case AuthMethodLoopback:
		return "loopback"
	default:
		return "unknown"
	}
}

// Service decides whether a request needs a token and validates tokens
type Service interface {
	// IsAuthRequired reports whether the request must present a token,
	// and the method to record when it does not.
	IsAuthRequired(c echo.Context) (bool, AuthMethod)

	// ValidateToken returns nil on success or ErrInvalidToken.
	ValidateToken(token string) error
}

// TokenService accepts a single configured token
type TokenService struct {
	token          []byte
	bypassLoopback bool
}

// NewTokenService creates a service for token. An empty token disables
// authentication. With bypassLoopback, clients on the loopback interface
// need no token.
func NewTokenService(token string, bypassLoopback bool) *TokenService {
	return &TokenService{token: []byte(token), bypassLoopback: bypassLoopback}
}

// IsAuthRequired implements Service
func (s *TokenService) IsAuthRequired(c echo.Context) (bool, AuthMethod) {
	if len(s.token) == 0 {
		return false, AuthMethodNone
	}
	if s.bypassLoopback && isLoopback(c.RealIP()) {
		return false, AuthMethodLoopback
	}
	return true, AuthMethodToken
}

// ValidateToken implements Service using a constant time comparison
func (s *TokenService) ValidateToken(token string) error {
	if len(s.token) == 0 {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), s.token) != 1 {
		return ErrInvalidToken
	}
	return nil
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
