package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/voicechanger/internal/controller"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/session"
)

// Session actions
const (
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionSetPitch = "set_pitch"
)

// SessionStatus is the response of GET /api/v1/session
type SessionStatus struct {
	Permission bool    `json:"permission"`
	Running    bool    `json:"running"`
	Pitch      float32 `json:"pitch"`
	MinPitch   float32 `json:"min_pitch"`
	MaxPitch   float32 `json:"max_pitch"`
	LastError  string  `json:"last_error,omitempty"`
}

// ControlResult represents the result of a control action
type ControlResult struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Action    string        `json:"action"`
	Session   SessionStatus `json:"session"`
	Timestamp time.Time     `json:"timestamp"`
}

// PitchRequest is the body of PUT /api/v1/session/pitch
type PitchRequest struct {
	Pitch *float32 `json:"pitch"`
}

// PitchResult is the response of PUT /api/v1/session/pitch
type PitchResult struct {
	ControlResult
	Requested float32 `json:"requested"`
	Applied   float32 `json:"applied"`
}

// GetSession handles GET /api/v1/session
func (s *Server) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status())
}

// StartSession handles POST /api/v1/session/start
func (s *Server) StartSession(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.ctrl.Start(ctx); err != nil {
		return s.HandleError(c, err, "Failed to start voice changer", statusFor(err))
	}
	return c.JSON(http.StatusOK, s.result(ActionStart, "Voice changer started"))
}

// StopSession handles POST /api/v1/session/stop
func (s *Server) StopSession(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.ctrl.Stop(ctx); err != nil {
		return s.HandleError(c, err, "Failed to stop voice changer", statusFor(err))
	}
	return c.JSON(http.StatusOK, s.result(ActionStop, "Voice changer stopped"))
}

// SetPitch handles PUT /api/v1/session/pitch
func (s *Server) SetPitch(c echo.Context) error {
	var req PitchRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Pitch == nil {
		return s.HandleError(c, nil, "Missing pitch value", http.StatusBadRequest)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	applied, err := s.ctrl.SetPitch(ctx, *req.Pitch)
	if err != nil {
		return s.HandleError(c, err, "Failed to set pitch", statusFor(err))
	}

	message := "Pitch updated"
	if !s.ctrl.State().Running {
		message = "Voice changer is not running, pitch ignored"
	}
	return c.JSON(http.StatusOK, PitchResult{
		ControlResult: s.result(ActionSetPitch, message),
		Requested:     *req.Pitch,
		Applied:       applied,
	})
}

func (s *Server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
}

func (s *Server) status() SessionStatus {
	state := s.ctrl.State()
	minPitch, maxPitch := s.ctrl.PitchRange()
	return SessionStatus{
		Permission: state.Permission,
		Running:    state.Running,
		Pitch:      state.Pitch,
		MinPitch:   minPitch,
		MaxPitch:   maxPitch,
		LastError:  state.LastError,
	}
}

func (s *Server) result(action, message string) ControlResult {
	return ControlResult{
		Success:   true,
		Message:   message,
		Action:    action,
		Session:   s.status(),
		Timestamp: time.Now(),
	}
}

// statusFor maps session errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, controller.ErrClosed), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrEngineInit), errors.Is(err, session.ErrEngineStop):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError logs err and writes an error response with a correlation ID
func (s *Server) HandleError(c echo.Context, err error, message string, code int) error {
	correlationID := c.Response().Header().Get(echo.HeaderXRequestID)
	if correlationID == "" {
		correlationID = "none"
	}

	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}

	s.log.WithContext(c.Request().Context()).Warn("API error",
		logger.String("correlation_id", correlationID),
		logger.String("message", message),
		logger.String("error", errorStr),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.String("ip", c.RealIP()))

	return c.JSON(code, ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	})
}
