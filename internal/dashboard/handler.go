// Package dashboard serves the operator console's HTTP surface over the
// greenhouse facade.
package dashboard

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tiffany-su2004/smart-greenhouse/internal/greenhouse"
	"github.com/tiffany-su2004/smart-greenhouse/internal/httpclient"
	"github.com/tiffany-su2004/smart-greenhouse/internal/jobs"
	"github.com/tiffany-su2004/smart-greenhouse/internal/session"
)

// Console is the subset of the greenhouse facade the handlers call.
type Console interface {
	Login(ctx context.Context, email, password string) (*greenhouse.TokenResponse, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*greenhouse.CurrentUserResponse, error)
	SetDeviceControl(ctx context.Context, deviceID string, status bool) (*greenhouse.StatusResponse, error)
}

// SessionInspector reports the current session state.
type SessionInspector interface {
	State(ctx context.Context) session.State
}

// Snapshots exposes the latest polled dashboard data.
type Snapshots interface {
	Snapshot() jobs.Snapshot
}

// ControlLimiter throttles actuator toggles per device.
type ControlLimiter interface {
	Allow(deviceID string) bool
}

// Handler handles console API requests.
type Handler struct {
	logger    *zap.Logger
	console   Console
	sessions  SessionInspector
	snapshots Snapshots
	limiter   ControlLimiter
}

// NewHandler creates a Handler.
// limiter is optional; if nil, toggles are not throttled.
func NewHandler(logger *zap.Logger, console Console, sessions SessionInspector, snapshots Snapshots, limiter ControlLimiter) *Handler {
	return &Handler{
		logger:    logger,
		console:   console,
		sessions:  sessions,
		snapshots: snapshots,
		limiter:   limiter,
	}
}

// GetSnapshot returns the last polled dashboard data.
func (h *Handler) GetSnapshot(c *fiber.Ctx) error {
	snap := h.snapshots.Snapshot()
	if snap.LastUpdated.IsZero() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no snapshot yet"})
	}
	return c.JSON(toSnapshotResponse(snap))
}

// SetControl switches an actuator on or off.
func (h *Handler) SetControl(c *fiber.Ctx) error {
	var req ControlRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if h.limiter != nil && !h.limiter.Allow(req.DeviceID) {
		h.logger.Warn("dashboard.set_control.throttled", zap.String("device", req.DeviceID))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "device toggled too often; try again shortly"})
	}

	resp, err := h.console.SetDeviceControl(c.Context(), req.DeviceID, *req.Status)
	if err != nil {
		h.logger.Error("dashboard.set_control.failed",
			zap.String("device", req.DeviceID),
			zap.Error(err))
		return writeError(c, err)
	}

	h.logger.Info("dashboard.set_control",
		zap.String("device", req.DeviceID),
		zap.Bool("status", *req.Status))
	return c.JSON(fiber.Map{"device_id": req.DeviceID, "status": *req.Status, "message": resp.Message})
}

// Login exchanges operator credentials for a stored session.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if _, err := h.console.Login(c.Context(), req.Email, req.Password); err != nil {
		h.logger.Warn("dashboard.login.failed", zap.String("email", req.Email), zap.Error(err))
		return writeError(c, err)
	}
	return c.JSON(SessionResponse{State: h.sessions.State(c.Context()).String()})
}

// Logout forgets the stored session.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.console.Logout(c.Context()); err != nil {
		h.logger.Error("dashboard.logout.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(SessionResponse{State: h.sessions.State(c.Context()).String()})
}

// GetSession reports the session state and, when logged in, the current user.
func (h *Handler) GetSession(c *fiber.Ctx) error {
	state := h.sessions.State(c.Context())
	if state == session.Anonymous {
		return c.JSON(SessionResponse{State: state.String()})
	}

	me, err := h.console.CurrentUser(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(SessionResponse{State: h.sessions.State(c.Context()).String(), User: &me.Data})
}

// writeError maps client errors to console responses.
func writeError(c *fiber.Ctx, err error) error {
	var (
		refreshErr   *session.RefreshError
		reqErr       *greenhouse.RequestError
		transportErr *httpclient.TransportError
	)
	switch {
	case errors.As(err, &refreshErr) && refreshErr.Terminal():
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "session ended"})
	case errors.As(err, &reqErr):
		status := reqErr.Status
		if status >= fiber.StatusInternalServerError {
			status = fiber.StatusBadGateway
		}
		return c.Status(status).JSON(fiber.Map{"error": reqErr.Message})
	case refreshErr != nil, errors.As(err, &transportErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "greenhouse backend unreachable"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "greenhouse backend timed out"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
