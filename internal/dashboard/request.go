package dashboard

import (
	"errors"
	"strings"
	"time"

	"github.com/tiffany-su2004/smart-greenhouse/internal/greenhouse"
	"github.com/tiffany-su2004/smart-greenhouse/internal/jobs"
)

// ControlRequest toggles one actuator.
type ControlRequest struct {
	DeviceID string `json:"device_id"`
	Status   *bool  `json:"status"`
}

func (r ControlRequest) Validate() error {
	if strings.TrimSpace(r.DeviceID) == "" {
		return errors.New("device_id is required")
	}
	if r.Status == nil {
		return errors.New("status is required")
	}
	return nil
}

// LoginRequest starts an operator session.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return errors.New("email and password are required")
	}
	return nil
}

// SnapshotResponse is the JSON view of jobs.Snapshot.
type SnapshotResponse struct {
	Reading             *greenhouse.SensorReading          `json:"reading"`
	Controls            map[string]greenhouse.ControlState `json:"controls"`
	Settings            greenhouse.SystemSettings          `json:"settings"`
	LastUpdated         time.Time                          `json:"last_updated"`
	LastError           string                             `json:"last_error,omitempty"`
	ConsecutiveFailures int                                `json:"consecutive_failures"`
	Stale               bool                               `json:"stale"`
}

func toSnapshotResponse(s jobs.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Controls:            s.Controls,
		Settings:            s.Settings,
		LastUpdated:         s.LastUpdated,
		ConsecutiveFailures: s.ConsecutiveFailures,
		Stale:               s.IsStale(),
	}
	if s.HasReading {
		reading := s.Reading
		resp.Reading = &reading
	}
	if s.LastError != nil {
		resp.LastError = s.LastError.Error()
	}
	return resp
}

// SessionResponse reports the console's session state. Tokens are never exposed.
type SessionResponse struct {
	State string                  `json:"state"`
	User  *greenhouse.CurrentUser `json:"user,omitempty"`
}
