// Package greenhouse is the typed facade over the greenhouse backend API:
// one method per route, each mapping a non-2xx response to a *RequestError.
package greenhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/tiffany-su2004/smart-greenhouse/internal/credentials"
	"github.com/tiffany-su2004/smart-greenhouse/internal/httpclient"
)

// maxBodyBytes bounds how much of a response is read into memory.
const maxBodyBytes = 4 << 20

// Dispatcher sends requests to the backend. *httpclient.Dispatcher satisfies it.
type Dispatcher interface {
	Do(ctx context.Context, r httpclient.Request) (*http.Response, error)
	DoAnonymous(ctx context.Context, r httpclient.Request) (*http.Response, error)
}

// Client is the greenhouse API facade. It holds no per-call state and is
// safe for concurrent use.
type Client struct {
	logger *zap.Logger
	disp   Dispatcher
	store  credentials.Store
	device string
}

// NewClient builds a Client. device is the label sent with login requests.
func NewClient(logger *zap.Logger, disp Dispatcher, store credentials.Store, device string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{logger: logger, disp: disp, store: store, device: device}
}

//
// ────────────────────────────────────────────────
//   Auth
// ────────────────────────────────────────────────
//

// Login exchanges email and password for a credential pair and stores it.
// POST /auth/login
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	var resp TokenResponse
	body := LoginRequest{Email: email, Password: password, Device: c.device}
	if err := c.anonymous(ctx, http.MethodPost, "/auth/login", body, "Login failed", &resp); err != nil {
		return nil, err
	}
	if err := c.store.SetPair(ctx, credentials.Pair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}); err != nil {
		return nil, fmt.Errorf("store login credentials: %w", err)
	}
	c.logger.Info("greenhouse.login_success", zap.String("email", email))
	return &resp, nil
}

// Register creates an account. Any credentials in the response are stored.
// POST /auth/register
func (c *Client) Register(ctx context.Context, req RegisterRequest) (map[string]any, error) {
	resp := map[string]any{}
	if err := c.anonymous(ctx, http.MethodPost, "/auth/register", req, "Signup failed", &resp); err != nil {
		return nil, err
	}
	access, _ := resp["access_token"].(string)
	refresh, _ := resp["refresh_token"].(string)
	if err := c.store.SetPair(ctx, credentials.Pair{AccessToken: access, RefreshToken: refresh}); err != nil {
		return nil, fmt.Errorf("store signup credentials: %w", err)
	}
	return resp, nil
}

// Logout forgets both credentials. The backend is not contacted.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	c.logger.Info("greenhouse.logout")
	return nil
}

// CurrentUser returns the authenticated user's token claims.
// GET /auth/me
func (c *Client) CurrentUser(ctx context.Context) (*CurrentUserResponse, error) {
	var resp CurrentUserResponse
	if err := c.get(ctx, "/auth/me", nil, "Failed to fetch current user", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

//
// ────────────────────────────────────────────────
//   Sensors
// ────────────────────────────────────────────────
//

// LatestSensor returns the most recent reading.
// GET /sensor/latest
func (c *Client) LatestSensor(ctx context.Context) (*SensorLatestResponse, error) {
	var resp SensorLatestResponse
	if err := c.get(ctx, "/sensor/latest", nil, "Failed to fetch latest sensor", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SensorHistory returns readings within rng ("24h", "7d", "30d").
// GET /sensor/history?range=
func (c *Client) SensorHistory(ctx context.Context, rng string) (*SensorHistoryResponse, error) {
	var resp SensorHistoryResponse
	if err := c.get(ctx, "/sensor/history", rangeQuery(rng), "Failed to fetch sensor history", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestSensorReading stores a reading. Admin only.
// POST /sensor/latest
func (c *Client) IngestSensorReading(ctx context.Context, reading SensorReading) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.send(ctx, http.MethodPost, "/sensor/latest", "", reading, "Failed to save sensor data", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

//
// ────────────────────────────────────────────────
//   Control
// ────────────────────────────────────────────────
//

// SetDeviceControl switches an actuator on or off.
// POST /control/control
func (c *Client) SetDeviceControl(ctx context.Context, deviceID string, status bool) (*StatusResponse, error) {
	var resp StatusResponse
	cmd := ControlCommand{DeviceID: deviceID, Status: status}
	if err := c.send(ctx, http.MethodPost, "/control/control", "", cmd, "Failed to update device control", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeviceControls returns the last known state of every actuator.
// GET /control/control
func (c *Client) DeviceControls(ctx context.Context) (*ControlsResponse, error) {
	var resp ControlsResponse
	if err := c.get(ctx, "/control/control", nil, "Failed to fetch controls", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateModeAndTargets sets the growth mode, nutrient targets and light schedule.
// PUT /control/settings/mode
func (c *Client) UpdateModeAndTargets(ctx context.Context, u ModeUpdate) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.send(ctx, http.MethodPut, "/control/settings/mode", "", u, "Failed to update mode/targets", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateThresholds sets alert tolerances. Admin only.
// PUT /control/settings/thresholds
func (c *Client) UpdateThresholds(ctx context.Context, u ThresholdUpdate) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.send(ctx, http.MethodPut, "/control/settings/thresholds", "", u, "Failed to update thresholds", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SystemSettings returns the current system configuration.
// GET /control/settings
func (c *Client) SystemSettings(ctx context.Context) (*SystemSettingsResponse, error) {
	var resp SystemSettingsResponse
	if err := c.get(ctx, "/control/settings", nil, "Failed to fetch system settings", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

//
// ────────────────────────────────────────────────
//   Nutrients and growth
// ────────────────────────────────────────────────
//

// CreateNutrientEvent records a dosing.
// POST /nutrients/events
func (c *Client) CreateNutrientEvent(ctx context.Context, ev NutrientEvent) (*NutrientEventResponse, error) {
	if ev.Source == "" {
		ev.Source = "manual"
	}
	ev.ID = ""
	var resp NutrientEventResponse
	if err := c.send(ctx, http.MethodPost, "/nutrients/events", "", ev, "Failed to create nutrient event", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NutrientUsage returns dosing events and their total within rng.
// GET /nutrients/usage?range=
func (c *Client) NutrientUsage(ctx context.Context, rng string) (*NutrientUsageResponse, error) {
	var resp NutrientUsageResponse
	if err := c.get(ctx, "/nutrients/usage", rangeQuery(rng), "Failed to fetch nutrient usage", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GrowthPhaseHistory returns mode changes within rng.
// GET /growth/history?range=
func (c *Client) GrowthPhaseHistory(ctx context.Context, rng string) (*GrowthHistoryResponse, error) {
	var resp GrowthHistoryResponse
	if err := c.get(ctx, "/growth/history", rangeQuery(rng), "Failed to fetch growth phase history", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

//
// ────────────────────────────────────────────────
//   Preferences and alerts
// ────────────────────────────────────────────────
//

// AlertPreferences returns the caller's saved preferences. Data is nil when
// none have been saved.
// GET /settings/preferences
func (c *Client) AlertPreferences(ctx context.Context) (*AlertPreferencesResponse, error) {
	var raw Envelope[json.RawMessage]
	if err := c.get(ctx, "/settings/preferences", nil, "Failed to fetch preferences", &raw); err != nil {
		return nil, err
	}
	resp := &AlertPreferencesResponse{Status: raw.Status, Message: raw.Message}
	// The backend answers {} when nothing is saved.
	if len(raw.Data) > 0 && string(raw.Data) != "{}" && string(raw.Data) != "null" {
		prefs := DefaultAlertPreferences()
		if err := json.Unmarshal(raw.Data, &prefs); err != nil {
			return nil, fmt.Errorf("decode GET /settings/preferences: %w", err)
		}
		resp.Data = &prefs
	}
	return resp, nil
}

// UpdateAlertPreferences saves the caller's preferences.
// PUT /settings/preferences
func (c *Client) UpdateAlertPreferences(ctx context.Context, p AlertPreferences) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.send(ctx, http.MethodPut, "/settings/preferences", "", p, "Failed to save preferences", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAlerts returns the most recent alerts.
// GET /alerts/
func (c *Client) ListAlerts(ctx context.Context) (*AlertsResponse, error) {
	var resp AlertsResponse
	if err := c.get(ctx, "/alerts/", nil, "Failed to fetch alerts", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

//
// ────────────────────────────────────────────────
//   Devices
// ────────────────────────────────────────────────
//

// ListDevices returns every device for admins, owned devices otherwise.
// GET /devices
func (c *Client) ListDevices(ctx context.Context) (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.get(ctx, "/devices", nil, "Failed to fetch devices", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PairDevice claims the device identified by a pairing code.
// POST /devices/pair
func (c *Client) PairDevice(ctx context.Context, pairCode string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.send(ctx, http.MethodPost, "/devices/pair", "", pairRequest{PairCode: pairCode}, "Failed to pair device", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateDevice renames or relocates a device. Admin only.
// PUT /devices/{id}
func (c *Client) UpdateDevice(ctx context.Context, deviceID string, u DeviceUpdate) (*StatusResponse, error) {
	var resp StatusResponse
	path := "/devices/" + url.PathEscape(deviceID)
	if err := c.send(ctx, http.MethodPut, path, "/devices/{id}", u, "Failed to update device", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveDevice deletes a device. Admin only.
// DELETE /devices/{id}
func (c *Client) RemoveDevice(ctx context.Context, deviceID string) (*StatusResponse, error) {
	var resp StatusResponse
	path := "/devices/" + url.PathEscape(deviceID)
	if err := c.send(ctx, http.MethodDelete, path, "/devices/{id}", nil, "Failed to remove device", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

//
// ────────────────────────────────────────────────
//   Users (admin)
// ────────────────────────────────────────────────
//

// ListUsers returns all accounts.
// GET /users
func (c *Client) ListUsers(ctx context.Context) (*UsersResponse, error) {
	var resp UsersResponse
	if err := c.get(ctx, "/users", nil, "Failed to fetch users", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateUser creates an account.
// POST /users/
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.send(ctx, http.MethodPost, "/users/", "", req, "Failed to create user", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeactivateUser disables an account.
// PUT /users/{id}/deactivate
func (c *Client) DeactivateUser(ctx context.Context, userID string) (*StatusResponse, error) {
	return c.setUserActive(ctx, userID, "deactivate", "Failed to deactivate user")
}

// ReactivateUser re-enables an account.
// PUT /users/{id}/reactivate
func (c *Client) ReactivateUser(ctx context.Context, userID string) (*StatusResponse, error) {
	return c.setUserActive(ctx, userID, "reactivate", "Failed to reactivate user")
}

func (c *Client) setUserActive(ctx context.Context, userID, action, fallback string) (*StatusResponse, error) {
	var resp StatusResponse
	path := "/users/" + url.PathEscape(userID) + "/" + action
	if err := c.send(ctx, http.MethodPut, path, "/users/{id}/"+action, nil, fallback, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

//
// ────────────────────────────────────────────────
//   Plumbing
// ────────────────────────────────────────────────
//

func rangeQuery(rng string) url.Values {
	if rng == "" {
		rng = DefaultRange
	}
	return url.Values{"range": []string{rng}}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, fallback string, out any) error {
	r := httpclient.Request{Method: http.MethodGet, Path: path, Query: query}
	return c.do(ctx, r, false, fallback, out)
}

func (c *Client) send(ctx context.Context, method, path, route string, payload any, fallback string, out any) error {
	r, err := httpclient.NewJSONRequest(method, path, payload)
	if err != nil {
		return err
	}
	r.Route = route
	return c.do(ctx, r, false, fallback, out)
}

func (c *Client) anonymous(ctx context.Context, method, path string, payload any, fallback string, out any) error {
	r, err := httpclient.NewJSONRequest(method, path, payload)
	if err != nil {
		return err
	}
	return c.do(ctx, r, true, fallback, out)
}

// do is the single place where a response becomes a value or a *RequestError.
func (c *Client) do(ctx context.Context, r httpclient.Request, anonymous bool, fallback string, out any) error {
	var (
		resp *http.Response
		err  error
	)
	if anonymous {
		resp, err = c.disp.DoAnonymous(ctx, r)
	} else {
		resp, err = c.disp.Do(ctx, r)
	}
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", r.Method, r.Path, err)
	}

	endpoint := r.Route
	if endpoint == "" {
		endpoint = r.Path
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := &RequestError{
			Method:   r.Method,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  errorMessage(body, fallback),
		}
		c.logger.Warn("greenhouse.request_failed",
			zap.String("method", r.Method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("message", reqErr.Message))
		return reqErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", r.Method, endpoint, err)
	}
	return nil
}
