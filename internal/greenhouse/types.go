package greenhouse

import "github.com/shopspring/decimal"

func init() {
	// The backend validates numeric fields as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Default query range for history endpoints.
const DefaultRange = "24h"

//
// ────────────────────────────────────────────────
//   Envelopes
// ────────────────────────────────────────────────
//

// Envelope is the backend's standard response wrapper: {"status", "message", "data"}.
type Envelope[T any] struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// RangeEnvelope wraps time-ranged listings.
type RangeEnvelope[T any] struct {
	Status string `json:"status,omitempty"`
	Range  string `json:"range,omitempty"`
	Count  int    `json:"count"`
	Data   []T    `json:"data"`
}

// StatusResponse is returned by write endpoints that echo nothing but a message.
type StatusResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	ID       string `json:"id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

//
// ────────────────────────────────────────────────
//   Auth
// ────────────────────────────────────────────────
//

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CurrentUser is the decoded JWT payload the backend echoes on /auth/me.
type CurrentUser struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Exp   int64  `json:"exp,omitempty"`
}

// IsAdmin reports whether the user carries the admin role.
func (u CurrentUser) IsAdmin() bool { return u.Role == "admin" }

type CurrentUserResponse = Envelope[CurrentUser]

//
// ────────────────────────────────────────────────
//   Sensors
// ────────────────────────────────────────────────
//

// SensorReading is one environment sample. Timestamps are passed through as
// the backend formats them.
type SensorReading struct {
	ID             string          `json:"id,omitempty"`
	PH             decimal.Decimal `json:"ph"`
	EC             decimal.Decimal `json:"ec"`
	WaterTemp      decimal.Decimal `json:"water_temp"`
	AirTemp        decimal.Decimal `json:"air_temp"`
	Humidity       decimal.Decimal `json:"humidity"`
	FlowRate       decimal.Decimal `json:"flow_rate"`
	LightIntensity decimal.Decimal `json:"light_intensity"`
	Timestamp      string          `json:"timestamp,omitempty"`
}

type SensorLatestResponse = Envelope[SensorReading]

type SensorHistoryResponse = RangeEnvelope[SensorReading]

//
// ────────────────────────────────────────────────
//   Control
// ────────────────────────────────────────────────
//

// ControlCommand is the body of POST /control/control.
type ControlCommand struct {
	DeviceID string `json:"device_id"`
	Status   bool   `json:"status"`
}

// ControlState is the last known state of one actuator.
type ControlState struct {
	Status      bool   `json:"status"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// ControlsResponse maps device id to state.
type ControlsResponse = Envelope[map[string]ControlState]

// ModeUpdate sets the operating mode, nutrient targets and light schedule.
type ModeUpdate struct {
	Mode           string          `json:"mode"`
	TargetPH       decimal.Decimal `json:"target_ph"`
	TargetEC       decimal.Decimal `json:"target_ec"`
	LightIntensity *int            `json:"light_intensity,omitempty"` // 0-100
	LightOnTime    string          `json:"light_on_time,omitempty"`   // "06:00"
	LightOffTime   string          `json:"light_off_time,omitempty"`  // "22:00"
}

// ThresholdUpdate sets alerting tolerances. Admin only.
type ThresholdUpdate struct {
	ThresholdTemp decimal.Decimal `json:"threshold_temp"`
	PHTolerance   decimal.Decimal `json:"ph_tolerance"`
	ECTolerance   decimal.Decimal `json:"ec_tolerance"`
}

// SystemSettings is the merged system_config document. Absent fields are zero.
type SystemSettings struct {
	Mode           string           `json:"mode,omitempty"`
	TargetPH       *decimal.Decimal `json:"target_ph,omitempty"`
	TargetEC       *decimal.Decimal `json:"target_ec,omitempty"`
	LightIntensity *int             `json:"light_intensity,omitempty"`
	LightOnTime    string           `json:"light_on_time,omitempty"`
	LightOffTime   string           `json:"light_off_time,omitempty"`
	ThresholdTemp  *decimal.Decimal `json:"threshold_temp,omitempty"`
	PHTolerance    *decimal.Decimal `json:"ph_tolerance,omitempty"`
	ECTolerance    *decimal.Decimal `json:"ec_tolerance,omitempty"`
	UpdatedAt      string           `json:"updated_at,omitempty"`
}

type SystemSettingsResponse = Envelope[SystemSettings]

//
// ────────────────────────────────────────────────
//   Nutrients and growth
// ────────────────────────────────────────────────
//

// NutrientEvent records a dosing. Source defaults to "manual"; an empty
// Timestamp lets the backend stamp it.
type NutrientEvent struct {
	ID         string          `json:"id,omitempty"`
	NutrientML decimal.Decimal `json:"nutrient_ml"`
	Source     string          `json:"source"`
	Timestamp  *string         `json:"timestamp"`
}

type NutrientEventResponse struct {
	Status string        `json:"status"`
	ID     string        `json:"id"`
	Data   NutrientEvent `json:"data"`
}

// NutrientUsageResponse lists events in a range plus their total.
type NutrientUsageResponse struct {
	RangeEnvelope[NutrientEvent]
	TotalML decimal.Decimal `json:"total_ml"`
}

// GrowthPhase is one recorded mode change.
type GrowthPhase struct {
	ID        string          `json:"id,omitempty"`
	Mode      string          `json:"mode"`
	TargetPH  decimal.Decimal `json:"target_ph"`
	TargetEC  decimal.Decimal `json:"target_ec"`
	ChangedAt string          `json:"changed_at,omitempty"`
}

type GrowthHistoryResponse = RangeEnvelope[GrowthPhase]

//
// ────────────────────────────────────────────────
//   Preferences and alerts
// ────────────────────────────────────────────────
//

// AlertPreferences controls which alert channels and sensors notify the user.
type AlertPreferences struct {
	EmailEnabled  bool `json:"email_enabled"`
	PushEnabled   bool `json:"push_enabled"`
	PHAlert       bool `json:"ph_alert"`
	ECAlert       bool `json:"ec_alert"`
	TempAlert     bool `json:"temp_alert"`
	HumidityAlert bool `json:"humidity_alert"`
}

// DefaultAlertPreferences mirrors the backend defaults for a user with no saved document.
func DefaultAlertPreferences() AlertPreferences {
	return AlertPreferences{EmailEnabled: true, PHAlert: true, ECAlert: true, TempAlert: true, HumidityAlert: true}
}

type AlertPreferencesResponse = Envelope[*AlertPreferences]

// Alert is a threshold breach recorded by the backend.
type Alert struct {
	ID                string          `json:"id"`
	SensorType        string          `json:"sensor_type"`
	MeasuredValue     decimal.Decimal `json:"measured_value"`
	ExceededThreshold string          `json:"exceeded_threshold"`
	Timestamp         string          `json:"timestamp,omitempty"`
	Status            string          `json:"status"`
}

type AlertsResponse = Envelope[[]Alert]

//
// ────────────────────────────────────────────────
//   Devices
// ────────────────────────────────────────────────
//

// Device is a paired controller board.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Location   string `json:"location,omitempty"`
	Paired     bool   `json:"paired"`
	OwnerID    string `json:"owner_id,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`
	PairedAt   string `json:"paired_at,omitempty"`
	LastSeenAt string `json:"last_seen_at,omitempty"`
}

type DevicesResponse = Envelope[[]Device]

// DeviceUpdate renames or relocates a device. Nil fields are left unchanged.
type DeviceUpdate struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
}

type pairRequest struct {
	PairCode string `json:"pair_code"`
}

//
// ────────────────────────────────────────────────
//   Users (admin)
// ────────────────────────────────────────────────
//

// User is an account as listed by the admin endpoint. Password hashes are never returned.
type User struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	Role          string  `json:"role"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at,omitempty"`
	LastLoginAt   *string `json:"last_login_at,omitempty"`
	DeactivatedAt *string `json:"deactivated_at,omitempty"`
}

type UsersResponse = Envelope[[]User]

// CreateUserRequest is the body of POST /users/. Role defaults to "user" server-side.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}
