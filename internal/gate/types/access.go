package types

import "time"

type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// Reason values recorded on every AccessEvent.
const (
	ReasonUnknownCredential    = "unknown_credential"
	ReasonInactiveEmployee     = "inactive_employee"
	ReasonNoPermission         = "no_permission"
	ReasonOutsideAllowedWindow = "outside_allowed_window"
	ReasonPermissionFlag       = "permission_flag"
	ReasonRuleMatch            = "rule_match"
	ReasonSystemError          = "system_error"
	ReasonMalformedPayload     = "malformed_payload"
)

// Verdict is the evaluator's output.
type Verdict struct {
	Decision Decision
	Reason   string
}

func (v Verdict) Allowed() bool { return v.Decision == Allow }

func Allowed(reason string) Verdict { return Verdict{Decision: Allow, Reason: reason} }
func Denied(reason string) Verdict  { return Verdict{Decision: Deny, Reason: reason} }

// CanonicalEvent is what every accepted wire shape normalises to.
// ReceivedAt is always the server's receipt time.
type CanonicalEvent struct {
	CardNumber     string
	DeviceSerial   string
	DeviceName     string
	DeviceLocation string
	ReceivedAt     time.Time
}

// AccessEvent is one audit row. It is appended once per physical swipe and
// never rewritten, except for the advisory RelayConfirmedAt stamp.
type AccessEvent struct {
	ID               string     `json:"id"`
	Credential       string     `json:"credential"`
	DeviceSerial     string     `json:"device_serial"`
	DeviceName       string     `json:"device_name,omitempty"`
	DeviceLocation   string     `json:"device_location,omitempty"`
	EmployeeID       *string    `json:"employee_id"`
	EmployeeName     string     `json:"employee_name,omitempty"`
	Decision         Decision   `json:"decision"`
	Reason           string     `json:"reason"`
	OccurredAt       time.Time  `json:"occurred_at"`
	IdempotencyKey   string     `json:"idempotency_key"`
	RelayConfirmedAt *time.Time `json:"relay_confirmed_at,omitempty"`
}

// RelayDecision is the per-request value rendered into a device dialect.
type RelayDecision struct {
	Decision Decision
	Reason   string
	EventID  string
}

func (d RelayDecision) Open() bool { return d.Decision == Allow }
