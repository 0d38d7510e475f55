package domain

import "time"

// AlertKind is the presentation class of a derived alert.
// Params: info/warning/error/success constants.
// Returns: discriminant for alert rendering and notification routing.
type AlertKind string

const (
	// AlertInfo marks informational connection changes.
	AlertInfo AlertKind = "info"
	// AlertWarning marks elevated but non-critical risk.
	AlertWarning AlertKind = "warning"
	// AlertError marks critical risk or connection failure.
	AlertError AlertKind = "error"
	// AlertSuccess marks positive confirmations.
	AlertSuccess AlertKind = "success"
)

// Valid reports whether kind is one of the known values.
func (k AlertKind) Valid() bool {
	switch k {
	case AlertInfo, AlertWarning, AlertError, AlertSuccess:
		return true
	default:
		return false
	}
}

// Alert is one derived user-facing notification.
// Params: deterministic identity, kind, texts, source timestamp, and optional severity.
// Returns: record that is immutable except for the acknowledged overlay.
type Alert struct {
	ID           string    `json:"id"`
	Kind         AlertKind `json:"kind"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
	Severity     *float64  `json:"severity,omitempty"`
}
