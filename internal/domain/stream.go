package domain

import (
	"fmt"
	"strings"
)

// StreamKind identifies one of the independent real-time feeds.
// Params: constants ai/heart_rate/contractions.
// Returns: stream key used by store, metrics, and HTTP routes.
type StreamKind string

const (
	// StreamAI carries AI risk/status messages.
	StreamAI StreamKind = "ai"
	// StreamHeartRate carries fetal heart-rate samples.
	StreamHeartRate StreamKind = "heart_rate"
	// StreamContractions carries uterine contraction samples.
	StreamContractions StreamKind = "contractions"
)

// StreamKinds lists all streams in stable order.
func StreamKinds() []StreamKind {
	return []StreamKind{StreamAI, StreamHeartRate, StreamContractions}
}

// ParseStreamKind normalizes route/config aliases into a stream kind.
// Params: raw name; accepts bpm/uc aliases used by upstream socket paths.
// Returns: stream kind or error for unknown names.
func ParseStreamKind(raw string) (StreamKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ai":
		return StreamAI, nil
	case "heart_rate", "heart-rate", "bpm", "fhr":
		return StreamHeartRate, nil
	case "contractions", "uc", "toco":
		return StreamContractions, nil
	default:
		return "", fmt.Errorf("unknown stream %q", raw)
	}
}

// ConnectionStatus is the observable state of one stream transport.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionStatuses lists all statuses in stable order.
func ConnectionStatuses() []ConnectionStatus {
	return []ConnectionStatus{StatusDisconnected, StatusConnecting, StatusConnected, StatusError}
}

// Valid reports whether status is one of the known values.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusError:
		return true
	default:
		return false
	}
}
