package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// AIStatus is the short-term status class reported by the AI analyser.
type AIStatus string

const (
	AIStatusNormal    AIStatus = "Normal"
	AIStatusSuspicion AIStatus = "Suspicion"
	AIStatusAlarm     AIStatus = "Alarm"
)

// ParseAIStatus maps English names and upstream Russian labels to AIStatus.
// Params: raw status label from the wire.
// Returns: normalized status or error for unknown labels.
func ParseAIStatus(raw string) (AIStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "normal", "норма":
		return AIStatusNormal, nil
	case "suspicion", "подозрение":
		return AIStatusSuspicion, nil
	case "alarm", "тревога":
		return AIStatusAlarm, nil
	default:
		return "", fmt.Errorf("unsupported ai status %q", raw)
	}
}

// UnmarshalJSON decodes status from any supported label.
func (s *AIStatus) UnmarshalJSON(raw []byte) error {
	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	status, err := ParseAIStatus(label)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// AIEventType names one short-term physiological event detected by the analyser.
type AIEventType string

const (
	AIEventLateDecel      AIEventType = "late_decel"
	AIEventLowVariability AIEventType = "low_variability"
	AIEventProlongedDecel AIEventType = "prolonged_decel"
	AIEventTachycardia    AIEventType = "tachycardia"
	AIEventBradycardia    AIEventType = "bradycardia"
)

// Valid reports whether event type is one of the known values.
func (t AIEventType) Valid() bool {
	switch t {
	case AIEventLateDecel, AIEventLowVariability, AIEventProlongedDecel, AIEventTachycardia, AIEventBradycardia:
		return true
	default:
		return false
	}
}

// AIEvent is one detected event with severity in [0,1].
type AIEvent struct {
	Type     AIEventType `json:"type"`
	Severity float64     `json:"severity"`
}

// ShortTerm holds status and events for the latest analysis window.
type ShortTerm struct {
	Status AIStatus  `json:"status"`
	Events []AIEvent `json:"events"`
}

// LongTerm holds forward-looking risk probabilities in [0,1].
type LongTerm struct {
	Hypoxia60   float64 `json:"hypoxia_60"`
	Emergency30 float64 `json:"emergency_30"`
}

// AIMessage is one decoded AI stream message.
// Params: unix seconds timestamp plus short-term and long-term analysis.
// Returns: immutable message appended to the AI buffer.
type AIMessage struct {
	Time      int64     `json:"time"`
	ShortTerm ShortTerm `json:"short_term"`
	LongTerm  LongTerm  `json:"long_term"`
}

// Timestamp converts message time into UTC time.
func (m AIMessage) Timestamp() time.Time {
	return time.Unix(m.Time, 0).UTC()
}

// DecodeAIMessage decodes and validates one AI payload.
// Params: JSON document bytes.
// Returns: validated message or decode/validation error.
func DecodeAIMessage(raw []byte) (AIMessage, error) {
	var message AIMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		return AIMessage{}, fmt.Errorf("decode ai message: %w", err)
	}
	if err := message.Validate(); err != nil {
		return AIMessage{}, err
	}
	return message, nil
}

// Validate checks message fields against the stream contract.
// Params: decoded message.
// Returns: validation error when the schema is violated.
func (m AIMessage) Validate() error {
	if m.Time <= 0 {
		return errors.New("time must be >0")
	}
	if m.ShortTerm.Status == "" {
		return errors.New("short_term.status is required")
	}
	for i, event := range m.ShortTerm.Events {
		if !event.Type.Valid() {
			return fmt.Errorf("short_term.events[%d]: unsupported type %q", i, event.Type)
		}
		if !unitInterval(event.Severity) {
			return fmt.Errorf("short_term.events[%d]: severity must be in [0,1]", i)
		}
	}
	if !unitInterval(m.LongTerm.Hypoxia60) {
		return errors.New("long_term.hypoxia_60 must be in [0,1]")
	}
	if !unitInterval(m.LongTerm.Emergency30) {
		return errors.New("long_term.emergency_30 must be in [0,1]")
	}
	return nil
}

// Signature fingerprints the message for change detection at two-decimal precision.
// Params: none.
// Returns: stable signature string; equal signatures mean no derivable change.
func (m AIMessage) Signature() string {
	var b strings.Builder
	b.Grow(64 + len(m.ShortTerm.Events)*24)
	b.WriteString(strconv.FormatInt(m.Time, 10))
	b.WriteByte('-')
	b.WriteString(string(m.ShortTerm.Status))
	b.WriteByte('-')
	for i, event := range m.ShortTerm.Events {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(string(event.Type))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(event.Severity, 'f', 2, 64))
	}
	b.WriteByte('-')
	b.WriteString(strconv.FormatFloat(m.LongTerm.Hypoxia60, 'f', 2, 64))
	b.WriteByte('-')
	b.WriteString(strconv.FormatFloat(m.LongTerm.Emergency30, 'f', 2, 64))
	return b.String()
}

func unitInterval(value float64) bool {
	return !math.IsNaN(value) && value >= 0 && value <= 1
}
