package alerts

import (
	"strconv"
	"time"

	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/templatefmt"
)

// Risk thresholds; a value must be strictly greater to trigger.
const (
	eventHighThreshold       = 0.7
	eventMediumThreshold     = 0.4
	hypoxiaHighThreshold     = 0.8
	hypoxiaMediumThreshold   = 0.6
	emergencyHighThreshold   = 0.7
	emergencyMediumThreshold = 0.5
)

// ConnectionAlertID builds the id of a connection alert.
// Params: status and observation instant.
// Returns: "connection-<status>-<unix ms>".
func ConnectionAlertID(status domain.ConnectionStatus, at time.Time) string {
	return "connection-" + string(status) + "-" + strconv.FormatInt(at.UnixMilli(), 10)
}

func connectionAlert(status domain.ConnectionStatus, at time.Time) domain.Alert {
	alert := domain.Alert{
		ID:           ConnectionAlertID(status, at),
		Kind:         domain.AlertInfo,
		Timestamp:    at,
		Acknowledged: true,
	}
	switch status {
	case domain.StatusConnected:
		alert.Title = "AI connected"
		alert.Message = "Analysis system is active"
	case domain.StatusConnecting:
		alert.Title = "Connecting to AI"
		alert.Message = "Establishing connection to the analysis system"
	case domain.StatusError:
		alert.Kind = domain.AlertError
		alert.Title = "AI connection error"
		alert.Message = "Cannot connect to the analysis system"
		alert.Acknowledged = false
	default:
		alert.Title = "Connection lost"
		alert.Message = "Waiting for the analysis system to reconnect"
	}
	return alert
}

// messageAlerts applies status, event, hypoxia, and emergency rules to one message.
func messageAlerts(message domain.AIMessage) []domain.Alert {
	at := message.Timestamp()
	ts := strconv.FormatInt(message.Time, 10)
	out := make([]domain.Alert, 0, 4+len(message.ShortTerm.Events))

	switch message.ShortTerm.Status {
	case domain.AIStatusAlarm:
		out = append(out, domain.Alert{
			ID:        "status-alert-" + ts,
			Kind:      domain.AlertError,
			Title:     "Critical status",
			Message:   "Alarm detected in data analysis",
			Timestamp: at,
		})
	case domain.AIStatusSuspicion:
		out = append(out, domain.Alert{
			ID:        "status-warning-" + ts,
			Kind:      domain.AlertWarning,
			Title:     "Suspicious activity",
			Message:   "Attention required: " + string(message.ShortTerm.Status),
			Timestamp: at,
		})
	}

	for index, event := range message.ShortTerm.Events {
		severity := event.Severity
		text := string(event.Type) + ": level " + formatSeverity(severity)
		suffix := ts + "-" + strconv.Itoa(index)
		switch {
		case severity > eventHighThreshold:
			out = append(out, domain.Alert{
				ID:        "event-high-" + suffix,
				Kind:      domain.AlertError,
				Title:     "High-risk event",
				Message:   text,
				Timestamp: at,
				Severity:  &severity,
			})
		case severity > eventMediumThreshold:
			out = append(out, domain.Alert{
				ID:        "event-medium-" + suffix,
				Kind:      domain.AlertWarning,
				Title:     "Elevated event attention",
				Message:   text,
				Timestamp: at,
				Severity:  &severity,
			})
		}
	}

	hypoxia := message.LongTerm.Hypoxia60
	hypoxiaText := "Hypoxia probability within 60 min: " + templatefmt.FormatPercent(hypoxia)
	switch {
	case hypoxia > hypoxiaHighThreshold:
		out = append(out, domain.Alert{
			ID: "hypoxia-high-" + ts, Kind: domain.AlertError, Title: "High hypoxia risk",
			Message: hypoxiaText, Timestamp: at,
		})
	case hypoxia > hypoxiaMediumThreshold:
		out = append(out, domain.Alert{
			ID: "hypoxia-medium-" + ts, Kind: domain.AlertWarning, Title: "Elevated hypoxia risk",
			Message: hypoxiaText, Timestamp: at,
		})
	}

	emergency := message.LongTerm.Emergency30
	emergencyText := "Emergency probability within 30 min: " + templatefmt.FormatPercent(emergency)
	switch {
	case emergency > emergencyHighThreshold:
		out = append(out, domain.Alert{
			ID: "emergency-high-" + ts, Kind: domain.AlertError, Title: "High emergency risk",
			Message: emergencyText, Timestamp: at,
		})
	case emergency > emergencyMediumThreshold:
		out = append(out, domain.Alert{
			ID: "emergency-medium-" + ts, Kind: domain.AlertWarning, Title: "Elevated emergency risk",
			Message: emergencyText, Timestamp: at,
		})
	}
	return out
}
