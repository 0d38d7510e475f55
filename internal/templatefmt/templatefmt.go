package templatefmt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// FuncMap returns shared alert template helpers.
// Params: none.
// Returns: deterministic helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"pct":     FormatPercent,
		"fmtTime": FormatTime,
		"upper":   strings.ToUpper,
		"json":    MarshalJSON,
	}
}

// ParseAlertTemplate parses one alert notification template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseAlertTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// FormatPercent renders a probability in [0,1] as percent with one decimal.
// Params: float64, *float64, or nil.
// Returns: "85.0%" style text, or "n/a" when value is absent.
func FormatPercent(value any) string {
	switch typed := value.(type) {
	case float64:
		return fmt.Sprintf("%.1f%%", typed*100)
	case *float64:
		if typed == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.1f%%", *typed*100)
	default:
		return "n/a"
	}
}

// FormatTime renders timestamp as RFC3339 in UTC.
// Params: time.Time or *time.Time.
// Returns: formatted time, or empty string for zero/nil input.
func FormatTime(value any) string {
	var ts time.Time
	switch typed := value.(type) {
	case time.Time:
		ts = typed
	case *time.Time:
		if typed == nil {
			return ""
		}
		ts = *typed
	default:
		return ""
	}
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
