package e2e

import "fmt"

// e2eEndpoints carries the addresses a generated config points at.
type e2eEndpoints struct {
	Port        int
	AIURL       string
	BPMURL      string
	UCURL       string
	NATSURL     string
	NotifyURL   string
	RegistryURL string
}

// e2eConfig builds a service config with real streams, JetStream fan-out, and an HTTP notify sink.
// Params: endpoint addresses; empty NATSURL or NotifyURL disables that output.
// Returns: TOML document.
func e2eConfig(endpoints e2eEndpoints) string {
	body := fmt.Sprintf(`
[service]
name = "ctgmonitor-e2e"

[log.console]
enabled = true
level = "error"
format = "line"

[http]
listen = "127.0.0.1:%d"

[stream]
reconnect_interval_ms = 100
max_reconnect_attempts = 3

[stream.ai]
url = %q

[stream.heart_rate]
url = %q

[stream.contractions]
url = %q

[window]
size_sec = 600
max_points = 100
refresh_ms = 100
mode = "full"

[registry]
base_url = %q
timeout_sec = 1
fallback_on_errors = true
`, endpoints.Port, endpoints.AIURL, endpoints.BPMURL, endpoints.UCURL, endpoints.RegistryURL)

	if endpoints.NATSURL != "" {
		body += fmt.Sprintf(`
[publish.nats]
enabled = true
url = [%q]
stream = "CTG_E2E"
subject_prefix = "ctg"
`, endpoints.NATSURL)
	}
	if endpoints.NotifyURL != "" {
		body += fmt.Sprintf(`
[notify]
min_kind = "error"
template = "{{ .Title }}: {{ .Message }}"

[notify.http]
enabled = true
url = %q
method = "POST"
timeout_sec = 1

[notify.http.retry]
enabled = true
backoff = "exponential"
initial_ms = 1
max_ms = 2
max_attempts = 3
`, endpoints.NotifyURL)
	}
	return body
}
