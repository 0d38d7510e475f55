package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ctgmonitor/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName          = "ctgmonitor"
	defaultHTTPListen           = ":8080"
	defaultHealthPath           = "/healthz"
	defaultReadyPath            = "/readyz"
	defaultMetricsPath          = "/metrics"
	defaultAIURL                = "ws://localhost:8000/ws/ai"
	defaultHeartRateURL         = "ws://localhost:8000/ws/bpm"
	defaultContractionsURL      = "ws://localhost:8000/ws/uc"
	defaultReconnectIntervalMS  = 3000
	defaultMaxReconnectAttempts = 5
	defaultMaxDataPoints        = 1000
	defaultMaxAlerts            = 100
	defaultWindowSizeSec        = 300
	defaultWindowMaxPoints      = 1000
	defaultWindowRefreshMS      = 1000
	defaultNATSURL              = "nats://127.0.0.1:4222"
	defaultNATSStream           = "CTG"
	defaultNATSSubjectPrefix    = "ctg"
	defaultAPIBaseURL           = "http://localhost:8000/api"
	defaultRegistryTimeoutSec   = 5
	defaultNotifyMinKind        = "error"
	defaultNotifyTemplate       = "[{{ .Kind }}] {{ .Title }}: {{ .Message }}"

	// WindowModeWindowed keeps a trailing time-bounded window.
	WindowModeWindowed = "windowed"
	// WindowModeFull keeps the whole bounded buffer.
	WindowModeFull = "full"

	// EnvAIURL overrides stream.ai.url.
	EnvAIURL = "CTG_WS_AI_URL"
	// EnvHeartRateURL overrides stream.heart_rate.url.
	EnvHeartRateURL = "CTG_WS_BPM_URL"
	// EnvContractionsURL overrides stream.contractions.url.
	EnvContractionsURL = "CTG_WS_UC_URL"
	// EnvMock overrides service.mock ("1" or "true" enables).
	EnvMock = "CTG_MOCK"
	// EnvAPIBaseURL overrides registry.base_url.
	EnvAPIBaseURL = "CTG_API_BASE_URL"
)

// Config holds process settings for ingestion, windows, alerts, and outputs.
// Params: TOML sections from file or merged directory snapshot, then env overrides.
// Returns: validated runtime configuration.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Log      LogConfig      `toml:"log"`
	HTTP     HTTPConfig     `toml:"http"`
	Stream   StreamConfig   `toml:"stream"`
	Buffer   BufferConfig   `toml:"buffer"`
	Window   WindowConfig   `toml:"window"`
	Alerts   AlertsConfig   `toml:"alerts"`
	Publish  PublishConfig  `toml:"publish"`
	Notify   NotifyConfig   `toml:"notify"`
	Registry RegistryConfig `toml:"registry"`
}

// ServiceConfig contains process-level settings.
// Params: service name and mock-mode flag.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name string `toml:"name"`
	Mock bool   `toml:"mock"`
}

// HTTPConfig configures the read-surface HTTP server.
type HTTPConfig struct {
	Listen      string `toml:"listen"`
	HealthPath  string `toml:"health_path"`
	ReadyPath   string `toml:"ready_path"`
	MetricsPath string `toml:"metrics_path"`
}

// StreamConfig configures the three transports and their shared reconnect policy.
// Params: per-stream endpoint plus fixed-interval bounded reconnect settings.
// Returns: transport options.
type StreamConfig struct {
	ReconnectIntervalMS  int            `toml:"reconnect_interval_ms"`
	MaxReconnectAttempts int            `toml:"max_reconnect_attempts"`
	AI                   EndpointConfig `toml:"ai"`
	HeartRate            EndpointConfig `toml:"heart_rate"`
	Contractions         EndpointConfig `toml:"contractions"`
}

// EndpointConfig is one websocket endpoint.
type EndpointConfig struct {
	URL string `toml:"url"`
}

// ReconnectInterval returns reconnect backoff as duration.
func (s StreamConfig) ReconnectInterval() time.Duration {
	return time.Duration(s.ReconnectIntervalMS) * time.Millisecond
}

// BufferConfig bounds per-stream history.
type BufferConfig struct {
	MaxDataPoints int `toml:"max_data_points"`
}

// WindowConfig configures chart window extraction.
// Params: trailing span, point cap, refresh tick, and aggregation mode.
// Returns: window refresher options.
type WindowConfig struct {
	SizeSec   int    `toml:"size_sec"`
	MaxPoints int    `toml:"max_points"`
	RefreshMS int    `toml:"refresh_ms"`
	Mode      string `toml:"mode"`
}

// Size returns trailing window span.
func (w WindowConfig) Size() time.Duration {
	return time.Duration(w.SizeSec) * time.Second
}

// RefreshInterval returns the periodic recompute tick.
func (w WindowConfig) RefreshInterval() time.Duration {
	return time.Duration(w.RefreshMS) * time.Millisecond
}

// AlertsConfig bounds the derived alert list.
type AlertsConfig struct {
	MaxAlerts int `toml:"max_alerts"`
}

// PublishConfig configures fan-out of decoded samples and derived alerts.
type PublishConfig struct {
	NATS NATSPublishConfig `toml:"nats"`
}

// NATSPublishConfig configures JetStream publishing.
// Params: enable flag, server URLs, stream name, and subject prefix.
// Returns: publisher options.
type NATSPublishConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Stream        string   `toml:"stream"`
	SubjectPrefix string   `toml:"subject_prefix"`
}

// NotifyConfig defines outbound delivery of derived alerts.
// Params: minimum alert kind, message template, and per-channel transports.
// Returns: notification controls.
type NotifyConfig struct {
	MinKind  string           `toml:"min_kind"`
	Template string           `toml:"template"`
	Telegram TelegramNotifier `toml:"telegram"`
	HTTP     HTTPNotifier     `toml:"http"`
}

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// TelegramNotifier defines Telegram channel settings.
type TelegramNotifier struct {
	Enabled  bool        `toml:"enabled"`
	BotToken string      `toml:"bot_token"`
	ChatID   string      `toml:"chat_id"`
	APIBase  string      `toml:"api_base"`
	Retry    NotifyRetry `toml:"retry"`
}

// HTTPNotifier defines generic outbound webhook.
type HTTPNotifier struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
	Retry      NotifyRetry       `toml:"retry"`
}

// RegistryConfig points to the patient/study REST collaborator.
// Params: base URL, optional per-endpoint overrides, and request timeout.
// Returns: registry client options.
type RegistryConfig struct {
	BaseURL          string `toml:"base_url"`
	RecentPatients   string `toml:"recent_patients_url"`
	SearchPatients   string `toml:"search_patients_url"`
	CreatePatient    string `toml:"create_patient_url"`
	RecentStudies    string `toml:"recent_studies_url"`
	TimeoutSec       int    `toml:"timeout_sec"`
	FallbackOnErrors bool   `toml:"fallback_on_errors"`
}

// Timeout returns request timeout.
func (r RegistryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// ConfigSource describes file or directory config source.
// Params: at most one of file path or directory path; both empty means defaults only.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}
	return ConfigSource{File: filePath, Dir: dirPath}, nil
}

// LoadSnapshot loads, overrides from process environment, defaults, and validates configuration.
// Params: source selects file, directory, or defaults-only mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	return LoadSnapshotWithEnv(src, os.LookupEnv)
}

// LoadSnapshotWithEnv is LoadSnapshot with injectable environment lookup.
// Params: config source and env lookup function.
// Returns: validated config or load/validation error.
func LoadSnapshotWithEnv(src ConfigSource, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	var err error
	switch {
	case src.File != "":
		cfg, _, err = loadFile(src.File)
	case src.Dir != "":
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeHints carries explicit bool-presence markers used for directory overlays.
// Params: sparse fields decoded from one TOML fragment.
// Returns: merge behavior hints for zero-value bool overrides.
type mergeHints struct {
	Service struct {
		Mock *bool `toml:"mock"`
	} `toml:"service"`
	Publish struct {
		NATS struct {
			Enabled *bool `toml:"enabled"`
		} `toml:"nats"`
	} `toml:"publish"`
	Notify struct {
		Telegram struct {
			Enabled *bool `toml:"enabled"`
		} `toml:"telegram"`
		HTTP struct {
			Enabled *bool `toml:"enabled"`
		} `toml:"http"`
	} `toml:"notify"`
	Registry struct {
		FallbackOnErrors *bool `toml:"fallback_on_errors"`
	} `toml:"registry"`
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot or fragment.
// Returns: decoded config, explicit-bool hints, or read/decode error.
func loadFile(path string) (Config, mergeHints, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	decoder := toml.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var hints mergeHints
	if err := toml.Unmarshal(body, &hints); err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("decode merge hints %q: %w", path, err)
	}
	return cfg, hints, nil
}

// loadDir reads and merges TOML files from one directory in lexical order.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, hints, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment, hints)
	}
	return merged, nil
}

// mergeConfig overlays one fragment onto destination, section by section.
// Params: destination config, next fragment, and its explicit-bool hints.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config, hints mergeHints) {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	applyBoolMerge(&dst.Service.Mock, src.Service.Mock, hints.Service.Mock)
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.HTTP != (HTTPConfig{}) {
		dst.HTTP = src.HTTP
	}
	mergeStreamConfig(&dst.Stream, src.Stream)
	if src.Buffer != (BufferConfig{}) {
		dst.Buffer = src.Buffer
	}
	if src.Window != (WindowConfig{}) {
		dst.Window = src.Window
	}
	if src.Alerts != (AlertsConfig{}) {
		dst.Alerts = src.Alerts
	}

	if len(src.Publish.NATS.URL) > 0 {
		dst.Publish.NATS.URL = src.Publish.NATS.URL
	}
	if src.Publish.NATS.Stream != "" {
		dst.Publish.NATS.Stream = src.Publish.NATS.Stream
	}
	if src.Publish.NATS.SubjectPrefix != "" {
		dst.Publish.NATS.SubjectPrefix = src.Publish.NATS.SubjectPrefix
	}
	applyBoolMerge(&dst.Publish.NATS.Enabled, src.Publish.NATS.Enabled, hints.Publish.NATS.Enabled)

	mergeNotifyConfig(&dst.Notify, src.Notify, hints)

	fallback := dst.Registry.FallbackOnErrors
	if src.Registry != (RegistryConfig{}) {
		dst.Registry = src.Registry
		dst.Registry.FallbackOnErrors = fallback
	}
	applyBoolMerge(&dst.Registry.FallbackOnErrors, src.Registry.FallbackOnErrors, hints.Registry.FallbackOnErrors)
}

func mergeStreamConfig(dst *StreamConfig, src StreamConfig) {
	if src.ReconnectIntervalMS != 0 {
		dst.ReconnectIntervalMS = src.ReconnectIntervalMS
	}
	if src.MaxReconnectAttempts != 0 {
		dst.MaxReconnectAttempts = src.MaxReconnectAttempts
	}
	if src.AI.URL != "" {
		dst.AI = src.AI
	}
	if src.HeartRate.URL != "" {
		dst.HeartRate = src.HeartRate
	}
	if src.Contractions.URL != "" {
		dst.Contractions = src.Contractions
	}
}

func mergeNotifyConfig(dst *NotifyConfig, src NotifyConfig, hints mergeHints) {
	if src.MinKind != "" {
		dst.MinKind = src.MinKind
	}
	if src.Template != "" {
		dst.Template = src.Template
	}

	telegramEnabled := dst.Telegram.Enabled
	if src.Telegram.BotToken != "" || src.Telegram.ChatID != "" || src.Telegram.APIBase != "" || src.Telegram.Retry != (NotifyRetry{}) {
		dst.Telegram = src.Telegram
		dst.Telegram.Enabled = telegramEnabled
	}
	applyBoolMerge(&dst.Telegram.Enabled, src.Telegram.Enabled, hints.Notify.Telegram.Enabled)

	httpEnabled := dst.HTTP.Enabled
	if src.HTTP.URL != "" || src.HTTP.Method != "" || src.HTTP.TimeoutSec != 0 || len(src.HTTP.Headers) > 0 || src.HTTP.Retry != (NotifyRetry{}) {
		dst.HTTP = src.HTTP
		dst.HTTP.Enabled = httpEnabled
	}
	applyBoolMerge(&dst.HTTP.Enabled, src.HTTP.Enabled, hints.Notify.HTTP.Enabled)
}

// applyBoolMerge sets bool only when the fragment set it explicitly.
// Params: destination, fragment value, and presence marker.
// Returns: side-effect in dst.
func applyBoolMerge(dst *bool, value bool, explicit *bool) {
	if explicit != nil {
		*dst = value
	}
}

// applyEnv overrides endpoint and mode settings from environment-style keys.
// Params: config to mutate and env lookup.
// Returns: error for unparsable boolean values.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	if value, ok := lookup(EnvAIURL); ok && strings.TrimSpace(value) != "" {
		cfg.Stream.AI.URL = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvHeartRateURL); ok && strings.TrimSpace(value) != "" {
		cfg.Stream.HeartRate.URL = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvContractionsURL); ok && strings.TrimSpace(value) != "" {
		cfg.Stream.Contractions.URL = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvAPIBaseURL); ok && strings.TrimSpace(value) != "" {
		cfg.Registry.BaseURL = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvMock); ok && strings.TrimSpace(value) != "" {
		mock, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s has unsupported value %q", EnvMock, value)
		}
		cfg.Service.Mock = mock
	}
	return nil
}

// applyDefaults fills unset values.
// Params: config to mutate.
// Returns: none.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.HTTP.MetricsPath) == "" {
		cfg.HTTP.MetricsPath = defaultMetricsPath
	}

	if cfg.Stream.ReconnectIntervalMS == 0 {
		cfg.Stream.ReconnectIntervalMS = defaultReconnectIntervalMS
	}
	if cfg.Stream.MaxReconnectAttempts == 0 {
		cfg.Stream.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.Stream.AI.URL == "" {
		cfg.Stream.AI.URL = defaultAIURL
	}
	if cfg.Stream.HeartRate.URL == "" {
		cfg.Stream.HeartRate.URL = defaultHeartRateURL
	}
	if cfg.Stream.Contractions.URL == "" {
		cfg.Stream.Contractions.URL = defaultContractionsURL
	}

	if cfg.Buffer.MaxDataPoints == 0 {
		cfg.Buffer.MaxDataPoints = defaultMaxDataPoints
	}
	if cfg.Alerts.MaxAlerts == 0 {
		cfg.Alerts.MaxAlerts = defaultMaxAlerts
	}
	if cfg.Window.SizeSec == 0 {
		cfg.Window.SizeSec = defaultWindowSizeSec
	}
	if cfg.Window.MaxPoints == 0 {
		cfg.Window.MaxPoints = defaultWindowMaxPoints
	}
	if cfg.Window.RefreshMS == 0 {
		cfg.Window.RefreshMS = defaultWindowRefreshMS
	}
	cfg.Window.Mode = strings.ToLower(strings.TrimSpace(cfg.Window.Mode))
	if cfg.Window.Mode == "" {
		cfg.Window.Mode = WindowModeWindowed
	}

	if len(cfg.Publish.NATS.URL) == 0 {
		cfg.Publish.NATS.URL = []string{defaultNATSURL}
	}
	if cfg.Publish.NATS.Stream == "" {
		cfg.Publish.NATS.Stream = defaultNATSStream
	}
	if cfg.Publish.NATS.SubjectPrefix == "" {
		cfg.Publish.NATS.SubjectPrefix = defaultNATSSubjectPrefix
	}

	cfg.Notify.MinKind = strings.ToLower(strings.TrimSpace(cfg.Notify.MinKind))
	if cfg.Notify.MinKind == "" {
		cfg.Notify.MinKind = defaultNotifyMinKind
	}
	if strings.TrimSpace(cfg.Notify.Template) == "" {
		cfg.Notify.Template = defaultNotifyTemplate
	}
	if cfg.Notify.Telegram.APIBase == "" {
		cfg.Notify.Telegram.APIBase = "https://api.telegram.org"
	}
	fillNotifyRetryDefaults(&cfg.Notify.Telegram.Retry)
	if cfg.Notify.HTTP.TimeoutSec <= 0 {
		cfg.Notify.HTTP.TimeoutSec = 5
	}
	fillNotifyRetryDefaults(&cfg.Notify.HTTP.Retry)

	if cfg.Registry.BaseURL == "" {
		cfg.Registry.BaseURL = defaultAPIBaseURL
	}
	base := strings.TrimRight(cfg.Registry.BaseURL, "/")
	if cfg.Registry.RecentPatients == "" {
		cfg.Registry.RecentPatients = base + "/patients/recent"
	}
	if cfg.Registry.SearchPatients == "" {
		cfg.Registry.SearchPatients = base + "/patients/search"
	}
	if cfg.Registry.CreatePatient == "" {
		cfg.Registry.CreatePatient = base + "/patients"
	}
	if cfg.Registry.RecentStudies == "" {
		cfg.Registry.RecentStudies = base + "/studies/recent"
	}
	if cfg.Registry.TimeoutSec <= 0 {
		cfg.Registry.TimeoutSec = defaultRegistryTimeoutSec
	}
	if cfg.Service.Mock {
		cfg.Registry.FallbackOnErrors = true
	}
}

func fillNotifyRetryDefaults(retry *NotifyRetry) {
	if retry.Backoff == "" {
		retry.Backoff = "exponential"
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = 500
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = 10_000
	}
	if retry.MaxAttempts < 0 {
		retry.MaxAttempts = 0
	}
}

// validateConfig rejects invalid settings; these are programmer/operator errors.
// Params: config after defaults.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}
	for _, path := range []struct {
		name  string
		value string
	}{
		{"http.health_path", cfg.HTTP.HealthPath},
		{"http.ready_path", cfg.HTTP.ReadyPath},
		{"http.metrics_path", cfg.HTTP.MetricsPath},
	} {
		if !strings.HasPrefix(path.value, "/") {
			return fmt.Errorf("%s must start with /", path.name)
		}
	}

	if cfg.Stream.ReconnectIntervalMS < 0 {
		return errors.New("stream.reconnect_interval_ms must be >0")
	}
	if cfg.Stream.MaxReconnectAttempts < 0 {
		return errors.New("stream.max_reconnect_attempts must be >=0")
	}
	if !cfg.Service.Mock {
		for _, endpoint := range []struct {
			name  string
			value string
		}{
			{"stream.ai.url", cfg.Stream.AI.URL},
			{"stream.heart_rate.url", cfg.Stream.HeartRate.URL},
			{"stream.contractions.url", cfg.Stream.Contractions.URL},
		} {
			if err := validateWebsocketURL(endpoint.name, endpoint.value); err != nil {
				return err
			}
		}
	}

	if cfg.Buffer.MaxDataPoints < 0 {
		return errors.New("buffer.max_data_points must be >0")
	}
	if cfg.Alerts.MaxAlerts < 0 {
		return errors.New("alerts.max_alerts must be >0")
	}
	if cfg.Window.SizeSec < 0 {
		return errors.New("window.size_sec must be >0")
	}
	if cfg.Window.MaxPoints < 0 {
		return errors.New("window.max_points must be >0")
	}
	if cfg.Window.RefreshMS < 0 {
		return errors.New("window.refresh_ms must be >0")
	}
	switch cfg.Window.Mode {
	case WindowModeWindowed, WindowModeFull:
	default:
		return fmt.Errorf("window.mode has unsupported value %q", cfg.Window.Mode)
	}

	if cfg.Publish.NATS.Enabled {
		for i, raw := range cfg.Publish.NATS.URL {
			if strings.TrimSpace(raw) == "" {
				return fmt.Errorf("publish.nats.url[%d] is empty", i)
			}
		}
		if strings.ContainsAny(cfg.Publish.NATS.SubjectPrefix, " *>") {
			return fmt.Errorf("publish.nats.subject_prefix has unsupported value %q", cfg.Publish.NATS.SubjectPrefix)
		}
	}

	switch cfg.Notify.MinKind {
	case "info", "warning", "error":
	default:
		return fmt.Errorf("notify.min_kind has unsupported value %q", cfg.Notify.MinKind)
	}
	if cfg.Notify.Telegram.Enabled || cfg.Notify.HTTP.Enabled {
		if _, err := templatefmt.ParseAlertTemplate("notify.template", cfg.Notify.Template); err != nil {
			return fmt.Errorf("notify.template is invalid: %w", err)
		}
	}
	if cfg.Notify.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notify.Telegram.BotToken) == "" {
			return errors.New("notify.telegram.bot_token is required when notify.telegram.enabled=true")
		}
		if strings.TrimSpace(cfg.Notify.Telegram.ChatID) == "" {
			return errors.New("notify.telegram.chat_id is required when notify.telegram.enabled=true")
		}
	}
	if cfg.Notify.HTTP.Enabled {
		if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.Notify.HTTP.URL)); err != nil {
			return fmt.Errorf("notify.http.url is invalid: %w", err)
		}
	}

	if _, err := url.ParseRequestURI(cfg.Registry.BaseURL); err != nil && !strings.HasPrefix(cfg.Registry.BaseURL, "/") {
		return fmt.Errorf("registry.base_url is invalid: %w", err)
	}
	return nil
}

func validateWebsocketURL(name, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("%s must use ws:// or wss:// scheme, got %q", name, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", name)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}
	return nil
}
