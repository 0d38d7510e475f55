package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/config"
	"ctgmonitor/internal/logging"
)

// ErrUpstreamFetch wraps every failed registry request.
var ErrUpstreamFetch = errors.New("upstream-fetch-error")

// MonitoringStatus classifies a patient in the recent list.
type MonitoringStatus string

const (
	MonitoringStable   MonitoringStatus = "stable"
	MonitoringWarning  MonitoringStatus = "warning"
	MonitoringCritical MonitoringStatus = "critical"
)

// PatientSummary is one row of the recent patients list.
type PatientSummary struct {
	ID               string           `json:"id"`
	FullName         string           `json:"fullName"`
	LastStudyType    string           `json:"lastStudyType"`
	LastStudyDate    string           `json:"lastStudyDate"`
	MonitoringStatus MonitoringStatus `json:"monitoringStatus"`
}

// PatientSearchResult extends a summary with identification fields.
type PatientSearchResult struct {
	PatientSummary
	BirthDate     string `json:"birthDate"`
	MedicalRecord string `json:"medicalRecord"`
}

// CreatedPatient is the registry reply to a create call.
type CreatedPatient struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

// StudySummary is one row of the recent studies list.
type StudySummary struct {
	ID              string `json:"id"`
	PatientID       string `json:"patientId"`
	PatientName     string `json:"patientName"`
	Modality        string `json:"modality"`
	Status          string `json:"status"`
	PerformedAt     string `json:"performedAt"`
	FindingsSummary string `json:"findingsSummary"`
}

// Client calls the patient/study REST collaborator.
// Params: endpoint URLs, timeout, and fallback policy from RegistryConfig.
// Returns: typed lists; failures fall back to static data when enabled.
type Client struct {
	cfg    config.RegistryConfig
	http   *http.Client
	clock  clock.Clock
	logger *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithClock sets the clock used for fallback identifiers.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// NewClient builds a registry client.
// Params: registry config, logger, and options.
// Returns: client without any network activity.
func NewClient(cfg config.RegistryConfig, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout()},
		clock:  clock.RealClock{},
		logger: logging.ForComponent(logger, "registry"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// RecentPatients lists recently monitored patients.
// Params: request context.
// Returns: patient rows or wrapped ErrUpstreamFetch.
func (c *Client) RecentPatients(ctx context.Context) ([]PatientSummary, error) {
	var out []PatientSummary
	if err := c.getJSON(ctx, c.cfg.RecentPatients, &out); err != nil {
		if c.cfg.FallbackOnErrors {
			c.logger.Warn("recent patients fallback triggered", "error", err.Error())
			return fallbackPatients(), nil
		}
		return nil, err
	}
	return out, nil
}

// SearchPatients finds patients by name fragment.
// Params: request context and free-text query; blank query returns no rows without a request.
// Returns: matching rows or wrapped ErrUpstreamFetch.
func (c *Client) SearchPatients(ctx context.Context, query string) ([]PatientSearchResult, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []PatientSearchResult{}, nil
	}
	endpoint := c.cfg.SearchPatients + "?query=" + url.QueryEscape(query)

	var out []PatientSearchResult
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		if c.cfg.FallbackOnErrors {
			c.logger.Warn("patient search fallback triggered", "error", err.Error())
			return filterSearchResults(fallbackSearchResults(), trimmed), nil
		}
		return nil, err
	}
	return out, nil
}

// CreatePatient registers a patient by full name.
// Params: request context and full name; blank names are rejected without a request.
// Returns: created record, nil for blank names, or wrapped ErrUpstreamFetch.
func (c *Client) CreatePatient(ctx context.Context, fullName string) (*CreatedPatient, error) {
	trimmed := strings.TrimSpace(fullName)
	if trimmed == "" {
		return nil, nil
	}

	created, err := c.postPatient(ctx, trimmed)
	if err != nil {
		if c.cfg.FallbackOnErrors {
			c.logger.Warn("create patient fallback triggered", "error", err.Error())
			return &CreatedPatient{
				ID:       "pt-" + strconv.FormatInt(c.clock.Now().UnixMilli(), 10),
				FullName: trimmed,
			}, nil
		}
		return nil, err
	}
	return created, nil
}

// RecentStudies lists recent studies.
// Params: request context.
// Returns: study rows or wrapped ErrUpstreamFetch.
func (c *Client) RecentStudies(ctx context.Context) ([]StudySummary, error) {
	var out []StudySummary
	if err := c.getJSON(ctx, c.cfg.RecentStudies, &out); err != nil {
		if c.cfg.FallbackOnErrors {
			c.logger.Warn("recent studies fallback triggered", "error", err.Error())
			return fallbackStudies(), nil
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) postPatient(ctx context.Context, fullName string) (*CreatedPatient, error) {
	body, err := json.Marshal(map[string]string{"fullName": fullName})
	if err != nil {
		return nil, fmt.Errorf("%w: encode create patient: %v", ErrUpstreamFetch, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CreatePatient, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstreamFetch, err)
	}
	request.Header.Set("Content-Type", "application/json")

	var created CreatedPatient
	if err := c.do(request, &created); err != nil {
		return nil, err
	}
	if strings.TrimSpace(created.ID) == "" {
		return nil, fmt.Errorf("%w: create patient response is missing id", ErrUpstreamFetch)
	}
	return &created, nil
}

// getJSON fetches endpoint and decodes a JSON array into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUpstreamFetch, err)
	}
	request.Header.Set("Accept", "application/json")
	return c.do(request, out)
}

func (c *Client) do(request *http.Request, out any) error {
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstreamFetch, request.Method, request.URL.Path, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, response.Body)
		return fmt.Errorf("%w: %s %s status=%d", ErrUpstreamFetch, request.Method, request.URL.Path, response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUpstreamFetch, request.URL.Path, err)
	}
	return nil
}
