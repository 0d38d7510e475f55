package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
	"ctgmonitor/internal/registry"
	"ctgmonitor/internal/state"
	"ctgmonitor/internal/window"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AlertFeed is the alert list with its overlay operations.
type AlertFeed interface {
	Alerts() []domain.Alert
	Acknowledge(id string) bool
	Dismiss(id string) bool
}

// Registry is the patient/study collaborator.
type Registry interface {
	RecentPatients(ctx context.Context) ([]registry.PatientSummary, error)
	SearchPatients(ctx context.Context, query string) ([]registry.PatientSearchResult, error)
	CreatePatient(ctx context.Context, fullName string) (*registry.CreatedPatient, error)
	RecentStudies(ctx context.Context) ([]registry.StudySummary, error)
}

// FrameSource exposes the latest chart frame of one sample stream.
type FrameSource interface {
	Latest() window.Frame
	Options() window.Options
}

// RequestObserver records per-route HTTP metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Config wires the read surface to runtime components.
// Params: store, alert feed, frame sources per sample stream, registry, reconnect hook, paths, and probes.
// Returns: router construction input; nil Registry disables patient routes, nil Reconnect disables the connect route.
type Config struct {
	Store          *state.Store
	Alerts         AlertFeed
	Frames         map[domain.StreamKind]FrameSource
	Registry       Registry
	Reconnect      func(domain.StreamKind) error
	Window         window.Options
	Clock          clock.Clock
	Ready          func() bool
	HealthPath     string
	ReadyPath      string
	MetricsPath    string
	MetricsHandler http.Handler
	Observer       RequestObserver
	Logger         *slog.Logger
}

type handler struct {
	cfg    Config
	logger *slog.Logger
}

// NewRouter builds the chi router for probes, streams, windows, alerts, and registry proxy.
// Params: Config.
// Returns: HTTP handler.
func NewRouter(cfg Config) http.Handler {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Ready == nil {
		cfg.Ready = func() bool { return true }
	}
	h := &handler{cfg: cfg, logger: logging.ForComponent(cfg.Logger, "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	r.Get(cfg.HealthPath, h.health)
	r.Get(cfg.ReadyPath, h.ready)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, cfg.MetricsPath, cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/streams", h.listStreams)
		r.Route("/streams/{stream}", func(r chi.Router) {
			r.Get("/samples", h.streamSamples)
			r.Get("/window", h.streamWindow)
			r.Delete("/", h.clearStream)
			if cfg.Reconnect != nil {
				r.Post("/connect", h.connectStream)
			}
		})

		r.Get("/alerts", h.listAlerts)
		r.Post("/alerts/{id}/ack", h.acknowledgeAlert)
		r.Post("/alerts/{id}/dismiss", h.dismissAlert)

		if cfg.Registry != nil {
			r.Get("/patients/recent", h.recentPatients)
			r.Get("/patients/search", h.searchPatients)
			r.Post("/patients", h.createPatient)
			r.Get("/studies/recent", h.recentStudies)
		}
	})
	return r
}

// observe logs and measures each request by its route pattern.
func (h *handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		if h.cfg.Observer != nil {
			h.cfg.Observer.ObserveRequest(r.Method, route, status, elapsed)
		}
		h.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) ready(w http.ResponseWriter, _ *http.Request) {
	if !h.cfg.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not-ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
