package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/window"

	"github.com/go-chi/chi/v5"
)

// StreamView is one row of GET /api/streams.
type StreamView struct {
	Stream   domain.StreamKind       `json:"stream"`
	Status   domain.ConnectionStatus `json:"status"`
	Len      int                     `json:"len"`
	Capacity int                     `json:"capacity"`
	Last     any                     `json:"last"`
}

func (h *handler) listStreams(w http.ResponseWriter, _ *http.Request) {
	store := h.cfg.Store
	views := make([]StreamView, 0, 3)
	for _, kind := range domain.StreamKinds() {
		info := store.Info(kind)
		view := StreamView{Stream: kind, Status: info.Status(), Len: info.Len(), Capacity: info.Capacity()}
		if kind == domain.StreamAI {
			if last, ok := store.AI.Last(); ok {
				view.Last = last
			}
		} else if last, ok := store.Samples(kind).Last(); ok {
			view.Last = last
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) streamSamples(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.streamParam(w, r)
	if !ok {
		return
	}
	if kind == domain.StreamAI {
		writeJSON(w, http.StatusOK, h.cfg.Store.AI.Samples())
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.Store.Samples(kind).Samples())
}

// streamWindow serves the refresher frame, or extracts on demand when query overrides are present.
func (h *handler) streamWindow(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.streamParam(w, r)
	if !ok {
		return
	}
	if kind == domain.StreamAI {
		writeError(w, http.StatusBadRequest, "ai stream has no chart window")
		return
	}

	opts := h.cfg.Window
	source, hasSource := h.cfg.Frames[kind]
	if hasSource {
		opts = source.Options()
	}
	overridden, err := applyWindowQuery(&opts, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if hasSource && !overridden {
		writeJSON(w, http.StatusOK, source.Latest())
		return
	}
	frame := window.Extract(h.cfg.Store.Samples(kind).Samples(), opts, h.cfg.Clock.Now())
	writeJSON(w, http.StatusOK, frame)
}

func (h *handler) clearStream(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.streamParam(w, r)
	if !ok {
		return
	}
	h.cfg.Store.Info(kind).Clear()
	w.WriteHeader(http.StatusNoContent)
}

// connectStream asks the stream's source to dial again, resetting an exhausted retry budget.
func (h *handler) connectStream(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.streamParam(w, r)
	if !ok {
		return
	}
	if err := h.cfg.Reconnect(kind); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Info("stream reconnect requested", "stream", string(kind))
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Alerts.Alerts())
}

func (h *handler) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Alerts.Acknowledge(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) dismissAlert(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Alerts.Dismiss(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) recentPatients(w http.ResponseWriter, r *http.Request) {
	rows, err := h.cfg.Registry.RecentPatients(r.Context())
	if err != nil {
		h.upstreamError(w, "recent patients", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) searchPatients(w http.ResponseWriter, r *http.Request) {
	rows, err := h.cfg.Registry.SearchPatients(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.upstreamError(w, "search patients", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) createPatient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FullName string `json:"fullName"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	created, err := h.cfg.Registry.CreatePatient(r.Context(), body.FullName)
	if err != nil {
		h.upstreamError(w, "create patient", err)
		return
	}
	if created == nil {
		writeError(w, http.StatusBadRequest, "fullName is required")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) recentStudies(w http.ResponseWriter, r *http.Request) {
	rows, err := h.cfg.Registry.RecentStudies(r.Context())
	if err != nil {
		h.upstreamError(w, "recent studies", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) upstreamError(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("registry request failed", "op", op, "error", err.Error())
	writeError(w, http.StatusBadGateway, err.Error())
}

func (h *handler) streamParam(w http.ResponseWriter, r *http.Request) (domain.StreamKind, bool) {
	kind, err := domain.ParseStreamKind(chi.URLParam(r, "stream"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

// applyWindowQuery applies mode, size_sec, and max_points query overrides.
// Returns true when any override was present.
func applyWindowQuery(opts *window.Options, r *http.Request) (bool, error) {
	query := r.URL.Query()
	overridden := false
	if raw := strings.TrimSpace(query.Get("mode")); raw != "" {
		mode, err := window.ParseMode(raw)
		if err != nil {
			return false, err
		}
		opts.Mode = mode
		overridden = true
	}
	if raw := strings.TrimSpace(query.Get("size_sec")); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return false, errInvalidQuery("size_sec")
		}
		opts.Size = time.Duration(seconds) * time.Second
		overridden = true
	}
	if raw := strings.TrimSpace(query.Get("max_points")); raw != "" {
		points, err := strconv.Atoi(raw)
		if err != nil || points <= 0 {
			return false, errInvalidQuery("max_points")
		}
		opts.MaxPoints = points
		overridden = true
	}
	return overridden, nil
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string {
	return string(e) + " must be a positive integer"
}
