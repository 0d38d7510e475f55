package alerts

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
	"ctgmonitor/internal/state"
)

// DefaultMaxAlerts bounds the alert list when no limit is configured.
const DefaultMaxAlerts = 100

// Recorder receives alert counters.
type Recorder interface {
	AlertDerived(kind domain.AlertKind)
	AlertsActive(count int)
}

type nopRecorder struct{}

func (nopRecorder) AlertDerived(domain.AlertKind) {}
func (nopRecorder) AlertsActive(int)              {}

// Config configures a Deriver.
type Config struct {
	MaxAlerts int
	Clock     clock.Clock
	Logger    *slog.Logger
	Recorder  Recorder
}

// Deriver turns AI status transitions and AI messages into a bounded, deduplicated alert list.
// Params: Config.
// Returns: alert feed with acknowledgment and dismissal overlay.
type Deriver struct {
	maxAlerts int
	clock     clock.Clock
	logger    *slog.Logger
	recorder  Recorder

	mu            sync.Mutex
	hasStatus     bool
	lastStatus    domain.ConnectionStatus
	lastSignature string
	entries       map[string]entry
	seq           uint64
	acknowledged  map[string]struct{}
	dismissed     map[string]struct{}

	subsMu  sync.RWMutex
	subs    []subscriber
	nextSub uint64
}

type entry struct {
	alert domain.Alert
	seq   uint64
}

type subscriber struct {
	id uint64
	fn func(domain.Alert)
}

// NewDeriver builds an empty deriver.
// Params: Config; zero values take defaults.
// Returns: deriver.
func NewDeriver(cfg Config) *Deriver {
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = DefaultMaxAlerts
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Deriver{
		maxAlerts:    cfg.MaxAlerts,
		clock:        cfg.Clock,
		logger:       logging.ForComponent(cfg.Logger, "alerts"),
		recorder:     cfg.Recorder,
		entries:      make(map[string]entry),
		acknowledged: make(map[string]struct{}),
		dismissed:    make(map[string]struct{}),
	}
}

// Attach feeds the deriver from AI stream changes in store.
// Params: store whose AI status and last message are observed.
// Returns: cancel function that detaches the deriver.
func (d *Deriver) Attach(store *state.Store) func() {
	d.ObserveStatus(store.AI.Status())
	return store.Subscribe(func(change state.Change) {
		if change.Stream != domain.StreamAI {
			return
		}
		switch change.Kind {
		case state.ChangeStatus:
			d.ObserveStatus(store.AI.Status())
		case state.ChangeAppend:
			if message, ok := store.AI.Last(); ok {
				d.ObserveMessage(message)
			}
		}
	})
}

// ObserveStatus derives one connection alert when status differs from the last observed one.
// Params: current AI connection status.
// Returns: alerts newly inserted by this call.
func (d *Deriver) ObserveStatus(status domain.ConnectionStatus) []domain.Alert {
	d.mu.Lock()
	if d.hasStatus && d.lastStatus == status {
		d.mu.Unlock()
		return nil
	}
	d.hasStatus = true
	d.lastStatus = status
	inserted := d.upsertLocked([]domain.Alert{connectionAlert(status, d.clock.Now())})
	d.mu.Unlock()

	d.publish(inserted)
	return inserted
}

// ObserveMessage derives alerts from one AI message unless its signature was already seen last.
// Params: decoded AI message.
// Returns: alerts newly inserted by this call.
func (d *Deriver) ObserveMessage(message domain.AIMessage) []domain.Alert {
	signature := message.Signature()
	d.mu.Lock()
	if d.lastSignature == signature {
		d.mu.Unlock()
		return nil
	}
	d.lastSignature = signature
	inserted := d.upsertLocked(messageAlerts(message))
	d.mu.Unlock()

	d.publish(inserted)
	return inserted
}

// Alerts returns the current list newest first with the overlay applied.
// Params: none.
// Returns: copy without dismissed alerts.
func (d *Deriver) Alerts() []domain.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	ordered := d.sortedLocked()
	out := make([]domain.Alert, 0, len(ordered))
	for _, item := range ordered {
		if _, hidden := d.dismissed[item.alert.ID]; hidden {
			continue
		}
		alert := item.alert
		if _, ok := d.acknowledged[alert.ID]; ok {
			alert.Acknowledged = true
		}
		out = append(out, alert)
	}
	return out
}

// Acknowledge marks alert as acknowledged in the overlay.
// Params: alert id.
// Returns: false when the id is not in the list.
func (d *Deriver) Acknowledge(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[id]; !ok {
		return false
	}
	d.acknowledged[id] = struct{}{}
	return true
}

// Dismiss hides alert from Alerts without removing it from the bounded list.
// Params: alert id.
// Returns: false when the id is not in the list.
func (d *Deriver) Dismiss(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[id]; !ok {
		return false
	}
	d.dismissed[id] = struct{}{}
	return true
}

// Reset forgets alerts, overlay, and the last status and signature.
func (d *Deriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasStatus = false
	d.lastStatus = ""
	d.lastSignature = ""
	d.entries = make(map[string]entry)
	d.acknowledged = make(map[string]struct{})
	d.dismissed = make(map[string]struct{})
	d.recorder.AlertsActive(0)
}

// Subscribe registers fn for every alert that enters the list.
// Params: callback invoked after the deriver lock is released, in insertion order.
// Returns: cancel function.
func (d *Deriver) Subscribe(fn func(domain.Alert)) func() {
	if fn == nil {
		return func() {}
	}
	d.subsMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs = append(d.subs, subscriber{id: id, fn: fn})
	d.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subsMu.Lock()
			defer d.subsMu.Unlock()
			for i, sub := range d.subs {
				if sub.id == id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// upsertLocked inserts alerts with a new id or changed timestamp, then trims to maxAlerts.
// Returns alerts that were inserted and survived trimming.
func (d *Deriver) upsertLocked(incoming []domain.Alert) []domain.Alert {
	changed := make([]string, 0, len(incoming))
	for _, alert := range incoming {
		existing, ok := d.entries[alert.ID]
		if ok && existing.alert.Timestamp.Equal(alert.Timestamp) {
			continue
		}
		seq := existing.seq
		if !ok {
			d.seq++
			seq = d.seq
		}
		d.entries[alert.ID] = entry{alert: alert, seq: seq}
		changed = append(changed, alert.ID)
	}
	if len(changed) == 0 {
		return nil
	}

	ordered := d.sortedLocked()
	if len(ordered) > d.maxAlerts {
		for _, evicted := range ordered[d.maxAlerts:] {
			delete(d.entries, evicted.alert.ID)
			delete(d.acknowledged, evicted.alert.ID)
			delete(d.dismissed, evicted.alert.ID)
		}
	}

	inserted := make([]domain.Alert, 0, len(changed))
	for _, id := range changed {
		item, ok := d.entries[id]
		if !ok {
			continue
		}
		inserted = append(inserted, item.alert)
		d.recorder.AlertDerived(item.alert.Kind)
		d.logger.Debug("alert derived", "id", id, "kind", string(item.alert.Kind))
	}
	d.recorder.AlertsActive(len(d.entries))
	return inserted
}

// sortedLocked orders entries newest first; equal timestamps keep first-insertion order.
func (d *Deriver) sortedLocked() []entry {
	ordered := make([]entry, 0, len(d.entries))
	for _, item := range d.entries {
		ordered = append(ordered, item)
	}
	sort.Slice(ordered, func(i, j int) bool {
		ti, tj := ordered[i].alert.Timestamp, ordered[j].alert.Timestamp
		if ti.Equal(tj) {
			return ordered[i].seq < ordered[j].seq
		}
		return ti.After(tj)
	})
	return ordered
}

func (d *Deriver) publish(inserted []domain.Alert) {
	if len(inserted) == 0 {
		return
	}
	d.subsMu.RLock()
	subs := d.subs
	d.subsMu.RUnlock()
	for _, alert := range inserted {
		for _, sub := range subs {
			sub.fn(alert)
		}
	}
}

func formatSeverity(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
