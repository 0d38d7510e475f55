package window

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
	"ctgmonitor/internal/state"
)

// DefaultRefreshInterval is the periodic recompute tick.
const DefaultRefreshInterval = time.Second

// Sink receives every recomputed frame.
type Sink func(stream domain.StreamKind, frame Frame)

// RefresherConfig configures one stream refresher.
// Params: store and stream to watch, extraction options, tick, and collaborators.
// Returns: refresher construction input.
type RefresherConfig struct {
	Store    *state.Store
	Stream   domain.StreamKind
	Options  Options
	Interval time.Duration
	Clock    clock.Clock
	Sink     Sink
	Logger   *slog.Logger
}

// Refresher recomputes the frame of one sample stream on store changes and on every tick.
// Params: RefresherConfig.
// Returns: latest frame accessor with cancellable background loop.
type Refresher struct {
	cfg    RefresherConfig
	source *state.Stream[domain.Sample]
	logger *slog.Logger

	mu      sync.RWMutex
	options Options
	latest  Frame

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRefresher validates config and builds an idle refresher.
// Params: RefresherConfig; Stream must be heart-rate or contractions.
// Returns: refresher or configuration error.
func NewRefresher(cfg RefresherConfig) (*Refresher, error) {
	if cfg.Store == nil {
		return nil, errors.New("window: store is required")
	}
	source := cfg.Store.Samples(cfg.Stream)
	if source == nil {
		return nil, errors.New("window: stream " + string(cfg.Stream) + " has no samples")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	return &Refresher{
		cfg:     cfg,
		source:  source,
		logger:  logging.ForStream(cfg.Logger, "window", cfg.Stream),
		options: cfg.Options.normalized(),
		latest:  rebase(nil),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start computes the first frame and launches the refresh loop.
// Params: ctx whose cancellation stops the loop like Close.
// Returns: none; repeated calls are ignored.
func (r *Refresher) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.recompute()
		unsubscribe := r.cfg.Store.Subscribe(func(change state.Change) {
			if change.Stream != r.cfg.Stream || change.Kind == state.ChangeStatus {
				return
			}
			r.trigger()
		})
		ticker := r.cfg.Clock.NewTicker(r.cfg.Interval)
		go r.loop(ctx, ticker, unsubscribe)
	})
}

// Close stops the loop and waits for it to exit.
func (r *Refresher) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	// never started: nothing to wait for, and a later Start stays a no-op
	r.startOnce.Do(func() { close(r.done) })
	<-r.done
}

// Latest returns the most recently computed frame.
func (r *Refresher) Latest() Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Options returns active extraction options.
func (r *Refresher) Options() Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.options
}

// SetOptions replaces extraction options and schedules a recompute.
// Params: new options; zero fields take defaults.
// Returns: none.
func (r *Refresher) SetOptions(opts Options) {
	r.mu.Lock()
	r.options = opts.normalized()
	r.mu.Unlock()
	r.trigger()
}

func (r *Refresher) trigger() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Refresher) loop(ctx context.Context, ticker clock.Ticker, unsubscribe func()) {
	defer close(r.done)
	defer ticker.Stop()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-r.kick:
			r.recompute()
		case <-ticker.C():
			r.recompute()
		}
	}
}

func (r *Refresher) recompute() {
	r.mu.RLock()
	opts := r.options
	r.mu.RUnlock()

	frame := Extract(r.source.Samples(), opts, r.cfg.Clock.Now())

	r.mu.Lock()
	r.latest = frame
	r.mu.Unlock()

	r.logger.Debug("window recomputed", "points", frame.Len(), "mode", string(opts.Mode))
	if r.cfg.Sink != nil {
		r.cfg.Sink(r.cfg.Stream, frame)
	}
}
