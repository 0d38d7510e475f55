package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"ctgmonitor/internal/alerts"
	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/config"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
	"ctgmonitor/internal/metrics"
	"ctgmonitor/internal/state"
	"ctgmonitor/internal/transport"
	"ctgmonitor/internal/window"
)

// MonitorDeps are the injectable collaborators of a Monitor.
// Params: logger, clock, optional metrics, optional dialer, and mock random seed.
// Returns: construction input; nil fields take production defaults.
type MonitorDeps struct {
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Dialer  transport.Dialer
	Seed    uint64
}

// Monitor owns the stream pipeline: three sources feed the store, the deriver and
// window refreshers follow the store.
type Monitor struct {
	cfg     config.Config
	base    *slog.Logger
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics.Metrics

	store      *state.Store
	deriver    *alerts.Deriver
	sources    map[domain.StreamKind]transport.Source
	refreshers map[domain.StreamKind]*window.Refresher

	mu       sync.Mutex
	started  bool
	cancels  []func()
	stopOnce sync.Once
}

// NewMonitor builds the pipeline without starting any I/O.
// Params: validated config and dependencies.
// Returns: monitor or construction error.
func NewMonitor(cfg config.Config, deps MonitorDeps) (*Monitor, error) {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	logger := logging.ForComponent(deps.Logger, "monitor")
	m := &Monitor{
		cfg:        cfg,
		base:       deps.Logger,
		logger:     logger,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		store:      state.NewStore(cfg.Buffer.MaxDataPoints),
		sources:    make(map[domain.StreamKind]transport.Source, 3),
		refreshers: make(map[domain.StreamKind]*window.Refresher, 2),
	}

	var alertRecorder alerts.Recorder
	if deps.Metrics != nil {
		alertRecorder = deps.Metrics
	}
	m.deriver = alerts.NewDeriver(alerts.Config{
		MaxAlerts: cfg.Alerts.MaxAlerts,
		Clock:     deps.Clock,
		Logger:    deps.Logger,
		Recorder:  alertRecorder,
	})

	if err := m.buildSources(deps); err != nil {
		return nil, err
	}
	if err := m.buildRefreshers(deps.Logger); err != nil {
		return nil, err
	}
	return m, nil
}

// Store returns the stream store.
func (m *Monitor) Store() *state.Store { return m.store }

// Deriver returns the alert deriver.
func (m *Monitor) Deriver() *alerts.Deriver { return m.deriver }

// Source returns the transport of one stream.
func (m *Monitor) Source(kind domain.StreamKind) transport.Source { return m.sources[kind] }

// Refresher returns the window refresher of a sample stream, or nil for AI.
func (m *Monitor) Refresher(kind domain.StreamKind) *window.Refresher { return m.refreshers[kind] }

// Start attaches observers, starts refreshers, and connects every source.
// Params: context bounding refresher loops.
// Returns: error when already started.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("monitor already started")
	}
	m.started = true

	m.cancels = append(m.cancels, m.deriver.Attach(m.store))
	if m.metrics != nil {
		m.cancels = append(m.cancels, m.store.Subscribe(m.recordChange))
	}
	for _, kind := range []domain.StreamKind{domain.StreamHeartRate, domain.StreamContractions} {
		m.refreshers[kind].Start(ctx)
	}
	for _, kind := range domain.StreamKinds() {
		m.sources[kind].Connect()
	}
	m.logger.Info("monitor started", "mock", m.cfg.Service.Mock)
	return nil
}

// Stop disconnects sources, stops refreshers, detaches observers, and clears the store.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		for _, kind := range domain.StreamKinds() {
			m.sources[kind].Disconnect()
		}
		for _, refresher := range m.refreshers {
			refresher.Close()
		}
		m.mu.Lock()
		cancels := m.cancels
		m.cancels = nil
		m.mu.Unlock()
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
		m.store.ClearAll()
		m.store.ResetStatuses()
		m.logger.Info("monitor stopped")
	})
}

// Reconnect calls Connect on one source; used to revive an exhausted client.
// Params: stream kind.
// Returns: error for unknown streams.
func (m *Monitor) Reconnect(kind domain.StreamKind) error {
	source, ok := m.sources[kind]
	if !ok {
		return fmt.Errorf("unknown stream %q", kind)
	}
	source.Connect()
	return nil
}

func (m *Monitor) recordChange(change state.Change) {
	info := m.store.Info(change.Stream)
	if info == nil {
		return
	}
	switch change.Kind {
	case state.ChangeStatus:
		m.metrics.SetConnectionStatus(change.Stream, info.Status())
	default:
		m.metrics.SetBufferSize(change.Stream, info.Len())
	}
}

func (m *Monitor) onEvent(kind domain.StreamKind) func(transport.Event) {
	return func(event transport.Event) {
		m.store.SetStatus(kind, event.Status())
	}
}

func (m *Monitor) onError(kind domain.StreamKind) func(error) {
	logger := logging.ForStream(m.base, "monitor", kind)
	return func(err error) {
		if errors.Is(err, transport.ErrReconnectExhausted) {
			logger.Error("stream gave up reconnecting", "error", err.Error())
			return
		}
		logger.Warn("stream error", "error", err.Error())
	}
}

func (m *Monitor) buildSources(deps MonitorDeps) error {
	var recorder transport.Recorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	if m.cfg.Service.Mock {
		return m.buildMockSources(deps, recorder)
	}

	dialer := deps.Dialer
	if dialer == nil {
		dialer = transport.NewWebsocketDialer(nil)
	}
	stream := m.cfg.Stream
	ai, err := transport.NewClient(transport.Options[domain.AIMessage]{
		Stream:               domain.StreamAI,
		URL:                  stream.AI.URL,
		Decode:               domain.DecodeAIMessage,
		OnMessage:            m.store.AI.Append,
		OnEvent:              m.onEvent(domain.StreamAI),
		OnError:              m.onError(domain.StreamAI),
		ReconnectInterval:    stream.ReconnectInterval(),
		MaxReconnectAttempts: stream.MaxReconnectAttempts,
		Dialer:               dialer,
		Clock:                deps.Clock,
		Logger:               deps.Logger,
		Recorder:             recorder,
	})
	if err != nil {
		return fmt.Errorf("build ai transport: %w", err)
	}
	m.sources[domain.StreamAI] = ai

	for kind, url := range map[domain.StreamKind]string{
		domain.StreamHeartRate:    stream.HeartRate.URL,
		domain.StreamContractions: stream.Contractions.URL,
	} {
		client, err := transport.NewClient(transport.Options[domain.Sample]{
			Stream:               kind,
			URL:                  url,
			Decode:               domain.DecodeSample,
			OnMessage:            m.store.Samples(kind).Append,
			OnEvent:              m.onEvent(kind),
			OnError:              m.onError(kind),
			ReconnectInterval:    stream.ReconnectInterval(),
			MaxReconnectAttempts: stream.MaxReconnectAttempts,
			Dialer:               dialer,
			Clock:                deps.Clock,
			Logger:               deps.Logger,
			Recorder:             recorder,
		})
		if err != nil {
			return fmt.Errorf("build %s transport: %w", kind, err)
		}
		m.sources[kind] = client
	}
	return nil
}

func (m *Monitor) buildMockSources(deps MonitorDeps, recorder transport.Recorder) error {
	seed := deps.Seed
	if seed == 0 {
		seed = uint64(deps.Clock.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	start := deps.Clock.Now()

	ai, err := transport.NewMock(transport.MockOptions[domain.AIMessage]{
		Stream:    domain.StreamAI,
		Interval:  transport.MockAIInterval,
		Generate:  transport.NewAIGenerator(rng),
		OnMessage: m.store.AI.Append,
		OnEvent:   m.onEvent(domain.StreamAI),
		Clock:     deps.Clock,
		Logger:    deps.Logger,
		Recorder:  recorder,
	})
	if err != nil {
		return fmt.Errorf("build ai mock: %w", err)
	}
	heartRate, err := transport.NewMock(transport.MockOptions[domain.Sample]{
		Stream:    domain.StreamHeartRate,
		Interval:  transport.MockHeartRateInterval,
		Generate:  transport.NewHeartRateGenerator(rng, start),
		OnMessage: m.store.HeartRate.Append,
		OnEvent:   m.onEvent(domain.StreamHeartRate),
		Clock:     deps.Clock,
		Logger:    deps.Logger,
		Recorder:  recorder,
	})
	if err != nil {
		return fmt.Errorf("build heart rate mock: %w", err)
	}
	contractions, err := transport.NewMock(transport.MockOptions[domain.Sample]{
		Stream:    domain.StreamContractions,
		Interval:  transport.MockContractionsInterval,
		Generate:  transport.NewContractionsGenerator(rng, start),
		OnMessage: m.store.Contractions.Append,
		OnEvent:   m.onEvent(domain.StreamContractions),
		Clock:     deps.Clock,
		Logger:    deps.Logger,
		Recorder:  recorder,
	})
	if err != nil {
		return fmt.Errorf("build contractions mock: %w", err)
	}
	m.sources[domain.StreamAI] = ai
	m.sources[domain.StreamHeartRate] = heartRate
	m.sources[domain.StreamContractions] = contractions
	return nil
}

func (m *Monitor) buildRefreshers(logger *slog.Logger) error {
	mode, err := window.ParseMode(m.cfg.Window.Mode)
	if err != nil {
		return err
	}
	opts := window.Options{Size: m.cfg.Window.Size(), MaxPoints: m.cfg.Window.MaxPoints, Mode: mode}
	for _, kind := range []domain.StreamKind{domain.StreamHeartRate, domain.StreamContractions} {
		refresher, err := window.NewRefresher(window.RefresherConfig{
			Store:    m.store,
			Stream:   kind,
			Options:  opts,
			Interval: m.cfg.Window.RefreshInterval(),
			Clock:    m.clock,
			Sink:     m.onFrame,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("build %s refresher: %w", kind, err)
		}
		m.refreshers[kind] = refresher
	}
	return nil
}

func (m *Monitor) onFrame(kind domain.StreamKind, frame window.Frame) {
	if m.metrics != nil {
		m.metrics.SetWindowPoints(kind, frame.Len())
	}
}
