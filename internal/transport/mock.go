package transport

import (
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
)

const (
	// MockAIInterval is the AI mock emission period.
	MockAIInterval = time.Second
	// MockHeartRateInterval is the heart-rate mock emission period.
	MockHeartRateInterval = 250 * time.Millisecond
	// MockContractionsInterval is the contractions mock emission period.
	MockContractionsInterval = 500 * time.Millisecond
)

// MockOptions configures one synthetic source.
type MockOptions[T any] struct {
	Stream    domain.StreamKind
	Interval  time.Duration
	Generate  func(now time.Time) T
	OnMessage func(T)
	OnEvent   func(Event)
	Clock     clock.Clock
	Logger    *slog.Logger
	Recorder  Recorder
}

// Mock emits generator output on a ticker and never fails.
// Params: MockOptions.
// Returns: Source used when mock mode is enabled.
type Mock[T any] struct {
	opts   MockOptions[T]
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMock builds a stopped mock source.
// Params: options; Generate, OnMessage and Interval>0 are required.
// Returns: mock source or configuration error.
func NewMock[T any](opts MockOptions[T]) (*Mock[T], error) {
	if opts.Generate == nil || opts.OnMessage == nil {
		return nil, errors.New("transport: mock needs generator and message handler")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("transport: mock interval must be >0")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Mock[T]{opts: opts, logger: logging.ForStream(opts.Logger, "mock", opts.Stream)}, nil
}

// Connect reports open and starts emitting.
func (m *Mock[T]) Connect() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	ticker := m.opts.Clock.NewTicker(m.opts.Interval)
	stop, done := m.stop, m.done
	m.mu.Unlock()

	m.logger.Info("mock stream started", "interval", m.opts.Interval)
	m.emit(EventOpen)
	go m.loop(ticker, stop, done)
}

// Disconnect stops emitting and reports close.
func (m *Mock[T]) Disconnect() {
	m.mu.Lock()
	running := m.running
	stop, done := m.stop, m.done
	m.running = false
	m.mu.Unlock()

	if running {
		close(stop)
		<-done
	}
	m.emit(EventClose)
}

// IsConnected reports whether the generator is running.
func (m *Mock[T]) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Mock[T]) loop(ticker clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C():
			message := m.opts.Generate(now)
			m.opts.Recorder.MessageReceived(m.opts.Stream)
			m.opts.OnMessage(message)
		}
	}
}

func (m *Mock[T]) emit(event Event) {
	if m.opts.OnEvent != nil {
		m.opts.OnEvent(event)
	}
}

// NewAIGenerator returns random AI messages stamped with the tick time.
// Params: random source.
// Returns: generator with random status, two events, and random long-term risks.
func NewAIGenerator(rng *rand.Rand) func(time.Time) domain.AIMessage {
	statuses := []domain.AIStatus{domain.AIStatusNormal, domain.AIStatusSuspicion, domain.AIStatusAlarm}
	return func(now time.Time) domain.AIMessage {
		return domain.AIMessage{
			Time: now.Unix(),
			ShortTerm: domain.ShortTerm{
				Status: statuses[rng.IntN(len(statuses))],
				Events: []domain.AIEvent{
					{Type: domain.AIEventLateDecel, Severity: rng.Float64()},
					{Type: domain.AIEventLowVariability, Severity: rng.Float64()},
				},
			},
			LongTerm: domain.LongTerm{Hypoxia60: rng.Float64(), Emergency30: rng.Float64()},
		}
	}
}

// NewHeartRateGenerator returns a bounded random walk around 120 bpm.
// Params: random source and start instant; each call advances time_sec by one.
// Returns: generator with integer values clamped to [80,180].
func NewHeartRateGenerator(rng *rand.Rand, start time.Time) func(time.Time) domain.Sample {
	t := start.Unix()
	value := 120.0
	return func(time.Time) domain.Sample {
		t++
		value += math.Round((rng.Float64() - 0.5) * 4)
		value = math.Max(80, math.Min(180, value))
		return domain.Sample{TimeSec: t, Value: value}
	}
}

// NewContractionsGenerator returns a noisy sine wave between roughly 20 and 80.
// Params: random source and start instant; each call advances time_sec by one.
// Returns: generator with non-negative integer values.
func NewContractionsGenerator(rng *rand.Rand, start time.Time) func(time.Time) domain.Sample {
	t := start.Unix()
	phase := 0.0
	return func(time.Time) domain.Sample {
		t++
		phase += 0.2
		base := math.Sin(phase)*30 + 50
		noise := (rng.Float64() - 0.5) * 10
		return domain.Sample{TimeSec: t, Value: math.Max(0, math.Round(base+noise))}
	}
}
