package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a test clock that only moves when Advance is called.
// Params: start instant.
// Returns: deterministic Clock implementation.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	timers  []*manualTimer
	tickers []*manualTicker
}

// NewManual creates manual clock positioned at start.
// Params: initial wall-clock instant.
// Returns: manual clock.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns current manual instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers fn to run synchronously inside Advance once d has elapsed.
// Params: delay and callback.
// Returns: stoppable timer handle.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	timer := &manualTimer{clock: m, at: m.now.Add(d), fn: fn, seq: m.seq}
	m.timers = append(m.timers, timer)
	return timer
}

// NewTicker creates ticker that fires on Advance.
// Params: tick period.
// Returns: ticker with buffered channel (ticks are dropped when the reader lags).
func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker := &manualTicker{clock: m, period: d, next: m.now.Add(d), ch: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, ticker)
	return ticker
}

// Pending reports how many timers are scheduled and not yet fired or stopped.
// Params: none.
// Returns: pending timer count.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward, firing due timers in deadline order and ticking tickers.
// Params: duration to advance.
// Returns: none.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		due := m.popDueLocked(target)
		if due == nil {
			m.now = target
			tickers := append([]*manualTicker(nil), m.tickers...)
			m.mu.Unlock()
			for _, ticker := range tickers {
				ticker.fire(target)
			}
			return
		}
		if due.at.After(m.now) {
			m.now = due.at
		}
		m.mu.Unlock()
		due.fn()
	}
}

func (m *Manual) popDueLocked(target time.Time) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	first := m.timers[0]
	if first.at.After(target) {
		return nil
	}
	m.timers = m.timers[1:]
	return first
}

func (m *Manual) removeTimer(timer *manualTimer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, candidate := range m.timers {
		if candidate == timer {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manual) removeTicker(ticker *manualTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, candidate := range m.tickers {
		if candidate == ticker {
			m.tickers = append(m.tickers[:i], m.tickers[i+1:]...)
			return
		}
	}
}

type manualTimer struct {
	clock *Manual
	at    time.Time
	fn    func()
	seq   uint64
}

func (t *manualTimer) Stop() bool {
	return t.clock.removeTimer(t)
}

type manualTicker struct {
	clock  *Manual
	period time.Duration
	next   time.Time
	ch     chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() { t.clock.removeTicker(t) }

func (t *manualTicker) fire(now time.Time) {
	if t.period <= 0 || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.period)
	}
	select {
	case t.ch <- now:
	default:
	}
}
