package clock

import "time"

// Clock provides current time and scheduling for deterministic tests.
// Params: none.
// Returns: wall-clock time, one-shot timers, and periodic tickers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer is a cancellable one-shot callback.
// Params: none.
// Returns: true from Stop when the callback was prevented.
type Timer interface {
	Stop() bool
}

// Ticker delivers periodic ticks until stopped.
// Params: none.
// Returns: tick channel and stop hook.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads time from the system clock and schedules on the runtime timer heap.
// Params: none.
// Returns: production clock.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc runs fn in its own goroutine after d.
// Params: delay and callback.
// Returns: stoppable timer handle.
func (RealClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewTicker creates a runtime ticker.
// Params: tick period (>0).
// Returns: stoppable ticker handle.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }

func (r realTicker) Stop() { r.t.Stop() }
