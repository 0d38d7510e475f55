package clock

import (
	"testing"
	"time"
)

func TestManualFiresTimersInDeadlineOrder(t *testing.T) {
	t.Parallel()

	clk := NewManual(time.Unix(1_700_000_000, 0))
	var order []int
	clk.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	clk.AfterFunc(time.Second, func() { order = append(order, 1) })
	stopped := clk.AfterFunc(1500*time.Millisecond, func() { order = append(order, 99) })
	if !stopped.Stop() {
		t.Fatalf("expected stop to cancel pending timer")
	}

	clk.Advance(time.Second)
	if len(order) != 1 || order[0] != 1 {
		t.Fatalf("unexpected order after 1s: %v", order)
	}
	clk.Advance(5 * time.Second)
	if len(order) != 2 || order[1] != 2 {
		t.Fatalf("unexpected order after 6s: %v", order)
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", clk.Pending())
	}
}

func TestManualTimerScheduledFromCallbackFiresInSameAdvance(t *testing.T) {
	t.Parallel()

	clk := NewManual(time.Unix(0, 0))
	fired := 0
	var schedule func()
	schedule = func() {
		clk.AfterFunc(time.Second, func() {
			fired++
			if fired < 3 {
				schedule()
			}
		})
	}
	schedule()

	clk.Advance(10 * time.Second)
	if fired != 3 {
		t.Fatalf("expected 3 chained timers, got %d", fired)
	}
}

func TestManualTickerDeliversOnAdvance(t *testing.T) {
	t.Parallel()

	clk := NewManual(time.Unix(0, 0))
	ticker := clk.NewTicker(time.Second)
	clk.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatalf("unexpected early tick")
	default:
	}
	clk.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatalf("expected tick after period elapsed")
	}
	ticker.Stop()
	clk.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatalf("stopped ticker must not tick")
	default:
	}
}
