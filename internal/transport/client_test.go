package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"

	"github.com/gorilla/websocket"
)

const waitTimeout = 2 * time.Second

func TestClientDeliversDecodedMessagesInOrderAndDropsMalformed(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.push(conn, nil)
	h := newHarness(t, dialer, 5)

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventOpen)

	conn.send(`{"time_sec":1,"value":140}`)
	conn.send(`{"time_sec":`)
	conn.send(`{"time_sec":2,"value":141}`)

	got := h.waitMessages(t, 2)
	if got[0].TimeSec != 1 || got[1].TimeSec != 2 {
		t.Fatalf("unexpected message order %+v", got)
	}
	if h.recorder.decodeFailures() != 1 {
		t.Fatalf("expected one decode failure, got %d", h.recorder.decodeFailures())
	}
	if !h.client.IsConnected() {
		t.Fatalf("expected connected client")
	}
	h.client.Disconnect()
}

func TestClientReconnectsAfterUnrequestedCloseAndResetsAttempts(t *testing.T) {
	t.Parallel()

	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{}
	dialer.push(first, nil)
	dialer.push(second, nil)
	h := newHarness(t, dialer, 5)

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventOpen)

	first.fail(errors.New("connection reset"))
	h.expectEvents(t, EventError, EventClose)
	waitFor(t, func() bool { return h.clock.Pending() == 1 })
	if h.client.Attempts() != 1 || h.client.IsConnected() {
		t.Fatalf("expected one scheduled attempt and disconnected client, attempts=%d", h.client.Attempts())
	}

	h.clock.Advance(2999 * time.Millisecond)
	if dialer.count() != 1 {
		t.Fatalf("reconnect fired before interval elapsed")
	}
	h.clock.Advance(time.Millisecond)
	h.expectEvents(t, EventConnecting, EventOpen)
	if h.client.Attempts() != 0 {
		t.Fatalf("expected attempts reset on open, got %d", h.client.Attempts())
	}
	if h.recorder.reconnects() != 1 {
		t.Fatalf("expected one recorded reconnect, got %d", h.recorder.reconnects())
	}
	h.client.Disconnect()
}

func TestClientStopsAfterMaxAttemptsAndConnectResets(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{fallbackErr: errors.New("connection refused")}
	h := newHarness(t, dialer, 2)

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventError, EventClose)
	for attempt := 1; attempt <= 2; attempt++ {
		waitFor(t, func() bool { return h.clock.Pending() == 1 })
		h.clock.Advance(3 * time.Second)
		h.expectEvents(t, EventConnecting, EventError, EventClose)
	}
	h.expectEvents(t, EventExhausted)

	if h.clock.Pending() != 0 {
		t.Fatalf("no reconnect may be scheduled after exhaustion")
	}
	if dialer.count() != 3 {
		t.Fatalf("expected initial dial plus 2 reconnects, got %d", dialer.count())
	}
	if !h.sawError(ErrReconnectExhausted) {
		t.Fatalf("expected reconnect-exhausted error")
	}

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventError, EventClose)
	waitFor(t, func() bool { return h.clock.Pending() == 1 })
	if h.client.Attempts() != 1 {
		t.Fatalf("expected fresh retry budget after Connect, attempts=%d", h.client.Attempts())
	}
	h.client.Disconnect()
}

func TestClientDefaultBudgetStopsAfterFiveReconnects(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{fallbackErr: errors.New("connection refused")}
	h := newHarness(t, dialer, DefaultMaxReconnectAttempts)

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventError, EventClose)
	for attempt := 1; attempt <= DefaultMaxReconnectAttempts; attempt++ {
		waitFor(t, func() bool { return h.clock.Pending() == 1 })
		h.clock.Advance(DefaultReconnectInterval)
		h.expectEvents(t, EventConnecting, EventError, EventClose)
	}
	h.expectEvents(t, EventExhausted)

	h.clock.Advance(time.Minute)
	if dialer.count() != DefaultMaxReconnectAttempts+1 {
		t.Fatalf("expected 6 dials, got %d", dialer.count())
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("no sixth reconnect may be scheduled, pending=%d", h.clock.Pending())
	}
	h.client.Disconnect()
}

func TestClientDropsOversizedFrameAndKeepsReading(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.push(conn, nil)
	h := newHarnessWith(t, Options[domain.Sample]{
		Stream:     domain.StreamHeartRate,
		URL:        "ws://monitor.test/ws/bpm",
		Dialer:     dialer,
		Clock:      clock.NewManual(time.Unix(1_700_000_000, 0)),
		MaxPayload: 64,
	})

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventOpen)

	conn.send(`{"time_sec":1,"value":140,"note":"` + strings.Repeat("x", 64) + `"}`)
	conn.send(`{"time_sec":2,"value":141}`)

	got := h.waitMessages(t, 1)
	if got[0].TimeSec != 2 {
		t.Fatalf("expected oversized frame dropped, got %+v", got)
	}
	if h.recorder.decodeFailures() != 1 {
		t.Fatalf("expected one decode failure, got %d", h.recorder.decodeFailures())
	}
	if !h.client.IsConnected() || dialer.count() != 1 {
		t.Fatalf("oversized frame must not tear down the connection")
	}
	h.expectNoEvent(t, 50*time.Millisecond)
	h.client.Disconnect()
}

func TestClientDisconnectCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.push(conn, nil)
	h := newHarness(t, dialer, 5)

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventOpen)
	conn.fail(errors.New("broken pipe"))
	h.expectEvents(t, EventError, EventClose)
	waitFor(t, func() bool { return h.clock.Pending() == 1 })

	h.client.Disconnect()
	h.expectEvents(t, EventClose)
	if h.clock.Pending() != 0 {
		t.Fatalf("expected pending reconnect to be cancelled")
	}
	h.clock.Advance(time.Minute)
	if dialer.count() != 1 {
		t.Fatalf("stale timer revived client: dials=%d", dialer.count())
	}
	if h.client.Attempts() != 0 {
		t.Fatalf("expected attempts reset by Disconnect")
	}
}

func TestClientDisconnectDuringDialSuppressesLateResult(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{block: true}
	h := newHarness(t, dialer, 5)

	h.client.Connect()
	h.expectEvents(t, EventConnecting)
	waitFor(t, func() bool { return dialer.count() == 1 })

	h.client.Disconnect()
	h.expectEvents(t, EventClose)
	h.expectNoEvent(t, 50*time.Millisecond)
	if h.clock.Pending() != 0 || h.client.IsConnected() {
		t.Fatalf("cancelled dial must not schedule reconnect or connect")
	}
}

func TestClientConnectIsIdempotent(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.push(conn, nil)
	h := newHarness(t, dialer, 5)

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventOpen)
	h.client.Connect()
	h.expectNoEvent(t, 50*time.Millisecond)
	if dialer.count() != 1 {
		t.Fatalf("expected single dial, got %d", dialer.count())
	}
	h.client.Disconnect()
}

func TestClientWithGorillaServer(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"time_sec":10,"value":35}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"time_sec":11,"value":36.5}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	h := newHarnessWith(t, Options[domain.Sample]{
		Stream:               domain.StreamContractions,
		URL:                  "ws" + strings.TrimPrefix(server.URL, "http"),
		ReconnectInterval:    time.Hour,
		MaxReconnectAttempts: 1,
	})

	h.client.Connect()
	h.expectEvents(t, EventConnecting, EventOpen)
	got := h.waitMessages(t, 2)
	if got[0].Value != 35 || got[1].Value != 36.5 {
		t.Fatalf("unexpected samples %+v", got)
	}
	h.expectEvents(t, EventClose)
	if h.sawError(ErrTransport) {
		t.Fatalf("normal close must not be reported as transport error")
	}
	h.client.Disconnect()
}

func TestEventStatusMapping(t *testing.T) {
	t.Parallel()

	want := map[Event]domain.ConnectionStatus{
		EventConnecting: domain.StatusConnecting,
		EventOpen:       domain.StatusConnected,
		EventClose:      domain.StatusDisconnected,
		EventError:      domain.StatusError,
		EventExhausted:  domain.StatusError,
	}
	for event, status := range want {
		if got := event.Status(); got != status {
			t.Fatalf("%s.Status()=%q want %q", event, got, status)
		}
	}
}

func TestNewClientValidatesOptions(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Options[domain.Sample]{URL: "ws://x", OnMessage: func(domain.Sample) {}}); err == nil {
		t.Fatalf("expected missing decoder error")
	}
	if _, err := NewClient(Options[domain.Sample]{URL: "ws://x", Decode: domain.DecodeSample}); err == nil {
		t.Fatalf("expected missing handler error")
	}
	if _, err := NewClient(Options[domain.Sample]{Decode: domain.DecodeSample, OnMessage: func(domain.Sample) {}}); err == nil {
		t.Fatalf("expected missing url error")
	}
}

type harness struct {
	client   *Client[domain.Sample]
	clock    *clock.Manual
	recorder *countingRecorder
	events   chan Event
	messages chan domain.Sample

	mu     sync.Mutex
	errors []error
}

func newHarness(t *testing.T, dialer Dialer, maxAttempts int) *harness {
	t.Helper()
	return newHarnessWith(t, Options[domain.Sample]{
		Stream:               domain.StreamHeartRate,
		URL:                  "ws://monitor.test/ws/bpm",
		Dialer:               dialer,
		Clock:                clock.NewManual(time.Unix(1_700_000_000, 0)),
		ReconnectInterval:    3 * time.Second,
		MaxReconnectAttempts: maxAttempts,
	})
}

func newHarnessWith(t *testing.T, opts Options[domain.Sample]) *harness {
	t.Helper()
	h := &harness{
		recorder: &countingRecorder{},
		events:   make(chan Event, 64),
		messages: make(chan domain.Sample, 64),
	}
	if manual, ok := opts.Clock.(*clock.Manual); ok {
		h.clock = manual
	}
	opts.Decode = domain.DecodeSample
	opts.OnMessage = func(sample domain.Sample) { h.messages <- sample }
	opts.OnEvent = func(event Event) { h.events <- event }
	opts.OnError = func(err error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.errors = append(h.errors, err)
	}
	opts.Recorder = h.recorder
	opts.Logger = logging.Discard()
	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	h.client = client
	return h
}

func (h *harness) expectEvents(t *testing.T, want ...Event) {
	t.Helper()
	for i, event := range want {
		select {
		case got := <-h.events:
			if got != event {
				t.Fatalf("event[%d]=%q want %q", i, got, event)
			}
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for event[%d]=%q", i, event)
		}
	}
}

func (h *harness) expectNoEvent(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case got := <-h.events:
		t.Fatalf("unexpected event %q", got)
	case <-time.After(window):
	}
}

func (h *harness) waitMessages(t *testing.T, n int) []domain.Sample {
	t.Helper()
	out := make([]domain.Sample, 0, n)
	for len(out) < n {
		select {
		case sample := <-h.messages:
			out = append(out, sample)
		case <-time.After(waitTimeout):
			t.Fatalf("timed out after %d/%d messages", len(out), n)
		}
	}
	return out
}

func (h *harness) sawError(target error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, err := range h.errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", waitTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	received int
	decode   int
	retries  int
}

func (r *countingRecorder) MessageReceived(domain.StreamKind) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()
}

func (r *countingRecorder) DecodeFailed(domain.StreamKind) {
	r.mu.Lock()
	r.decode++
	r.mu.Unlock()
}

func (r *countingRecorder) ReconnectScheduled(domain.StreamKind) {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
}

func (r *countingRecorder) decodeFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decode
}

func (r *countingRecorder) reconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries
}

type dialResult struct {
	conn Conn
	err  error
}

type fakeDialer struct {
	mu          sync.Mutex
	results     []dialResult
	fallbackErr error
	block       bool
	dials       int
}

func (d *fakeDialer) push(conn Conn, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{conn: conn, err: err})
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	if d.block {
		d.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if len(d.results) == 0 {
		err := d.fallbackErr
		d.mu.Unlock()
		if err == nil {
			err = errors.New("no scripted dial result")
		}
		return nil, err
	}
	next := d.results[0]
	d.results = d.results[1:]
	d.mu.Unlock()
	return next.conn, next.err
}

type frame struct {
	payload []byte
	err     error
}

type fakeConn struct {
	frames chan frame
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) send(payload string) {
	c.frames <- frame{payload: []byte(payload)}
}

func (c *fakeConn) fail(err error) {
	c.frames <- frame{err: err}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		if f.err != nil {
			return 0, nil, f.err
		}
		return websocket.TextMessage, f.payload, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
