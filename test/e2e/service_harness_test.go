package e2e

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ctgmonitor/internal/app"
	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/config"

	"github.com/gorilla/websocket"
)

// newServiceFromConfig writes TOML into a temp file and builds Service from it.
// Params: test handle and config body.
// Returns: initialized service instance.
func newServiceFromConfig(t *testing.T, body string) *app.Service {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	source, err := config.FromCLI(path, "")
	if err != nil {
		t.Fatalf("config source: %v", err)
	}
	service, err := app.NewService(source, clock.RealClock{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

// runService starts service in background with cancellable context.
// Params: test handle and initialized service.
// Returns: cancel callback and done channel with Run result.
func runService(t *testing.T, service *app.Service) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()
	return cancel, done
}

// waitReady waits for /readyz endpoint to return 200.
func waitReady(t *testing.T, port int) {
	t.Helper()
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitFor(t, 8*time.Second, func() bool {
		response, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	})
}

// waitServiceStop asserts service Run exits without error after cancellation.
func waitServiceStop(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case runErr := <-done:
		if runErr != nil {
			t.Fatalf("service run error: %v", runErr)
		}
	case <-time.After(8 * time.Second):
		t.Fatalf("service did not stop after cancel")
	}
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition")
}

// fakeMonitor serves the three CTG websocket endpoints with scripted payloads.
// Params: payload lists keyed by path suffix ("/ai", "/bpm", "/uc").
// Returns: running server whose connections stay open until Close.
type fakeMonitor struct {
	server *http.Server
	url    string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func startFakeMonitor(t *testing.T, port int, scripts map[string][]string) *fakeMonitor {
	t.Helper()

	fake := &fakeMonitor{url: fmt.Sprintf("ws://127.0.0.1:%d", port)}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	for path, payloads := range scripts {
		payloads := payloads
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			fake.mu.Lock()
			fake.conns = append(fake.conns, conn)
			fake.mu.Unlock()
			for _, payload := range payloads {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
					return
				}
			}
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
	}
	fake.server = &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: mux}
	go func() { _ = fake.server.ListenAndServe() }()
	waitFor(t, 5*time.Second, func() bool {
		response, err := http.Get("http://127.0.0.1:" + fmt.Sprint(port) + "/")
		if err != nil {
			return false
		}
		_ = response.Body.Close()
		return true
	})
	t.Cleanup(fake.Close)
	return fake
}

// Close drops live connections and stops the listener.
func (f *fakeMonitor) Close() {
	f.mu.Lock()
	for _, conn := range f.conns {
		_ = conn.Close()
	}
	f.conns = nil
	f.mu.Unlock()
	_ = f.server.Close()
}

func (f *fakeMonitor) endpoint(path string) string {
	return f.url + "/" + strings.TrimPrefix(path, "/")
}
