package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second

	// defaultReadLimit caps one frame at the socket; frames between MaxPayload and this cap are dropped by the client without closing.
	defaultReadLimit = 16 << 20
)

// WebsocketDialer opens gorilla websocket connections.
// Params: underlying dialer and frame read limit.
// Returns: Dialer implementation used in production.
type WebsocketDialer struct {
	dialer    *websocket.Dialer
	readLimit int64
}

// NewWebsocketDialer wraps dialer; nil uses proxy-aware defaults.
// Params: optional gorilla dialer.
// Returns: dialer with bounded handshake and read size.
func NewWebsocketDialer(dialer *websocket.Dialer) *WebsocketDialer {
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	return &WebsocketDialer{dialer: dialer, readLimit: defaultReadLimit}
}

// Dial performs websocket handshake.
// Params: context bounding the handshake and ws/wss URL.
// Returns: open connection or handshake error with HTTP status when known.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			return nil, fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return conn, nil
}
