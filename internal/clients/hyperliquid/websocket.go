package hyperliquid

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/hynous/hynous-data/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second
	// recvTimeout bounds a single read; expiry is surfaced separately
	// from real errors so the caller's liveness check decides what to do.
	recvTimeout = 5 * time.Second
)

// WSConn is a single WebSocket connection to the exchange feed. It does
// not reconnect: the trade stream supervisor owns that loop, dialing a
// fresh WSConn after each failure.
type WSConn struct {
	conn       *websocket.Conn
	httpClient *http.Client
	log        zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// The exchange fronts its WS endpoint with a proxy that negotiates
// HTTP/2 via TLS ALPN, but WebSocket requires HTTP/1.1 for the upgrade
// handshake.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// DialWS connects to the exchange WebSocket endpoint.
func DialWS(ctx context.Context, url string, log zerolog.Logger) (*WSConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	httpClient := createHTTP1Client()
	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, domain.Errorf(domain.ErrTransient, "failed to dial WebSocket")
	}

	// The trades channel for every instrument adds up; the default read
	// limit is far too small for a busy frame.
	conn.SetReadLimit(1 << 22)

	return &WSConn{
		conn:       conn,
		httpClient: httpClient,
		log:        log.With().Str("component", "hyperliquid-ws").Logger(),
	}, nil
}

// Subscribe sends one subscription message, e.g. ("trades", "BTC") or
// ("l2Book", "ETH").
func (w *WSConn) Subscribe(ctx context.Context, subType, coin string) error {
	msg := map[string]interface{}{
		"method": "subscribe",
		"subscription": map[string]string{
			"type": subType,
			"coin": coin,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := w.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return domain.Errorf(domain.ErrTransient, "failed to send subscribe for %s/%s", subType, coin)
	}

	return nil
}

// ReadTrades reads one frame and, when it belongs to the trades channel,
// returns the decoded trades. A read deadline expiry returns (nil, true,
// nil): no data, connection still usable. Any other error means the
// connection is dead.
func (w *WSConn) ReadTrades(ctx context.Context) (trades []WSTrade, timedOut bool, err error) {
	readCtx, cancel := context.WithTimeout(ctx, recvTimeout)
	defer cancel()

	msgType, data, err := w.conn.Read(readCtx)
	if err != nil {
		// A deadline expiry on an otherwise healthy connection is not an
		// error; the caller's liveness deadline decides when to give up.
		if readCtx.Err() != nil && ctx.Err() == nil {
			return nil, true, nil
		}

		closeStatus := websocket.CloseStatus(err)
		if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
			return nil, false, domain.Errorf(domain.ErrTransient, "WebSocket closed (%d)", int(closeStatus))
		}
		return nil, false, domain.Errorf(domain.ErrTransient, "WebSocket read failed")
	}

	if msgType != websocket.MessageText {
		return nil, false, nil
	}

	var msg wireWSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		w.log.Debug().Err(err).Msg("Dropping unparseable WebSocket frame")
		return nil, false, nil
	}

	if msg.Channel != "trades" {
		return nil, false, nil
	}

	if err := json.Unmarshal(msg.Data, &trades); err != nil {
		w.log.Debug().Err(err).Msg("Dropping malformed trades payload")
		return nil, false, nil
	}

	return trades, false, nil
}

// Close closes the connection. Safe to call more than once.
func (w *WSConn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.conn.Close(websocket.StatusNormalClosure, "")
	w.httpClient.CloseIdleConnections()
	if err != nil {
		return fmt.Errorf("error closing WebSocket: %w", err)
	}
	return nil
}
