package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"hindsight/client/internal/controller"
	"hindsight/client/internal/net/proto"
	"hindsight/client/internal/telemetry"
)

var (
	// ErrInvalidURL is returned for session URLs without a ws or wss scheme.
	ErrInvalidURL = errors.New("invalid websocket url")
	// ErrConnected is returned when Connect is called on an open network.
	ErrConnected = errors.New("network already connected")
)

const (
	metricDialAttempts = "ws_dial_attempts_total"
	metricFramesRead   = "ws_frames_read_total"
)

// Config tunes dialing and frame writes.
type Config struct {
	Dialer         *websocket.Dialer
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	WriteTimeout   time.Duration
	// CloseTimeout bounds how long Leave waits for the read loop to stop.
	CloseTimeout time.Duration
	Logger       telemetry.Logger
	Metrics      telemetry.Metrics
}

// DefaultConfig mirrors the retry cadence used by the world bot.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    12,
		InitialBackoff: 180 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		WriteTimeout:   5 * time.Second,
		CloseTimeout:   2 * time.Second,
	}
}

// Network is a websocket implementation of controller.Network. It supports
// one session at a time.
type Network struct {
	cfg     Config
	logger  telemetry.Logger
	metrics telemetry.Metrics

	mu      sync.Mutex
	conn    *websocket.Conn
	session controller.SessionConfig
	leaving bool
	done    chan struct{}
}

func New(cfg Config) *Network {
	defaults := DefaultConfig()
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaults.CloseTimeout
	}
	n := &Network{cfg: cfg, logger: cfg.Logger, metrics: cfg.Metrics}
	if n.logger == nil {
		n.logger = telemetry.LoggerFunc(nil)
	}
	if n.metrics == nil {
		n.metrics = telemetry.NopMetrics()
	}
	return n
}

// Connect dials the session URL, retrying transient failures, sends the join
// request and starts delivering frames to handler.
func (n *Network) Connect(ctx context.Context, handler controller.Handler, session controller.SessionConfig) error {
	if !strings.HasPrefix(session.URL, "ws://") && !strings.HasPrefix(session.URL, "wss://") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, session.URL)
	}
	n.mu.Lock()
	if n.conn != nil {
		n.mu.Unlock()
		return ErrConnected
	}
	n.mu.Unlock()

	conn, err := n.dial(ctx, session.URL)
	if err != nil {
		return err
	}
	if err := n.write(conn, proto.NewJoin(session.User, session.Auth, session.Game)); err != nil {
		conn.Close()
		return fmt.Errorf("send join: %w", err)
	}

	done := make(chan struct{})
	n.mu.Lock()
	n.conn = conn
	n.session = session
	n.leaving = false
	n.done = done
	n.mu.Unlock()

	go n.readLoop(conn, handler, done)
	return nil
}

func (n *Network) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.cfg.InitialBackoff
	policy.MaxInterval = n.cfg.MaxBackoff

	operation := func() (*websocket.Conn, error) {
		n.metrics.Add(metricDialAttempts, 1)
		conn, resp, err := n.cfg.Dialer.DialContext(ctx, url, nil)
		if err == nil {
			return conn, nil
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, backoff.Permanent(fmt.Errorf("dial %s: %s: %w", url, resp.Status, err))
		}
		return nil, err
	}
	conn, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(n.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			n.logger.Printf("[ws] dial %s failed: %v (retry in %s)", url, err, wait)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

func (n *Network) readLoop(conn *websocket.Conn, handler controller.Handler, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.mu.Lock()
			leaving := n.leaving
			n.mu.Unlock()
			if !leaving && handler != nil {
				handler.HandleClose(err)
			}
			return
		}
		n.metrics.Add(metricFramesRead, 1)
		if handler != nil {
			handler.HandleMessage(data)
		}
	}
}

func (n *Network) write(conn *websocket.Conn, msg proto.ClientMessage) error {
	data, err := proto.EncodeClientMessage(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(n.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Leave sends the leave notice and closes the connection. No frames are
// delivered once Leave returns.
func (n *Network) Leave() error {
	n.mu.Lock()
	conn := n.conn
	done := n.done
	session := n.session
	if conn == nil {
		n.mu.Unlock()
		return nil
	}
	n.leaving = true
	n.conn = nil
	n.mu.Unlock()

	err := n.write(conn, proto.NewLeave(session.User, session.Game))
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave")
	conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(n.cfg.WriteTimeout))
	if closeErr := conn.Close(); err == nil {
		err = closeErr
	}

	select {
	case <-done:
	case <-time.After(n.cfg.CloseTimeout):
		n.logger.Printf("[ws] read loop did not stop within %s", n.cfg.CloseTimeout)
	}
	if err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	return nil
}

// Connected reports whether a session is open.
func (n *Network) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil
}
