// Package host launches activities and services on behalf of the router.
//
// Remote forwards launches as JSON commands over a websocket to a host shell
// and waits for the matching response. Recorder keeps launches in memory for
// tests and dry runs.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/routerx/internal/auth"
	"github.com/rickgao/routerx/route"
)

// Remote is a Host backed by a websocket connection to a host shell.
type Remote struct {
	cfg    Config
	creds  *auth.Credentials
	logger *slog.Logger

	conn *websocket.Conn

	errors chan error
	done   chan struct{}
	lost   chan struct{} // closed when the read loop exits

	// Write serialization
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uuid.UUID]chan Response

	// State
	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewRemote creates a Remote host. creds may be nil for an unauthenticated shell.
func NewRemote(cfg Config, creds *auth.Credentials, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}

	return &Remote{
		cfg:     cfg.withDefaults(),
		creds:   creds,
		logger:  logger,
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
		lost:    make(chan struct{}),
		pending: make(map[uuid.UUID]chan Response),
	}
}

// Connect dials the host shell, signing the handshake when credentials are set.
func (h *Remote) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrAlreadyClosed
	}
	if h.conn != nil {
		h.mu.Unlock()
		return fmt.Errorf("host %s: already connected", h.cfg.URL)
	}
	h.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if h.creds != nil {
		signed, err := h.creds.SignHost()
		if err != nil {
			return fmt.Errorf("sign handshake: %w", err)
		}
		for k, v := range signed {
			header[k] = v
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, h.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial host %s: %w", h.cfg.URL, err)
	}

	h.mu.Lock()
	h.conn = conn
	h.connected = true
	h.lastPingAt = time.Now()
	h.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		h.touch()
		h.writeMu.Lock()
		defer h.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		h.touch()
		return nil
	})

	go h.readLoop()
	go h.heartbeatLoop()

	h.logger.Info("host connected", "url", h.cfg.URL)
	return nil
}

func (h *Remote) touch() {
	h.mu.Lock()
	h.lastPingAt = time.Now()
	h.mu.Unlock()
}

// Close sends a close frame and closes the connection.
func (h *Remote) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.connected = false
	conn := h.conn
	h.mu.Unlock()

	close(h.done)

	if conn == nil {
		return nil
	}
	h.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	h.writeMu.Unlock()
	return conn.Close()
}

// IsConnected returns the current connection state.
func (h *Remote) IsConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// Errors returns connection errors: read failures and stale heartbeats.
func (h *Remote) Errors() <-chan error {
	return h.errors
}

// Launch asks the shell to start the target of req.
func (h *Remote) Launch(ctx context.Context, req *route.Request) error {
	return h.send(ctx, CmdLaunch, launchParams(req, 0))
}

// LaunchForResult asks the shell to start the target of req and report back
// under requestCode.
func (h *Remote) LaunchForResult(ctx context.Context, req *route.Request, requestCode int) error {
	return h.send(ctx, CmdLaunchForResult, launchParams(req, requestCode))
}

func launchParams(req *route.Request, requestCode int) LaunchParams {
	p := LaunchParams{
		RequestID:   req.ID.String(),
		Path:        req.Path,
		Group:       req.Group,
		Target:      req.Target,
		Kind:        req.Kind.String(),
		Action:      req.Action,
		RequestCode: requestCode,
	}
	if req.Flags != route.Unset {
		p.Flags = req.Flags
	}
	if len(req.Params) > 0 {
		p.Params = req.Params
	}
	return p
}

// send writes one command and waits for its response.
func (h *Remote) send(ctx context.Context, cmd string, params LaunchParams) error {
	h.mu.RLock()
	conn, connected := h.conn, h.connected
	h.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	c := Command{ID: uuid.New(), Cmd: cmd, Params: params}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode %s command for %s: %w", cmd, params.Path, err)
	}

	ch := make(chan Response, 1)
	h.pendingMu.Lock()
	h.pending[c.ID] = ch
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, c.ID)
		h.pendingMu.Unlock()
	}()

	h.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	h.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s command: %w", cmd, err)
	}

	timer := time.NewTimer(h.cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return responseError(resp)
	case <-timer.C:
		return fmt.Errorf("%w: %s %s after %s", ErrTimeout, cmd, params.Path, h.cfg.ResponseTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-h.lost:
		return ErrNotConnected
	case <-h.done:
		return ErrAlreadyClosed
	}
}

func responseError(resp Response) error {
	switch resp.Type {
	case TypeOK:
		return nil
	case TypeError:
		var msg ErrorMsg
		if err := json.Unmarshal(resp.Msg, &msg); err != nil {
			return fmt.Errorf("%w: undecodable error: %s", ErrRejected, string(resp.Msg))
		}
		return fmt.Errorf("%w: %s: %s", ErrRejected, msg.Code, msg.Message)
	default:
		return fmt.Errorf("%w: unexpected response type %q", ErrRejected, resp.Type)
	}
}

// readLoop routes responses to the commands waiting for them.
func (h *Remote) readLoop() {
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			// Mark the connection lost before reporting so callers reacting
			// to the error see a disconnected host.
			h.mu.Lock()
			h.connected = false
			h.mu.Unlock()
			close(h.lost)

			select {
			case <-h.done:
			default:
				h.report(err)
			}
			return
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			h.logger.Warn("dropping undecodable host message", "error", err)
			continue
		}

		h.pendingMu.Lock()
		ch, ok := h.pending[resp.ID]
		h.pendingMu.Unlock()
		if !ok {
			h.logger.Debug("response for unknown command", "id", resp.ID)
			continue
		}
		select {
		case ch <- resp:
		default:
			h.logger.Debug("duplicate response dropped", "id", resp.ID)
		}
	}
}

func (h *Remote) report(err error) {
	select {
	case h.errors <- err:
	default:
	}
}

// heartbeatLoop pings the shell and detects stale connections.
func (h *Remote) heartbeatLoop() {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-h.lost:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			err := h.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(h.cfg.WriteTimeout))
			h.writeMu.Unlock()
			if err != nil {
				h.logger.Debug("failed to send ping", "error", err)
			}

			h.mu.RLock()
			lastPing := h.lastPingAt
			h.mu.RUnlock()

			if time.Since(lastPing) > h.cfg.PingTimeout {
				h.logger.Warn("no ping received, host connection stale",
					"last_ping", lastPing,
					"timeout", h.cfg.PingTimeout,
				)
				h.report(ErrStaleConnection)
				return
			}
		}
	}
}
