package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wricardo/teleop-relay/config"
)

const (
	writeWait = 10 * time.Second
	// How long to wait for the hub to answer our close frame.
	closeWait = 5 * time.Second
)

// ErrQuit is returned by Link.Run once the quit message went out and the
// link was closed.
var ErrQuit = errors.New("link closed after quit")

// State is the lifecycle of a Link.
type State int32

const (
	StateMain State = iota
	StateQuitting
	StateQuit
)

func (s State) String() string {
	switch s {
	case StateMain:
		return "main"
	case StateQuitting:
		return "quitting"
	case StateQuit:
		return "quit"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Link keeps a connection to the hub's controller endpoint alive and streams
// the latest staged message over it.
type Link struct {
	cfg     config.Client
	log     *zap.Logger
	probe   *http.Client
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	state atomic.Int32

	mu      sync.Mutex
	pending Message

	done     chan struct{}
	doneOnce sync.Once
}

// NewLink creates a link for cfg. Zero durations in cfg get defaults.
func NewLink(cfg config.Client, logger *zap.Logger) *Link {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Link{
		cfg:     cfg,
		log:     logger,
		probe:   &http.Client{Timeout: cfg.ProbeTimeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.ProbeTimeout, Proxy: http.ProxyFromEnvironment},
		limiter: rate.NewLimiter(rate.Every(cfg.ProbeInterval), 1),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	return State(l.state.Load())
}

// Done is closed when Run returns.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Stage replaces the pending message; the send loop always sends the most
// recent one. Staging a QuitMessage moves the link to StateQuitting, after
// which other messages are ignored.
func (l *Link) Stage(m Message) {
	if m == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, quit := m.(QuitMessage); quit {
		l.state.CompareAndSwap(int32(StateMain), int32(StateQuitting))
		l.pending = m
		return
	}
	if l.State() != StateMain {
		return
	}
	l.pending = m
}

// Quit stages a QuitMessage.
func (l *Link) Quit() {
	l.Stage(QuitMessage{})
}

// Pending returns the message the next send tick will carry.
func (l *Link) Pending() Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Run probes the hub, connects, and keeps sending until the quit handshake
// completes (ErrQuit) or ctx ends. Lost links are re-established.
func (l *Link) Run(ctx context.Context) error {
	defer l.doneOnce.Do(func() { close(l.done) })

	for l.State() != StateQuit {
		if err := l.waitForHub(ctx); err != nil {
			return err
		}

		err := l.session(ctx)
		switch {
		case errors.Is(err, ErrQuit):
			return ErrQuit
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			l.log.Warn("link lost", zap.Error(err))
		default:
			l.log.Info("link closed by hub")
		}
	}
	return ErrQuit
}

// waitForHub polls the liveness probe until it succeeds. Failures are
// expected while the hub is down and are not logged.
func (l *Link) waitForHub(ctx context.Context) error {
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if l.healthy(ctx) {
			return nil
		}
	}
}

func (l *Link) healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.HealthURL(), nil)
	if err != nil {
		return false
	}
	resp, err := l.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// session runs one connection until it drops, times out, or quits.
func (l *Link) session(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.SessionTimeout)
	defer cancel()

	url := l.cfg.LinkURL()
	conn, _, err := l.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	defer conn.Close()
	l.log.Info("link established", zap.String("url", url))

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// The hub may relay robot traffic back to us; it is drained and dropped.
	// Reading also answers pings and notices the close frame.
	readDone := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				readDone <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(l.cfg.SendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("session ended: %w", ctx.Err())
		case err := <-readDone:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading from hub: %w", err)
		case <-ticker.C:
			msg := l.Pending()
			if msg == nil {
				continue
			}
			data, err := Encode(msg)
			if err != nil {
				l.log.Error("dropping message", zap.Error(err))
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("sending %s: %w", msg.Type(), err)
			}
			if _, quit := msg.(QuitMessage); quit {
				return l.closeHandshake(conn, readDone)
			}
		}
	}
}

// closeHandshake sends a close frame and waits for the hub's reply. The
// link is terminal afterwards whether or not the reply arrives.
func (l *Link) closeHandshake(conn *websocket.Conn, readDone <-chan error) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "operator quit")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		l.log.Debug("close frame not sent", zap.Error(err))
	} else {
		select {
		case <-readDone:
		case <-time.After(closeWait):
			l.log.Debug("hub did not answer close")
		}
	}

	l.state.Store(int32(StateQuit))
	l.log.Info("link closed", zap.String("reason", "quit"))
	return ErrQuit
}
