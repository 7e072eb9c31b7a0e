package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/teleop-relay/metrics"
)

// Send keep-alive pings to idle peers with this period.
const defaultKeepAlive = 120 * time.Second

// Hub binds accepted connections to roles and runs one relay loop per
// connection.
type Hub struct {
	registry  *Registry
	log       *zap.Logger
	metrics   *metrics.Collector
	upgrader  websocket.Upgrader
	keepAlive time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	tasks    map[*task]struct{}
	stopping bool

	rttMu sync.RWMutex
	rtts  map[string]RoundTrip
}

// task is the handle of one running loop.
type task struct {
	peer   *Peer
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithMetrics records relay activity in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithKeepAlive sets the ping period for idle peers; zero disables pings.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Hub) { h.keepAlive = d }
}

// NewHub creates a hub with an empty registry.
func NewHub(opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:  NewRegistry(),
		log:       zap.NewNop(),
		keepAlive: defaultKeepAlive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// Robots and headsets connect from arbitrary origins
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[*task]struct{}),
		rtts:   make(map[string]RoundTrip),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry exposes the hub's endpoint registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ServeWS upgrades the request, binds the connection to role (evicting any
// previous occupant) and starts its loop.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, role Role) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if h.isStopping() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed",
			zap.String("role", role.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}

	peer := newPeer(conn, role, r.RemoteAddr)
	if prev := h.registry.Bind(role, peer); prev != nil {
		h.metrics.Evicted(role.String())
		h.log.Info("connection replaced",
			zap.String("role", role.String()),
			zap.Stringer("evicted", prev.ID),
			zap.Stringer("peer", peer.ID))
	}
	h.metrics.ConnectionOpened(role.String())

	h.launch(peer)
}

func (h *Hub) launch(peer *Peer) {
	ctx, cancel := context.WithCancel(h.ctx)
	t := &task{peer: peer, cancel: cancel, done: make(chan struct{})}

	h.mu.Lock()
	if h.stopping {
		h.mu.Unlock()
		cancel()
		h.finish(peer)
		return
	}
	h.tasks[t] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(t.done)
		defer func() {
			h.mu.Lock()
			delete(h.tasks, t)
			h.mu.Unlock()
			cancel()
		}()
		h.serve(ctx, peer)
	}()
}

// serve runs the relay loop for peer and cleans up after it.
func (h *Hub) serve(ctx context.Context, peer *Peer) {
	role := peer.Role
	label := role.Label()
	kind := "bridge"
	if role.IsPing() {
		kind = "ping bridge"
	}
	log := h.log.With(zap.String("label", label), zap.Stringer("peer", peer.ID))
	log.Info(kind + " started")

	stop := context.AfterFunc(ctx, func() {
		peer.Close(websocket.CloseGoingAway, "server shutting down")
	})
	defer stop()

	loopDone := make(chan struct{})
	defer close(loopDone)
	if h.keepAlive > 0 {
		go h.keepAliveLoop(peer, loopDone)
	}

	b := newBridge(peer, func() *Peer { return h.registry.Resolve(role.Peer()) }, label, log, h.metrics)
	if role.IsPing() {
		b.inspect = h.pingInspector(label, log)
	}

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("relay panic: %v", rec)
			}
		}()
		err = b.run()
	}()

	if !isNormalClose(err) && peer.Open() {
		log.Warn(kind+" error", zap.Error(err))
	}
	h.finish(peer)
	log.Info(kind + " stopped")
}

// finish closes peer and clears its slot if it still owns it.
func (h *Hub) finish(peer *Peer) {
	peer.Close(websocket.CloseNormalClosure, "closing")
	h.registry.Clear(peer.Role, peer)
	h.metrics.ConnectionClosed(peer.Role.String())
}

func (h *Hub) keepAliveLoop(peer *Peer, done <-chan struct{}) {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := peer.ping(); err != nil {
				return
			}
		}
	}
}

// pingInspector returns the ping/pong observer of one ping bridge loop. The
// timer belongs to that loop alone.
func (h *Hub) pingInspector(label string, log *zap.Logger) Inspector {
	timer := NewPingTimer()
	return func(_ int, payload []byte) {
		token, rtt, ok := timer.Observe(payload)
		switch {
		case ok:
			h.recordRoundTrip(label, rtt)
			log.Info("pong", zap.Duration("rtt", rtt))
		case token == TokenPing:
			log.Debug("ping")
		}
	}
}

func (h *Hub) recordRoundTrip(label string, rtt time.Duration) {
	h.metrics.RoundTrip(label, rtt)
	h.rttMu.Lock()
	h.rtts[label] = RoundTrip{Label: label, RTT: rtt, MeasuredAt: time.Now()}
	h.rttMu.Unlock()
}

// Tasks returns the number of running loops.
func (h *Hub) Tasks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}

func (h *Hub) isStopping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopping
}

// Shutdown stops accepting connections, cancels every loop and waits for
// them to exit or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.stopping = true
	tasks := make([]*task, 0, len(h.tasks))
	for t := range h.tasks {
		tasks = append(tasks, t)
	}
	h.mu.Unlock()

	h.log.Info("hub shutting down", zap.Int("tasks", len(tasks)))
	for _, t := range tasks {
		t.cancel()
	}
	defer h.cancel()

	for i, t := range tasks {
		select {
		case <-t.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d relay loops: %w", len(tasks)-i, ctx.Err())
		}
	}
	return nil
}

// RoundTrip is the latest RTT measured by one ping bridge direction.
type RoundTrip struct {
	Label      string        `json:"label"`
	RTT        time.Duration `json:"-"`
	RTTMillis  float64       `json:"rtt_ms"`
	MeasuredAt time.Time     `json:"measured_at"`
}

// SlotStatus describes one registry slot.
type SlotStatus struct {
	Role       string     `json:"role"`
	Bound      bool       `json:"bound"`
	PeerID     string     `json:"peer_id,omitempty"`
	RemoteAddr string     `json:"remote_addr,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
}

// Status is a point-in-time view of the hub.
type Status struct {
	Slots      []SlotStatus `json:"slots"`
	Tasks      int          `json:"tasks"`
	RoundTrips []RoundTrip  `json:"round_trips"`
}

// Status reports slot occupancy, running loops and the latest RTTs.
func (h *Hub) Status() Status {
	bound := h.registry.Snapshot()
	st := Status{Tasks: h.Tasks(), RoundTrips: []RoundTrip{}}

	for _, r := range Roles() {
		s := SlotStatus{Role: r.String()}
		if p, ok := bound[r]; ok {
			since := p.Since
			s.Bound = true
			s.PeerID = p.ID.String()
			s.RemoteAddr = p.RemoteAddr
			s.Since = &since
		}
		st.Slots = append(st.Slots, s)
	}

	h.rttMu.RLock()
	for _, rt := range h.rtts {
		rt.RTTMillis = float64(rt.RTT) / float64(time.Millisecond)
		st.RoundTrips = append(st.RoundTrips, rt)
	}
	h.rttMu.RUnlock()
	sort.Slice(st.RoundTrips, func(i, j int) bool {
		return st.RoundTrips[i].Label < st.RoundTrips[j].Label
	})

	return st
}
