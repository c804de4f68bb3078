// Package live serves the websocket over which mobile clients stream
// telemetry and receive a behaviour label for every complete window.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jengzang/drivesense-backend/internal/analysis/features"
	"github.com/jengzang/drivesense-backend/internal/analysis/window"
	"github.com/jengzang/drivesense-backend/internal/auth"
	"github.com/jengzang/drivesense-backend/internal/metrics"
	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
)

// WindowClassifier labels one feature vector
type WindowClassifier interface {
	Classify(ctx context.Context, vec features.FeatureVector) (models.Label, error)
	WindowLength() int
}

// Runner executes model calls off the connection goroutine
type Runner interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Config tunes connection behaviour
type Config struct {
	Policy       window.Policy
	IdleTimeout  time.Duration // 0 keeps idle connections open forever
	WriteTimeout time.Duration
	ReadLimit    int64 // max inbound frame size in bytes
}

func (c *Config) setDefaults() {
	if c.Policy == "" {
		c.Policy = window.PolicyReplace
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4 << 20
	}
}

// Deps are the collaborators of the handler
type Deps struct {
	Classifier WindowClassifier
	Pool       Runner
	Sessions   repository.SessionStore
	Behaviors  repository.BehaviorStore
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Handler upgrades authenticated requests and runs one connection loop
// per client.
type Handler struct {
	deps     Deps
	cfg      Config
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHandler creates the live endpoint handler
func NewHandler(deps Deps, cfg Config) *Handler {
	cfg.setDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	return &Handler{
		deps: deps,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// Mobile clients send no Origin; browsers are covered by CORS
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP expects the auth middleware to have put the user in the
// request context.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.deps.Logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	if !h.track(ws) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		ws.Close()
		return
	}
	defer h.untrack(ws)

	h.deps.Metrics.LiveConnections.Inc()
	defer h.deps.Metrics.LiveConnections.Dec()

	ws.SetReadLimit(h.cfg.ReadLimit)

	c := &connection{
		h:      h,
		ws:     ws,
		userID: user.ID,
		buffer: window.NewBuffer(h.cfg.Policy, h.deps.Classifier.WindowLength()),
		logger: h.deps.Logger.With("user_id", user.ID, "remote", r.RemoteAddr),
	}
	c.serve(r.Context())
}

func (h *Handler) track(ws *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[ws] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, ws)
	h.mu.Unlock()
	ws.Close()
	h.wg.Done()
}

// Close sends a going-away close frame to every open connection and
// waits for their loops to exit or ctx to expire. Frames are written in
// parallel outside the lock, each bounded by a second or ctx's deadline.
func (h *Handler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for ws := range h.conns {
		conns = append(conns, ws)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for _, ws := range conns {
		go func() {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				deadline)
			// Unblocks the pending read
			ws.Close()
		}()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenConnections returns the number of live connections
func (h *Handler) OpenConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
