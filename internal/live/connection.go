package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jengzang/drivesense-backend/internal/analysis/features"
	"github.com/jengzang/drivesense-backend/internal/analysis/window"
	"github.com/jengzang/drivesense-backend/internal/metrics"
	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
)

// State of a connection loop
type State int

const (
	StateAwaitingMessage State = iota
	StateWindowReady
	StateIgnored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingMessage:
		return "AWAITING_MESSAGE"
	case StateWindowReady:
		return "WINDOW_READY"
	case StateIgnored:
		return "IGNORED"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type connection struct {
	h      *Handler
	ws     *websocket.Conn
	userID string
	buffer *window.Buffer
	logger *slog.Logger

	state     State
	sessionID string // session of the buffered samples
}

func (c *connection) serve(ctx context.Context) {
	c.logger.Debug("live connection opened")
	defer func() {
		c.state = StateClosed
		c.logger.Debug("live connection closed")
	}()

	for {
		c.state = StateAwaitingMessage
		if idle := c.h.cfg.IdleTimeout; idle > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(idle))
		}

		frameType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if err := c.handleMessage(ctx, frameType, data); err != nil {
			c.logger.Warn("live connection write failed", "error", err)
			return
		}
	}
}

// handleMessage returns an error only when the connection must close
func (c *connection) handleMessage(ctx context.Context, frameType int, data []byte) error {
	m := c.h.deps.Metrics

	msg, err := Decode(frameType, data)
	if err != nil {
		c.state = StateIgnored
		m.LiveMessages.WithLabelValues(metrics.OutcomeIgnored).Inc()
		c.logger.Debug("message ignored", "reason", err)
		return nil
	}

	if !c.admit(ctx, msg.SessionID) {
		c.state = StateIgnored
		m.LiveMessages.WithLabelValues(metrics.OutcomeIgnored).Inc()
		return nil
	}

	if msg.SessionID != c.sessionID {
		c.buffer.Reset()
		c.sessionID = msg.SessionID
	}
	c.buffer.Push(msg.Samples...)

	var ready []window.Window
	for {
		w, ok := c.buffer.DrainIfReady()
		if !ok {
			break
		}
		ready = append(ready, w)
	}
	windows := len(ready)

	if c.h.cfg.Policy == window.PolicyReplace && windows > 0 {
		if tail := c.buffer.Len(); tail > 0 {
			m.DroppedSamples.Add(float64(tail))
			c.logger.Debug("partial window discarded", "session_id", c.sessionID, "samples", tail)
			c.buffer.Reset()
		}
	}

	for _, w := range ready {
		c.state = StateWindowReady
		if err := c.processWindow(ctx, frameType, w); err != nil {
			return err
		}
	}

	switch {
	case windows > 0:
		m.LiveMessages.WithLabelValues(metrics.OutcomeWindow).Inc()
	case c.buffer.Len() > 0 && c.h.cfg.Policy == window.PolicyAccumulate:
		m.LiveMessages.WithLabelValues(metrics.OutcomeBuffered).Inc()
	default:
		c.state = StateIgnored
		m.LiveMessages.WithLabelValues(metrics.OutcomeIgnored).Inc()
		c.logger.Debug("message ignored", "reason", "short payload", "samples", len(msg.Samples))
	}
	return nil
}

// admit reports whether the session exists, belongs to the connection's
// user and is still open. Looked up per message since a session may be
// stopped over HTTP while the socket stays open.
func (c *connection) admit(ctx context.Context, sessionID string) bool {
	s, err := c.h.deps.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.logger.Warn("session lookup failed", "session_id", sessionID, "error", err)
		} else {
			c.logger.Debug("message ignored", "reason", "unknown session", "session_id", sessionID)
		}
		return false
	}
	if s.UserID != c.userID {
		c.logger.Debug("message ignored", "reason", "foreign session", "session_id", sessionID)
		return false
	}
	if s.IsClosed() {
		c.logger.Debug("message ignored", "reason", "session stopped", "session_id", sessionID)
		return false
	}
	return true
}

// processWindow classifies, persists and replies. Inference and storage
// failures drop the window; only a failed write is returned.
func (c *connection) processWindow(ctx context.Context, frameType int, w window.Window) error {
	deps := c.h.deps
	logger := c.logger.With("session_id", c.sessionID)

	vec, err := features.Extract(w)
	if err != nil {
		logger.Error("feature extraction failed", "error", err)
		return nil
	}

	var label models.Label
	start := time.Now()
	err = deps.Pool.Do(ctx, func(ctx context.Context) error {
		var err error
		label, err = deps.Classifier.Classify(ctx, vec)
		return err
	})
	deps.Metrics.InferenceLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		deps.Metrics.InferenceFailures.Inc()
		logger.Warn("window classification failed", "error", err)
		return nil
	}

	records := make([]models.BehaviorRecord, len(w))
	for i, s := range w {
		records[i] = models.NewBehaviorRecord(c.sessionID, s, label)
	}
	if err := deps.Behaviors.InsertBatch(ctx, records); err != nil {
		deps.Metrics.PersistFailures.Inc()
		logger.Error("failed to persist window", "error", err, "records", len(records))
		return nil
	}
	deps.Metrics.RecordsPersisted.Add(float64(len(records)))
	deps.Metrics.WindowsClassified.WithLabelValues(string(label)).Inc()

	reply, err := Encode(frameType, Prediction{Type: TypePrediction, Label: label})
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(frameType, reply); err != nil {
		return fmt.Errorf("write prediction: %w", err)
	}
	logger.Debug("window classified", "label", label, "samples", len(w))
	return nil
}

func (c *connection) logReadError(err error) {
	var netErr net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debug("client closed connection")
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Info("closing idle live connection", "idle_timeout", c.h.cfg.IdleTimeout)
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeds read limit", "limit", c.h.cfg.ReadLimit)
	default:
		c.logger.Debug("live connection read ended", "error", err)
	}
}
