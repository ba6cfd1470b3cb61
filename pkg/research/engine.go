// Package research drives one research submission at a time: it opens the
// backend stream, folds every event into the session state and reports
// the outcome.
package research

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-console/pkg/client"
	"github.com/mikeboe/research-console/pkg/session"
	"github.com/mikeboe/research-console/pkg/stream"
)

var (
	// ErrBusy is returned when a submission starts while another stream
	// is still open.
	ErrBusy = errors.New("a research session is already running")

	ErrEmptyTopic = errors.New("topic cannot be empty")
)

// BackendError is the outcome of a stream that ended with an error event.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// Streamer opens a research stream. *client.Client satisfies it.
type Streamer interface {
	Research(ctx context.Context, req client.ResearchRequest, fn func(stream.Event) error) (stream.Result, error)
}

type Engine struct {
	Client Streamer
	Logger *slog.Logger

	// OnStateUpdate receives every new state, in order, from the
	// goroutine that called Run or Reset.
	OnStateUpdate func(state session.State)
	// OnNotify receives user-facing notifications.
	OnNotify func(n session.Notification)

	Now   func() time.Time
	NewID func() string

	mu      sync.Mutex
	state   session.State
	running bool
}

func NewEngine(c Streamer) *Engine {
	return &Engine{
		Client: c,
		Logger: slog.Default(),
		Now:    time.Now,
		NewID:  func() string { return uuid.New().String() },
		state:  session.New(),
	}
}

// State returns the current session state.
func (e *Engine) State() session.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Running reports whether a stream is open.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Reset discards the current session and starts an empty one.
func (e *Engine) Reset() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrBusy
	}
	e.state = session.New()
	st := e.state
	e.mu.Unlock()

	e.publish(st, nil)
	return nil
}

// Run submits topic with model and consumes the stream to its end. The
// returned state is never in progress.
func (e *Engine) Run(ctx context.Context, topic, model string) (session.State, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return e.State(), ErrEmptyTopic
	}

	e.mu.Lock()
	if e.running {
		st := e.state
		e.mu.Unlock()
		return st, ErrBusy
	}
	e.running = true
	e.state = session.Start(e.NewID(), topic, model, e.Now())
	st := e.state
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logger := e.logger().With("session", st.ID)
	logger.Info("Starting research", "topic", topic, "model", model)
	e.publish(st, nil)

	var backendMsg string
	_, err := e.Client.Research(ctx, client.ResearchRequest{Topic: topic, Model: model}, func(ev stream.Event) error {
		e.transition(func(s session.State) (session.State, *session.Notification) {
			return session.Apply(s, ev, e.Now())
		})
		if ev.Type == stream.TypeError {
			backendMsg = ev.Message
		}
		if ev.Terminal() {
			return stream.ErrStop
		}
		return nil
	})

	if err != nil {
		logger.Error("Research failed", "error", err)
		e.transition(func(s session.State) (session.State, *session.Notification) {
			return session.Fail(s, err.Error(), e.Now())
		})
		return e.State(), err
	}

	final := e.State()
	switch final.Status {
	case session.StatusResearching:
		logger.Warn("Stream closed without a terminal event")
		e.transition(func(s session.State) (session.State, *session.Notification) {
			return session.Interrupt(s), nil
		})
	case session.StatusFailed:
		logger.Error("Backend reported an error", "message", backendMsg)
		return final, &BackendError{Message: backendMsg}
	case session.StatusComplete:
		logger.Info("Research complete", "queries", len(final.Queries), "sources", len(final.Sources), "report_length", len(final.ReportText()))
	}

	return e.State(), nil
}

func (e *Engine) transition(fn func(session.State) (session.State, *session.Notification)) {
	e.mu.Lock()
	next, note := fn(e.state)
	e.state = next
	e.mu.Unlock()

	e.publish(next, note)
}

func (e *Engine) publish(st session.State, note *session.Notification) {
	if e.OnStateUpdate != nil {
		e.OnStateUpdate(st)
	}
	if note != nil && e.OnNotify != nil {
		e.OnNotify(*note)
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
