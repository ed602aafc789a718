// internal/gate/gate.go
// Package gate implements the human-in-the-loop pause mechanism. While
// the gate is not idle the controller must not advance the discussion on
// its own; resume happens only through a successful human submit.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"parley/internal/api"
	"parley/internal/session"
)

// State of the gate.
type State int

const (
	Idle State = iota
	Waiting
	Submitting
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Submitting:
		return "submitting"
	default:
		return "idle"
	}
}

var (
	// ErrNotWaiting is returned when Submit is called while the gate is
	// not in the Waiting state. This also covers a second concurrent
	// submit: the first one moved the gate to Submitting.
	ErrNotWaiting = errors.New("no human input is being waited for")

	// ErrEmptyMessage rejects a blank submission; the gate stays open.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoSession is returned when no session id is cached and the
	// active-sessions recovery query finds nothing live.
	ErrNoSession = errors.New("no live session found")
)

// Backend is the slice of the API the gate needs.
type Backend interface {
	SubmitHumanInput(ctx context.Context, sessionID, agentName, message string) error
	ActiveSessions(ctx context.Context) ([]api.SessionStatus, error)
}

// Gate tracks whether the session is paused for human input.
type Gate struct {
	mu       sync.Mutex
	state    State
	forRole  string
	openedAt time.Time

	sess    *session.Session
	asm     *session.Assembler
	backend Backend
	logger  *slog.Logger

	// OnResume is invoked after a successful submit, once the gate is
	// back to Idle. The controller uses it to open the continuation
	// stream. May be nil.
	OnResume func()

	// OnSessionGone is invoked when a submit hit a 404: the session no
	// longer exists and must be treated as ended. May be nil.
	OnSessionGone func()
}

// New creates a gate for one session.
func New(sess *session.Session, asm *session.Assembler, backend Backend, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		sess:    sess,
		asm:     asm,
		backend: backend,
		logger:  logger,
	}
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// WaitingFor returns the role being waited on, or "" when idle.
func (g *Gate) WaitingFor() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Idle {
		return ""
	}
	return g.forRole
}

// Open reports whether the gate currently blocks autonomous progression.
func (g *Gate) Open() bool {
	return g.State() != Idle
}

// Trip moves Idle -> Waiting(role). Reports whether the transition
// happened; a gate already waiting (or submitting) is left alone.
func (g *Gate) Trip(role string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Idle {
		return false
	}
	g.state = Waiting
	g.forRole = role
	g.openedAt = time.Now()
	g.sess.SetStatus(session.StatusWaitingForHuman)
	g.sess.SetWaitingAgent(role)
	g.logger.Info("waiting for human input", "role", role)
	return true
}

// Supersede force-closes the gate without a submission, used when a
// session-end event arrives while the gate is open.
func (g *Gate) Supersede() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Idle
	g.forRole = ""
	g.sess.SetWaitingAgent("")
}

// Submit delivers the human message for the waited-on role.
//
// Waiting -> Submitting -> Idle on success (human block appended,
// OnResume fired). Submitting -> Waiting on recoverable failure. A 404
// ends the session instead of reverting.
func (g *Gate) Submit(ctx context.Context, message string) error {
	g.mu.Lock()
	if g.state != Waiting {
		g.mu.Unlock()
		return ErrNotWaiting
	}
	if message == "" {
		g.mu.Unlock()
		return ErrEmptyMessage
	}
	g.state = Submitting
	role := g.forRole
	g.mu.Unlock()

	sessionID := g.sess.ID()
	if sessionID == "" {
		id, err := g.recoverSessionID(ctx)
		if err != nil {
			g.revert()
			return err
		}
		g.sess.AdoptID(id)
		sessionID = id
	}

	if err := g.backend.SubmitHumanInput(ctx, sessionID, role, message); err != nil {
		if errors.Is(err, api.ErrSessionGone) {
			// The session is gone for good: do not revert to Waiting.
			g.mu.Lock()
			g.state = Idle
			g.forRole = ""
			g.mu.Unlock()
			g.logger.Warn("submit rejected, session gone", "session", sessionID)
			if g.OnSessionGone != nil {
				g.OnSessionGone()
			}
			return err
		}
		g.revert()
		return fmt.Errorf("submit human input: %w", err)
	}

	g.asm.AppendHuman(role, message)

	g.mu.Lock()
	g.state = Idle
	g.forRole = ""
	g.mu.Unlock()
	g.sess.SetWaitingAgent("")
	g.sess.SetStatus(session.StatusRunning)
	g.logger.Info("human input submitted", "role", role, "session", sessionID)

	if g.OnResume != nil {
		g.OnResume()
	}
	return nil
}

// recoverSessionID queries the active-sessions endpoint and adopts the
// first live session, for the case where the stream never surfaced an id.
func (g *Gate) recoverSessionID(ctx context.Context) (string, error) {
	sessions, err := g.backend.ActiveSessions(ctx)
	if err != nil {
		return "", fmt.Errorf("recover session id: %w", err)
	}
	for _, st := range sessions {
		if st.Status.Live() && st.SessionID != "" {
			g.logger.Info("recovered session id", "session", st.SessionID)
			return st.SessionID, nil
		}
	}
	return "", ErrNoSession
}

func (g *Gate) revert() {
	g.mu.Lock()
	g.state = Waiting
	g.mu.Unlock()
}
