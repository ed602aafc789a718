// internal/session/session.go
// Package session holds the client-side state of one live discussion:
// the session object, its speaker blocks, and the assembler that turns
// classified stream tokens into blocks.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Status is the client's view of the session lifecycle.
type Status int

const (
	StatusRunning Status = iota
	StatusWaitingForHuman
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusWaitingForHuman:
		return "waiting_for_human"
	case StatusEnded:
		return "ended"
	default:
		return "running"
	}
}

// Kind distinguishes who a speaker block belongs to.
type Kind int

const (
	KindAI Kind = iota
	KindHuman
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindHuman:
		return "human"
	case KindSummary:
		return "summary"
	default:
		return "ai"
	}
}

// SpeakerBlock is one contiguous utterance attributed to a speaker.
// Text is append-only; Open is true while deltas are still arriving.
type SpeakerBlock struct {
	ID      string
	Speaker string
	Kind    Kind
	Text    string
	Open    bool
}

// Session is one live discussion. It is owned by the controller; the
// gate mutates status and the assembler mutates blocks under its lock.
type Session struct {
	mu sync.Mutex

	id           string
	status       Status
	waitingAgent string
	topic        string
	group        string
	blocks       []*SpeakerBlock
}

// New creates a session. The backend-assigned id may not be known yet.
func New(topic, group string) *Session {
	return &Session{topic: topic, group: group}
}

// ID returns the backend-assigned session id, or "" if not yet known.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// AdoptID records the backend-assigned id. First writer wins.
func (s *Session) AdoptID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" && id != "" {
		s.id = id
	}
}

// Topic returns the discussion topic.
func (s *Session) Topic() string { return s.topic }

// Group returns the discussion group reference.
func (s *Session) Group() string { return s.group }

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus updates the lifecycle status. Ended is terminal.
func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return
	}
	s.status = st
}

// WaitingAgent returns the human role the session is waiting on, if any.
func (s *Session) WaitingAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitingAgent
}

// SetWaitingAgent records which human role is being waited on.
func (s *Session) SetWaitingAgent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitingAgent = name
}

// Snapshot returns a copy of all blocks, safe to render from any
// goroutine while the stream keeps appending.
func (s *Session) Snapshot() []SpeakerBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SpeakerBlock, len(s.blocks))
	for i, b := range s.blocks {
		out[i] = *b
	}
	return out
}

// OpenCount returns how many blocks are currently open. The protocol
// invariant is that this never exceeds one.
func (s *Session) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.blocks {
		if b.Open {
			n++
		}
	}
	return n
}

// Renderer is the seam between the protocol core and whatever UI layer
// displays it. Implementations re-render each block from its full
// accumulated text, never from individual deltas.
type Renderer interface {
	// OpenBlock announces a newly opened block.
	OpenBlock(b SpeakerBlock)
	// AppendToOpen re-renders the open block after text was appended.
	AppendToOpen(b SpeakerBlock)
	// CloseAll announces that the session ended and no block is open.
	CloseAll()
}

// Assembler owns the currently-open speaker block and applies stream
// content to it. Not safe for concurrent use; the controller serializes
// all calls.
type Assembler struct {
	sess *Session
	r    Renderer
}

// NewAssembler creates an assembler writing into sess and notifying r.
func NewAssembler(sess *Session, r Renderer) *Assembler {
	return &Assembler{sess: sess, r: r}
}

// Session returns the session the assembler writes into.
func (a *Assembler) Session() *Session {
	return a.sess
}

// OpenBlock closes any open block and opens a new one for the speaker.
func (a *Assembler) OpenBlock(name string, kind Kind) *SpeakerBlock {
	a.sess.mu.Lock()
	a.closeOpenLocked()
	b := &SpeakerBlock{
		ID:      uuid.NewString(),
		Speaker: name,
		Kind:    kind,
		Open:    true,
	}
	a.sess.blocks = append(a.sess.blocks, b)
	snap := *b
	a.sess.mu.Unlock()

	a.r.OpenBlock(snap)
	return b
}

// Append adds text to the open block, opening an unattributed block when
// none is open. Rendering is re-derived from the full buffer so a
// garbled partial delta self-heals on the next append.
func (a *Assembler) Append(text string) {
	if text == "" {
		return
	}
	a.sess.mu.Lock()
	b := a.openLocked()
	if b == nil {
		b = &SpeakerBlock{
			ID:   uuid.NewString(),
			Kind: KindAI,
			Open: true,
		}
		a.sess.blocks = append(a.sess.blocks, b)
		snap := *b
		a.sess.mu.Unlock()
		a.r.OpenBlock(snap)
		a.sess.mu.Lock()
	}
	b.Text += text
	snap := *b
	a.sess.mu.Unlock()

	a.r.AppendToOpen(snap)
}

// EnsureSummary opens the session's summary block, reusing an existing
// one: summary content may span two physical stream connections and must
// land in a single block.
func (a *Assembler) EnsureSummary(name string) *SpeakerBlock {
	a.sess.mu.Lock()
	for _, b := range a.sess.blocks {
		if b.Kind == KindSummary {
			a.closeOpenLocked()
			b.Open = true
			snap := *b
			a.sess.mu.Unlock()
			a.r.AppendToOpen(snap)
			return b
		}
	}
	a.sess.mu.Unlock()
	return a.OpenBlock(name, KindSummary)
}

// AppendHuman records a submitted human message as its own closed block.
func (a *Assembler) AppendHuman(name, text string) {
	a.sess.mu.Lock()
	b := a.openLocked()
	if b == nil || b.Kind != KindHuman || b.Speaker != name {
		a.sess.mu.Unlock()
		b = a.OpenBlock(name, KindHuman)
		a.sess.mu.Lock()
	}
	b.Text += text
	b.Open = false
	snap := *b
	a.sess.mu.Unlock()

	a.r.AppendToOpen(snap)
}

// CloseAll closes every block. Called exactly once per session end.
func (a *Assembler) CloseAll() {
	a.sess.mu.Lock()
	for _, b := range a.sess.blocks {
		b.Open = false
	}
	a.sess.mu.Unlock()

	a.r.CloseAll()
}

func (a *Assembler) openLocked() *SpeakerBlock {
	for i := len(a.sess.blocks) - 1; i >= 0; i-- {
		if a.sess.blocks[i].Open {
			return a.sess.blocks[i]
		}
	}
	return nil
}

func (a *Assembler) closeOpenLocked() {
	for _, b := range a.sess.blocks {
		b.Open = false
	}
}
