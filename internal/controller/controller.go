// internal/controller/controller.go
// Package controller orchestrates one discussion session: it opens the
// initial stream, classifies every delta, drives the speaker-block
// assembler and the human gate, reconnects after interruptions or human
// input, and runs the out-of-band status poll that corrects drift when
// the stream drops without an explicit marker.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"parley/internal/api"
	"parley/internal/gate"
	"parley/internal/marker"
	"parley/internal/session"
	"parley/internal/stream"
)

// summarySpeaker names the synthetic summary block.
const summarySpeaker = "Summary"

// DefaultPollInterval is how often the human-input sweep runs.
const DefaultPollInterval = 5 * time.Second

// Backend is everything the controller needs from the API client.
type Backend interface {
	StartDiscussion(ctx context.Context, topic, groupID string) (*api.StreamHandle, error)
	ContinueDiscussion(ctx context.Context, sessionID string) (*api.StreamHandle, error)
	DiscussionStatus(ctx context.Context, sessionID string) (*api.SessionStatus, error)
	HumanRoles(ctx context.Context, sessionID string) ([]api.HumanRole, error)
	Summary(ctx context.Context, sessionID string) (string, error)
	gate.Backend
}

// Store persists a finished session. Satisfied by *db.Store.
type Store interface {
	SaveSession(id, topic, group, status string, blocks []session.SpeakerBlock) error
}

// EventKind classifies controller events delivered to the UI.
type EventKind int

const (
	// EventWaiting: the gate opened for a human role.
	EventWaiting EventKind = iota
	// EventResumed: a continuation stream was opened.
	EventResumed
	// EventEnded: the session is over; no further events follow.
	EventEnded
	// EventError: a user-visible, session-fatal error.
	EventError
)

// Event is a protocol-level notification for the UI layer. Text updates
// flow through the Renderer, not through events.
type Event struct {
	Kind EventKind
	Role string
	Err  error
}

// Controller runs one discussion session.
type Controller struct {
	backend Backend
	sess    *session.Session
	asm     *session.Assembler
	det     *marker.Detector
	gate    *gate.Gate
	store   Store
	logger  *slog.Logger

	pollInterval time.Duration
	idleTimeout  time.Duration
	events       chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	endSeen    bool
	finished   bool
	humanRoles []api.HumanRole
	rolesKnown bool

	// The single active stream. gen is bumped whenever a new stream is
	// installed or the current one is retired, which marks the previous
	// consume loop stale.
	gen        int
	reader     *stream.Reader
	readerDone chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets the sweep interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithStore persists the transcript when the session ends.
func WithStore(s Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithHeuristics toggles the waiting-phrase fallback detection.
func WithHeuristics(enabled bool) Option {
	return func(c *Controller) { c.det.SetHeuristics(enabled) }
}

// WithStreamIdleTimeout fails a silent stream after d, which the
// controller then treats as an interruption. Zero disables it.
func WithStreamIdleTimeout(d time.Duration) Option {
	return func(c *Controller) { c.idleTimeout = d }
}

// New creates a controller for one discussion. The renderer receives
// every block update; protocol events arrive on Events.
func New(backend Backend, topic, groupID string, r session.Renderer, opts ...Option) *Controller {
	sess := session.New(topic, groupID)
	asm := session.NewAssembler(sess, r)
	c := &Controller{
		backend:      backend,
		sess:         sess,
		asm:          asm,
		det:          marker.NewDetector(),
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		events:       make(chan Event, 32),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gate = gate.New(sess, asm, backend, c.logger)
	c.gate.OnResume = c.resume
	c.gate.OnSessionGone = func() { c.finish(false) }
	return c
}

// Session returns the session owned by this controller.
func (c *Controller) Session() *session.Session { return c.sess }

// Gate returns the human gate, for the UI's submit path.
func (c *Controller) Gate() *gate.Gate { return c.gate }

// Events returns the protocol event channel.
func (c *Controller) Events() <-chan Event { return c.events }

// HumanRoles returns the cached human role set for this session.
func (c *Controller) HumanRoles() []api.HumanRole {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.HumanRole, len(c.humanRoles))
	copy(out, c.humanRoles)
	return out
}

// Start opens the initial discussion stream and begins consuming it.
// A failure to open the initial stream is returned to the caller; only
// continuation opens are retried automatically.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	handle, err := c.backend.StartDiscussion(c.ctx, c.sess.Topic(), c.sess.Group())
	if err != nil {
		return fmt.Errorf("start discussion: %w", err)
	}
	c.adoptID(handle.SessionID)

	c.startStream(handle.Body, 0)
	go c.pollLoop()
	return nil
}

// Stop abandons the session: the poll stops and any in-flight read is
// cancelled through the request context. Assembler state is kept so the
// transcript remains visible.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) newReader(body io.ReadCloser) *stream.Reader {
	var opts []stream.ReaderOption
	if c.idleTimeout > 0 {
		opts = append(opts, stream.WithIdleTimeout(c.idleTimeout))
	}
	return stream.NewReader(body, c.logger, opts...)
}

// startStream installs body as the session's single active stream and
// launches its consume loop. The install is refused, and body closed,
// when fromGen is no longer the current generation: a newer stream won
// the race and this one must not start a second read loop.
func (c *Controller) startStream(body io.ReadCloser, fromGen int) bool {
	c.mu.Lock()
	if fromGen != c.gen {
		c.mu.Unlock()
		body.Close()
		return false
	}
	c.gen++
	gen := c.gen
	r := c.newReader(body)
	done := make(chan struct{})
	c.reader = r
	c.readerDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.consume(r, gen)
	}()
	return true
}

// retireActiveStream revokes the current stream: its consume loop is
// marked stale, its connection is closed, and the call blocks until the
// loop has returned. The session never reads two connections at once.
func (c *Controller) retireActiveStream() {
	c.mu.Lock()
	c.gen++
	r := c.reader
	done := c.readerDone
	c.reader = nil
	c.readerDone = nil
	c.mu.Unlock()

	if r != nil {
		r.Close()
	}
	if done != nil {
		<-done
	}
}

func (c *Controller) currentGen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) isStale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.gen
}

// consume drains one physical stream connection, then decides whether
// the session continues, pauses, or ends. A superseded loop discards
// whatever it has left and exits without touching detector or session
// state again.
func (c *Controller) consume(r *stream.Reader, gen int) {
	for ev := range r.Events() {
		if c.isStale(gen) || c.isFinished() {
			continue
		}
		if ev.SessionID != "" {
			c.adoptID(ev.SessionID)
		}
		c.apply(c.det.Feed(ev.Delta))
	}

	if c.isStale(gen) || c.isFinished() {
		return
	}

	if err := r.Err(); err != nil {
		if c.ctx.Err() != nil {
			return
		}
		// No flush: a marker split across the interruption stays in the
		// detector and completes on the continuation stream.
		c.logger.Warn("stream interrupted", "error", err)
		c.openContinuation(gen)
		return
	}

	// Clean [DONE]. With an observed end marker the session is over;
	// without one, ask the backend whether this was an interruption.
	if c.sawEnd() {
		c.apply(c.det.Flush())
		c.finish(false)
		return
	}
	c.afterCleanDone(gen)
}

// afterCleanDone performs the one out-of-band status check after a
// stream finished without a session-end marker. Withheld detector text
// is flushed only on the closing branch; every other outcome can be
// followed by a continuation that completes a split marker.
func (c *Controller) afterCleanDone(gen int) {
	id := c.sess.ID()
	if id == "" {
		c.fail(errors.New("stream ended before a session id was seen"))
		return
	}

	st, err := c.backend.DiscussionStatus(c.ctx, id)
	if err != nil {
		c.logger.Warn("status check after stream end failed", "error", err)
		c.openContinuation(gen)
		return
	}

	switch st.Status {
	case api.StatusWaitingForHuman:
		c.tripGate(st.WaitingAgent)
	case api.StatusEnded:
		c.apply(c.det.Flush())
		c.finish(true)
	default:
		// Backend still running: the stream end was an interruption.
		c.openContinuation(gen)
	}
}

// apply dispatches classified tokens in arrival order.
func (c *Controller) apply(tokens []marker.Token) {
	for _, tok := range tokens {
		switch tok.Kind {
		case marker.KindSpeaker:
			c.asm.OpenBlock(tok.Name, session.KindAI)
		case marker.KindSessionEnd:
			c.mu.Lock()
			c.endSeen = true
			c.mu.Unlock()
			c.asm.EnsureSummary(summarySpeaker)
		case marker.KindWaiting:
			c.asm.OpenBlock(tok.Name, session.KindHuman)
			c.tripGate(tok.Name)
		case marker.KindWaitingHint:
			// Best-effort: the detector only names known human roles.
			c.tripGate(tok.Name)
		case marker.KindText:
			c.asm.Append(tok.Text)
		}
	}
}

// resume opens a continuation stream after a successful human submit.
// A previous connection the backend left hanging is retired first, so
// the continuation's consume loop is the only one feeding the detector.
func (c *Controller) resume() {
	c.emit(Event{Kind: EventResumed})
	c.retireActiveStream()
	c.openContinuation(c.currentGen())
}

// openContinuation opens a continuation stream for the current session.
// While the gate is open the controller must not advance the discussion,
// so the call is skipped and the submit path resumes later. The open is
// retried exactly once; a second failure ends the session client-side.
func (c *Controller) openContinuation(fromGen int) {
	if c.isFinished() || c.gate.Open() || c.ctx.Err() != nil || c.isStale(fromGen) {
		return
	}
	id := c.sess.ID()
	if id == "" {
		c.fail(errors.New("cannot reconnect without a session id"))
		return
	}

	handle, err := c.backend.ContinueDiscussion(c.ctx, id)
	if err != nil {
		c.logger.Warn("continuation open failed, retrying once", "error", err)
		handle, err = c.backend.ContinueDiscussion(c.ctx, id)
	}
	if err != nil {
		c.fail(fmt.Errorf("reopen discussion stream: %w", err))
		return
	}
	// Detector and assembler state carry over: in-progress blocks are
	// preserved across the reconnect.
	c.startStream(handle.Body, fromGen)
}

// pollLoop is the periodic out-of-band sweep. It refreshes the human
// role cache, trips the gate on backend-reported waiting state, and
// closes the session when the backend says it ended. It never mutates
// assembler text.
func (c *Controller) pollLoop() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Controller) sweep() {
	id := c.sess.ID()
	if id == "" || c.isFinished() {
		return
	}

	c.refreshHumanRoles(id)

	st, err := c.backend.DiscussionStatus(c.ctx, id)
	if err != nil {
		c.logger.Debug("status poll failed", "error", err)
		return
	}
	switch st.Status {
	case api.StatusWaitingForHuman:
		if c.isHumanRole(st.WaitingAgent) {
			c.tripGate(st.WaitingAgent)
		}
	case api.StatusEnded:
		c.logger.Info("poll detected session end", "session", id)
		c.finish(true)
	}
}

func (c *Controller) refreshHumanRoles(id string) {
	roles, err := c.backend.HumanRoles(c.ctx, id)
	if err != nil {
		c.logger.Debug("human role refresh failed", "error", err)
		return
	}
	c.setHumanRoles(roles)
}

func (c *Controller) setHumanRoles(roles []api.HumanRole) {
	c.mu.Lock()
	c.humanRoles = roles
	c.rolesKnown = true
	c.mu.Unlock()

	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	c.det.SetHumanRoles(names)
}

func (c *Controller) isHumanRole(name string) bool {
	if name == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.rolesKnown {
		// Trust the backend when the role set was never fetched.
		return true
	}
	for _, r := range c.humanRoles {
		if r.Name == name {
			return true
		}
	}
	return false
}

func (c *Controller) tripGate(role string) {
	if role == "" {
		return
	}
	if c.gate.Trip(role) {
		c.emit(Event{Kind: EventWaiting, Role: role})
	}
}

// adoptID records the session id the first time it is seen and kicks
// off the human-role fetch for this session.
func (c *Controller) adoptID(id string) {
	if id == "" || c.sess.ID() != "" {
		return
	}
	c.sess.AdoptID(id)
	c.logger.Info("session registered", "session", id)
	go c.refreshHumanRoles(id)
}

func (c *Controller) sawEnd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endSeen
}

func (c *Controller) isFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// fail surfaces a session-fatal error and closes the session.
func (c *Controller) fail(err error) {
	c.logger.Error("session failed", "error", err)
	c.emit(Event{Kind: EventError, Err: err})
	c.finish(false)
}

// finish closes the session exactly once: supersede the gate, mark the
// session ended, close every block, stop the poll, and persist the
// transcript. fetchSummary additionally attempts a best-effort summary
// fetch for sessions that ended without streaming one.
func (c *Controller) finish(fetchSummary bool) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.mu.Unlock()

	if fetchSummary {
		c.fetchSummary()
	}

	c.gate.Supersede()
	c.sess.SetStatus(session.StatusEnded)
	c.asm.CloseAll()
	if c.cancel != nil {
		c.cancel()
	}
	c.persist()
	c.emit(Event{Kind: EventEnded})
	c.logger.Info("session ended", "session", c.sess.ID())
}

func (c *Controller) fetchSummary() {
	id := c.sess.ID()
	if id == "" {
		return
	}
	for _, b := range c.sess.Snapshot() {
		if b.Kind == session.KindSummary {
			return
		}
	}
	text, err := c.backend.Summary(context.WithoutCancel(c.ctx), id)
	if err != nil || text == "" {
		return
	}
	c.asm.EnsureSummary(summarySpeaker)
	c.asm.Append(text)
}

func (c *Controller) persist() {
	if c.store == nil {
		return
	}
	err := c.store.SaveSession(
		c.sess.ID(), c.sess.Topic(), c.sess.Group(),
		c.sess.Status().String(), c.sess.Snapshot(),
	)
	if err != nil {
		c.logger.Warn("failed to persist transcript", "error", err)
	}
}

// emit delivers ev without blocking the protocol goroutines. The
// terminal event must reach the consumer even when nothing is draining
// the channel, so it evicts queued events until it fits; everything
// else is droppable.
func (c *Controller) emit(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		if ev.Kind != EventEnded {
			c.logger.Debug("event dropped, consumer not keeping up", "kind", ev.Kind)
			return
		}
		select {
		case <-c.events:
		default:
		}
	}
}
