// internal/gate/gate_test.go
package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parley/internal/api"
	"parley/internal/session"
)

type nopRenderer struct{}

func (nopRenderer) OpenBlock(session.SpeakerBlock)    {}
func (nopRenderer) AppendToOpen(session.SpeakerBlock) {}
func (nopRenderer) CloseAll()                         {}

// fakeBackend scripts the two API calls the gate makes.
type fakeBackend struct {
	mu          sync.Mutex
	submitErr   error
	submitCalls int
	active      []api.SessionStatus
	activeErr   error
	blockSubmit chan struct{} // when set, Submit blocks until closed
}

func (f *fakeBackend) SubmitHumanInput(ctx context.Context, sessionID, agentName, message string) error {
	f.mu.Lock()
	f.submitCalls++
	block := f.blockSubmit
	err := f.submitErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeBackend) ActiveSessions(ctx context.Context) ([]api.SessionStatus, error) {
	return f.active, f.activeErr
}

func newTestGate(backend *fakeBackend) (*Gate, *session.Session) {
	sess := session.New("topic", "grp")
	asm := session.NewAssembler(sess, nopRenderer{})
	return New(sess, asm, backend, nil), sess
}

func TestTripFromIdle(t *testing.T) {
	g, sess := newTestGate(&fakeBackend{})

	if !g.Trip("Alice") {
		t.Fatal("Trip from Idle should succeed")
	}
	if g.State() != Waiting || g.WaitingFor() != "Alice" {
		t.Errorf("expected Waiting(Alice), got %v(%s)", g.State(), g.WaitingFor())
	}
	if sess.Status() != session.StatusWaitingForHuman {
		t.Errorf("session status not updated: %v", sess.Status())
	}

	// A second trip while waiting is a no-op.
	if g.Trip("Bob") {
		t.Error("Trip while Waiting must not succeed")
	}
	if g.WaitingFor() != "Alice" {
		t.Errorf("waited-on role overwritten: %s", g.WaitingFor())
	}
}

func TestSubmitHappyPath(t *testing.T) {
	backend := &fakeBackend{}
	g, sess := newTestGate(backend)
	sess.AdoptID("sess-1")

	resumed := false
	g.OnResume = func() { resumed = true }

	g.Trip("Alice")
	if err := g.Submit(context.Background(), "ok"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if g.State() != Idle {
		t.Errorf("expected Idle after submit, got %v", g.State())
	}
	if !resumed {
		t.Error("OnResume not called")
	}

	blocks := sess.Snapshot()
	if len(blocks) != 1 {
		t.Fatalf("expected 1 human block, got %d", len(blocks))
	}
	if blocks[0].Kind != session.KindHuman || blocks[0].Text != "ok" {
		t.Errorf("unexpected block: %+v", blocks[0])
	}
	if sess.Status() != session.StatusRunning {
		t.Errorf("expected Running after resume, got %v", sess.Status())
	}
}

func TestSubmitWhileIdle(t *testing.T) {
	g, _ := newTestGate(&fakeBackend{})
	if err := g.Submit(context.Background(), "hello"); !errors.Is(err, ErrNotWaiting) {
		t.Errorf("expected ErrNotWaiting, got %v", err)
	}
}

func TestSubmitEmptyMessage(t *testing.T) {
	g, sess := newTestGate(&fakeBackend{})
	sess.AdoptID("sess-1")
	g.Trip("Alice")

	if err := g.Submit(context.Background(), ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if g.State() != Waiting {
		t.Errorf("gate must stay Waiting after empty submit, got %v", g.State())
	}
}

func TestSubmitFailureReverts(t *testing.T) {
	backend := &fakeBackend{submitErr: errors.New("network down")}
	g, sess := newTestGate(backend)
	sess.AdoptID("sess-1")
	g.Trip("Alice")

	resumed := false
	g.OnResume = func() { resumed = true }

	if err := g.Submit(context.Background(), "ok"); err == nil {
		t.Fatal("expected submit error")
	}
	if g.State() != Waiting {
		t.Errorf("expected revert to Waiting, got %v", g.State())
	}
	if resumed {
		t.Error("OnResume must not fire on failure")
	}
	if len(sess.Snapshot()) != 0 {
		t.Error("no human block may be appended on failure")
	}
}

func TestSubmit404EndsSession(t *testing.T) {
	backend := &fakeBackend{submitErr: api.ErrSessionGone}
	g, sess := newTestGate(backend)
	sess.AdoptID("stale")
	g.Trip("Alice")

	goneCalled := false
	g.OnSessionGone = func() {
		goneCalled = true
		sess.SetStatus(session.StatusEnded)
	}
	resumed := false
	g.OnResume = func() { resumed = true }

	err := g.Submit(context.Background(), "ok")
	if !errors.Is(err, api.ErrSessionGone) {
		t.Fatalf("expected ErrSessionGone, got %v", err)
	}
	if g.State() != Idle {
		t.Errorf("gate must not revert to Waiting on 404, got %v", g.State())
	}
	if !goneCalled {
		t.Error("OnSessionGone not called")
	}
	if resumed {
		t.Error("OnResume must not fire on 404")
	}
	if sess.Status() != session.StatusEnded {
		t.Errorf("session must be Ended, got %v", sess.Status())
	}
}

func TestSubmitRecoversSessionID(t *testing.T) {
	backend := &fakeBackend{
		active: []api.SessionStatus{
			{SessionID: "dead", Status: api.StatusEnded},
			{SessionID: "live-1", Status: api.StatusWaitingForHuman},
		},
	}
	g, sess := newTestGate(backend)
	g.Trip("Alice")

	if err := g.Submit(context.Background(), "ok"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sess.ID() != "live-1" {
		t.Errorf("expected adopted id live-1, got %q", sess.ID())
	}
}

func TestSubmitNoLiveSession(t *testing.T) {
	backend := &fakeBackend{
		active: []api.SessionStatus{{SessionID: "dead", Status: api.StatusEnded}},
	}
	g, _ := newTestGate(backend)
	g.Trip("Alice")

	if err := g.Submit(context.Background(), "ok"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if g.State() != Waiting {
		t.Errorf("expected revert to Waiting, got %v", g.State())
	}
	if backend.submitCalls != 0 {
		t.Error("submit endpoint must not be called without a session id")
	}
}

// Two concurrent submits: only one may reach the backend, the other
// fails with ErrNotWaiting.
func TestSubmitMutualExclusion(t *testing.T) {
	block := make(chan struct{})
	backend := &fakeBackend{blockSubmit: block}
	g, sess := newTestGate(backend)
	sess.AdoptID("sess-1")
	g.Trip("Alice")

	first := make(chan error, 1)
	go func() { first <- g.Submit(context.Background(), "one") }()

	// Wait for the first submit to reach the backend.
	for i := 0; ; i++ {
		backend.mu.Lock()
		calls := backend.submitCalls
		backend.mu.Unlock()
		if calls == 1 {
			break
		}
		if i > 1000 {
			t.Fatal("first submit never reached the backend")
		}
		time.Sleep(time.Millisecond)
	}

	if err := g.Submit(context.Background(), "two"); !errors.Is(err, ErrNotWaiting) {
		t.Errorf("second submit should fail with ErrNotWaiting, got %v", err)
	}

	close(block)
	if err := <-first; err != nil {
		t.Errorf("first submit failed: %v", err)
	}
	if backend.submitCalls != 1 {
		t.Errorf("expected exactly 1 backend call, got %d", backend.submitCalls)
	}
}

func TestSupersede(t *testing.T) {
	g, sess := newTestGate(&fakeBackend{})
	g.Trip("Alice")
	g.Supersede()

	if g.State() != Idle {
		t.Errorf("expected Idle after supersede, got %v", g.State())
	}
	if sess.WaitingAgent() != "" {
		t.Errorf("waiting agent not cleared: %q", sess.WaitingAgent())
	}
}
