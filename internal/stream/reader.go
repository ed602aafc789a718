// internal/stream/reader.go
// Package stream consumes server-sent-event discussion streams.
// The backend sends OpenAI-style completion chunks as "data: <json>" lines
// terminated by "data: [DONE]".
package stream

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const doneSentinel = "[DONE]"

// ErrIdleTimeout reports a stream that stopped delivering bytes for
// longer than the configured idle timeout.
var ErrIdleTimeout = errors.New("stream idle timeout")

// Event is one decoded content delta from the stream.
type Event struct {
	// Delta is the text fragment for this event. May be empty for events
	// that only carry metadata.
	Delta string

	// SessionID is set when the backend embeds the session identifier in
	// the event payload instead of a response header.
	SessionID string
}

// envelope matches the wire shape of one SSE data payload.
type envelope struct {
	SessionID string `json:"session_id"`
	Choices   []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Reader turns a streaming response body into a sequence of Events.
// The sequence ends when the [DONE] sentinel arrives, the body is
// exhausted, or a read error occurs; Err distinguishes the last two.
type Reader struct {
	body        io.ReadCloser
	events      chan Event
	logger      *slog.Logger
	idleTimeout time.Duration

	mu       sync.Mutex
	err      error
	done     bool // saw the [DONE] sentinel
	timedOut bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithIdleTimeout closes the stream when no bytes arrive for d.
// Zero disables the watchdog.
func WithIdleTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) { r.idleTimeout = d }
}

// NewReader starts consuming body. The caller owns draining Events.
func NewReader(body io.ReadCloser, logger *slog.Logger, opts ...ReaderOption) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{
		body:   body,
		events: make(chan Event, 64),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Events returns the event sequence. The channel closes when the stream
// terminates for any reason.
func (r *Reader) Events() <-chan Event {
	return r.events
}

// Err returns the stream-level failure, or nil after a clean [DONE]
// termination. Only meaningful after Events is closed.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Clean reports whether the stream ended with the [DONE] sentinel.
func (r *Reader) Clean() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Close closes the underlying body, unblocking a pending read.
func (r *Reader) Close() error {
	return r.body.Close()
}

func (r *Reader) run() {
	defer close(r.events)
	defer r.body.Close()

	// The watchdog closes the body when no bytes arrive for the idle
	// window, failing the pending Read.
	var watchdog *time.Timer
	if r.idleTimeout > 0 {
		watchdog = time.AfterFunc(r.idleTimeout, func() {
			r.mu.Lock()
			r.timedOut = true
			r.mu.Unlock()
			r.body.Close()
		})
		defer watchdog.Stop()
	}

	// Carry holds the bytes of a line (and any trailing partial UTF-8
	// rune) split across chunk reads. Splitting happens on raw '\n'
	// bytes, so a multi-byte rune broken by the chunk boundary is
	// reassembled before any string decoding takes place.
	var carry []byte
	buf := make([]byte, 4096)

	for {
		n, err := r.body.Read(buf)
		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(r.idleTimeout)
			}
			data := append(carry, buf[:n]...)
			lines := strings.Split(string(data), "\n")
			carry = []byte(lines[len(lines)-1])
			for _, line := range lines[:len(lines)-1] {
				if r.handleLine(line) {
					r.setDone()
					return
				}
			}
		}
		if err == io.EOF {
			// Stream closed without the sentinel: surface as a failure
			// so the controller attempts a reconnect.
			if r.handleLine(string(carry)) {
				r.setDone()
				return
			}
			r.setErr(io.ErrUnexpectedEOF)
			return
		}
		if err != nil {
			if r.wasIdleTimeout() {
				err = ErrIdleTimeout
			}
			r.setErr(err)
			return
		}
	}
}

// handleLine processes one complete line. Returns true on the sentinel.
func (r *Reader) handleLine(line string) bool {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data: ") {
		// Comments, empty keep-alive lines, other SSE fields.
		return false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
	if payload == "" {
		return false
	}
	if payload == doneSentinel {
		return true
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		// A malformed event must not abort the session.
		r.logger.Debug("skipping malformed stream event", "error", err)
		return false
	}

	ev := Event{SessionID: env.SessionID}
	for _, choice := range env.Choices {
		ev.Delta += choice.Delta.Content
	}
	if ev.Delta == "" && ev.SessionID == "" {
		return false
	}
	r.events <- ev
	return false
}

func (r *Reader) wasIdleTimeout() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timedOut
}

func (r *Reader) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Reader) setDone() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
}
