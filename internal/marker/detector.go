// internal/marker/detector.go
// Package marker classifies control markers the backend embeds in the
// discussion text stream. There is no separate control channel: speaker
// changes, meeting-end headings, and human-input requests all travel as
// literals inside model output, so detection is defensive and, for the
// natural-language phrases, explicitly best-effort.
package marker

import (
	"regexp"
	"strings"
	"sync"
)

// Kind tags a detected token. Priority when several could match at the
// same position: Speaker > SessionEnd > Waiting > WaitingHint > Text.
type Kind int

const (
	// KindText is ordinary content for the open speaker block.
	KindText Kind = iota

	// KindSpeaker is a "### <name> speaking:" header.
	KindSpeaker

	// KindSessionEnd is a meeting-end or summary heading.
	KindSessionEnd

	// KindWaiting is the structured [WAITING_FOR_HUMAN_INPUT:<name>] tag.
	KindWaiting

	// KindWaitingHint is a natural-language waiting phrase naming a known
	// human role. Lower confidence than KindWaiting; it accompanies the
	// text token rather than replacing it.
	KindWaitingHint
)

func (k Kind) String() string {
	switch k {
	case KindSpeaker:
		return "speaker"
	case KindSessionEnd:
		return "session_end"
	case KindWaiting:
		return "waiting"
	case KindWaitingHint:
		return "waiting_hint"
	default:
		return "text"
	}
}

// Token is one classified span of the stream.
type Token struct {
	Kind Kind
	Name string // speaker or human role name, when the kind carries one
	Text string // verbatim content, for KindText
}

const waitingTagOpen = "[WAITING_FOR_HUMAN_INPUT:"

// maxCarry bounds how much trailing text may be held back as a possible
// marker prefix before it is released as plain content.
const maxCarry = 160

// The backend emits these literals in the language its roles are
// configured with, so both English and Chinese forms are recognized.
var (
	speakerRe = regexp.MustCompile(`###\s*([^\n#:：]+?)\s*(?:speaking|发言)\s*[:：][ \t]*`)
	endRe     = regexp.MustCompile(`##\s*(?:Meeting End|Meeting Summary|Summary|会议结束|会议总结|讨论结束)([^\n]*)\n?`)
	waitingRe = regexp.MustCompile(`\[WAITING_FOR_HUMAN_INPUT:([^\]\n]+)\]`)
)

var endLiterals = []string{
	"Meeting End", "Meeting Summary", "Summary",
	"会议结束", "会议总结", "讨论结束",
}

// Detector scans content deltas for markers. It is stateful: a marker
// split across two deltas is recognized once the remainder arrives, by
// carrying a bounded suffix of undecided text between calls.
//
// Feed and Flush must be called from a single goroutine; the role set
// may be refreshed concurrently (the status poll does this).
type Detector struct {
	mu         sync.RWMutex
	humanRoles []string
	heuristics bool

	carry string
}

// NewDetector returns a detector with phrase heuristics enabled.
func NewDetector() *Detector {
	return &Detector{heuristics: true}
}

// SetHumanRoles supplies the known human role names the phrase heuristic
// matches against. Safe to call while the stream is being fed.
func (d *Detector) SetHumanRoles(names []string) {
	d.mu.Lock()
	d.humanRoles = names
	d.mu.Unlock()
}

// SetHeuristics toggles the natural-language waiting-phrase fallback.
func (d *Detector) SetHeuristics(enabled bool) {
	d.mu.Lock()
	d.heuristics = enabled
	d.mu.Unlock()
}

// Feed classifies delta (plus any carried text) into tokens, in stream
// order. Plain text that could be the start of a marker is withheld
// until a later feed or Flush decides it.
func (d *Detector) Feed(delta string) []Token {
	buf := d.carry + delta
	d.carry = ""

	var tokens []Token
	for {
		m := earliestMarker(buf)
		if m == nil {
			break
		}
		if pre := buf[:m.loc[0]]; pre != "" {
			tokens = append(tokens, d.textToken(pre)...)
		}
		tokens = append(tokens, Token{Kind: m.kind, Name: m.name})
		if m.rest != "" {
			// Summary content on the heading line itself stays content.
			tokens = append(tokens, d.textToken(m.rest)...)
		}
		buf = buf[m.loc[1]:]
	}

	if hold := holdbackStart(buf); hold < len(buf) {
		d.carry = buf[hold:]
		buf = buf[:hold]
	}
	if buf != "" {
		tokens = append(tokens, d.textToken(buf)...)
	}
	return tokens
}

// Flush releases any withheld text as plain content. Call at stream end.
func (d *Detector) Flush() []Token {
	if d.carry == "" {
		return nil
	}
	text := d.carry
	d.carry = ""
	return d.textToken(text)
}

// Pending returns the currently withheld text. For tests and diagnostics.
func (d *Detector) Pending() string {
	return d.carry
}

// markerMatch is one complete marker found in the buffer. rest carries
// text that shared the heading line with an end marker; it is re-emitted
// as content instead of being consumed with the heading.
type markerMatch struct {
	kind Kind
	loc  []int
	name string
	rest string
}

// earliestMarker finds the first complete marker in buf. Ties at the
// same offset resolve by priority order.
func earliestMarker(buf string) *markerMatch {
	var best *markerMatch

	consider := func(m *markerMatch) {
		if m.loc == nil {
			return
		}
		if best == nil || m.loc[0] < best.loc[0] {
			best = m
		}
	}

	if m := speakerRe.FindStringSubmatchIndex(buf); m != nil {
		consider(&markerMatch{kind: KindSpeaker, loc: m[0:2], name: strings.TrimSpace(buf[m[2]:m[3]])})
	}
	if m := endRe.FindStringSubmatchIndex(buf); m != nil {
		rest := strings.TrimLeft(buf[m[2]:m[3]], " \t:：")
		consider(&markerMatch{kind: KindSessionEnd, loc: m[0:2], rest: rest})
	}
	if m := waitingRe.FindStringSubmatchIndex(buf); m != nil {
		consider(&markerMatch{kind: KindWaiting, loc: m[0:2], name: strings.TrimSpace(buf[m[2]:m[3]])})
	}
	return best
}

// textToken wraps text as a content token, attaching a waiting hint when
// the phrase heuristic fires.
func (d *Detector) textToken(text string) []Token {
	tokens := []Token{{Kind: KindText, Text: text}}
	d.mu.RLock()
	heuristics := d.heuristics
	roles := d.humanRoles
	d.mu.RUnlock()
	if !heuristics {
		return tokens
	}
	if name := waitingPhraseRole(text, roles); name != "" {
		tokens = append(tokens, Token{Kind: KindWaitingHint, Name: name})
	}
	return tokens
}

// waitingPhraseRole returns the human role a waiting phrase refers to,
// or "" when no phrase (or no known role) is present. Substring matching
// against the known role set; false positives and negatives are accepted
// and corrected by the status poll.
func waitingPhraseRole(text string, roles []string) string {
	lower := strings.ToLower(text)
	phrased := (strings.Contains(lower, "waiting for") && strings.Contains(lower, "input")) ||
		(strings.Contains(text, "等待") && strings.Contains(text, "输入"))
	if !phrased {
		return ""
	}
	for _, role := range roles {
		if role != "" && strings.Contains(text, role) {
			return role
		}
	}
	return ""
}

// holdbackStart returns the index in buf where a possibly-incomplete
// marker begins, or len(buf) when the tail is definitely plain text.
func holdbackStart(buf string) int {
	from := 0
	if len(buf) > maxCarry {
		from = len(buf) - maxCarry
	}
	for i := from; i < len(buf); i++ {
		c := buf[i]
		if c != '#' && c != '[' {
			continue
		}
		if couldBeMarkerPrefix(buf[i:]) {
			return i
		}
	}
	return len(buf)
}

// couldBeMarkerPrefix reports whether rest, as the tail of the buffer,
// might still grow into a marker once more of the stream arrives.
func couldBeMarkerPrefix(rest string) bool {
	if rest[0] == '[' {
		if strings.HasPrefix(waitingTagOpen, rest) {
			return true
		}
		return strings.HasPrefix(rest, waitingTagOpen) &&
			!strings.ContainsAny(rest, "]\n")
	}

	// Leading '#' run. Four or more is a markdown heading the grammar
	// never produces.
	hashes := 0
	for hashes < len(rest) && rest[hashes] == '#' {
		hashes++
	}
	if hashes > 3 {
		return false
	}
	if hashes == len(rest) {
		return true
	}
	tail := rest[hashes:]
	if strings.ContainsRune(tail, '\n') {
		return false
	}

	switch hashes {
	case 3:
		// Speaker header in progress until its colon shows up. A colon
		// present without a full match means it was never a header.
		if strings.ContainsAny(tail, ":：") {
			return false
		}
		return len(tail) < 80
	case 2:
		// End heading: what follows the hashes must be a prefix of one
		// of the known literals.
		t := strings.TrimLeft(tail, " \t")
		if t == "" {
			return true
		}
		for _, lit := range endLiterals {
			if strings.HasPrefix(lit, t) {
				return true
			}
		}
		return false
	default:
		// A single '#' followed by anything else can no longer become a
		// "##" or "###" marker.
		return false
	}
}
