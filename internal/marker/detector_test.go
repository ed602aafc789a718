// internal/marker/detector_test.go
package marker

import (
	"strings"
	"testing"
)

// feedAll feeds each delta in order and returns all tokens plus the flush.
func feedAll(d *Detector, deltas ...string) []Token {
	var tokens []Token
	for _, delta := range deltas {
		tokens = append(tokens, d.Feed(delta)...)
	}
	tokens = append(tokens, d.Flush()...)
	return tokens
}

// joinText concatenates the text of all KindText tokens.
func joinText(tokens []Token) string {
	var out string
	for _, tok := range tokens {
		if tok.Kind == KindText {
			out += tok.Text
		}
	}
	return out
}

func TestSpeakerHeader(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "### Alice speaking: ", "Hello")

	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].Kind != KindSpeaker || tokens[0].Name != "Alice" {
		t.Errorf("expected speaker Alice, got %+v", tokens[0])
	}
	if tokens[1].Kind != KindText || tokens[1].Text != "Hello" {
		t.Errorf("expected text Hello, got %+v", tokens[1])
	}
}

func TestSpeakerHeaderChinese(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "### 主持人 发言：大家好")

	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].Kind != KindSpeaker || tokens[0].Name != "主持人" {
		t.Errorf("expected speaker 主持人, got %+v", tokens[0])
	}
	if tokens[1].Text != "大家好" {
		t.Errorf("expected text 大家好, got %q", tokens[1].Text)
	}
}

func TestSpeakerHeaderSplitAcrossDeltas(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "### Alice spea", "king: Hello")

	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].Kind != KindSpeaker || tokens[0].Name != "Alice" {
		t.Errorf("expected speaker Alice, got %+v", tokens[0])
	}
	if tokens[1].Text != "Hello" {
		t.Errorf("expected text Hello, got %q", tokens[1].Text)
	}
}

func TestTwoSpeakers(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d,
		"### Alice speaking: ", "Hello", "### Bob speaking: ", "Hi")

	want := []Token{
		{Kind: KindSpeaker, Name: "Alice"},
		{Kind: KindText, Text: "Hello"},
		{Kind: KindSpeaker, Name: "Bob"},
		{Kind: KindText, Text: "Hi"},
	}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %+v", len(want), len(tokens), tokens)
	}
	for i, w := range want {
		if tokens[i] != w {
			t.Errorf("token %d: expected %+v, got %+v", i, w, tokens[i])
		}
	}
}

func TestSessionEndHeading(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "## Meeting End\n", "Summary line 1")

	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].Kind != KindSessionEnd {
		t.Errorf("expected session end, got %+v", tokens[0])
	}
	if tokens[1].Text != "Summary line 1" {
		t.Errorf("expected summary text, got %q", tokens[1].Text)
	}
}

func TestSessionEndHeadingChinese(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "## 会议总结\n总结内容")

	if tokens[0].Kind != KindSessionEnd {
		t.Fatalf("expected session end, got %+v", tokens[0])
	}
	if joinText(tokens) != "总结内容" {
		t.Errorf("expected remaining text, got %q", joinText(tokens))
	}
}

func TestSessionEndHeadingSameLineText(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "## Meeting Summary: the group agreed on option B\n")

	if tokens[0].Kind != KindSessionEnd {
		t.Fatalf("expected session end, got %+v", tokens[0])
	}
	if joinText(tokens) != "the group agreed on option B" {
		t.Errorf("heading-line summary text lost: %q", joinText(tokens))
	}
}

func TestSessionEndHeadingSameLineTextChinese(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "## 会议总结：大家达成一致\n后续内容")

	if tokens[0].Kind != KindSessionEnd {
		t.Fatalf("expected session end, got %+v", tokens[0])
	}
	if joinText(tokens) != "大家达成一致后续内容" {
		t.Errorf("heading-line summary text lost: %q", joinText(tokens))
	}
}

func TestWaitingTag(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "[WAITING_FOR_HUMAN_INPUT:Alice]")

	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].Kind != KindWaiting || tokens[0].Name != "Alice" {
		t.Errorf("expected waiting Alice, got %+v", tokens[0])
	}
}

// The structured tag must eventually classify no matter where the chunk
// boundary falls inside it.
func TestWaitingTagSplitAtEveryBoundary(t *testing.T) {
	full := "[WAITING_FOR_HUMAN_INPUT:Alice]"
	for cut := 1; cut < len(full); cut++ {
		d := NewDetector()
		tokens := feedAll(d, full[:cut], full[cut:])

		var found bool
		for _, tok := range tokens {
			if tok.Kind == KindWaiting && tok.Name == "Alice" {
				found = true
			}
		}
		if !found {
			t.Errorf("cut at %d: waiting tag not detected: %+v", cut, tokens)
		}
	}
}

func TestWaitingTagMidBlock(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "thinking... [WAITING_FOR_HUMAN_INPUT:Bob] done")

	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].Text != "thinking... " {
		t.Errorf("unexpected leading text %q", tokens[0].Text)
	}
	if tokens[1].Kind != KindWaiting || tokens[1].Name != "Bob" {
		t.Errorf("expected waiting Bob, got %+v", tokens[1])
	}
	if tokens[2].Text != " done" {
		t.Errorf("unexpected trailing text %q", tokens[2].Text)
	}
}

func TestWaitingPhraseHeuristic(t *testing.T) {
	d := NewDetector()
	d.SetHumanRoles([]string{"Alice", "Bob"})
	tokens := d.Feed("Now waiting for human role Alice input before continuing.\n")

	var hint *Token
	for i := range tokens {
		if tokens[i].Kind == KindWaitingHint {
			hint = &tokens[i]
		}
	}
	if hint == nil {
		t.Fatalf("expected a waiting hint, got %+v", tokens)
	}
	if hint.Name != "Alice" {
		t.Errorf("expected hint for Alice, got %q", hint.Name)
	}
	// The prose itself still flows through as content.
	if joinText(tokens) == "" {
		t.Error("phrase heuristic must not consume the text")
	}
}

func TestWaitingPhraseHeuristicChinese(t *testing.T) {
	d := NewDetector()
	d.SetHumanRoles([]string{"评审员"})
	tokens := d.Feed("等待人类角色 评审员 输入\n")

	var found bool
	for _, tok := range tokens {
		if tok.Kind == KindWaitingHint && tok.Name == "评审员" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected hint for 评审员, got %+v", tokens)
	}
}

func TestWaitingPhraseUnknownRoleIgnored(t *testing.T) {
	d := NewDetector()
	d.SetHumanRoles([]string{"Alice"})
	tokens := d.Feed("waiting for human role Mallory input\n")

	for _, tok := range tokens {
		if tok.Kind == KindWaitingHint {
			t.Errorf("hint for unknown role must not fire: %+v", tok)
		}
	}
}

func TestHeuristicsDisabled(t *testing.T) {
	d := NewDetector()
	d.SetHumanRoles([]string{"Alice"})
	d.SetHeuristics(false)
	tokens := d.Feed("waiting for human role Alice input\n")

	for _, tok := range tokens {
		if tok.Kind == KindWaitingHint {
			t.Errorf("heuristics disabled but hint fired: %+v", tok)
		}
	}
}

func TestPlainMarkdownHeadingReleased(t *testing.T) {
	d := NewDetector()
	tokens := feedAll(d, "### Key Points", "\n- fast\n- simple\n")

	if joinText(tokens) != "### Key Points\n- fast\n- simple\n" {
		t.Errorf("model markdown heading mangled: %q", joinText(tokens))
	}
	for _, tok := range tokens {
		if tok.Kind == KindSpeaker {
			t.Errorf("markdown heading misread as speaker: %+v", tok)
		}
	}
}

func TestFlushReleasesCarry(t *testing.T) {
	d := NewDetector()
	first := d.Feed("trailing text ###")
	if joinText(first) != "trailing text " {
		t.Errorf("expected marker-prefix suffix withheld, got %q", joinText(first))
	}
	if d.Pending() != "###" {
		t.Errorf("expected pending %q, got %q", "###", d.Pending())
	}

	flushed := d.Flush()
	if joinText(flushed) != "###" {
		t.Errorf("expected flush to release %q, got %q", "###", joinText(flushed))
	}
	if d.Pending() != "" {
		t.Errorf("carry not cleared: %q", d.Pending())
	}
}

func TestCarryBounded(t *testing.T) {
	d := NewDetector()
	long := "### " + strings.Repeat("very long non-header text ", 30)
	d.Feed(long)
	if len(d.Pending()) > maxCarry {
		t.Errorf("carry exceeds bound: %d bytes", len(d.Pending()))
	}
}
