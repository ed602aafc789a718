// internal/ui/chat.go
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"parley/internal/session"
)

// Notifier bridges the protocol core to the TUI event loop. Block state
// lives in the session; the notifier only signals that something changed
// so the view re-renders from a fresh snapshot.
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

func (n *Notifier) OpenBlock(session.SpeakerBlock)    { n.signal() }
func (n *Notifier) AppendToOpen(session.SpeakerBlock) { n.signal() }
func (n *Notifier) CloseAll()                         { n.signal() }

// Wait blocks until the next change signal.
func (n *Notifier) Wait() {
	<-n.ch
}

func (n *Notifier) signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// ChatView renders speaker blocks into a scrolling viewport. Closed
// blocks go through glamour; the open block is shown as plain text with
// a streaming cursor so partial markdown never flickers.
type ChatView struct {
	Viewport viewport.Model

	markdown *glamour.TermRenderer
	rendered map[string]renderedBlock
	width    int
}

// renderedBlock caches glamour output; textLen detects a block that was
// reopened and grew after it was first rendered.
type renderedBlock struct {
	textLen int
	out     string
}

func NewChatView(width, height int) *ChatView {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle()
	vp.MouseWheelEnabled = true

	v := &ChatView{
		Viewport: vp,
		rendered: make(map[string]renderedBlock),
	}
	v.Resize(width, height)
	return v
}

// Resize updates the viewport and rebuilds the markdown renderer for the
// new wrap width. The render cache is invalidated.
func (v *ChatView) Resize(width, height int) {
	v.Viewport.Width = width
	v.Viewport.Height = height
	v.width = width

	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		v.markdown = r
	}
	v.rendered = make(map[string]renderedBlock)
}

// Update re-renders the entire transcript from a snapshot and scrolls to
// the bottom.
func (v *ChatView) Update(blocks []session.SpeakerBlock, waitingFor string) {
	v.Viewport.SetContent(v.render(blocks, waitingFor))
	v.Viewport.GotoBottom()
}

func (v *ChatView) render(blocks []session.SpeakerBlock, waitingFor string) string {
	var sb strings.Builder

	for _, b := range blocks {
		header := SpeakerStyle(b.Speaker, b.Kind).Render(blockHeading(b))
		sb.WriteString(header)
		sb.WriteString("\n")

		if b.Open {
			sb.WriteString(indent(strings.TrimRight(b.Text, "\n")))
			sb.WriteString(DimStyle.Render("▌"))
			sb.WriteString("\n")
		} else {
			sb.WriteString(v.renderClosed(b))
		}
		sb.WriteString("\n")
	}

	if waitingFor != "" {
		banner := WaitingBanner.Render(fmt.Sprintf("Waiting for input from %s — type your message and press Enter", waitingFor))
		sb.WriteString(banner)
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderClosed runs a closed block through glamour, caching by block ID.
func (v *ChatView) renderClosed(b session.SpeakerBlock) string {
	if cached, ok := v.rendered[b.ID]; ok && cached.textLen == len(b.Text) {
		return cached.out
	}

	text := strings.TrimSpace(b.Text)
	out := indent(text) + "\n"
	if v.markdown != nil {
		if md, err := v.markdown.Render(text); err == nil {
			out = strings.TrimRight(md, "\n") + "\n"
		}
	}
	v.rendered[b.ID] = renderedBlock{textLen: len(b.Text), out: out}
	return out
}

func blockHeading(b session.SpeakerBlock) string {
	name := b.Speaker
	if name == "" {
		name = "…"
	}
	switch b.Kind {
	case session.KindHuman:
		return name + " (you)"
	default:
		return name
	}
}

func indent(text string) string {
	if text == "" {
		return ""
	}
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
