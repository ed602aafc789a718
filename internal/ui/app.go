// Package ui is the bubbletea front end: a chat view over the live
// session transcript, an input line, and overlays for help and history.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parley/internal/api"
	"parley/internal/commands"
	"parley/internal/config"
	"parley/internal/controller"
	"parley/internal/db"
	"parley/internal/export"
	"parley/internal/session"
)

type Model struct {
	width, height int
	ready         bool

	client *api.Client
	cfg    *config.Config
	store  *db.Store // nil when the transcript store is unavailable
	logger *slog.Logger

	ctrl     *controller.Controller
	notifier *Notifier
	chat     *ChatView
	input    textinput.Model

	mode     ViewMode
	showHelp bool
	history  *HistoryState

	// Read-only transcript loaded from history, nil when following live.
	viewing []session.SpeakerBlock

	statusMsg string
	errMsg    string

	initialTopic string
}

// New creates the TUI model. store may be nil; history and persistence
// are then disabled. initialTopic, when non-empty, starts a discussion
// immediately.
func New(client *api.Client, cfg *config.Config, store *db.Store, logger *slog.Logger, initialTopic string) *Model {
	input := textinput.New()
	input.Placeholder = "Type /new <topic> to start, /help for commands"
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	if logger == nil {
		logger = slog.Default()
	}

	return &Model{
		client:       client,
		cfg:          cfg,
		store:        store,
		logger:       logger,
		input:        input,
		history:      NewHistoryState(),
		initialTopic: initialTopic,
	}
}

// Messages flowing into the update loop.

type transcriptMsg struct{}

type sessionStartedMsg struct {
	ctrl     *controller.Controller
	notifier *Notifier
}

type sessionErrMsg struct{ err error }

type ctrlEventMsg struct {
	ev controller.Event
	ok bool
}

type submitResultMsg struct{ err error }

type groupsMsg struct {
	groups []api.Group
	err    error
}

type rolesMsg struct {
	roles []api.Role
	err   error
}

type exportedMsg struct {
	path string
	err  error
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.initialTopic != "" {
		cmds = append(cmds, m.startSession(m.initialTopic))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		if m.chat == nil {
			m.chat = NewChatView(msg.Width, m.chatHeight())
		} else {
			m.chat.Resize(msg.Width, m.chatHeight())
		}
		m.history.SetMaxHeight(msg.Height)
		m.refreshChat()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case transcriptMsg:
		m.refreshChat()
		return m, m.waitTranscript()

	case sessionStartedMsg:
		m.ctrl = msg.ctrl
		m.notifier = msg.notifier
		m.viewing = nil
		m.statusMsg = "Discussion started"
		m.errMsg = ""
		m.refreshChat()
		return m, tea.Batch(m.waitTranscript(), m.waitEvent())

	case sessionErrMsg:
		m.errMsg = msg.err.Error()
		m.statusMsg = ""
		return m, nil

	case ctrlEventMsg:
		return m.handleEvent(msg)

	case submitResultMsg:
		if msg.err != nil {
			m.errMsg = "submit failed: " + msg.err.Error()
		} else {
			m.errMsg = ""
			m.statusMsg = "Input submitted, discussion resuming"
		}
		m.refreshChat()
		return m, nil

	case groupsMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.statusMsg = formatGroups(msg.groups)
		return m, nil

	case rolesMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.statusMsg = formatRoles(msg.roles)
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.errMsg = "export failed: " + msg.err.Error()
		} else {
			m.statusMsg = "Exported to " + msg.path
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Overlays swallow keys first.
	if m.showHelp {
		switch msg.String() {
		case "esc", "f1", "?", "q":
			m.showHelp = false
		}
		return m, nil
	}
	if m.mode == ViewHistory {
		switch msg.String() {
		case "esc":
			m.mode = ViewNormal
		case "up", "k":
			m.history.Up()
		case "down", "j":
			m.history.Down()
		case "enter":
			if rec := m.history.Selected(); rec != nil {
				m.openStoredTranscript(rec.ID)
			}
			m.mode = ViewNormal
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		if m.ctrl != nil {
			m.ctrl.Stop()
		}
		return m, tea.Quit

	case "f1":
		m.showHelp = true
		return m, nil

	case "?":
		// Only treat as help when the input line is empty.
		if m.input.Value() == "" {
			m.showHelp = true
			return m, nil
		}

	case "enter":
		return m.handleSubmit()

	case "pgup", "pgdown":
		if m.chat != nil {
			var cmd tea.Cmd
			m.chat.Viewport, cmd = m.chat.Viewport.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.Reset()

	if cmd := commands.Parse(value); cmd != nil {
		return m.runCommand(cmd)
	}

	// Plain text goes through the human gate when one is open.
	if m.ctrl != nil && m.ctrl.Gate().Open() {
		return m, m.submitInput(value)
	}

	if m.ctrl == nil {
		m.errMsg = "no active discussion; start one with /new <topic>"
	} else {
		m.errMsg = "the discussion is not waiting for your input right now"
	}
	return m, nil
}

func (m *Model) runCommand(cmd commands.Command) (tea.Model, tea.Cmd) {
	m.errMsg = ""
	switch c := cmd.(type) {
	case commands.Help:
		m.showHelp = true

	case commands.NewSession:
		if m.ctrl != nil && m.ctrl.Session().Status() != session.StatusEnded {
			m.errMsg = "a discussion is already running; /end it first"
			return m, nil
		}
		m.statusMsg = "Starting discussion…"
		return m, m.startSession(c.Topic)

	case commands.EndSession:
		if m.ctrl == nil {
			m.errMsg = "no active discussion"
			return m, nil
		}
		m.ctrl.Stop()
		m.statusMsg = "Stopped following the discussion"

	case commands.ListGroups:
		return m, m.fetchGroups()

	case commands.ListRoles:
		return m, m.fetchRoles()

	case commands.ShowStatus:
		m.statusMsg = m.statusLine()

	case commands.ShowHistory:
		if m.store == nil {
			m.errMsg = "transcript store unavailable"
			return m, nil
		}
		if err := m.history.LoadSessions(m.store); err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.mode = ViewHistory

	case commands.Export:
		return m, m.exportTranscript()

	case commands.Quit:
		if m.ctrl != nil {
			m.ctrl.Stop()
		}
		return m, tea.Quit

	case commands.ParseError:
		m.errMsg = c.Message
	}
	return m, nil
}

func (m *Model) handleEvent(msg ctrlEventMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		return m, nil
	}
	switch msg.ev.Kind {
	case controller.EventWaiting:
		m.statusMsg = fmt.Sprintf("Waiting for input from %s", msg.ev.Role)
	case controller.EventResumed:
		m.statusMsg = "Discussion resumed"
	case controller.EventEnded:
		m.statusMsg = "Discussion ended"
	case controller.EventError:
		if msg.ev.Err != nil {
			m.errMsg = msg.ev.Err.Error()
		}
	}
	m.refreshChat()
	return m, m.waitEvent()
}

// Commands.

func (m *Model) startSession(topic string) tea.Cmd {
	client, cfg, store, logger := m.client, m.cfg, m.store, m.logger
	return func() tea.Msg {
		n := NewNotifier()
		opts := []controller.Option{
			controller.WithPollInterval(cfg.PollInterval()),
			controller.WithLogger(logger),
			controller.WithHeuristics(cfg.Heuristics()),
			controller.WithStreamIdleTimeout(cfg.StreamIdleTimeout()),
		}
		if store != nil {
			opts = append(opts, controller.WithStore(store))
		}
		ctrl := controller.New(client, topic, cfg.Session.DefaultGroup, n, opts...)
		if err := ctrl.Start(context.Background()); err != nil {
			return sessionErrMsg{err}
		}
		return sessionStartedMsg{ctrl: ctrl, notifier: n}
	}
}

func (m *Model) waitTranscript() tea.Cmd {
	n := m.notifier
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		n.Wait()
		return transcriptMsg{}
	}
}

func (m *Model) waitEvent() tea.Cmd {
	ctrl := m.ctrl
	if ctrl == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ctrl.Events()
		return ctrlEventMsg{ev: ev, ok: ok}
	}
}

func (m *Model) submitInput(message string) tea.Cmd {
	g := m.ctrl.Gate()
	return func() tea.Msg {
		return submitResultMsg{err: g.Submit(context.Background(), message)}
	}
}

func (m *Model) fetchGroups() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		groups, err := client.ListGroups(context.Background())
		return groupsMsg{groups: groups, err: err}
	}
}

func (m *Model) fetchRoles() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		roles, err := client.ListRoles(context.Background())
		return rolesMsg{roles: roles, err: err}
	}
}

func (m *Model) exportTranscript() tea.Cmd {
	if m.ctrl == nil {
		return func() tea.Msg {
			return exportedMsg{err: fmt.Errorf("no active discussion to export")}
		}
	}
	sess := m.ctrl.Session()
	return func() tea.Msg {
		tr := transcriptForExport(sess)
		home, err := os.UserHomeDir()
		if err != nil {
			return exportedMsg{err: err}
		}
		path, err := export.WriteTranscript(tr, filepath.Join(home, "parley"))
		return exportedMsg{path: path, err: err}
	}
}

func (m *Model) openStoredTranscript(id string) {
	blocks, err := LoadTranscript(m.store, id)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.viewing = make([]session.SpeakerBlock, 0, len(blocks))
	for _, b := range blocks {
		m.viewing = append(m.viewing, session.SpeakerBlock{
			ID:      fmt.Sprintf("%s-%d", b.SessionID, b.ID),
			Speaker: b.Speaker,
			Kind:    kindFromString(b.Kind),
			Text:    b.Content,
		})
	}
	m.statusMsg = "Viewing stored transcript (start a new discussion to leave)"
	m.refreshChat()
}

// View state helpers.

func (m *Model) refreshChat() {
	if m.chat == nil {
		return
	}
	if m.viewing != nil {
		m.chat.Update(m.viewing, "")
		return
	}
	if m.ctrl == nil {
		m.chat.Update(nil, "")
		return
	}
	sess := m.ctrl.Session()
	waitingFor := ""
	if sess.Status() == session.StatusWaitingForHuman {
		waitingFor = sess.WaitingAgent()
	}
	m.chat.Update(sess.Snapshot(), waitingFor)
	m.syncPrompt(waitingFor)
}

// syncPrompt switches the input line between the normal prompt and the
// human-gate prompt.
func (m *Model) syncPrompt(waitingFor string) {
	if waitingFor != "" {
		m.input.Prompt = StatusWarn.Render(waitingFor + " > ")
		m.input.Placeholder = "The discussion is waiting for you"
	} else {
		m.input.Prompt = "> "
		m.input.Placeholder = "Type /new <topic> to start, /help for commands"
	}
}

func (m *Model) statusLine() string {
	if m.ctrl == nil {
		return "No active discussion"
	}
	sess := m.ctrl.Session()
	line := fmt.Sprintf("session %s: %s", orUnknown(sess.ID()), sess.Status())
	if role := sess.WaitingAgent(); role != "" && sess.Status() == session.StatusWaitingForHuman {
		line += " (waiting for " + role + ")"
	}
	return line
}

func (m *Model) chatHeight() int {
	h := m.height - 4 // input line, status line, padding
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.mode == ViewHistory {
		return m.history.Render(m.width, m.height)
	}

	var sb strings.Builder
	if m.chat != nil {
		sb.WriteString(m.chat.Viewport.View())
		sb.WriteString("\n")
	}

	switch {
	case m.errMsg != "":
		sb.WriteString(ErrorStyle.Render(m.errMsg))
	case m.statusMsg != "":
		sb.WriteString(DimStyle.Render(m.statusMsg))
	}
	sb.WriteString("\n")
	sb.WriteString(m.input.View())

	return lipgloss.NewStyle().Width(m.width).Render(sb.String())
}

// Formatting helpers.

func formatGroups(groups []api.Group) string {
	if len(groups) == 0 {
		return "No groups configured"
	}
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		s := g.Name
		if len(g.Roles) > 0 {
			s += " [" + strings.Join(g.Roles, ", ") + "]"
		}
		parts = append(parts, s)
	}
	return "Groups: " + strings.Join(parts, "; ")
}

func formatRoles(roles []api.Role) string {
	if len(roles) == 0 {
		return "No roles configured"
	}
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		s := r.Name
		if r.IsHuman {
			s += " (human)"
		}
		parts = append(parts, s)
	}
	return "Roles: " + strings.Join(parts, ", ")
}

func transcriptForExport(sess *session.Session) *export.Transcript {
	snap := sess.Snapshot()
	blocks := make([]export.TranscriptBlock, 0, len(snap))
	for _, b := range snap {
		blocks = append(blocks, export.TranscriptBlock{
			Speaker: b.Speaker,
			Kind:    b.Kind.String(),
			Content: b.Text,
		})
	}
	return &export.Transcript{
		ID:        orUnknown(sess.ID()),
		Topic:     sess.Topic(),
		GroupName: sess.Group(),
		Status:    sess.Status().String(),
		CreatedAt: time.Now(),
		Blocks:    blocks,
	}
}

func kindFromString(s string) session.Kind {
	switch s {
	case "human":
		return session.KindHuman
	case "summary":
		return session.KindSummary
	default:
		return session.KindAI
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
