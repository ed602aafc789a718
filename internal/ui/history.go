// internal/ui/history.go
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"parley/internal/db"
)

// ViewMode represents the current view state
type ViewMode int

const (
	ViewNormal ViewMode = iota
	ViewHistory
)

// HistoryState holds the state for the session history browser
type HistoryState struct {
	sessions  []db.SessionRecord
	cursor    int
	scrollTop int
	maxHeight int
}

// NewHistoryState creates a new history state
func NewHistoryState() *HistoryState {
	return &HistoryState{
		sessions:  nil,
		cursor:    0,
		scrollTop: 0,
		maxHeight: 20, // default, will be updated based on terminal size
	}
}

// Up moves the cursor up
func (h *HistoryState) Up() {
	if h.cursor > 0 {
		h.cursor--
		// Adjust scroll if cursor goes above visible area
		if h.cursor < h.scrollTop {
			h.scrollTop = h.cursor
		}
	}
}

// Down moves the cursor down
func (h *HistoryState) Down() {
	if h.cursor < len(h.sessions)-1 {
		h.cursor++
		// Adjust scroll if cursor goes below visible area
		if h.cursor >= h.scrollTop+h.maxHeight {
			h.scrollTop = h.cursor - h.maxHeight + 1
		}
	}
}

// Selected returns the currently selected session record, or nil if none
func (h *HistoryState) Selected() *db.SessionRecord {
	if h.cursor >= 0 && h.cursor < len(h.sessions) {
		return &h.sessions[h.cursor]
	}
	return nil
}

// LoadSessions loads stored sessions from the database
func (h *HistoryState) LoadSessions(store *db.Store) error {
	if store == nil {
		return fmt.Errorf("database not available")
	}
	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}
	h.sessions = sessions
	h.cursor = 0
	h.scrollTop = 0
	return nil
}

// SetMaxHeight updates the max visible height
func (h *HistoryState) SetMaxHeight(height int) {
	h.maxHeight = height - 10 // Leave room for header/footer
	if h.maxHeight < 5 {
		h.maxHeight = 5
	}
}

// Render renders the history browser overlay
func (h *HistoryState) Render(width, height int) string {
	var content strings.Builder

	// Title
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Render("SESSION HISTORY")
	content.WriteString(title)
	content.WriteString("\n")
	content.WriteString(DimStyle.Render("Select a past session to view its transcript"))
	content.WriteString("\n\n")

	if len(h.sessions) == 0 {
		content.WriteString(DimStyle.Render("No past sessions found."))
		content.WriteString("\n\n")
		content.WriteString(DimStyle.Render("Finished discussions are stored here automatically."))
	} else {
		// Calculate visible range
		visibleEnd := h.scrollTop + h.maxHeight
		if visibleEnd > len(h.sessions) {
			visibleEnd = len(h.sessions)
		}

		// Header row
		header := fmt.Sprintf("  %-8s  %-28s  %-18s  %s",
			"ID", "Topic", "Status", "Ended")
		content.WriteString(DimStyle.Render(header))
		content.WriteString("\n")
		content.WriteString(DimStyle.Render(strings.Repeat("-", 72)))
		content.WriteString("\n")

		// Session rows
		for i := h.scrollTop; i < visibleEnd; i++ {
			rec := h.sessions[i]

			// Truncate topic if too long
			topic := rec.Topic
			if len(topic) > 26 {
				topic = topic[:26] + ".."
			}

			// Format time
			timeStr := rec.EndedAt.Format("2006-01-02 15:04")
			if time.Since(rec.EndedAt) < 24*time.Hour {
				timeStr = rec.EndedAt.Format("Today 15:04")
			}

			// Status with color
			var statusStyle lipgloss.Style
			switch rec.Status {
			case "ended":
				statusStyle = lipgloss.NewStyle().Foreground(Green)
			case "waiting_for_human":
				statusStyle = StatusWarn
			default:
				statusStyle = DimStyle
			}

			// Build the line
			cursor := "  "
			lineStyle := DimStyle
			if i == h.cursor {
				cursor = "> "
				lineStyle = lipgloss.NewStyle().Foreground(Cyan)
			}

			id := rec.ID
			if len(id) > 8 {
				id = id[:8]
			}
			statusStr := statusStyle.Width(18).Render(rec.Status)
			line := fmt.Sprintf("%-8s  %-28s  %s  %s",
				id, topic, statusStr, timeStr)

			content.WriteString(cursor)
			content.WriteString(lineStyle.Render(line))
			content.WriteString("\n")
		}

		// Scroll indicator
		if len(h.sessions) > h.maxHeight {
			scrollInfo := fmt.Sprintf("Showing %d-%d of %d",
				h.scrollTop+1, visibleEnd, len(h.sessions))
			content.WriteString("\n")
			content.WriteString(DimStyle.Render(scrollInfo))
		}
	}

	// Footer with keybindings
	content.WriteString("\n\n")
	footer := DimStyle.Render("Up/Down: Navigate | Enter: View | Esc: Cancel")
	content.WriteString(footer)

	// Build the overlay box
	overlayStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 2).
		MaxWidth(width - 10).
		MaxHeight(height - 4)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlayStyle.Render(content.String()),
	)
}

// LoadTranscript reads a stored session back into renderable blocks.
func LoadTranscript(store *db.Store, sessionID string) ([]db.BlockRecord, error) {
	if store == nil {
		return nil, fmt.Errorf("database not available")
	}
	blocks, err := store.GetBlocks(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	return blocks, nil
}
