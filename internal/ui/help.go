// internal/ui/help.go
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Help overlay content and rendering

var (
	// Help section title style
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan).
			MarginBottom(1)

	// Help section header style
	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Yellow).
				MarginTop(1)

	// Help key style (for keybindings)
	helpKeyStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	// Help command style (for slash commands)
	helpCmdStyle = lipgloss.NewStyle().
			Foreground(Magenta)

	// Help description style
	helpDescStyle = lipgloss.NewStyle().
			Foreground(White)

	// Help dim style (for secondary info)
	helpDimStyle = lipgloss.NewStyle().
			Foreground(Dim)
)

// HelpContent returns the formatted help overlay content
func HelpContent(width, height int) string {
	var content strings.Builder

	// Title
	title := helpTitleStyle.Render("PARLEY HELP")
	content.WriteString(title)
	content.WriteString("\n\n")

	// Keybindings section
	content.WriteString(helpSectionStyle.Render("KEYBINDINGS"))
	content.WriteString("\n\n")

	keybindings := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send input / run slash command"},
		{"PgUp/PgDn", "Scroll the transcript"},
		{"F1 / ?", "Toggle this help overlay"},
		{"Esc", "Close overlay / Return to input"},
		{"Ctrl+C", "Quit Parley"},
	}

	for _, kb := range keybindings {
		key := helpKeyStyle.Width(14).Render(kb.key)
		desc := helpDescStyle.Render(kb.desc)
		content.WriteString("  " + key + "  " + desc + "\n")
	}

	// Slash commands section
	content.WriteString("\n")
	content.WriteString(helpSectionStyle.Render("SLASH COMMANDS"))
	content.WriteString("\n\n")

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help", "Show this help overlay"},
		{"/new <topic>", "Start a new discussion on a topic"},
		{"/end", "Stop following the current discussion"},
		{"/groups", "List available discussion groups"},
		{"/roles", "List roles in the current group"},
		{"/status", "Show current session status"},
		{"/history", "Browse stored session transcripts"},
		{"/export", "Export the current transcript to markdown"},
		{"/quit", "Exit Parley"},
	}

	for _, cmd := range commands {
		cmdStr := helpCmdStyle.Width(16).Render(cmd.cmd)
		desc := helpDescStyle.Render(cmd.desc)
		content.WriteString("  " + cmdStr + "  " + desc + "\n")
	}

	// Session flow section
	content.WriteString("\n")
	content.WriteString(helpSectionStyle.Render("SESSION FLOW"))
	content.WriteString("\n\n")

	flow := []string{
		"Parley follows a live multi-agent discussion on the backend.",
		"",
		"1. Start a discussion with /new <topic>",
		"2. Agent turns stream in as attributed speaker blocks",
		"3. When the discussion waits for a human role, a banner appears",
		"4. Type your message and press Enter to hand it to that role",
		"5. The discussion resumes and eventually ends with a summary",
		"",
		"Finished transcripts are stored locally; browse them with /history.",
	}

	for _, line := range flow {
		if line == "" {
			content.WriteString("\n")
		} else {
			content.WriteString("  " + helpDimStyle.Render(line) + "\n")
		}
	}

	// Footer
	content.WriteString("\n")
	footer := helpDimStyle.Render("Press F1 or Esc to close this help")
	content.WriteString(lipgloss.PlaceHorizontal(width-8, lipgloss.Center, footer))

	// Build the overlay box
	overlayStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 3).
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

// renderHelp renders the help overlay (called from app.go)
func (m *Model) renderHelp() string {
	return HelpContent(m.width, m.height)
}
