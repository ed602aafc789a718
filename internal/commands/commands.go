// Package commands handles slash command parsing for the parley TUI.
package commands

import (
	"strings"
)

// Command interface for all command types
type Command interface {
	Type() string
}

// Help returns help text
type Help struct{}

func (Help) Type() string { return "help" }

// NewSession starts a new discussion on a topic
type NewSession struct {
	Topic string
}

func (NewSession) Type() string { return "new" }

// EndSession ends the current discussion locally
type EndSession struct{}

func (EndSession) Type() string { return "end" }

// ListGroups lists the discussion groups offered by the backend
type ListGroups struct{}

func (ListGroups) Type() string { return "groups" }

// ListRoles lists the roles of the current group
type ListRoles struct{}

func (ListRoles) Type() string { return "roles" }

// ShowStatus shows the current session status
type ShowStatus struct{}

func (ShowStatus) Type() string { return "status" }

// ShowHistory shows stored session history
type ShowHistory struct{}

func (ShowHistory) Type() string { return "history" }

// Export exports the current session transcript
type Export struct{}

func (Export) Type() string { return "export" }

// Quit exits the application
type Quit struct{}

func (Quit) Type() string { return "quit" }

// ParseError represents a command parsing error
type ParseError struct {
	Message string
}

func (ParseError) Type() string { return "error" }

// Parse parses user input and returns the appropriate Command.
// Returns nil if the input is not a slash command.
func Parse(input string) Command {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	// Split into command and arguments
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help":
		return Help{}

	case "/new":
		topic := strings.Join(args, " ")
		if topic == "" {
			return ParseError{Message: "/new requires a topic"}
		}
		return NewSession{Topic: topic}

	case "/end":
		return EndSession{}

	case "/groups":
		return ListGroups{}

	case "/roles":
		return ListRoles{}

	case "/status":
		return ShowStatus{}

	case "/history", "/sessions":
		return ShowHistory{}

	case "/export":
		return Export{}

	case "/quit", "/exit":
		return Quit{}

	default:
		return ParseError{Message: "unknown command: " + cmd}
	}
}

// HelpText returns the help text for all available commands.
func HelpText() string {
	return `Available commands:
  /help          - Show this help
  /new <topic>   - Start a new discussion on a topic
  /end           - Stop following the current discussion
  /groups        - List available discussion groups
  /roles         - List roles in the current group
  /status        - Show current session status
  /history       - Show stored session history
  /export        - Export the current transcript to markdown
  /quit          - Exit`
}
