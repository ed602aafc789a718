package commands

import (
	"strings"
	"testing"
)

func TestParse_NonSlashCommand(t *testing.T) {
	tests := []string{
		"hello world",
		"",
		"   ",
		"help",
		"new topic",
		"this is not a command",
	}

	for _, input := range tests {
		result := Parse(input)
		if result != nil {
			t.Errorf("Parse(%q) = %v, want nil", input, result)
		}
	}
}

func TestParse_Help(t *testing.T) {
	tests := []string{
		"/help",
		"/HELP",
		"/Help",
		"  /help  ",
		"/help extra args ignored",
	}

	for _, input := range tests {
		result := Parse(input)
		if result == nil {
			t.Errorf("Parse(%q) = nil, want Help{}", input)
			continue
		}
		if _, ok := result.(Help); !ok {
			t.Errorf("Parse(%q) = %T, want Help", input, result)
		}
		if result.Type() != "help" {
			t.Errorf("Parse(%q).Type() = %q, want %q", input, result.Type(), "help")
		}
	}
}

func TestParse_NewSession(t *testing.T) {
	tests := []struct {
		input     string
		wantTopic string
	}{
		{"/new How should we scale the cache layer?", "How should we scale the cache layer?"},
		{"/NEW test", "test"},
		{"  /new  trimmed  ", "trimmed"},
		{"/new one two three", "one two three"},
	}

	for _, test := range tests {
		result := Parse(test.input)
		cmd, ok := result.(NewSession)
		if !ok {
			t.Errorf("Parse(%q) = %T, want NewSession", test.input, result)
			continue
		}
		if cmd.Topic != test.wantTopic {
			t.Errorf("Parse(%q).Topic = %q, want %q", test.input, cmd.Topic, test.wantTopic)
		}
	}
}

func TestParse_NewWithoutTopic(t *testing.T) {
	result := Parse("/new")
	perr, ok := result.(ParseError)
	if !ok {
		t.Fatalf("Parse(\"/new\") = %T, want ParseError", result)
	}
	if !strings.Contains(perr.Message, "topic") {
		t.Errorf("ParseError message %q should mention topic", perr.Message)
	}
}

func TestParse_SimpleCommands(t *testing.T) {
	tests := []struct {
		input    string
		wantType string
	}{
		{"/end", "end"},
		{"/groups", "groups"},
		{"/roles", "roles"},
		{"/status", "status"},
		{"/history", "history"},
		{"/sessions", "history"},
		{"/export", "export"},
		{"/quit", "quit"},
		{"/exit", "quit"},
	}

	for _, test := range tests {
		result := Parse(test.input)
		if result == nil {
			t.Errorf("Parse(%q) = nil, want %q command", test.input, test.wantType)
			continue
		}
		if result.Type() != test.wantType {
			t.Errorf("Parse(%q).Type() = %q, want %q", test.input, result.Type(), test.wantType)
		}
	}
}

func TestParse_UnknownCommand(t *testing.T) {
	result := Parse("/bogus")
	perr, ok := result.(ParseError)
	if !ok {
		t.Fatalf("Parse(\"/bogus\") = %T, want ParseError", result)
	}
	if !strings.Contains(perr.Message, "/bogus") {
		t.Errorf("ParseError message %q should name the command", perr.Message)
	}
}

func TestHelpText(t *testing.T) {
	help := HelpText()
	for _, cmd := range []string{"/help", "/new", "/end", "/groups", "/roles", "/status", "/history", "/export", "/quit"} {
		if !strings.Contains(help, cmd) {
			t.Errorf("HelpText() missing %s", cmd)
		}
	}
}
