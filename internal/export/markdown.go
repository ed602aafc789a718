// internal/export/markdown.go
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TranscriptBlock represents a single speaker block to export
type TranscriptBlock struct {
	Speaker string
	Kind    string // "ai", "human" or "summary"
	Content string
}

// Transcript contains the data needed to export a session
type Transcript struct {
	ID        string
	Topic     string
	GroupName string
	Status    string
	CreatedAt time.Time
	EndedAt   time.Time
	Blocks    []TranscriptBlock
}

// ExportTranscript generates a formatted markdown string from a session transcript
func ExportTranscript(tr *Transcript) string {
	var sb strings.Builder

	// Title header
	sb.WriteString("# ")
	sb.WriteString(tr.Topic)
	sb.WriteString("\n\n")

	// Metadata section
	sb.WriteString("---\n\n")
	sb.WriteString(fmt.Sprintf("**Session ID:** `%s`\n\n", tr.ID))
	sb.WriteString(fmt.Sprintf("**Started:** %s\n\n", tr.CreatedAt.Format("2006-01-02 15:04:05")))
	if tr.GroupName != "" {
		sb.WriteString(fmt.Sprintf("**Group:** `%s`\n\n", tr.GroupName))
	}
	if tr.Status != "" {
		sb.WriteString(fmt.Sprintf("**Status:** %s\n\n", tr.Status))
	}

	// Speakers
	if speakers := speakerNames(tr.Blocks); len(speakers) > 0 {
		sb.WriteString("**Speakers:** ")
		sb.WriteString(strings.Join(speakers, ", "))
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\n\n")

	// Transcript section
	sb.WriteString("## Transcript\n\n")

	for i, block := range tr.Blocks {
		sb.WriteString(fmt.Sprintf("### %s\n\n", formatSpeaker(block)))

		// Block content
		content := strings.TrimSpace(block.Content)
		if containsCodeBlock(content) {
			// Content already has code blocks, render as-is
			sb.WriteString(content)
		} else {
			// Wrap in blockquote for visual distinction
			lines := strings.Split(content, "\n")
			for _, line := range lines {
				sb.WriteString("> ")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")

		// Add horizontal rule between blocks (except after last)
		if i < len(tr.Blocks)-1 {
			sb.WriteString("---\n\n")
		}
	}

	// Footer
	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from Parley on %s*\n", time.Now().Format("2006-01-02 15:04:05")))

	return sb.String()
}

// WriteTranscript exports a session to a markdown file in the transcripts directory
func WriteTranscript(tr *Transcript, baseDir string) (string, error) {
	// Generate filename: YYYY-MM-DD-topic.md
	datePart := tr.CreatedAt.Format("2006-01-02")
	namePart := sanitizeFilename(tr.Topic)
	filename := fmt.Sprintf("%s-%s.md", datePart, namePart)

	// Ensure transcripts directory exists
	outDir := filepath.Join(baseDir, "transcripts")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create transcripts directory: %w", err)
	}

	// Full path
	path := filepath.Join(outDir, filename)

	// Generate markdown content
	content := ExportTranscript(tr)

	// Write file
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return path, nil
}

// formatSpeaker returns a display heading for a speaker block
func formatSpeaker(block TranscriptBlock) string {
	name := block.Speaker
	if name == "" {
		name = "Narration"
	}
	switch block.Kind {
	case "human":
		return name + " (human)"
	case "summary":
		return name
	default:
		return name
	}
}

// speakerNames returns the distinct speakers in appearance order
func speakerNames(blocks []TranscriptBlock) []string {
	seen := make(map[string]bool)
	var names []string
	for _, b := range blocks {
		if b.Speaker == "" || b.Kind == "summary" || seen[b.Speaker] {
			continue
		}
		seen[b.Speaker] = true
		names = append(names, b.Speaker)
	}
	return names
}

// sanitizeFilename removes/replaces characters unsuitable for filenames
func sanitizeFilename(name string) string {
	// Convert to lowercase
	name = strings.ToLower(name)

	// Replace spaces with hyphens
	name = strings.ReplaceAll(name, " ", "-")

	// Remove or replace problematic characters
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '-' || r == '_':
			sb.WriteRune(r)
		default:
			// Skip other characters
		}
	}

	result := sb.String()

	// Collapse multiple hyphens
	for strings.Contains(result, "--") {
		result = strings.ReplaceAll(result, "--", "-")
	}

	// Trim leading/trailing hyphens
	result = strings.Trim(result, "-")

	// Ensure non-empty
	if result == "" {
		result = "session"
	}

	// Limit length
	if len(result) > 50 {
		result = result[:50]
	}

	return result
}

// containsCodeBlock checks if content already has markdown code blocks
func containsCodeBlock(content string) bool {
	return strings.Contains(content, "```")
}
