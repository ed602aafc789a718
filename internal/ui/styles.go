// internal/ui/styles.go
package ui

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"

	"parley/internal/session"
)

var (
	// Colors
	Cyan     = lipgloss.Color("#00FFFF")
	Green    = lipgloss.Color("#00FF00")
	Yellow   = lipgloss.Color("#FFD700")
	Orange   = lipgloss.Color("#FFA500")
	Red      = lipgloss.Color("#FF6B6B")
	Magenta  = lipgloss.Color("#FF00FF")
	SkyBlue  = lipgloss.Color("#87CEEB")
	Dim      = lipgloss.Color("#555555")
	White    = lipgloss.Color("#FFFFFF")
	DarkGray = lipgloss.Color("#333333")

	// Role colors. AI speakers get a stable color from this palette,
	// humans and the summary have fixed ones.
	speakerPalette = []lipgloss.Color{Cyan, Green, Magenta, Orange}

	HumanColor   = SkyBlue
	SummaryColor = Yellow

	// Box styles
	ActiveBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Cyan)

	InactiveBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Dim)

	// Text styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan)

	HumanStyle = lipgloss.NewStyle().
			Foreground(SkyBlue).
			Bold(true)

	SummaryStyle = lipgloss.NewStyle().
			Foreground(Yellow).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(Dim)

	// Waiting-for-human banner
	WaitingBanner = lipgloss.NewStyle().
			Foreground(Orange).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Orange).
			Padding(0, 1)

	// Status indicators
	StatusOK   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	StatusWarn = lipgloss.NewStyle().Foreground(Orange).Bold(true)
	StatusCrit = lipgloss.NewStyle().Foreground(Red).Bold(true)
)

// SpeakerStyle returns the style for a speaker block header.
func SpeakerStyle(speaker string, kind session.Kind) lipgloss.Style {
	switch kind {
	case session.KindHuman:
		return HumanStyle
	case session.KindSummary:
		return SummaryStyle
	}
	if speaker == "" {
		return DimStyle
	}
	return lipgloss.NewStyle().Foreground(SpeakerColor(speaker)).Bold(true)
}

// SpeakerColor returns a stable palette color for an AI speaker name.
func SpeakerColor(speaker string) lipgloss.Color {
	h := fnv.New32a()
	h.Write([]byte(speaker))
	return speakerPalette[h.Sum32()%uint32(len(speakerPalette))]
}
