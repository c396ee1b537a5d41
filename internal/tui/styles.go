package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bevie/chatclient/internal/session"
	"github.com/bevie/chatclient/internal/theme"
)

type palette struct {
	bg      lipgloss.Color
	panel   lipgloss.Color
	text    lipgloss.Color
	muted   lipgloss.Color
	accent  lipgloss.Color
	accent2 lipgloss.Color
	warn    lipgloss.Color
}

var (
	lightPalette = palette{
		bg:      lipgloss.Color("#ffffff"),
		panel:   lipgloss.Color("#f4f5f7"),
		text:    lipgloss.Color("#1f2328"),
		muted:   lipgloss.Color("#6e7781"),
		accent:  lipgloss.Color("#0969da"),
		accent2: lipgloss.Color("#1a7f37"),
		warn:    lipgloss.Color("#cf222e"),
	}
	darkPalette = palette{
		bg:      lipgloss.Color("#0d1117"),
		panel:   lipgloss.Color("#161b22"),
		text:    lipgloss.Color("#e6edf3"),
		muted:   lipgloss.Color("#8b949e"),
		accent:  lipgloss.Color("#58a6ff"),
		accent2: lipgloss.Color("#3fb950"),
		warn:    lipgloss.Color("#ff7b72"),
	}
)

type styles struct {
	root        lipgloss.Style
	header      lipgloss.Style
	title       lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	panel       lipgloss.Style
	sender      map[session.Sender]lipgloss.Style
	timestamp   lipgloss.Style
	body        lipgloss.Style
	link        lipgloss.Style
	card        lipgloss.Style
	cardTitle   lipgloss.Style
	typing      lipgloss.Style
	spinner     lipgloss.Style
	inputPanel  lipgloss.Style
	help        lipgloss.Style
}

func newStyles(t theme.Theme) styles {
	p := lightPalette
	if t == theme.Dark {
		p = darkPalette
	}

	return styles{
		root: lipgloss.NewStyle().
			Background(p.bg).
			Foreground(p.text),
		header: lipgloss.NewStyle().
			Background(p.panel).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.accent).
			Padding(0, 1),
		title:       lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		status:      lipgloss.NewStyle().Foreground(p.muted),
		errorStatus: lipgloss.NewStyle().Foreground(p.warn).Bold(true),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.muted).
			Padding(0, 1),
		sender: map[session.Sender]lipgloss.Style{
			session.SenderUser:      lipgloss.NewStyle().Foreground(p.accent2).Bold(true),
			session.SenderAssistant: lipgloss.NewStyle().Foreground(p.accent).Bold(true),
			session.SenderSystem:    lipgloss.NewStyle().Foreground(p.warn).Italic(true),
		},
		timestamp: lipgloss.NewStyle().Foreground(p.muted),
		body:      lipgloss.NewStyle().Foreground(p.text),
		link:      lipgloss.NewStyle().Foreground(p.accent).Underline(true),
		card: lipgloss.NewStyle().
			Background(p.panel).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderTop(false).
			BorderRight(false).
			BorderBottom(false).
			BorderForeground(p.accent2).
			Padding(0, 1),
		cardTitle: lipgloss.NewStyle().Foreground(p.accent2).Bold(true),
		typing:    lipgloss.NewStyle().Foreground(p.muted).Italic(true),
		spinner:   lipgloss.NewStyle().Foreground(p.accent),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.accent2).
			Padding(0, 1),
		help: lipgloss.NewStyle().Foreground(p.muted),
	}
}
