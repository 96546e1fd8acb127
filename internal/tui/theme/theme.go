package theme

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	renderer *lipgloss.Renderer

	border    lipgloss.TerminalColor
	highlight lipgloss.TerminalColor
	brand     lipgloss.TerminalColor
	error     lipgloss.TerminalColor
	body      lipgloss.TerminalColor
	accent    lipgloss.TerminalColor

	base lipgloss.Style
}

func BasicTheme(renderer *lipgloss.Renderer) Theme {
	t := Theme{renderer: renderer}

	t.border = lipgloss.AdaptiveColor{Dark: "#2D3748", Light: "#CBD5E0"}
	t.body = lipgloss.AdaptiveColor{Dark: "#94A3B8", Light: "#64748B"}
	t.accent = lipgloss.AdaptiveColor{Dark: "#F1F5F9", Light: "#0F172A"}
	t.brand = lipgloss.Color("#22C55E") // Terminal green
	t.highlight = t.brand
	t.error = lipgloss.Color("#EF4444") // Red

	t.base = renderer.NewStyle().Foreground(t.body)
	return t
}

func (t Theme) Base() lipgloss.Style {
	return t.base
}

func (t Theme) TextBody() lipgloss.Style {
	return t.Base().Foreground(t.body)
}

func (t Theme) TextAccent() lipgloss.Style {
	return t.Base().Foreground(t.accent)
}

func (t Theme) TextBrand() lipgloss.Style {
	return t.Base().Foreground(t.brand).Bold(true)
}

func (t Theme) TextError() lipgloss.Style {
	return t.Base().Foreground(t.error)
}

func (t Theme) PanelError() lipgloss.Style {
	return t.Base().Background(t.error).Foreground(t.accent).Padding(0, 1)
}

func (t Theme) Header() lipgloss.Style {
	return t.Base().
		Foreground(t.accent).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(t.border)
}
