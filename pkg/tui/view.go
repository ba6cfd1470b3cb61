package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mikeboe/research-console/pkg/session"
)

func lipglossHeight(s string) int {
	if s == "" {
		return 0
	}
	return lipgloss.Height(s)
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.footer())
}

func (m Model) header() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Deep Research Agent"))
	b.WriteString("\n")
	b.WriteString(m.modelLine())
	b.WriteString("\n")
	b.WriteString(m.input.View())

	if panel := m.progressPanel(); panel != "" {
		b.WriteString("\n")
		b.WriteString(panel)
	}
	return b.String()
}

func (m Model) modelLine() string {
	parts := make([]string, 0, len(m.catalog))
	for i, mdl := range m.catalog {
		label := mdl.Name
		if i == m.modelIdx {
			parts = append(parts, selectedModelStyle.Render("● "+label))
			continue
		}
		parts = append(parts, dimStyle.Render("○ "+label))
	}
	line := strings.Join(parts, "  ")
	if sel := m.catalog[m.modelIdx]; sel.Description != "" {
		line += dimStyle.Render("  " + sel.Description)
	}
	if m.researching() {
		line += dimStyle.Render("  (locked)")
	}
	return line
}

func (m Model) progressPanel() string {
	st := m.state
	if !m.researching() && len(st.Queries) == 0 && len(st.Sources) == 0 {
		return ""
	}

	var lines []string
	if m.researching() {
		lines = append(lines, fmt.Sprintf("%s Working...  %s  %s",
			m.spinner.View(),
			session.FormatElapsed(m.elapsed),
			phaseStyle.Render(st.Phase)))
	}

	if len(st.Queries) > 0 {
		chips := make([]string, 0, len(st.Queries))
		for _, q := range st.Queries {
			chips = append(chips, chipStyle.Render(q))
		}
		lines = append(lines, "Queries: "+strings.Join(chips, " "))
	}

	if len(st.Sources) > 0 {
		arrow := "▸"
		if m.showSources {
			arrow = "▾"
		}
		lines = append(lines, fmt.Sprintf("%s Sources (%d)", arrow, len(st.Sources)))
		if m.showSources {
			for _, src := range st.Sources {
				lines = append(lines, "  • "+src.Label()+dimStyle.Render("  "+src.URL))
			}
		}
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// body is the scrollable content: the report once complete, otherwise
// the activity log.
func (m Model) body() string {
	if m.state.HasReport() {
		return m.renderMarkdown(m.state.ReportText())
	}
	if len(m.state.Logs) == 0 {
		return dimStyle.Render("Enter a topic and press enter to start researching.")
	}

	var b strings.Builder
	b.WriteString(dimStyle.Render("Activity"))
	b.WriteString("\n")
	for _, entry := range m.state.Logs {
		line := entry.Message
		if entry.Node != "" {
			line = dimStyle.Render("["+entry.Node+"] ") + line
		}
		if entry.Kind == session.EntryError {
			line = logErrorStyle.Render("✗ " + entry.Message)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	switch m.state.Status {
	case session.StatusInterrupted:
		b.WriteString(dimStyle.Render("Stream closed before the research finished."))
	case session.StatusFailed:
		b.WriteString(dimStyle.Render("Research failed. Edit the topic and press enter to retry."))
	}
	return b.String()
}

func (m Model) footer() string {
	var b strings.Builder
	if m.toast != nil {
		style, ok := toastStyles[string(m.toast.level)]
		if !ok {
			style = toastStyles["info"]
		}
		b.WriteString(style.Render(m.toast.message))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
