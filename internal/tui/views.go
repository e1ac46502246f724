package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/reel/internal/tui/styles"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	// title, tabs, blank line, status, help
	chromeLines = 6
)

// View renders the UI
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	height := m.height
	if height <= 0 {
		height = defaultHeight
	}

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("reel"))
	b.WriteString("  ")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	if m.typing || m.tab == TabSearch {
		b.WriteString(m.renderSearchLine())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderList(width, max(1, height-chromeLines)))
	b.WriteString("\n")
	b.WriteString(m.renderStatus(width))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		label := t.String()
		if n := len(m.rowsFor(t)); n > 0 {
			label = fmt.Sprintf("%s (%d)", label, n)
		}
		if t == m.tab {
			tabs = append(tabs, styles.ActiveTabStyle.Render(label))
		} else {
			tabs = append(tabs, styles.InactiveTabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderSearchLine() string {
	if m.typing {
		return m.input.View()
	}
	if m.view.Query == "" {
		return styles.DimStyle.Render("press / to search")
	}
	line := "results for " + styles.AccentStyle.Render(m.view.Query)
	if m.view.Year != "" {
		line += styles.DimStyle.Render(" (" + m.view.Year + ")")
	}
	return line
}

func (m Model) renderList(width, height int) string {
	rows := m.rows()
	if len(rows) == 0 {
		return styles.DimStyle.Render(m.emptyText())
	}

	cursor := m.cursor[m.tab]
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	end := min(len(rows), start+height)

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		r := rows[i]
		marker := styles.NoPosterChar
		if r.hasPoster {
			marker = styles.PosterChar
		}
		avail := width - 4
		info := ""
		if r.info != "" && r.info != r.title {
			info = "  " + r.info
			avail -= len([]rune(info))
		}
		text := marker + " " + styles.Truncate(r.title, max(avail, 10))
		if info != "" {
			text += styles.DimStyle.Render(info)
		}
		if i == cursor {
			lines = append(lines, styles.SelectedItemStyle.Render(text))
		} else {
			lines = append(lines, styles.NormalItemStyle.Render(text))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) emptyText() string {
	switch m.tab {
	case TabPicks:
		if m.view.PicksStatus != "" {
			return m.view.PicksStatus
		}
		return "No picks yet. Watch something, then press r."
	case TabSearch:
		if len(m.view.Suggestions) > 0 {
			return "Did you mean: " + strings.Join(m.view.Suggestions, ", ") + "?"
		}
		return "Nothing to show."
	case TabHistory:
		return "Nothing watched yet."
	}
	return ""
}

func (m Model) renderStatus(width int) string {
	var parts []string
	if m.busy() {
		parts = append(parts, m.spinner.View())
	}

	switch {
	case m.message != "" && m.isErr:
		parts = append(parts, styles.ErrorStyle.Render(m.message))
	case m.message != "":
		parts = append(parts, styles.SuccessStyle.Render(m.message))
	case m.view.Status != "":
		parts = append(parts, m.view.Status)
	case m.view.CatalogProgress != "":
		parts = append(parts, m.view.CatalogProgress)
	}

	mirrors := m.view.Mirrors
	if mirrors.Total > 0 {
		parts = append(parts, styles.DimStyle.Render(
			fmt.Sprintf("servers %d/%d", len(mirrors.Available), mirrors.Total)))
	}
	if m.tab == TabPicks && m.view.PicksStale {
		parts = append(parts, styles.DimStyle.Render("picks are stale"))
	}

	return styles.StatusBarStyle.Width(width).Render(strings.Join(parts, "  "))
}
