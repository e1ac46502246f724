package tui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/reel/internal/service"
)

const searchTimeout = 10 * time.Second

// WaitForView blocks on the next published view. It returns nil once the
// subscription is closed.
func WaitForView(views <-chan service.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-views
		if !ok {
			return nil
		}
		return ViewMsg{View: v}
	}
}

// SearchCmd runs a catalog search. A trailing "year:YYYY" token filters by year.
func SearchCmd(core Core, input string) tea.Cmd {
	query, year := parseQuery(input)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		_, err := core.Search(ctx, query, year)
		return SearchDoneMsg{Query: query, Err: err}
	}
}

// PlayCmd opens link in the external player.
func PlayCmd(core Core, link, title string) tea.Cmd {
	return func() tea.Msg {
		return PlayedMsg{Title: title, Err: core.OpenExternal(link, title)}
	}
}

func parseQuery(input string) (query, year string) {
	fields := strings.Fields(input)
	kept := fields[:0]
	for _, f := range fields {
		if y, ok := strings.CutPrefix(f, "year:"); ok {
			year = y
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " "), year
}
