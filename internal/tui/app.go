package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/reel/internal/service"
	"github.com/mmcdole/reel/internal/tui/styles"
)

// Core is the part of the discovery service the TUI drives.
type Core interface {
	Subscribe() (<-chan service.View, func())
	Search(ctx context.Context, query, year string) ([]service.Item, error)
	RefreshPicks()
	RefreshPosters() int
	OpenExternal(link, title string) error
	RemoveHistory(link string) bool
}

// Tab is one of the top-level lists.
type Tab int

const (
	TabPicks Tab = iota
	TabSearch
	TabHistory
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TabPicks:
		return "Picks"
	case TabSearch:
		return "Search"
	case TabHistory:
		return "History"
	}
	return ""
}

// Model is the main Bubble Tea model for the application
type Model struct {
	core        Core
	views       <-chan service.View
	unsubscribe func()

	keys    KeyMap
	help    help.Model
	input   textinput.Model
	spinner spinner.Model

	view    service.View
	tab     Tab
	cursor  [tabCount]int
	typing  bool
	message string
	isErr   bool

	width  int
	height int
}

// NewModel creates the model and subscribes it to core's view.
func NewModel(core Core) Model {
	ti := textinput.New()
	ti.Placeholder = "title, optionally year:1995"
	ti.CharLimit = 120
	ti.Width = 40
	ti.Prompt = "/ "
	ti.PromptStyle = styles.AccentStyle
	ti.PlaceholderStyle = styles.DimStyle

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(styles.SpinnerStyle),
	)

	views, unsubscribe := core.Subscribe()
	return Model{
		core:        core,
		views:       views,
		unsubscribe: unsubscribe,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		input:       ti,
		spinner:     sp,
	}
}

// Init starts listening for views and animating the spinner
func (m Model) Init() tea.Cmd {
	return tea.Batch(WaitForView(m.views), m.spinner.Tick)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case ViewMsg:
		m.view = msg.View
		m.clampCursors()
		return m, WaitForView(m.views)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SearchDoneMsg:
		if msg.Err != nil {
			m.message, m.isErr = msg.Err.Error(), true
		} else {
			m.message, m.isErr = "", false
		}
		m.cursor[TabSearch] = 0
		return m, nil

	case PlayedMsg:
		if msg.Err != nil {
			m.message, m.isErr = "Could not play "+msg.Title+": "+msg.Err.Error(), true
		} else {
			m.message, m.isErr = "Playing "+msg.Title, false
		}
		return m, nil

	case tea.KeyMsg:
		if m.typing {
			return m.handleInput(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.typing = false
		m.input.Blur()
		m.tab = TabSearch
		return m, SearchCmd(m.core, m.input.Value())
	case tea.KeyEsc:
		m.typing = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Search):
		m.typing = true
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.NextTab):
		m.tab = (m.tab + 1) % tabCount

	case key.Matches(msg, m.keys.PrevTab):
		m.tab = (m.tab + tabCount - 1) % tabCount

	case key.Matches(msg, m.keys.Up):
		if m.cursor[m.tab] > 0 {
			m.cursor[m.tab]--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor[m.tab] < len(m.rows())-1 {
			m.cursor[m.tab]++
		}

	case key.Matches(msg, m.keys.Play):
		if r, ok := m.selected(); ok {
			return m, PlayCmd(m.core, r.link, r.title)
		}

	case key.Matches(msg, m.keys.RefreshPicks):
		m.core.RefreshPicks()

	case key.Matches(msg, m.keys.RefreshPosters):
		m.core.RefreshPosters()

	case key.Matches(msg, m.keys.Delete):
		if r, ok := m.selected(); ok && m.tab == TabHistory {
			m.core.RemoveHistory(r.link)
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Escape):
		m.message = ""
	}
	return m, nil
}

// row is one line of the active list.
type row struct {
	title     string
	info      string
	link      string
	hasPoster bool
}

func (m Model) rowsFor(t Tab) []row {
	var out []row
	switch t {
	case TabPicks:
		for _, it := range m.view.Picks {
			out = append(out, row{title: it.Title, info: it.BaseName, link: it.Link, hasPoster: it.Poster != ""})
		}
	case TabSearch:
		for _, it := range m.view.Results {
			out = append(out, row{title: it.Title, info: it.BaseName, link: it.Link, hasPoster: it.Poster != ""})
		}
	case TabHistory:
		for _, it := range m.view.History {
			out = append(out, row{title: it.Name, info: it.Info, link: it.Link, hasPoster: it.Poster != ""})
		}
	}
	return out
}

func (m Model) rows() []row {
	return m.rowsFor(m.tab)
}

func (m Model) selected() (row, bool) {
	rows := m.rows()
	i := m.cursor[m.tab]
	if i < 0 || i >= len(rows) {
		return row{}, false
	}
	return rows[i], true
}

func (m *Model) clampCursors() {
	for t := Tab(0); t < tabCount; t++ {
		n := len(m.rowsFor(t))
		if m.cursor[t] >= n {
			m.cursor[t] = max(0, n-1)
		}
	}
}

// busy reports whether background work worth a spinner is running.
func (m Model) busy() bool {
	return m.view.CatalogBusy || m.view.PicksLoading || (m.view.Mirrors.Total > 0 && !m.view.Mirrors.Done)
}
