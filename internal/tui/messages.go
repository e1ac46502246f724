package tui

import "github.com/mmcdole/reel/internal/service"

// ViewMsg carries a new aggregated view from the service.
type ViewMsg struct {
	View service.View
}

// SearchDoneMsg signals that a search finished; results arrive through ViewMsg.
type SearchDoneMsg struct {
	Query string
	Err   error
}

// PlayedMsg signals that the player was launched (or failed to launch).
type PlayedMsg struct {
	Title string
	Err   error
}
