package tui

import (
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/service"
)

// Message types for the TUI

// ProgressMsg carries one progress event from the running load
type ProgressMsg struct {
	Event domain.ProgressEvent
}

// LoadDoneMsg signals that Load returned
type LoadDoneMsg struct {
	Result *service.Result
	Err    error
}
