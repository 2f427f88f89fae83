package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/service"
)

// Loader is the part of the sync service the progress view drives
type Loader interface {
	Load(ctx context.Context, datasets []domain.Dataset, opts service.LoadOptions) (*service.Result, error)
}

// LoadCmd runs Load and reports its outcome as a LoadDoneMsg
func LoadCmd(ctx context.Context, svc Loader, datasets []domain.Dataset, opts service.LoadOptions) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Load(ctx, datasets, opts)
		return LoadDoneMsg{Result: res, Err: err}
	}
}

// listenProgressCmd returns a command that reads the next event from the
// progress channel. Update re-issues it after every event.
func listenProgressCmd(ch <-chan domain.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return ProgressMsg{Event: ev}
	}
}
