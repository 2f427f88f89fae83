package source

import (
	"fmt"
	"log/slog"

	"github.com/mmcdole/tablesync/internal/adapter/source/supabase"
	"github.com/mmcdole/tablesync/internal/config"
	"github.com/mmcdole/tablesync/internal/domain"
)

// TableSource is what a remote backend must implement: paged table reads
// plus a reachability signal for the UI.
type TableSource interface {
	domain.PageReader
	Reachable() bool
}

// NewClient creates the remote table source from the application config.
func NewClient(cfg *config.Config, logger *slog.Logger) (TableSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Remote.URL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}

	if cfg.Remote.Key == "" {
		return nil, fmt.Errorf("remote key is required")
	}

	return supabase.NewClient(supabase.Config{
		URL:               cfg.Remote.URL,
		Key:               cfg.Remote.Key,
		Timeout:           cfg.Remote.Timeout,
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
	}, logger), nil
}
