package components

import (
	"fmt"
	"strings"

	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/tui/styles"
)

// DatasetState tracks the progress of a single dataset within a load
type DatasetState struct {
	Name      string
	Status    domain.ProgressStatus
	Rows      int   // Row count once complete
	FromCache bool  // Whether served from the persistent cache
	Error     error // Error if failed
}

// Apply folds a progress event into the state. Events that would move a
// finished dataset back to a running state are ignored.
func (s *DatasetState) Apply(ev domain.ProgressEvent) {
	if s.Status.Terminal() && !ev.Status.Terminal() {
		return
	}
	s.Status = ev.Status
	s.FromCache = ev.FromCache
	s.Error = ev.Err
	if ev.RowCount != nil {
		s.Rows = *ev.RowCount
	}
}

// Render draws one status line. spinner is the current spinner frame.
func (s DatasetState) Render(spinner string) string {
	var icon, detail string
	switch s.Status {
	case domain.StatusLoading:
		icon = spinner
		detail = styles.SubtitleStyle.Render("loading")
	case domain.StatusComplete:
		icon = styles.CompleteMark
		detail = styles.SubtitleStyle.Render(FormatCount(s.Rows) + " rows")
		if s.FromCache {
			detail += " " + styles.CacheStyle.Render("(cached)")
		}
	case domain.StatusFailed:
		icon = styles.FailedMark
		msg := "failed"
		if s.Error != nil {
			msg = "failed: " + s.Error.Error()
		}
		detail = styles.ErrorStyle.Render(msg)
	default:
		icon = styles.PendingDot
		detail = styles.DimStyle.Render("pending")
	}
	return fmt.Sprintf("%s %s %s", icon, styles.NameStyle.Render(s.Name), detail)
}

// FormatCount formats n with thousands separators
func FormatCount(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
