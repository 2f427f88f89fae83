package tui

import "github.com/mmcdole/tablesync/internal/domain"

// ChannelObserver adapts domain.ProgressFunc to a channel for Bubble Tea.
type ChannelObserver struct {
	ch chan<- domain.ProgressEvent
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- domain.ProgressEvent) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnProgress sends the event to the channel (non-blocking if full).
func (o *ChannelObserver) OnProgress(ev domain.ProgressEvent) {
	select {
	case o.ch <- ev:
	default: // Non-blocking if channel full
	}
}
