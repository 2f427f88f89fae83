package domain

// ProgressStatus is the state of one dataset within a Load.
type ProgressStatus string

const (
	StatusPending  ProgressStatus = "pending"
	StatusLoading  ProgressStatus = "loading"
	StatusComplete ProgressStatus = "complete"
	StatusFailed   ProgressStatus = "failed"
)

// Terminal reports whether no further events follow for the dataset.
func (s ProgressStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ProgressEvent is emitted on every dataset state transition.
// Consumers may discard duplicates by (Dataset, Status).
type ProgressEvent struct {
	Dataset   string
	Status    ProgressStatus
	RowCount  *int // set on complete
	Completed int  // datasets finished so far, monotonic
	Total     int
	FromCache bool
	Err       error // set on failed
}

// ProgressFunc receives progress events. It is called from multiple
// goroutines but never concurrently.
type ProgressFunc func(ProgressEvent)

// FaultFunc receives out-of-band faults (cache faults, background refresh failures).
type FaultFunc func(error)
