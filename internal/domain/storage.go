package domain

import "time"

// CacheStats is diagnostic information about the persistent cache.
type CacheStats struct {
	EntryCount       int
	ApproximateBytes int64
	Ages             map[string]time.Duration
}
