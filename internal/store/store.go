package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/mmcdole/tablesync/internal/codec"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/metrics"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")

	keySchemaVersion = []byte("schema_version")
)

// schemaVersion is bumped whenever the entry envelope changes. Opening a file
// stamped with another version drops every entry.
const schemaVersion = "2"

const defaultOpenTimeout = time.Second

// entryEnvelope is one persisted dataset snapshot. An entry is either absent
// or fully written.
type entryEnvelope struct {
	WrittenAt time.Time       `json:"written_at"`
	Payload   json.RawMessage `json:"payload"`
}

// entryHeader decodes only the timestamp of an envelope
type entryHeader struct {
	WrittenAt time.Time `json:"written_at"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock used to stamp and age entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithFaultSink routes CacheFault values to fn.
func WithFaultSink(fn domain.FaultFunc) Option {
	return func(c *Cache) { c.SetFaultSink(fn) }
}

// WithIdleTimeout closes the storage handle after d without operations.
// The next operation reopens it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Cache) { c.idleTimeout = d }
}

// WithOpenTimeout bounds how long Open waits for the file lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Cache) { c.openTimeout = d }
}

// Cache is a durable dataset cache backed by a single BoltDB handle.
//
// The handle is opened lazily and reused by every operation. Operations hold
// mu for reading while a transaction runs; opening and closing take it for
// writing, so concurrent cold callers open the file exactly once.
type Cache struct {
	path        string
	logger      *slog.Logger
	now         func() time.Time
	idleTimeout time.Duration
	openTimeout time.Duration

	faultMu sync.RWMutex
	onFault domain.FaultFunc

	mu       sync.RWMutex
	db       *bolt.DB
	shut     bool
	lastUsed atomic.Int64
	opens    atomic.Int64

	janitorOnce sync.Once
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New creates a cache stored at path. The file is not touched until Open or
// the first operation.
func New(path string, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		path:        path,
		logger:      logger,
		now:         time.Now,
		openTimeout: defaultOpenTimeout,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFaultSink replaces the fault sink. Safe to call concurrently with operations.
func (c *Cache) SetFaultSink(fn domain.FaultFunc) {
	c.faultMu.Lock()
	c.onFault = fn
	c.faultMu.Unlock()
}

// Open opens the storage handle eagerly.
func (c *Cache) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shut {
		return domain.ErrCacheClosed
	}
	if c.db != nil {
		return nil
	}
	return c.openLocked()
}

// Close releases the handle. Operations after Close report ErrCacheClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.shut {
		c.mu.Unlock()
		return nil
	}
	c.shut = true
	var err error
	if c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()
	return err
}

// Path returns the database file location.
func (c *Cache) Path() string {
	return c.path
}

func (c *Cache) openLocked() error {
	if c.path == "" {
		return errors.New("cache path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(c.path, 0600, &bolt.Options{Timeout: c.openTimeout})
	if err != nil {
		return fmt.Errorf("failed to open bolt db: %w", err)
	}

	upgraded := false
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if v := meta.Get(keySchemaVersion); v != nil && string(v) != schemaVersion {
			if err := tx.DeleteBucket(bucketEntries); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			upgraded = true
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		return meta.Put(keySchemaVersion, []byte(schemaVersion))
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize buckets: %w", err)
	}
	if upgraded {
		c.logger.Info("cache schema upgraded, entries dropped", "path", c.path, "version", schemaVersion)
	}

	c.db = db
	if c.opens.Add(1) > 1 {
		metrics.CacheReopens.Inc()
	}
	c.logger.Debug("opened cache", "path", c.path)

	if c.idleTimeout > 0 {
		c.janitorOnce.Do(func() {
			c.wg.Add(1)
			go c.janitor()
		})
	}
	return nil
}

// acquire returns the open handle with mu held for reading. The caller must
// release it with c.mu.RUnlock.
func (c *Cache) acquire() (*bolt.DB, error) {
	c.lastUsed.Store(time.Now().UnixNano())
	for {
		c.mu.RLock()
		if c.shut {
			c.mu.RUnlock()
			return nil, domain.ErrCacheClosed
		}
		if c.db != nil {
			return c.db, nil
		}
		c.mu.RUnlock()

		c.mu.Lock()
		if !c.shut && c.db == nil {
			if err := c.openLocked(); err != nil {
				c.mu.Unlock()
				return nil, err
			}
		}
		c.mu.Unlock()
	}
}

// drop forgets a handle that reported itself closed.
func (c *Cache) drop(db *bolt.DB) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == db {
		db.Close()
		c.db = nil
	}
}

// withDB runs fn against the shared handle, reopening it once if it was
// closed underneath us.
func (c *Cache) withDB(fn func(db *bolt.DB) error) error {
	for attempt := 0; ; attempt++ {
		db, err := c.acquire()
		if err != nil {
			return err
		}
		err = fn(db)
		c.mu.RUnlock()

		if attempt == 0 && errors.Is(err, bolt.ErrDatabaseNotOpen) {
			c.logger.Warn("cache handle closed, reopening", "path", c.path)
			c.drop(db)
			continue
		}
		return err
	}
}

func (c *Cache) janitor() {
	defer c.wg.Done()

	interval := c.idleTimeout / 2
	if interval <= 0 {
		interval = c.idleTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.closeIfIdle()
		}
	}
}

func (c *Cache) closeIfIdle() {
	idle := time.Since(time.Unix(0, c.lastUsed.Load()))
	if idle < c.idleTimeout {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("failed to close idle cache", "error", err)
	}
	c.db = nil
	c.logger.Debug("closed idle cache handle", "idle", idle)
}

func (c *Cache) fault(kind domain.FaultKind, key string, err error) {
	f := &domain.CacheFault{Kind: kind, Key: key, Err: err}
	metrics.CacheFaults.WithLabelValues(string(kind)).Inc()
	c.logger.Warn("cache fault", "kind", kind, "key", key, "error", err)

	c.faultMu.RLock()
	sink := c.onFault
	c.faultMu.RUnlock()
	if sink != nil {
		sink(f)
	}
}

// === Entries ===

// Get returns the payload stored under key if it is younger than maxAge.
// A stale entry is deleted. Storage failures are reported as faults and
// treated as a miss.
func (c *Cache) Get(key string, maxAge time.Duration) ([]domain.Record, bool) {
	var data []byte
	err := c.withDB(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketEntries)
			if b == nil {
				return nil
			}
			if v := b.Get([]byte(key)); v != nil {
				data = make([]byte, len(v))
				copy(data, v)
			}
			return nil
		})
	})
	if err != nil {
		c.fault(domain.FaultRead, key, err)
		metrics.CacheMisses.WithLabelValues(key, "fault").Inc()
		return nil, false
	}
	if data == nil {
		metrics.CacheMisses.WithLabelValues(key, "absent").Inc()
		return nil, false
	}

	var env entryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.fault(domain.FaultDecode, key, err)
		c.Delete(key)
		metrics.CacheMisses.WithLabelValues(key, "fault").Inc()
		return nil, false
	}

	if c.now().Sub(env.WrittenAt) >= maxAge {
		c.evictIfStale(key, maxAge)
		metrics.CacheMisses.WithLabelValues(key, "stale").Inc()
		return nil, false
	}

	payload, err := codec.Decode(env.Payload)
	if err != nil {
		c.fault(domain.FaultDecode, key, err)
		c.Delete(key)
		metrics.CacheMisses.WithLabelValues(key, "fault").Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues(key).Inc()
	return payload, true
}

// evictIfStale deletes key only if the stored entry is still stale, so a
// concurrent fresh Set is never lost.
func (c *Cache) evictIfStale(key string, maxAge time.Duration) {
	err := c.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketEntries)
			v := b.Get([]byte(key))
			if v == nil {
				return nil
			}
			var hdr entryHeader
			if err := json.Unmarshal(v, &hdr); err == nil && c.now().Sub(hdr.WrittenAt) < maxAge {
				return nil
			}
			return b.Delete([]byte(key))
		})
	})
	if err != nil {
		c.fault(domain.FaultDelete, key, err)
		return
	}
	c.logger.Debug("evicted stale cache entry", "key", key)
}

// Set overwrites the entry for key and stamps it with the current time. The
// write is a single transaction: readers see the old entry or the new one.
func (c *Cache) Set(key string, payload []domain.Record) error {
	raw, err := codec.Encode(payload)
	if err != nil {
		c.fault(domain.FaultWrite, key, err)
		return err
	}
	data, err := json.Marshal(entryEnvelope{WrittenAt: c.now(), Payload: raw})
	if err != nil {
		c.fault(domain.FaultWrite, key, err)
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	err = c.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketEntries).Put([]byte(key), data)
		})
	})
	if err != nil {
		c.fault(domain.FaultWrite, key, err)
		return err
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (c *Cache) Delete(key string) error {
	err := c.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketEntries).Delete([]byte(key))
		})
	})
	if err != nil {
		c.fault(domain.FaultDelete, key, err)
	}
	return err
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	err := c.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			if err := tx.DeleteBucket(bucketEntries); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			_, err := tx.CreateBucket(bucketEntries)
			return err
		})
	})
	if err != nil {
		c.fault(domain.FaultDelete, "", err)
	}
	return err
}

// Keys lists the stored keys in byte order.
func (c *Cache) Keys() []string {
	var keys []string
	err := c.withDB(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketEntries).ForEach(func(k, _ []byte) error {
				keys = append(keys, string(k))
				return nil
			})
		})
	})
	if err != nil {
		c.fault(domain.FaultRead, "", err)
		return nil
	}
	return keys
}

// Stats reports entry count, stored size and per-entry age.
func (c *Cache) Stats() domain.CacheStats {
	stats := domain.CacheStats{Ages: make(map[string]time.Duration)}
	now := c.now()
	err := c.withDB(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
				stats.EntryCount++
				stats.ApproximateBytes += int64(len(k) + len(v))
				var hdr entryHeader
				if err := json.Unmarshal(v, &hdr); err == nil {
					stats.Ages[string(k)] = now.Sub(hdr.WrittenAt)
				}
				return nil
			})
		})
	})
	if err != nil {
		c.fault(domain.FaultRead, "", err)
	}
	return stats
}
