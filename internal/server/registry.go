package server

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"askdb/internal/database"
	"askdb/internal/metrics"
	"askdb/internal/nouns"
)

// entry is one uploaded database and everything built for it.
type entry struct {
	id      string
	dir     string
	handle  *database.Handle
	index   *nouns.Index
	asker   Asker
	created time.Time

	mu      sync.Mutex
	refs    int
	retired bool
}

// acquire marks the entry in use. It fails once the entry has been retired.
func (e *entry) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return false
	}
	e.refs++
	return true
}

// release ends one use. The last release of a retired entry closes it.
func (e *entry) release(logger *slog.Logger) {
	e.mu.Lock()
	e.refs--
	last := e.retired && e.refs == 0
	e.mu.Unlock()
	if last {
		e.close(logger)
	}
}

// retire stops new uses and closes the entry now, or after the last
// in-flight use when there is one.
func (e *entry) retire(logger *slog.Logger) {
	e.mu.Lock()
	if e.retired {
		e.mu.Unlock()
		return
	}
	e.retired = true
	idle := e.refs == 0
	e.mu.Unlock()
	if idle {
		e.close(logger)
	}
}

func (e *entry) close(logger *slog.Logger) {
	if err := e.handle.Close(); err != nil {
		logger.Warn("Failed to close database", "database_id", e.id, "error", err)
	}
	if err := os.RemoveAll(e.dir); err != nil {
		logger.Warn("Failed to remove database files", "database_id", e.id, "error", err)
	}
	metrics.DatabaseClosed()
	logger.Info("Database closed", "database_id", e.id, "age", time.Since(e.created))
}

// registry holds uploaded databases. Entries expire ttl after their last use
// and are retired when they leave the cache, whether by expiry or deletion.
type registry struct {
	cache  *cache.Cache
	logger *slog.Logger
}

func newRegistry(ttl time.Duration, logger *slog.Logger) *registry {
	c := cache.New(ttl, max(ttl/4, time.Minute))
	c.OnEvicted(func(_ string, v interface{}) {
		v.(*entry).retire(logger)
	})
	return &registry{cache: c, logger: logger}
}

func (r *registry) add(e *entry) {
	r.cache.SetDefault(e.id, e)
	metrics.DatabaseOpened()
}

// acquire looks up id, restarts its expiry and marks it in use. Callers
// must pass the entry to release when done.
func (r *registry) acquire(id string) (*entry, bool) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if !e.acquire() {
		return nil, false
	}
	// Replace fails when id was deleted or expired since Get.
	if err := r.cache.Replace(id, e, cache.DefaultExpiration); err != nil {
		r.release(e)
		return nil, false
	}
	return e, true
}

func (r *registry) release(e *entry) {
	e.release(r.logger)
}

// remove closes and forgets id. It reports whether id was registered.
func (r *registry) remove(id string) bool {
	if _, ok := r.cache.Get(id); !ok {
		return false
	}
	r.cache.Delete(id)
	return true
}

func (r *registry) len() int {
	return r.cache.ItemCount()
}

func (r *registry) closeAll() {
	r.cache.DeleteExpired()
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
