package cache

import (
	"context"
	"sync"
	"time"

	"pilotage/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Clear drops every entry.
	Clear()
	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically purges expired entries from registered caches.
type Janitor struct {
	mu     sync.Mutex
	caches []Cleaner
	logger *log.Logger
}

func NewJanitor(logger *log.Logger) *Janitor {
	return &Janitor{logger: log.OrDiscard(logger).WithComponent(log.ComponentCache)}
}

// Register adds a cache to the janitor. Nil cleaners are ignored.
func (j *Janitor) Register(c Cleaner) {
	if c == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.caches = append(j.caches, c)
}

// Sweep cleans every registered cache once and returns the number of
// entries removed.
func (j *Janitor) Sweep() int {
	j.mu.Lock()
	caches := append([]Cleaner(nil), j.caches...)
	j.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.Debug("Expired cache entries removed", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
