package cache

import (
	"sync/atomic"
	"time"
)

// Statistics tracks cache performance counters. All updates are
// atomic; Snapshot gives a consistent-enough view for logs and tests.
type Statistics struct {
	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	evictions   atomic.Int64
	currentSize atomic.Int64
	startTime   time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Hit records a cache hit.
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss.
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a store operation.
func (s *Statistics) Set() { s.sets.Add(1) }

// Delete records a delete operation.
func (s *Statistics) Delete() { s.deletes.Add(1) }

// Evict records an eviction.
func (s *Statistics) Evict() { s.evictions.Add(1) }

// UpdateSize records the current entry count.
func (s *Statistics) UpdateSize(size int64) { s.currentSize.Store(size) }

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
	Size      int64
	HitRate   float64
	Uptime    time.Duration
}

// Snapshot returns the current counter values.
func (s *Statistics) Snapshot() Snapshot {
	hits := s.hits.Load()
	misses := s.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Snapshot{
		Hits:      hits,
		Misses:    misses,
		Sets:      s.sets.Load(),
		Deletes:   s.deletes.Load(),
		Evictions: s.evictions.Load(),
		Size:      s.currentSize.Load(),
		HitRate:   rate,
		Uptime:    time.Since(s.startTime),
	}
}
