package cache

import (
	"sync/atomic"
	"time"
)

// Statistics tracks cache performance.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	startTime time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Hit records a cache hit.
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss.
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a cache set operation.
func (s *Statistics) Set() { s.sets.Add(1) }

// Delete records n removed entries.
func (s *Statistics) Delete(n int) { s.deletes.Add(int64(n)) }

func (s *Statistics) Hits() int64    { return s.hits.Load() }
func (s *Statistics) Misses() int64  { return s.misses.Load() }
func (s *Statistics) Sets() int64    { return s.sets.Load() }
func (s *Statistics) Deletes() int64 { return s.deletes.Load() }

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s *Statistics) HitRatio() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the statistics have been collected.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(s.startTime)
}
