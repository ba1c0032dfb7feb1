package netloop

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// ConnStats is a point-in-time snapshot of one connection's traffic
// counters, as last reported to a StatsCache.
type ConnStats struct {
	LastActivityMicros int64
	BytesRead          uint64
	BytesWritten       uint64
}

// StatsCache is a best-effort, TTL-evicted cache of per-connection
// traffic stats for ambient observability (an admin endpoint, a metrics
// scrape, a debug dump) — never consulted by the connection teardown or
// write-path logic itself, so a cache miss or eviction can never affect
// correctness, only staleness of what Stats() reports.
type StatsCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

const statsCacheDefaultTTL = 30 * time.Second

// NewStatsCache creates a StatsCache sized for approximately maxConns
// live entries.
func NewStatsCache(maxConns int64) (*StatsCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxConns * 10,
		MaxCost:     maxConns,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &StatsCache{cache: cache, ttl: statsCacheDefaultTTL}, nil
}

// Record stores or refreshes the stats snapshot for fd, with the cache's
// TTL reset from now.
func (s *StatsCache) Record(fd int, stats ConnStats) {
	s.cache.SetWithTTL(fd, stats, 1, s.ttl)
}

// Get returns the most recently recorded snapshot for fd, if it has not
// expired or been evicted under memory pressure.
func (s *StatsCache) Get(fd int) (ConnStats, bool) {
	v, ok := s.cache.Get(fd)
	if !ok {
		return ConnStats{}, false
	}
	return v.(ConnStats), true
}

// Forget removes fd's entry immediately, called on connection teardown so
// Stats() does not keep reporting a closed connection until its TTL
// happens to lapse.
func (s *StatsCache) Forget(fd int) {
	s.cache.Del(fd)
}

// Close releases the cache's background goroutines.
func (s *StatsCache) Close() {
	s.cache.Close()
}
