package service

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
)

// Dedup remembers recently committed submission ids so obvious client
// retries are rejected before they reach the store. The store's
// bid_submissions table remains the authority; Dedup only saves a round trip.
// It is safe for concurrent use.
type Dedup struct {
	seen  map[string]time.Time // submissionID -> commit time
	ttl   time.Duration
	clock clock.Clock
	mu    sync.Mutex
}

// NewDedup creates a Dedup that forgets ids after ttl.
func NewDedup(ttl time.Duration, clk clock.Clock) *Dedup {
	return &Dedup{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		clock: clk,
	}
}

// Seen reports whether id was remembered within the TTL window.
func (d *Dedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.seen[id]
	return ok && d.clock.Since(at) < d.ttl
}

// Remember records id as committed.
func (d *Dedup) Remember(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = d.clock.Now()
}

// Cleanup removes expired entries. The sweeper calls it once per tick.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of remembered ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
