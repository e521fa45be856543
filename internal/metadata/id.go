package metadata

import (
	"sync"
	"time"
)

// IDGenerator issues sequential-timestamp note ids (UTC, second
// resolution, e.g. "20240101000000"). When two ids are requested within
// the same second the later one is bumped forward so ids stay unique and
// monotonic for the life of the process.
type IDGenerator struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewIDGenerator creates a generator using the given clock (time.Now
// when nil).
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// IDLayout is the id timestamp form.
const IDLayout = "20060102150405"

// Next returns a fresh id.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now().UTC().Truncate(time.Second)
	if !t.After(g.last) {
		t = g.last.Add(time.Second)
	}
	g.last = t
	return t.Format(IDLayout)
}
