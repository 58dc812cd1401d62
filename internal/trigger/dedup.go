package trigger

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EventDedup suppresses re-fires of the same listener within a short window.
// The model streams results continuously, so a person standing in frame
// would otherwise spam one trigger per inference pass.
type EventDedup struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func NewEventDedup(maxKeys int, ttl time.Duration) *EventDedup {
	c, _ := lru.New[string, time.Time](maxKeys)
	return &EventDedup{cache: c, ttl: ttl}
}

func (d *EventDedup) IsDuplicate(key string) bool {
	if addedAt, ok := d.cache.Get(key); ok {
		if time.Since(addedAt) < d.ttl {
			return true // Duplicate within window
		}
		// Expired but still in LRU? Update it.
	}
	d.cache.Add(key, time.Now())
	return false
}

// BuildDedupKey buckets the timestamp to 1 second to absorb micro-timing
// differences between frames.
func BuildDedupKey(projectID, listenerID string, occurredAt time.Time) string {
	ts := occurredAt.Truncate(time.Second).Unix()
	return fmt.Sprintf("%s|%s|%d", projectID, listenerID, ts)
}
