package trigger

import (
	"sync"
	"time"

	"github.com/careloop/surveyengine/internal/types"
)

// evalCache bounds how often the pull path re-evaluates one subject. Missing
// a trigger by a few minutes is harmless; push-path invocations bypass the
// cache and invalidate the subject's entry so a qualifying write is never
// masked.
type evalCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[types.SubjectID]time.Time
	now     func() time.Time
}

func newEvalCache(ttl time.Duration) *evalCache {
	return &evalCache{
		ttl:     ttl,
		entries: make(map[types.SubjectID]time.Time),
		now:     time.Now,
	}
}

// fresh reports whether the subject was evaluated within the TTL.
func (c *evalCache) fresh(id types.SubjectID) bool {
	if c.ttl == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.entries[id]
	return ok && c.now().Sub(at) < c.ttl
}

func (c *evalCache) touch(id types.SubjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = c.now()
}

func (c *evalCache) invalidate(id types.SubjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}
