package eval

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/Shonas301/only-moves/internal/graph"
)

// DefaultCacheSize is the number of positions a cache keeps.
const DefaultCacheSize = 4096

// History is how the engine reaches a position: the game's start position and
// the UCI moves played since.
type History struct {
	StartFEN string
	Moves    []string
}

// CacheConfig configures an evaluation cache.
type CacheConfig struct {
	Capacity   int // positions kept, default 4096
	Candidates int // lines requested per position, default 5
}

// Cache maps position keys to the engine's ranked candidates. Entries are
// written once and evicted least recently used first. Each worker owns its own
// Cache together with its Engine; the mutex makes every lookup, including the
// engine query on a miss, one critical section.
type Cache struct {
	mu       sync.Mutex
	engine   Engine
	k        int
	capacity int
	order    *list.List // front = most recently used
	entries  map[graph.PositionKey]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

type cacheEntry struct {
	key   graph.PositionKey
	cands []graph.Candidate
}

// NewCache creates an empty cache in front of engine.
func NewCache(engine Engine, cfg CacheConfig) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCacheSize
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = DefaultCandidates
	}
	return &Cache{
		engine:   engine,
		k:        cfg.Candidates,
		capacity: cfg.Capacity,
		order:    list.New(),
		entries:  make(map[graph.PositionKey]*list.Element, cfg.Capacity),
	}
}

// GetOrCompute returns the candidates for key, asking the engine only when the
// key is not cached. The returned slice belongs to the caller.
func (c *Cache) GetOrCompute(ctx context.Context, key graph.PositionKey, h History) ([]graph.Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		c.hits++
		return graph.CloneCandidates(el.Value.(*cacheEntry).cands), nil
	}
	c.misses++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.engine.SetStartPosition(h.StartFEN); err != nil {
		return nil, engineErr("set start position", err)
	}
	if err := c.engine.SetPositionByMoves(h.Moves); err != nil {
		return nil, engineErr("set position", err)
	}
	cands, err := c.engine.TopCandidates(c.k)
	if err != nil {
		if !errors.Is(err, ErrEngine) {
			err = engineErr("top candidates", err)
		}
		return nil, err
	}

	stored := graph.CloneCandidates(cands)
	if stored == nil {
		stored = []graph.Candidate{}
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, cands: stored})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions++
	}
	return graph.CloneCandidates(stored), nil
}

// Contains reports whether key is cached without touching recency.
func (c *Cache) Contains(key graph.PositionKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// SetEngine replaces the engine behind the cache, for example after the old
// process died. Cached entries stay valid.
func (c *Cache) SetEngine(engine Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = engine
}

// Len returns the number of cached positions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CacheStats holds counters for one cache.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	Capacity  int
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
		Capacity:  c.capacity,
	}
}
