package imagefetch

import "container/list"

// fifoCache is a FIFO-bounded cache keyed by resolved URL: reads never
// promote an entry, and once size exceeds the configured bound the
// oldest entry is dropped (spec §3 Invariants: "The image LRU is
// FIFO-bounded: when size > max, drop the oldest" — despite the spec's
// own "LRU" label, the described behavior has no read-promotion, so it
// is a FIFO queue, not an LRU; the name here matches the behavior).
//
// Grounded on internal/memory/hybrid/vector.go's container/list + map
// index pattern, with the MoveToFront-on-read step removed.
type fifoCache struct {
	maxSize int
	order   *list.List
	index   map[string]*list.Element
}

type cacheEntry struct {
	key   string
	bytes []byte
}

func newFIFOCache(maxSize int) *fifoCache {
	return &fifoCache{
		maxSize: maxSize,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

func (c *fifoCache) get(key string) ([]byte, bool) {
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*cacheEntry).bytes, true
}

func (c *fifoCache) put(key string, bytes []byte) {
	if _, exists := c.index[key]; exists {
		return
	}
	el := c.order.PushBack(&cacheEntry{key: key, bytes: bytes})
	c.index[key] = el

	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
}
