package dedup

import "sync"

// Cache maps normalized scenario text to its embedding vector. One cache is
// shared across all dimensions of a single feature run so identical
// normalized text is only embedded once. Never shared across unrelated runs
// unless the caller chooses to.
type Cache struct {
	mu      sync.Mutex
	vectors map[string][]float32
}

// NewCache creates an empty embedding cache.
func NewCache() *Cache {
	return &Cache{vectors: make(map[string][]float32)}
}

func (c *Cache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vectors[key]
	return v, ok
}

func (c *Cache) put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[key] = vector
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vectors)
}
