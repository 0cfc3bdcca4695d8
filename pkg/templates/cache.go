package templates

import (
	"sync"

	"github.com/gestia/gestia/pkg/models"
)

// Cache holds templates for read-mostly access. Updates and deletes must
// invalidate an entry before the next transition validation runs, which the
// store guarantees by invalidating around every write.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*models.Template
}

// NewCache creates an empty template cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*models.Template)}
}

// Get returns a cached template.
func (c *Cache) Get(id string) (*models.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	template, ok := c.entries[id]

	return template, ok
}

// Put stores a template.
func (c *Cache) Put(template *models.Template) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[template.ID] = template
}

// Invalidate drops a template from the cache.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}
