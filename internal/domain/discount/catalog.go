package discount

import (
	"context"
	"sync"
)

// Catalog memoizes the full discount set for the scope that owns it. The
// first All call loads through the repository; later calls return the cached
// slice until Invalidate. Save and delete paths must invalidate before the
// next read.
type Catalog struct {
	repo Repository

	mu     sync.Mutex
	loaded bool
	all    []Discount
}

// NewCatalog creates a catalog backed by the given repository.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// All returns every discount ordered by sort order ascending. The result is
// shared; callers must not mutate it.
func (c *Catalog) All(ctx context.Context) ([]Discount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		all, err := c.repo.LoadAll(ctx)
		if err != nil {
			return nil, err
		}
		c.all = all
		c.loaded = true
	}
	return c.all, nil
}

// ByID returns the discount with the given ID from the loaded set, or nil.
func (c *Catalog) ByID(ctx context.Context, id int64) (*Discount, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Invalidate drops the cached set so the next read reloads.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.all = nil
	c.mu.Unlock()
}
