package sale

import (
	"context"
	"sync"
	"time"
)

// Catalog memoizes the sale set and its derived active view. Temporal
// eligibility is frozen at the first Active call per catalog lifetime; the
// owning scope is expected to be a single request.
type Catalog struct {
	repo Repository

	mu           sync.Mutex
	loaded       bool
	all          []Sale
	activeLoaded bool
	active       []Sale
}

// NewCatalog creates a catalog backed by the given repository.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// All returns every sale in declared order. The result is shared; callers
// must not mutate it.
func (c *Catalog) All(ctx context.Context) ([]Sale, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allLocked(ctx)
}

func (c *Catalog) allLocked(ctx context.Context) ([]Sale, error) {
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

// ByID returns the sale with the given ID from the loaded set, or nil.
func (c *Catalog) ByID(ctx context.Context, id int64) (*Sale, error) {
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

// Active returns the sales that are enabled and whose date window strictly
// contains now. Either bound being nil leaves that side unbounded. The view
// is memoized alongside the full set.
func (c *Catalog) Active(ctx context.Context, now time.Time) ([]Sale, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLoaded {
		return c.active, nil
	}

	all, err := c.allLocked(ctx)
	if err != nil {
		return nil, err
	}

	var active []Sale
	for _, s := range all {
		if !s.Enabled {
			continue
		}
		if s.DateFrom != nil && !s.DateFrom.Before(now) {
			continue
		}
		if s.DateTo != nil && !s.DateTo.After(now) {
			continue
		}
		active = append(active, s)
	}
	c.active = active
	c.activeLoaded = true
	return c.active, nil
}

// Invalidate drops both the full set and the active view.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.all = nil
	c.activeLoaded = false
	c.active = nil
	c.mu.Unlock()
}
