package resource

import (
	"context"
	"sync"

	"eduverse-client-go/internal/domain/guard"
)

// Searcher runs a resource query. *Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, q Query) (Page, error)
}

// Catalog is a search view that only ever shows the latest query's results.
type Catalog struct {
	searcher Searcher
	guard    *guard.Guard[Page]
	onChange func(Page, error)

	mu      sync.RWMutex
	query   Query
	current Page
	err     error
}

// NewCatalog builds a Catalog. onChange, if set, runs after each applied result.
func NewCatalog(searcher Searcher, onChange func(Page, error)) *Catalog {
	c := &Catalog{searcher: searcher, onChange: onChange}
	c.guard = guard.New(c.apply)
	return c
}

// Search replaces the view with the first page of q. An earlier search still
// in flight is superseded and its result dropped.
func (c *Catalog) Search(ctx context.Context, q Query) {
	if q.Page < 1 {
		q.Page = 1
	}
	c.mu.Lock()
	c.query = q
	c.mu.Unlock()

	c.guard.Restart(ctx, func(ctx context.Context) (Page, error) {
		return c.searcher.Search(ctx, q)
	})
}

// LoadMore appends the next page. It does nothing while a search is in flight
// or when every result is already shown, and reports whether it dispatched.
func (c *Catalog) LoadMore(ctx context.Context) bool {
	c.mu.RLock()
	current := c.current
	next := c.query
	c.mu.RUnlock()

	if !current.HasMore() {
		return false
	}
	next.Page = current.Page + 1
	return c.guard.Start(ctx, func(ctx context.Context) (Page, error) {
		return c.searcher.Search(ctx, next)
	})
}

// Current returns the applied page and the error of the last applied search.
func (c *Catalog) Current() (Page, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	page := c.current
	page.Items = append([]Resource(nil), c.current.Items...)
	return page, c.err
}

// Loading reports whether a current search is outstanding.
func (c *Catalog) Loading() bool {
	return c.guard.Busy()
}

// Wait blocks until no search goroutine is running.
func (c *Catalog) Wait() {
	c.guard.Wait()
}

// Discarded counts superseded results that were dropped.
func (c *Catalog) Discarded() uint64 {
	return c.guard.Stale()
}

// Close drops any outstanding result.
func (c *Catalog) Close() {
	c.guard.Invalidate()
}

func (c *Catalog) apply(page Page, err error) {
	c.mu.Lock()
	if err != nil {
		c.err = err
	} else {
		c.err = nil
		if page.Page > 1 && page.Page == c.current.Page+1 {
			page.Items = append(append([]Resource(nil), c.current.Items...), page.Items...)
		}
		c.current = page
	}
	current, applied := c.current, c.err
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(current, applied)
	}
}
