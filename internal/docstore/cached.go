package docstore

import (
	"context"
	"encoding/json"

	"mom-admin-api/internal/cache"
)

// Cached is a read-through Store that keeps recently read documents in a
// TTL cache to avoid duplicate reads. Writes and pushed updates drop the
// cached copy of their path.
type Cached struct {
	Store
	cache *cache.TTLCache[json.RawMessage]
}

// NewCached wraps store with c.
func NewCached(store Store, c *cache.TTLCache[json.RawMessage]) *Cached {
	return &Cached{Store: store, cache: c}
}

func (s *Cached) Read(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	if doc, ok := s.cache.Get(p); ok {
		return doc, nil
	}
	doc, err := s.Store.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	s.cache.Set(p, doc)
	return doc, nil
}

func (s *Cached) Write(ctx context.Context, path string, doc any) error {
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	s.cache.Delete(p)
	err = s.Store.Write(ctx, p, doc)
	// a read racing the write may have cached the previous document
	s.cache.Delete(p)
	return err
}

func (s *Cached) Subscribe(path string, fn func(doc json.RawMessage)) func() {
	p, err := CleanPath(path)
	if err != nil {
		return func() {}
	}
	return s.Store.Subscribe(p, func(doc json.RawMessage) {
		s.cache.Delete(p)
		fn(doc)
	})
}

// Invalidate drops the cached copy of path.
func (s *Cached) Invalidate(path string) {
	if p, err := CleanPath(path); err == nil {
		s.cache.Delete(p)
	}
}

// Cache exposes the underlying cache for monitoring.
func (s *Cached) Cache() *cache.TTLCache[json.RawMessage] {
	return s.cache
}

var _ Store = (*Cached)(nil)
