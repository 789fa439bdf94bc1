// Package memory provides an in-memory catalog.Store backed by
// github.com/hashicorp/golang-lru/v2, with TTL support.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ggoodman/rpc-router-go/catalog"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Store implements catalog.Store in memory. The least recently used document
// is evicted once maxItems is reached.
type Store struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, *catalog.Document]

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new in-memory store holding at most maxItems documents.
func New(maxItems int) (*Store, error) {
	cache, err := lru.New[string, *catalog.Document](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Store{
		cache: cache,
		done:  make(chan struct{}),
	}

	// Start background cleanup of expired documents
	go s.cleanupExpired(5 * time.Minute)

	return s, nil
}

// Get returns the document published under name.
func (s *Store) Get(ctx context.Context, name string) (*catalog.Document, error) {
	s.mu.RLock()
	doc, exists := s.cache.Get(name)
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	if doc.IsExpired() {
		s.mu.Lock()
		s.cache.Remove(name)
		s.mu.Unlock()
		return nil, nil
	}

	return cloneDocument(doc), nil
}

// Put stores a copy of doc under name.
func (s *Store) Put(ctx context.Context, name string, doc *catalog.Document, opts ...catalog.Option) error {
	if doc == nil {
		return fmt.Errorf("nil document for %q", name)
	}
	options := catalog.ApplyOptions(opts...)

	stored := cloneDocument(doc)
	if stored.PublishedAt.IsZero() {
		stored.PublishedAt = time.Now().UTC()
	}
	if options.TTL != nil && stored.ExpiresAt == nil {
		expiresAt := stored.PublishedAt.Add(*options.TTL)
		stored.ExpiresAt = &expiresAt
	}

	s.mu.Lock()
	s.cache.Add(name, stored)
	s.mu.Unlock()

	return nil
}

// Delete removes the document published under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	s.cache.Remove(name)
	s.mu.Unlock()
	return nil
}

// List returns the names of unexpired documents in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for _, name := range s.cache.Keys() {
		if doc, ok := s.cache.Peek(name); ok && !doc.IsExpired() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close stops background cleanup and drops all documents.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

// cleanupExpired periodically evicts expired documents until Close is called.
func (s *Store) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.cache.Keys() {
		if doc, exists := s.cache.Peek(name); exists && doc.IsExpired() {
			s.cache.Remove(name)
		}
	}
}

func cloneDocument(doc *catalog.Document) *catalog.Document {
	out := *doc
	out.Data = append([]byte(nil), doc.Data...)
	if doc.ExpiresAt != nil {
		t := *doc.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// Compile-time interface check
var _ catalog.Store = (*Store)(nil)
