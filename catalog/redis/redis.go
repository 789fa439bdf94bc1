// Package redis provides a Redis-backed catalog.Store, so that published
// catalogs can be read by processes other than the one that built them.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ggoodman/rpc-router-go/catalog"
	"github.com/redis/go-redis/v9"
)

// Documents are stored CBOR encoded. Timestamps keep nanosecond precision.
var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// DefaultKeyPrefix is used when Config.KeyPrefix is empty.
const DefaultKeyPrefix = "rpcrouter:catalog:"

// Config contains configuration options for the Redis store
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "rpcrouter:catalog:"
	KeyPrefix string
}

// Store implements catalog.Store using Redis
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a new Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	// Apply defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}

	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, keyPrefix string) (*Store, error) {
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(Config{Client: cl, KeyPrefix: keyPrefix})
}

// Get returns the document published under name.
func (s *Store) Get(ctx context.Context, name string) (*catalog.Document, error) {
	key := s.buildKey(name)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Key doesn't exist
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	var doc catalog.Document
	if err := decMode.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored document: %w", err)
	}

	// Writers with skewed clocks can leave a key alive past ExpiresAt.
	if doc.IsExpired() {
		s.client.Del(ctx, key)
		return nil, nil
	}

	return &doc, nil
}

// Put stores doc under name. The Redis key expires with the document.
func (s *Store) Put(ctx context.Context, name string, doc *catalog.Document, opts ...catalog.Option) error {
	if doc == nil {
		return fmt.Errorf("nil document for %q", name)
	}
	options := catalog.ApplyOptions(opts...)

	stored := *doc
	if stored.PublishedAt.IsZero() {
		stored.PublishedAt = time.Now().UTC()
	}
	if options.TTL != nil && stored.ExpiresAt == nil {
		expiresAt := stored.PublishedAt.Add(*options.TTL)
		stored.ExpiresAt = &expiresAt
	}

	var redisTTL time.Duration
	if stored.ExpiresAt != nil {
		redisTTL = time.Until(*stored.ExpiresAt)
		if redisTTL <= 0 {
			return s.Delete(ctx, name)
		}
	}

	data, err := encMode.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	key := s.buildKey(name)
	if err := s.client.Set(ctx, key, data, redisTTL).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes the document published under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.buildKey(name)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// List returns the names of all stored documents in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.scanKeys(ctx, s.keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, s.keyPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) buildKey(name string) string {
	return s.keyPrefix + name
}

// scanKeys uses Redis SCAN to find all keys matching a pattern
func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		result := s.client.Scan(ctx, cursor, pattern, 100) // Scan in batches of 100
		if result.Err() != nil {
			return nil, result.Err()
		}

		scanKeys, newCursor := result.Val()
		keys = append(keys, scanKeys...)
		cursor = newCursor

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Compile-time interface check
var _ catalog.Store = (*Store)(nil)
