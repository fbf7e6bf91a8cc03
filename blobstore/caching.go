package blobstore

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CachingStore wraps a BlobStore with a whole-blob read-through cache.
// Intended for remote backends where opening a blob costs a network round
// trip; concurrent fetches of the same blob are collapsed into one.
type CachingStore struct {
	inner    BlobStore
	group    singleflight.Group
	mu       sync.RWMutex
	cache    map[string][]byte
	used     int64
	maxBytes int64
}

// NewCachingStore creates a caching wrapper holding at most maxBytes of blob
// data. maxBytes <= 0 means 256MB.
func NewCachingStore(inner BlobStore, maxBytes int64) *CachingStore {
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	return &CachingStore{
		inner:    inner,
		cache:    make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

// Open returns a blob served from cache, fetching it from the inner store on
// miss. Concurrent misses on the same name trigger a single fetch.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	s.mu.RLock()
	data, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return &memoryBlob{data: data}, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		fetched, err := ReadAll(ctx, s.inner, name)
		if err != nil {
			return nil, err
		}
		s.admit(name, fetched)
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return &memoryBlob{data: v.([]byte)}, nil
}

// admit stores a fetched blob unless it alone exceeds the budget. When the
// budget overflows, the cache is dropped wholesale; blobs are few and large,
// so eviction precision buys little.
func (s *CachingStore) admit(name string, data []byte) {
	if int64(len(data)) > s.maxBytes {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.cache[name]; ok {
		s.used -= int64(len(old))
	}
	if s.used+int64(len(data)) > s.maxBytes {
		s.cache = make(map[string][]byte)
		s.used = 0
	}
	s.cache[name] = data
	s.used += int64(len(data))
}

func (s *CachingStore) invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.cache[name]; ok {
		s.used -= int64(len(old))
		delete(s.cache, name)
	}
}

// Create passes through to the inner store, invalidating the cached blob
// when the write completes.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	w, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &invalidatingBlob{WritableBlob: w, store: s, name: name}, nil
}

// Put writes through to the inner store and invalidates the cached blob.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete removes the blob from the inner store and the cache.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List passes through to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type invalidatingBlob struct {
	WritableBlob
	store *CachingStore
	name  string
}

func (b *invalidatingBlob) Close() error {
	err := b.WritableBlob.Close()
	b.store.invalidate(b.name)
	return err
}
