package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCacheService is an in-process CacheService used by tests and for
// graceful degradation when no Redis endpoint is configured.
type MemoryCacheService struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	values map[string]string
	counts map[string]int64
}

func NewMemoryCacheService() *MemoryCacheService {
	return &MemoryCacheService{
		hashes: make(map[string]map[string]string),
		values: make(map[string]string),
		counts: make(map[string]int64),
	}
}

func (m *MemoryCacheService) hash(key string) map[string]string {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	return h
}

func (m *MemoryCacheService) HGet(ctx context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.hash(key)[field]
	if !ok {
		return "", ErrCacheMiss
	}
	return val, nil
}

func (m *MemoryCacheService) HSet(ctx context.Context, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(key)
	_, existed := h[field]
	h[field] = value
	return !existed, nil
}

func (m *MemoryCacheService) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(key)
	if _, existed := h[field]; existed {
		return false, nil
	}
	h[field] = value
	return true, nil
}

func (m *MemoryCacheService) HDel(ctx context.Context, key, field string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(key)
	if _, existed := h[field]; !existed {
		return 0, nil
	}
	delete(h, field)
	return 1, nil
}

func (m *MemoryCacheService) HKeys(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(key)
	fields := make([]string, 0, len(h))
	for field := range h {
		fields = append(fields, field)
	}
	return fields, nil
}

func (m *MemoryCacheService) HLen(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.hash(key))), nil
}

func (m *MemoryCacheService) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return val, nil
}

func (m *MemoryCacheService) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryCacheService) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *MemoryCacheService) Close() error {
	return nil
}

func (m *MemoryCacheService) HealthCheck(ctx context.Context) error {
	return nil
}
