package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const (
	memoryShards           = 64
	defaultJanitorInterval = time.Minute
)

type bucket struct {
	mu      sync.Mutex
	count   int64
	resetAt time.Time
	// dead is set once the bucket has left its shard map; hits on it are lost.
	dead bool
}

// add counts one hit. It reports false when the bucket was evicted after
// the caller looked it up.
func (b *bucket) add(window time.Duration, now time.Time) (int64, time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead {
		return 0, time.Time{}, false
	}
	if b.resetAt.IsZero() || !now.Before(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(window)
	}
	b.count++
	return b.count, b.resetAt, true
}

type shard struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

// MemoryStore is a process-local Store. Buckets are spread over shards so that
// unrelated users never contend on the same lock; each bucket has its own mutex.
type MemoryStore struct {
	shards [memoryShards]*shard

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryStore starts a janitor that evicts expired buckets every interval.
// A non-positive interval uses one minute.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	s := &MemoryStore{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	go s.janitor(interval)
	return s
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	if err := validate(key, window); err != nil {
		return 0, time.Time{}, err
	}

	for {
		if count, resetAt, ok := s.bucketFor(key).add(window, now); ok {
			return count, resetAt, nil
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, key string, now time.Time) (int64, time.Time, error) {
	if key == "" {
		return 0, time.Time{}, ErrEmptyKey
	}
	sh := s.shardFor(key)
	sh.mu.RLock()
	b, ok := sh.buckets[key]
	sh.mu.RUnlock()
	if !ok {
		return 0, time.Time{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead || !now.Before(b.resetAt) {
		return 0, time.Time{}, nil
	}
	return b.count, b.resetAt, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if b, ok := sh.buckets[key]; ok {
		b.mu.Lock()
		b.dead = true
		b.mu.Unlock()
		delete(sh.buckets, key)
	}
	return nil
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

// Sweep evicts buckets whose window has ended at now and reports how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, b := range sh.buckets {
			b.mu.Lock()
			if !now.Before(b.resetAt) {
				b.dead = true
				delete(sh.buckets, key)
				removed++
			}
			b.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%memoryShards]
}

func (s *MemoryStore) bucketFor(key string) *bucket {
	sh := s.shardFor(key)

	sh.mu.RLock()
	b, ok := sh.buckets[key]
	sh.mu.RUnlock()
	if ok {
		return b
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if b, ok = sh.buckets[key]; ok {
		return b
	}
	b = &bucket{}
	sh.buckets[key] = b
	return b
}
