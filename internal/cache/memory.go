package cache

import (
	"context"
	"hash/fnv"
	"sync"
)

const memoryShards = 16

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// Memory is an in-process Store. Fingerprints are spread over independently locked
// shards so lookups for different fingerprints rarely share a lock.
type Memory struct {
	shards [memoryShards]*memoryShard
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i] = &memoryShard{entries: make(map[string]Entry)}
	}
	return m
}

func (m *Memory) shard(fp string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fp))
	return m.shards[h.Sum32()%memoryShards]
}

func (m *Memory) Get(ctx context.Context, fp string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	s := m.shard(fp)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[fp]
	return entry, ok, nil
}

func (m *Memory) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.shard(entry.Fingerprint)
	s.mu.Lock()
	s.entries[entry.Fingerprint] = entry
	s.mu.Unlock()
	return nil
}

func (m *Memory) EvictAll(context.Context) error {
	for _, s := range m.shards {
		s.mu.Lock()
		s.entries = make(map[string]Entry)
		s.mu.Unlock()
	}
	return nil
}

func (m *Memory) SizeEstimate(context.Context) (Size, error) {
	var size Size
	for _, s := range m.shards {
		s.mu.RLock()
		for _, entry := range s.entries {
			size.Entries++
			size.Bytes += fileBytes(entry.LocalPath)
		}
		s.mu.RUnlock()
	}
	return size, nil
}

func (m *Memory) Close() error { return nil }
