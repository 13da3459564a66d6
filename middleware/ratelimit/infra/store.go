package infra

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"tauben-gateway/middleware/ratelimit/domain"
)

const defaultShards = 64

// WindowStore guarda janelas fixas por chave, divididas em shards.
//
// Cada shard tem seu próprio mutex: chaves não relacionadas não disputam lock,
// e o sweeper só segura um shard por vez, em lotes curtos.
type WindowStore struct {
	shards []*shard
	mask   uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[domain.Key]domain.WindowEntry
}

type StoreOption func(*storeConfig)

type storeConfig struct {
	shards int
}

// WithShards define o número de shards (arredondado para potência de 2).
func WithShards(n int) StoreOption {
	return func(c *storeConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

func NewWindowStore(opts ...StoreOption) *WindowStore {
	cfg := storeConfig{shards: defaultShards}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := 1
	for n < cfg.shards {
		n <<= 1
	}

	s := &WindowStore{
		shards: make([]*shard, n),
		mask:   uint64(n - 1),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[domain.Key]domain.WindowEntry)}
	}
	return s
}

func (s *WindowStore) shardFor(key domain.Key) *shard {
	return s.shards[xxhash.Sum64String(string(key))&s.mask]
}

// Update implementa domain.WindowStore.
func (s *WindowStore) Update(key domain.Key, fn func(domain.WindowEntry, bool) (domain.WindowEntry, bool)) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.entries[key]
	if next, store := fn(cur, ok); store {
		sh.entries[key] = next
	}
}

func (s *WindowStore) Get(key domain.Key) (domain.WindowEntry, bool) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	return e, ok
}

func (s *WindowStore) Delete(key domain.Key) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
}

// Len conta as entradas físicas, inclusive as já expiradas e ainda não varridas.
func (s *WindowStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Sweep remove as entradas com ResetAt <= now.
//
// Para cada shard, uma leitura coleta as chaves expiradas e a remoção acontece
// em lotes de sweepBatch, retomando o lock a cada lote e conferindo de novo
// a validade (a chave pode ter sido renovada entre as duas fases).
func (s *WindowStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		removed += sh.deleteStale(sh.staleKeys(now), now)
	}
	return removed
}

const sweepBatch = 128

func (sh *shard) staleKeys(now time.Time) []domain.Key {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var keys []domain.Key
	for k, e := range sh.entries {
		if !e.Active(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (sh *shard) deleteStale(keys []domain.Key, now time.Time) int {
	removed := 0
	for len(keys) > 0 {
		n := min(sweepBatch, len(keys))

		sh.mu.Lock()
		for _, k := range keys[:n] {
			if e, ok := sh.entries[k]; ok && !e.Active(now) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()

		keys = keys[n:]
	}
	return removed
}
