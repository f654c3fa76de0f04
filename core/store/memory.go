package store

import (
	"context"
	"sync"
	"time"

	"github.com/adalundhe/weft/core/object"
)

// MemoryStore keeps an ordered, immutable version chain per object id.
// Current = last record; a secondary index gives O(1) chain lookup.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]Version
	order  []string
	clock  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains: make(map[string][]Version),
		clock:  time.Now,
	}
}

// SetClock overrides the transaction-time source, for tests.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryStore) Put(ctx context.Context, obj object.Object) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}

	sealed := object.Finalize(obj.Clone())

	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[obj.ID]
	if len(chain) > 0 && chain[len(chain)-1].Object.ObjectHash == sealed.ObjectHash {
		return chain[len(chain)-1], nil
	}

	now := s.clock()
	if sealed.CreatedAt.IsZero() {
		sealed.CreatedAt = now
	}
	version := Version{
		Object: sealed,
		Seq:    len(chain),
		TxTime: now,
	}
	if len(chain) == 0 {
		s.order = append(s.order, obj.ID)
	}
	s.chains[obj.ID] = append(chain, version)
	return version, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chain, ok := s.chains[id]
	if !ok || len(chain) == 0 {
		return Version{}, ErrNotFound
	}
	latest := chain[len(chain)-1]
	if err := verifyIntegrity(latest.Object); err != nil {
		return Version{}, err
	}
	return cloneVersion(latest), nil
}

func (s *MemoryStore) GetAsOf(ctx context.Context, id string, t time.Time) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chain, ok := s.chains[id]
	if !ok || len(chain) == 0 {
		return Version{}, ErrNotFound
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if !chain[i].TxTime.After(t) {
			return cloneVersion(chain[i]), nil
		}
	}
	return Version{}, ErrNotFound
}

func (s *MemoryStore) History(ctx context.Context, id string) ([]Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chain, ok := s.chains[id]
	if !ok || len(chain) == 0 {
		return nil, ErrNotFound
	}
	result := make([]Version, len(chain))
	for i, version := range chain {
		result[i] = cloneVersion(version)
	}
	return result, nil
}

func (s *MemoryStore) Query(ctx context.Context, pred func(object.Object) bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.order {
		chain := s.chains[id]
		if len(chain) == 0 {
			continue
		}
		if pred(chain[len(chain)-1].Object) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func cloneVersion(v Version) Version {
	return Version{
		Object: v.Object.Clone(),
		Seq:    v.Seq,
		TxTime: v.TxTime,
	}
}
