package store

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/model"
)

// MemoryStore keeps runs in process memory. Each stored run is an immutable
// snapshot that Update replaces wholesale.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*model.RunState
	locks *keyedMutex
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]*model.RunState),
		locks: newKeyedMutex(),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Put(_ context.Context, run *model.RunState) error {
	if run == nil || run.ID == "" {
		return eris.New("memory: run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return eris.Wrapf(ErrExists, "memory: put %s", run.ID)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.RunState, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: get %s", id)
	}
	return run.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn Mutator) (*model.RunState, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: update %s", id)
	}

	next, err := applyMutator(run, fn)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.runs[id]; !ok {
		s.mu.Unlock()
		return nil, eris.Wrapf(ErrNotFound, "memory: update %s", id)
	}
	s.runs[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter RunFilter) ([]*model.RunState, error) {
	s.mu.RLock()
	out := make([]*model.RunState, 0, len(s.runs))
	for _, run := range s.runs {
		if matches(run, filter) {
			out = append(out, run.Clone())
		}
	}
	s.mu.RUnlock()
	return page(out, filter), nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, run := range s.runs {
		if expired(run, cutoff) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}
