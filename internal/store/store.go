// Package store keeps run state so clients can poll it. Every implementation
// serialises Update calls per run, so readers only ever observe whole
// snapshots.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/model"
)

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = eris.New("run not found")

// ErrExists is returned by Put when the run ID is already registered.
var ErrExists = eris.New("run already exists")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Mutator edits a run in place. Returning an error leaves the stored run
// unchanged and the error is passed back to the caller of Update.
type Mutator func(run *model.RunState) error

// Registry stores RunState by run ID.
type Registry interface {
	// Put registers a new run.
	Put(ctx context.Context, run *model.RunState) error
	// Get returns a snapshot of the run or ErrNotFound.
	Get(ctx context.Context, id string) (*model.RunState, error)
	// Update applies fn to the run under per-run mutual exclusion and
	// returns the stored result.
	Update(ctx context.Context, id string, fn Mutator) (*model.RunState, error)
	// List returns runs newest first.
	List(ctx context.Context, filter RunFilter) ([]*model.RunState, error)
	// DeleteExpired evicts terminal runs last updated before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// applyMutator runs fn against a private copy of run so a failing mutator
// never leaves partial edits behind.
func applyMutator(run *model.RunState, fn Mutator) (*model.RunState, error) {
	next := run.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = run.ID
	return next, nil
}

func expired(run *model.RunState, cutoff time.Time) bool {
	return run.Status.Terminal() && run.UpdatedAt.Before(cutoff)
}

func matches(run *model.RunState, f RunFilter) bool {
	return f.Status == "" || run.Status == f.Status
}

// page sorts runs newest first and applies the filter's offset and limit.
func page(runs []*model.RunState, f RunFilter) []*model.RunState {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(runs) {
			return []*model.RunState{}
		}
		runs = runs[f.Offset:]
	}
	if f.Limit > 0 && len(runs) > f.Limit {
		runs = runs[:f.Limit]
	}
	return runs
}

// keyedMutex hands out one mutex per run ID. Entries are reference counted
// and dropped when no caller holds them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
