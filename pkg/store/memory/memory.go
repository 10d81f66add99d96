// Package memory provides a non durable configplane backend, useful for
// tests and for ephemeral stores. State does not outlive the process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/store"
)

// Option to configure the memory store
type Option func(*memoryStore)

// Initial seeds the root snapshot of the default branch with a key to blob
// mapping. The mapping is deep copied at Initialize time.
func Initial(entries map[string][]byte) Option {
	return func(m *memoryStore) {
		m.initial = entries
	}
}

// Branch overrides the default branch name
func Branch(name string) Option {
	return func(m *memoryStore) {
		if name != "" {
			m.defaultBranch = name
		}
	}
}

// New creates a memory backed store
func New(opts ...Option) store.Store {
	m := &memoryStore{
		defaultBranch: store.DefaultBranch,
		snapshots:     make(map[string]*model.Snapshot),
		branches:      make(map[string]string),
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

type memoryStore struct {
	mu            sync.RWMutex
	snapshots     map[string]*model.Snapshot
	branches      map[string]string
	defaultBranch string
	initial       map[string][]byte
	init          sync.Once
	initErr       error
}

func (m *memoryStore) Initialize(ctx context.Context) error {
	m.init.Do(func() {
		root := &model.Snapshot{
			Branch:    m.defaultBranch,
			Message:   "root",
			Timestamp: time.Now(),
			Entries:   model.Entries(m.initial).Clone(),
		}
		root.ID, m.initErr = root.Identify()
		if m.initErr != nil {
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		m.snapshots[root.ID] = root
		m.branches[m.defaultBranch] = root.ID
	})
	return m.initErr
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	if id == "" {
		return nil, store.ErrNameIsRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[id]
	if !ok {
		return nil, store.ErrSnapshotNotFound
	}
	// callers must never be able to mutate stored state
	return snap.Clone(), nil
}

func (m *memoryStore) Head(ctx context.Context, branch string) (string, error) {
	if branch == "" {
		return "", store.ErrNameIsRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	head, ok := m.branches[branch]
	if !ok {
		return "", store.ErrBranchNotFound
	}
	return head, nil
}

func (m *memoryStore) ListBranches(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.branches))
	for name := range m.branches {
		names = append(names, name)
	}
	return names, nil
}

func (m *memoryStore) CreateBranch(ctx context.Context, name, headID string) error {
	if name == "" {
		return store.ErrNameIsRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.branches[name]; ok {
		return store.ErrBranchAlreadyExists
	}
	if _, ok := m.snapshots[headID]; !ok {
		return store.ErrSnapshotNotFound
	}
	m.branches[name] = headID
	return nil
}

func (m *memoryStore) DeleteBranch(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.branches[name]; !ok {
		return store.ErrBranchNotFound
	}
	delete(m.branches, name)
	return nil
}

func (m *memoryStore) CommitSnapshot(ctx context.Context, branch, expectedHead string, snap *model.Snapshot) (*model.Snapshot, error) {
	stored := snap.Clone()
	if stored.ID == "" {
		var err error
		stored.ID, err = stored.Identify()
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	head, ok := m.branches[branch]
	if !ok {
		return nil, store.ErrBranchNotFound
	}
	if head != expectedHead {
		return nil, store.ErrConcurrentModification
	}

	m.snapshots[stored.ID] = stored
	m.branches[branch] = stored.ID
	return stored.Clone(), nil
}

func (m *memoryStore) AdvanceBranch(ctx context.Context, branch, expectedHead, newHead string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	head, ok := m.branches[branch]
	if !ok {
		return store.ErrBranchNotFound
	}
	if head != expectedHead {
		return store.ErrConcurrentModification
	}
	if _, ok := m.snapshots[newHead]; !ok {
		return store.ErrSnapshotNotFound
	}
	m.branches[branch] = newHead
	return nil
}
