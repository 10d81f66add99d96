// Package store defines the capability contract every configplane backend
// must satisfy, together with the sentinel errors of that contract.
//
// Backends differ only in durability and in how they achieve atomicity of
// the branch head compare-and-swap; the semantics visible through this
// interface are identical for all of them.
package store

import (
	"context"

	"github.com/configplane/configplane/pkg/model"
)

// DefaultBranch to use when none is specified
const DefaultBranch = "master"

type errorString string

func (e errorString) Error() string { return string(e) }

const (
	// ErrBranchNotFound when a branch name does not resolve to a head
	ErrBranchNotFound errorString = "branch not found"

	// ErrBranchAlreadyExists when a branch is expected to not exist yet
	ErrBranchAlreadyExists errorString = "branch already exists"

	// ErrSnapshotNotFound when a snapshot id does not resolve
	ErrSnapshotNotFound errorString = "snapshot not found"

	// ErrConcurrentModification when the branch head advanced between the
	// time a stage was derived and the time its commit was attempted. The
	// losing writer fails immediately; no state is changed.
	ErrConcurrentModification errorString = "branch head changed concurrently"

	// ErrNameIsRequired whenever a name is expected but not provided
	ErrNameIsRequired errorString = "name is required"
)

// A Store persists the append-only snapshot graph and the branch pointers.
//
// All mutation of a branch pointer goes through CommitSnapshot or
// AdvanceBranch, both of which are optimistic: they atomically verify the
// expected head and fail with ErrConcurrentModification when it moved.
// Reads never block writers and never observe a partially written snapshot.
type Store interface {
	// Initialize the backend. After a successful call the default branch
	// exists and points at a root snapshot. Initialize is idempotent.
	Initialize(ctx context.Context) error
	Close() error

	// GetSnapshot resolves a snapshot by id
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)

	// Head returns the current head snapshot id of a branch
	Head(ctx context.Context, branch string) (string, error)

	ListBranches(ctx context.Context) ([]string, error)

	// CreateBranch registers a new branch pointing at an existing snapshot
	CreateBranch(ctx context.Context, name, headID string) error

	// DeleteBranch removes a branch pointer. Snapshots are never deleted:
	// retention is backend policy, outside this contract.
	DeleteBranch(ctx context.Context, name string) error

	// CommitSnapshot atomically persists snap and advances branch from
	// expectedHead to the new snapshot. Both happen together or not at all.
	// The backend assigns snap.ID when it is empty and returns the stored
	// snapshot.
	CommitSnapshot(ctx context.Context, branch, expectedHead string, snap *model.Snapshot) (*model.Snapshot, error)

	// AdvanceBranch atomically moves a branch from expectedHead to an
	// already existing snapshot (the fast-forward case of a merge)
	AdvanceBranch(ctx context.Context, branch, expectedHead, newHead string) error
}
