// Package repo implements the transactional model of configplane on top of
// any backend satisfying the store contract: stages over immutable
// snapshots, optimistic commits guarded by a branch head compare-and-swap,
// and three-way merges against the nearest common ancestor.
package repo

import (
	"context"
	"time"

	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/store"
	"go.uber.org/zap"
)

type errorString string

func (e errorString) Error() string { return string(e) }

const (
	// ErrStageConsumed when committing a stage that already committed
	ErrStageConsumed errorString = "stage already consumed by a successful commit"

	// ErrNoCommonAncestor when two branch histories do not intersect
	ErrNoCommonAncestor errorString = "branches share no common ancestor"
)

// Option to configure a Repo
type Option func(*Repo)

// Logger overrides the default nop logger
func Logger(logs *zap.Logger) Option {
	return func(r *Repo) {
		if logs != nil {
			r.logs = logs
		}
	}
}

// Clock overrides the time source, used by tests to pin timestamps
func Clock(now func() time.Time) Option {
	return func(r *Repo) {
		if now != nil {
			r.clock = now
		}
	}
}

// New repository view over a backend store
func New(st store.Store, opts ...Option) *Repo {
	r := &Repo{
		store: st,
		logs:  zap.NewNop(),
		clock: time.Now,
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

// Repo exposes the configplane operation surface over a single backend.
//
// A Repo is safe for concurrent use: all shared mutable state lives in the
// backend and every head mutation is a compare-and-swap there.
type Repo struct {
	store store.Store
	logs  *zap.Logger
	clock func() time.Time
}

// Store gives access to the underlying backend
func (r *Repo) Store() store.Store { return r.store }

// GetSnapshot returns the current head snapshot of a branch
func (r *Repo) GetSnapshot(ctx context.Context, branch string) (*model.Snapshot, error) {
	head, err := r.store.Head(ctx, branch)
	if err != nil {
		return nil, err
	}
	return r.store.GetSnapshot(ctx, head)
}

// ListBranches returns the known branch names
func (r *Repo) ListBranches(ctx context.Context) ([]string, error) {
	return r.store.ListBranches(ctx)
}

// CreateBranch clones the head of an existing branch under a new name
func (r *Repo) CreateBranch(ctx context.Context, name, fromBranch string) error {
	if err := model.ValidateBranchName(name); err != nil {
		return err
	}
	head, err := r.store.Head(ctx, fromBranch)
	if err != nil {
		return err
	}
	if err := r.store.CreateBranch(ctx, name, head); err != nil {
		return err
	}
	r.logs.Debug("branch created",
		zap.String("branch", name),
		zap.String("from", fromBranch),
		zap.String("head", head))
	return nil
}

// DeleteBranch removes a branch pointer. The snapshots it pointed at remain
// in the graph.
func (r *Repo) DeleteBranch(ctx context.Context, name string) error {
	return r.store.DeleteBranch(ctx, name)
}

// CreateStage derives a new edit session from the current head of a branch
func (r *Repo) CreateStage(ctx context.Context, branch string) (*Stage, error) {
	base, err := r.GetSnapshot(ctx, branch)
	if err != nil {
		return nil, err
	}
	stage := newStage(branch, base)
	r.logs.Debug("stage created",
		zap.String("stage", stage.ID()),
		zap.String("branch", branch),
		zap.String("base", base.ID))
	return stage, nil
}

// CommitOption carries optional metadata for commits and merges
type CommitOption func(*commitSettings)

type commitSettings struct {
	author  string
	message string
}

// CommitMessage attaches a message to the resulting snapshot
func CommitMessage(message string) CommitOption {
	return func(s *commitSettings) { s.message = message }
}

// CommitAuthor attaches an author to the resulting snapshot
func CommitAuthor(author string) CommitOption {
	return func(s *commitSettings) { s.author = author }
}

// Commit turns the stage's pending changes into a new snapshot, child of the
// stage's base, and advances the branch pointer, atomically with respect to
// other commits and merges on the same branch.
//
// When the branch advanced since the stage was derived, Commit fails with
// store.ErrConcurrentModification and changes nothing. The caller decides
// whether to derive a fresh stage, Replay its ops and retry; nothing is
// retried here.
//
// A stage with no pending ops still commits: the snapshot content equals the
// base but a new snapshot id is allocated. On success the stage is consumed
// and must not be committed again.
func (r *Repo) Commit(ctx context.Context, stage *Stage, opts ...CommitOption) (*model.Snapshot, error) {
	if stage.consumed {
		return nil, ErrStageConsumed
	}
	var settings commitSettings
	for _, apply := range opts {
		apply(&settings)
	}

	snap := &model.Snapshot{
		Parents:   []string{stage.Base().ID},
		Branch:    stage.Branch(),
		Author:    settings.author,
		Message:   settings.message,
		Timestamp: r.clock(),
		Entries:   stage.materialize(),
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	committed, err := r.store.CommitSnapshot(ctx, stage.Branch(), stage.Base().ID, snap)
	if err != nil {
		if err == store.ErrConcurrentModification {
			r.logs.Info("commit lost optimistic concurrency race",
				zap.String("stage", stage.ID()),
				zap.String("branch", stage.Branch()),
				zap.String("base", stage.Base().ID))
		}
		return nil, err
	}
	stage.consumed = true

	r.logs.Debug("stage committed",
		zap.String("stage", stage.ID()),
		zap.String("branch", stage.Branch()),
		zap.String("snapshot", committed.ID))
	return committed, nil
}

// Log walks the first-parent history of a branch from its head down to the
// root, most recent first
func (r *Repo) Log(ctx context.Context, branch string) ([]*model.Snapshot, error) {
	snap, err := r.GetSnapshot(ctx, branch)
	if err != nil {
		return nil, err
	}

	var history []*model.Snapshot
	for {
		history = append(history, snap)
		if snap.IsRoot() {
			return history, nil
		}
		snap, err = r.store.GetSnapshot(ctx, snap.Parents[0])
		if err != nil {
			return nil, err
		}
	}
}
