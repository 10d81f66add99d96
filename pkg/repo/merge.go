package repo

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/configplane/configplane/pkg/model"
	"go.uber.org/zap"
)

// ErrMergeConflict is the sentinel matched by errors.Is for any
// *ConflictError returned by Merge
const ErrMergeConflict errorString = "merge conflict"

// Conflict describes a single key both branches changed, relative to their
// common ancestor, to different values. A nil blob with the matching Deleted
// flag set means that side removed the key.
type Conflict struct {
	Key           string `json:"key" yaml:"key"`
	Base          []byte `json:"base,omitempty" yaml:"base,omitempty"`
	Source        []byte `json:"source,omitempty" yaml:"source,omitempty"`
	Target        []byte `json:"target,omitempty" yaml:"target,omitempty"`
	SourceDeleted bool   `json:"source_deleted,omitempty" yaml:"source_deleted,omitempty"`
	TargetDeleted bool   `json:"target_deleted,omitempty" yaml:"target_deleted,omitempty"`
	_             struct{}
}

// ConflictError reports every conflicted key of a failed merge. When it is
// returned, no snapshot was created and neither branch advanced.
type ConflictError struct {
	SourceBranch string
	TargetBranch string
	Conflicts    []Conflict
}

func (e *ConflictError) Error() string {
	keys := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		keys[i] = c.Key
	}
	return fmt.Sprintf("merge conflict merging %q into %q on keys: %s",
		e.SourceBranch, e.TargetBranch, strings.Join(keys, ", "))
}

// Is makes errors.Is(err, ErrMergeConflict) match
func (e *ConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}

// Merge combines the history of the source branch into the target branch
// with a three-way merge against their nearest common ancestor.
//
// Keys changed on one side only take that side's value; keys changed on both
// sides to the same value take it; keys changed on both sides to different
// values, including a deletion racing a modification, abort the merge with a
// *ConflictError.
//
// When the target head is the common ancestor the merge fast-forwards: the
// target pointer advances to the source head without allocating a snapshot,
// which is observably equivalent to a full merge. Otherwise the merged
// snapshot carries parents [target head, source head] and the target pointer
// advances to it under the same compare-and-swap discipline as Commit.
func (r *Repo) Merge(ctx context.Context, sourceBranch, targetBranch string, opts ...CommitOption) (*model.Snapshot, error) {
	srcHead, err := r.store.Head(ctx, sourceBranch)
	if err != nil {
		return nil, err
	}
	tgtHead, err := r.store.Head(ctx, targetBranch)
	if err != nil {
		return nil, err
	}

	if srcHead == tgtHead {
		// nothing to merge
		return r.store.GetSnapshot(ctx, tgtHead)
	}

	base, err := r.mergeBase(ctx, srcHead, tgtHead)
	if err != nil {
		return nil, err
	}

	switch base {
	case srcHead:
		// source is already an ancestor of target
		return r.store.GetSnapshot(ctx, tgtHead)
	case tgtHead:
		if err := r.store.AdvanceBranch(ctx, targetBranch, tgtHead, srcHead); err != nil {
			return nil, err
		}
		r.logs.Debug("merge fast-forwarded",
			zap.String("source", sourceBranch),
			zap.String("target", targetBranch),
			zap.String("head", srcHead))
		return r.store.GetSnapshot(ctx, srcHead)
	}

	baseSnap, err := r.store.GetSnapshot(ctx, base)
	if err != nil {
		return nil, err
	}
	srcSnap, err := r.store.GetSnapshot(ctx, srcHead)
	if err != nil {
		return nil, err
	}
	tgtSnap, err := r.store.GetSnapshot(ctx, tgtHead)
	if err != nil {
		return nil, err
	}

	merged, conflicts := threeWay(baseSnap.Entries, srcSnap.Entries, tgtSnap.Entries)
	if len(conflicts) > 0 {
		r.logs.Info("merge aborted on conflicts",
			zap.String("source", sourceBranch),
			zap.String("target", targetBranch),
			zap.Int("conflicts", len(conflicts)))
		return nil, &ConflictError{
			SourceBranch: sourceBranch,
			TargetBranch: targetBranch,
			Conflicts:    conflicts,
		}
	}

	var settings commitSettings
	for _, apply := range opts {
		apply(&settings)
	}
	if settings.message == "" {
		settings.message = fmt.Sprintf("merge branch %q into %q", sourceBranch, targetBranch)
	}

	snap := &model.Snapshot{
		Parents:   []string{tgtHead, srcHead},
		Branch:    targetBranch,
		Author:    settings.author,
		Message:   settings.message,
		Timestamp: r.clock(),
		Entries:   merged,
	}
	committed, err := r.store.CommitSnapshot(ctx, targetBranch, tgtHead, snap)
	if err != nil {
		return nil, err
	}

	r.logs.Debug("branches merged",
		zap.String("source", sourceBranch),
		zap.String("target", targetBranch),
		zap.String("snapshot", committed.ID))
	return committed, nil
}

// mergeBase finds the nearest common ancestor of two snapshots with a
// backward BFS from both heads in lockstep, stopping at the first id seen
// from both sides
func (r *Repo) mergeBase(ctx context.Context, a, b string) (string, error) {
	seenA := map[string]bool{}
	seenB := map[string]bool{}
	queueA := []string{a}
	queueB := []string{b}

	visit := func(queue []string, seen, other map[string]bool) ([]string, string, error) {
		if len(queue) == 0 {
			return queue, "", nil
		}
		id := queue[0]
		queue = queue[1:]
		if other[id] {
			return queue, id, nil
		}
		if seen[id] {
			return queue, "", nil
		}
		seen[id] = true

		snap, err := r.store.GetSnapshot(ctx, id)
		if err != nil {
			return queue, "", err
		}
		queue = append(queue, snap.Parents...)
		return queue, "", nil
	}

	for len(queueA) > 0 || len(queueB) > 0 {
		var (
			found string
			err   error
		)
		queueA, found, err = visit(queueA, seenA, seenB)
		if err != nil {
			return "", err
		}
		if found != "" {
			return found, nil
		}
		queueB, found, err = visit(queueB, seenB, seenA)
		if err != nil {
			return "", err
		}
		if found != "" {
			return found, nil
		}
	}
	return "", ErrNoCommonAncestor
}

// threeWay resolves the union of keys of both heads against the common
// ancestor. The returned entries are complete and self consistent; deletions
// simply leave the key out.
func threeWay(base, source, target model.Entries) (model.Entries, []Conflict) {
	keys := map[string]struct{}{}
	for k := range base {
		keys[k] = struct{}{}
	}
	for k := range source {
		keys[k] = struct{}{}
	}
	for k := range target {
		keys[k] = struct{}{}
	}

	merged := make(model.Entries, len(target))
	var conflicts []Conflict

	for key := range keys {
		vb, inBase := base[key]
		vs, inSource := source[key]
		vt, inTarget := target[key]

		sourceChanged := inSource != inBase || !bytes.Equal(vs, vb)
		targetChanged := inTarget != inBase || !bytes.Equal(vt, vb)

		switch {
		case !sourceChanged:
			if inTarget {
				merged[key] = vt
			}
		case !targetChanged:
			if inSource {
				merged[key] = vs
			}
		case inSource == inTarget && bytes.Equal(vs, vt):
			// both sides agree, including agreeing on deletion
			if inSource {
				merged[key] = vs
			}
		default:
			conflicts = append(conflicts, Conflict{
				Key:           key,
				Base:          vb,
				Source:        vs,
				Target:        vt,
				SourceDeleted: !inSource,
				TargetDeleted: !inTarget,
			})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Key < conflicts[j].Key })
	return merged, conflicts
}
