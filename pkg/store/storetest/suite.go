// Package storetest exercises the full backend contract against any store
// implementation. Every backend package runs this suite from its own tests,
// so the semantics of commit, concurrency and merge are verified to be
// identical across memory, localfs, gitfs and sqlstore.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/repo"
	"github.com/configplane/configplane/pkg/store"
)

// Factory builds a fresh, empty store for one subtest
type Factory func(t *testing.T) store.Store

// RunContract runs the whole backend contract against stores built by the
// factory
func RunContract(t *testing.T, factory Factory) {
	t.Run("branch lifecycle", func(t *testing.T) { testBranchLifecycle(t, factory) })
	t.Run("stage and commit", func(t *testing.T) { testStageCommit(t, factory) })
	t.Run("identity commit", func(t *testing.T) { testIdentityCommit(t, factory) })
	t.Run("delete nonexistent key", func(t *testing.T) { testDeleteNonexistent(t, factory) })
	t.Run("concurrent commit", func(t *testing.T) { testConcurrentCommit(t, factory) })
	t.Run("fast-forward merge", func(t *testing.T) { testFastForward(t, factory) })
	t.Run("merge conflict", func(t *testing.T) { testMergeConflict(t, factory) })
	t.Run("delete-modify conflict", func(t *testing.T) { testDeleteModifyConflict(t, factory) })
	t.Run("three-way merge", func(t *testing.T) { testThreeWayMerge(t, factory) })
	t.Run("end to end", func(t *testing.T) { testEndToEnd(t, factory) })
}

func makeRepo(t *testing.T, factory Factory) *repo.Repo {
	t.Helper()
	ctx := context.Background()
	st := factory(t)
	require.NoError(t, st.Initialize(ctx))
	t.Cleanup(func() { _ = st.Close() })
	return repo.New(st)
}

// commit is a helper staging a batch of changes on a branch; nil marks a
// deletion
func commit(t *testing.T, r *repo.Repo, branch string, changes map[string][]byte, message string) *model.Snapshot {
	t.Helper()
	ctx := context.Background()

	stage, err := r.CreateStage(ctx, branch)
	require.NoError(t, err)
	for key, value := range changes {
		if value == nil {
			stage.Delete(key)
			continue
		}
		stage.Set(key, value)
	}
	snap, err := r.Commit(ctx, stage, repo.CommitMessage(message))
	require.NoError(t, err)
	return snap
}

func testBranchLifecycle(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	_, err := r.GetSnapshot(ctx, "nope")
	require.ErrorIs(t, err, store.ErrBranchNotFound)

	head, err := r.GetSnapshot(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.NotEmpty(t, head.ID)

	require.NoError(t, r.CreateBranch(ctx, "dev", store.DefaultBranch))
	require.ErrorIs(t, r.CreateBranch(ctx, "dev", store.DefaultBranch), store.ErrBranchAlreadyExists)

	devHead, err := r.GetSnapshot(ctx, "dev")
	require.NoError(t, err)
	require.Equal(t, head.ID, devHead.ID, "a new branch points at the head it was cloned from")

	branches, err := r.ListBranches(ctx)
	require.NoError(t, err)
	require.Contains(t, branches, store.DefaultBranch)
	require.Contains(t, branches, "dev")

	require.NoError(t, r.DeleteBranch(ctx, "dev"))
	_, err = r.GetSnapshot(ctx, "dev")
	require.ErrorIs(t, err, store.ErrBranchNotFound)
	require.ErrorIs(t, r.DeleteBranch(ctx, "dev"), store.ErrBranchNotFound)

	// deleting a branch never deletes snapshots
	snap, err := r.Store().GetSnapshot(ctx, head.ID)
	require.NoError(t, err)
	require.Equal(t, head.ID, snap.ID)
}

func testStageCommit(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	base, err := r.GetSnapshot(ctx, store.DefaultBranch)
	require.NoError(t, err)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.False(t, stage.IsDirty())

	stage.Set("app", []byte(`{"name": "MyApp", "version": 1}`))
	stage.Set("theme", []byte("light"))
	require.True(t, stage.IsDirty())

	value, ok := stage.Get("app")
	require.True(t, ok)
	require.Equal(t, []byte(`{"name": "MyApp", "version": 1}`), value)

	snap, err := r.Commit(ctx, stage, repo.CommitMessage("initial config"))
	require.NoError(t, err)
	require.NotEqual(t, base.ID, snap.ID)
	require.Equal(t, []string{base.ID}, snap.Parents)
	require.Equal(t, []byte("light"), snap.Entries["theme"])

	head, err := r.GetSnapshot(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, snap.ID, head.ID)

	// the parent snapshot is untouched
	prev, err := r.Store().GetSnapshot(ctx, base.ID)
	require.NoError(t, err)
	require.NotContains(t, prev.Entries, "app")

	// a committed snapshot is readable by id with full content
	fetched, err := r.Store().GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, snap.Entries, fetched.Entries)
	require.Equal(t, snap.Parents, fetched.Parents)
	require.Equal(t, "initial config", fetched.Message)
}

func testIdentityCommit(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	commit(t, r, store.DefaultBranch, map[string][]byte{"k": []byte("v")}, "seed")
	base, err := r.GetSnapshot(ctx, store.DefaultBranch)
	require.NoError(t, err)

	snap := commit(t, r, store.DefaultBranch, nil, "identity")
	require.NotEqual(t, base.ID, snap.ID, "an identity commit still allocates a new snapshot")
	require.Equal(t, base.Entries, snap.Entries)
	require.Equal(t, []string{base.ID}, snap.Parents)
}

func testDeleteNonexistent(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	commit(t, r, store.DefaultBranch, map[string][]byte{"k": []byte("v")}, "seed")
	base, err := r.GetSnapshot(ctx, store.DefaultBranch)
	require.NoError(t, err)

	snap := commit(t, r, store.DefaultBranch, map[string][]byte{"ghost": nil}, "remove ghost")
	require.Equal(t, base.Entries, snap.Entries, "no spurious tombstone entry")
}

func testConcurrentCommit(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	first, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	second, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)

	first.Set("k", []byte("from first"))
	second.Set("k", []byte("from second"))

	_, err = r.Commit(ctx, first, repo.CommitMessage("wins"))
	require.NoError(t, err)

	_, err = r.Commit(ctx, second, repo.CommitMessage("loses"))
	require.ErrorIs(t, err, store.ErrConcurrentModification)

	// the losing commit changed nothing
	head, err := r.GetSnapshot(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, []byte("from first"), head.Entries["k"])

	// retry path: derive a fresh stage, replay, commit
	retry, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	second.Replay(retry)
	snap, err := r.Commit(ctx, retry, repo.CommitMessage("retried"))
	require.NoError(t, err)
	require.Equal(t, []byte("from second"), snap.Entries["k"])
}

func testFastForward(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	commit(t, r, store.DefaultBranch, map[string][]byte{"k": []byte("v")}, "seed")
	require.NoError(t, r.CreateBranch(ctx, "dev", store.DefaultBranch))

	devHead := commit(t, r, "dev", map[string][]byte{"k2": []byte("v2")}, "work on dev")

	merged, err := r.Merge(ctx, "dev", store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, devHead.ID, merged.ID, "fast-forward advances to the source head exactly")

	head, err := r.GetSnapshot(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, devHead.ID, head.ID)
}

func testMergeConflict(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	commit(t, r, store.DefaultBranch, map[string][]byte{"k": []byte("v")}, "common ancestor")
	require.NoError(t, r.CreateBranch(ctx, "a", store.DefaultBranch))
	require.NoError(t, r.CreateBranch(ctx, "b", store.DefaultBranch))

	commit(t, r, "a", map[string][]byte{"k": []byte("x")}, "a changes k")
	commit(t, r, "b", map[string][]byte{"k": []byte("y")}, "b changes k")

	aHead, err := r.GetSnapshot(ctx, "a")
	require.NoError(t, err)
	bHead, err := r.GetSnapshot(ctx, "b")
	require.NoError(t, err)

	_, err = r.Merge(ctx, "a", "b")
	require.ErrorIs(t, err, repo.ErrMergeConflict)

	var conflict *repo.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	require.Equal(t, "k", conflict.Conflicts[0].Key)
	require.Equal(t, []byte("v"), conflict.Conflicts[0].Base)
	require.Equal(t, []byte("x"), conflict.Conflicts[0].Source)
	require.Equal(t, []byte("y"), conflict.Conflicts[0].Target)

	// neither branch advanced
	after, err := r.GetSnapshot(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, aHead.ID, after.ID)
	after, err = r.GetSnapshot(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, bHead.ID, after.ID)
}

func testDeleteModifyConflict(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	commit(t, r, store.DefaultBranch, map[string][]byte{"k": []byte("v")}, "common ancestor")
	require.NoError(t, r.CreateBranch(ctx, "a", store.DefaultBranch))
	require.NoError(t, r.CreateBranch(ctx, "b", store.DefaultBranch))

	commit(t, r, "a", map[string][]byte{"k": nil}, "a deletes k")
	commit(t, r, "b", map[string][]byte{"k": []byte("y")}, "b changes k")

	_, err := r.Merge(ctx, "a", "b")
	require.ErrorIs(t, err, repo.ErrMergeConflict)

	var conflict *repo.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	require.True(t, conflict.Conflicts[0].SourceDeleted)
	require.False(t, conflict.Conflicts[0].TargetDeleted)
}

func testThreeWayMerge(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	commit(t, r, store.DefaultBranch, map[string][]byte{
		"shared":  []byte("base"),
		"left":    []byte("base"),
		"right":   []byte("base"),
		"deleted": []byte("base"),
	}, "common ancestor")
	require.NoError(t, r.CreateBranch(ctx, "dev", store.DefaultBranch))

	// both sides diverge without touching the same key differently
	commit(t, r, "dev", map[string][]byte{
		"left":   []byte("from dev"),
		"shared": []byte("same value"),
		"new":    []byte("from dev"),
	}, "dev work")
	tgtHead := commit(t, r, store.DefaultBranch, map[string][]byte{
		"right":   []byte("from master"),
		"shared":  []byte("same value"),
		"deleted": nil,
	}, "master work")
	srcHead, err := r.GetSnapshot(ctx, "dev")
	require.NoError(t, err)

	merged, err := r.Merge(ctx, "dev", store.DefaultBranch)
	require.NoError(t, err)

	require.Equal(t, []string{tgtHead.ID, srcHead.ID}, merged.Parents,
		"a merge snapshot records target then source parents")
	require.Equal(t, model.Entries{
		"shared": []byte("same value"),
		"left":   []byte("from dev"),
		"right":  []byte("from master"),
		"new":    []byte("from dev"),
	}, merged.Entries)

	head, err := r.GetSnapshot(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, merged.ID, head.ID)

	// the source branch does not move
	devHead, err := r.GetSnapshot(ctx, "dev")
	require.NoError(t, err)
	require.Equal(t, srcHead.ID, devHead.ID)
}

// testEndToEnd follows the full scenario: seed prod, branch dev, rework the
// config on dev, merge it back
func testEndToEnd(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := makeRepo(t, factory)

	require.NoError(t, r.CreateBranch(ctx, "prod", store.DefaultBranch))
	commit(t, r, "prod", map[string][]byte{
		"feature_x": []byte("false"),
		"theme":     []byte("light"),
	}, "initial prod config")

	require.NoError(t, r.CreateBranch(ctx, "dev", "prod"))
	devSnap := commit(t, r, "dev", map[string][]byte{
		"feature_x": []byte("true"),
		"theme":     []byte("dark"),
	}, "enable feature_x")

	prodHead, err := r.GetSnapshot(ctx, "prod")
	require.NoError(t, err)
	require.Equal(t, []byte("false"), prodHead.Entries["feature_x"], "prod is unchanged by dev work")

	_, err = r.Merge(ctx, "dev", "prod")
	require.NoError(t, err)

	prodHead, err = r.GetSnapshot(ctx, "prod")
	require.NoError(t, err)
	require.Equal(t, devSnap.ID, prodHead.ID)
	require.Equal(t, model.Entries{
		"feature_x": []byte("true"),
		"theme":     []byte("dark"),
	}, prodHead.Entries)
}
