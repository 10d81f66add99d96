package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/repo"
	"github.com/configplane/configplane/pkg/store"
	"github.com/configplane/configplane/pkg/store/memory"
)

func makeRepo(t *testing.T, opts ...repo.Option) *repo.Repo {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.Initialize(context.Background()))
	return repo.New(st, opts...)
}

func TestStageLastWriteWins(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)

	stage.Set("k", []byte("first"))
	stage.Set("k", []byte("second"))
	value, ok := stage.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("second"), value)

	stage.Delete("k")
	_, ok = stage.Get("k")
	require.False(t, ok)

	stage.Set("k", []byte("resurrected"))
	value, ok = stage.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("resurrected"), value)
}

func TestStageFallsThroughToBase(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	seed, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	seed.Set("base-key", []byte("base-value"))
	_, err = r.Commit(ctx, seed, repo.CommitMessage("seed"))
	require.NoError(t, err)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)

	value, ok := stage.Get("base-key")
	require.True(t, ok)
	require.Equal(t, []byte("base-value"), value)

	stage.Delete("base-key")
	_, ok = stage.Get("base-key")
	require.False(t, ok)
}

func TestStageSetCopiesBlob(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)

	buf := []byte("original")
	stage.Set("k", buf)
	buf[0] = 'X'

	value, _ := stage.Get("k")
	require.Equal(t, []byte("original"), value)
}

func TestStageDiff(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	seed, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	seed.Set("keep", []byte("same"))
	seed.Set("change", []byte("before"))
	seed.Set("drop", []byte("gone"))
	_, err = r.Commit(ctx, seed, repo.CommitMessage("seed"))
	require.NoError(t, err)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.True(t, stage.Diff().IsEmpty())

	stage.Set("change", []byte("after"))
	stage.Delete("drop")
	stage.Set("add", []byte("new"))
	stage.Delete("never-existed")

	require.Equal(t, model.ChangeSet{
		{Key: "add", Kind: model.ChangeAdded, To: []byte("new")},
		{Key: "change", Kind: model.ChangeModified, From: []byte("before"), To: []byte("after")},
		{Key: "drop", Kind: model.ChangeRemoved, From: []byte("gone")},
	}, stage.Diff())
}

func TestStageDiffCancellation(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)

	// ops that cancel out produce no net change, though the stage is dirty
	stage.Set("k", []byte("v"))
	stage.Delete("k")
	require.True(t, stage.IsDirty())
	require.True(t, stage.Diff().IsEmpty())
}

func TestCommitMetadata(t *testing.T) {
	ctx := context.Background()
	pinned := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := makeRepo(t, repo.Clock(func() time.Time { return pinned }))

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	stage.Set("k", []byte("v"))

	snap, err := r.Commit(ctx, stage,
		repo.CommitMessage("tune the theme"),
		repo.CommitAuthor("alice"))
	require.NoError(t, err)
	require.Equal(t, "tune the theme", snap.Message)
	require.Equal(t, "alice", snap.Author)
	require.Equal(t, store.DefaultBranch, snap.Branch)
	require.True(t, pinned.Equal(snap.Timestamp))
}

func TestCommitConsumesStage(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	stage.Set("k", []byte("v"))

	_, err = r.Commit(ctx, stage)
	require.NoError(t, err)

	_, err = r.Commit(ctx, stage)
	require.ErrorIs(t, err, repo.ErrStageConsumed)
}

func TestFailedCommitLeavesStageUsable(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	loser, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	loser.Set("k", []byte("late"))

	winner, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	winner.Set("k", []byte("early"))
	_, err = r.Commit(ctx, winner)
	require.NoError(t, err)

	_, err = r.Commit(ctx, loser)
	require.ErrorIs(t, err, store.ErrConcurrentModification)

	// the losing stage is not consumed and can be replayed
	retry, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	loser.Replay(retry)
	snap, err := r.Commit(ctx, retry)
	require.NoError(t, err)
	require.Equal(t, []byte("late"), snap.Entries["k"])
}

func TestLogOrder(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	var ids []string
	for _, message := range []string{"one", "two", "three"} {
		stage, err := r.CreateStage(ctx, store.DefaultBranch)
		require.NoError(t, err)
		stage.Set("msg", []byte(message))
		snap, err := r.Commit(ctx, stage, repo.CommitMessage(message))
		require.NoError(t, err)
		ids = append(ids, snap.ID)
	}

	history, err := r.Log(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Len(t, history, 4, "three commits on top of the root")

	require.Equal(t, ids[2], history[0].ID)
	require.Equal(t, ids[1], history[1].ID)
	require.Equal(t, ids[0], history[2].ID)
	require.True(t, history[3].IsRoot())
}

func TestLogFollowsFirstParent(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	stage.Set("shared", []byte("v"))
	_, err = r.Commit(ctx, stage, repo.CommitMessage("seed"))
	require.NoError(t, err)

	require.NoError(t, r.CreateBranch(ctx, "dev", store.DefaultBranch))

	devStage, err := r.CreateStage(ctx, "dev")
	require.NoError(t, err)
	devStage.Set("dev-key", []byte("v"))
	_, err = r.Commit(ctx, devStage, repo.CommitMessage("dev work"))
	require.NoError(t, err)

	masterStage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	masterStage.Set("master-key", []byte("v"))
	tgtHead, err := r.Commit(ctx, masterStage, repo.CommitMessage("master work"))
	require.NoError(t, err)

	merged, err := r.Merge(ctx, "dev", store.DefaultBranch)
	require.NoError(t, err)

	history, err := r.Log(ctx, store.DefaultBranch)
	require.NoError(t, err)

	// the walk follows the target side of the merge, not the merged-in branch
	require.Equal(t, merged.ID, history[0].ID)
	require.Equal(t, tgtHead.ID, history[1].ID)
}

func TestMergeDefaultMessage(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	stage.Set("k", []byte("v"))
	_, err = r.Commit(ctx, stage, repo.CommitMessage("seed"))
	require.NoError(t, err)

	require.NoError(t, r.CreateBranch(ctx, "dev", store.DefaultBranch))

	devStage, err := r.CreateStage(ctx, "dev")
	require.NoError(t, err)
	devStage.Set("dev-key", []byte("v"))
	_, err = r.Commit(ctx, devStage)
	require.NoError(t, err)

	masterStage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	masterStage.Set("master-key", []byte("v"))
	_, err = r.Commit(ctx, masterStage)
	require.NoError(t, err)

	merged, err := r.Merge(ctx, "dev", store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, `merge branch "dev" into "master"`, merged.Message)
}

func TestMergeSourceAlreadyMerged(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	stage, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	stage.Set("k", []byte("v"))
	_, err = r.Commit(ctx, stage, repo.CommitMessage("seed"))
	require.NoError(t, err)

	require.NoError(t, r.CreateBranch(ctx, "dev", store.DefaultBranch))

	// master moves ahead while dev stays put: merging dev is a no-op
	ahead, err := r.CreateStage(ctx, store.DefaultBranch)
	require.NoError(t, err)
	ahead.Set("k2", []byte("v2"))
	head, err := r.Commit(ctx, ahead, repo.CommitMessage("ahead"))
	require.NoError(t, err)

	merged, err := r.Merge(ctx, "dev", store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, head.ID, merged.ID)
}

func TestCreateBranchValidatesName(t *testing.T) {
	ctx := context.Background()
	r := makeRepo(t)

	require.Error(t, r.CreateBranch(ctx, "", store.DefaultBranch))
	require.Error(t, r.CreateBranch(ctx, "no spaces", store.DefaultBranch))
	require.NotPanics(t, func() {
		require.Error(t, r.CreateBranch(ctx, "日本!", store.DefaultBranch))
	})
	require.NoError(t, r.CreateBranch(ctx, "release/1.2", store.DefaultBranch))
}
