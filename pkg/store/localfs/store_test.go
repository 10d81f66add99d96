package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/store"
	"github.com/configplane/configplane/pkg/store/storetest"
)

func TestLocalFSContract(t *testing.T) {
	storetest.RunContract(t, func(t *testing.T) store.Store {
		return New(t.TempDir())
	})
}

func TestLocalFSPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := New(dir)
	require.NoError(t, first.Initialize(ctx))

	root, err := first.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)

	snap := &model.Snapshot{
		Parents: []string{root},
		Branch:  store.DefaultBranch,
		Message: "survive a restart",
		Entries: model.Entries{"theme": []byte("dark")},
	}
	committed, err := first.CommitSnapshot(ctx, store.DefaultBranch, root, snap)
	require.NoError(t, err)
	require.NoError(t, first.CreateBranch(ctx, "dev", committed.ID))
	require.NoError(t, first.Close())

	second := New(dir)
	require.NoError(t, second.Initialize(ctx))
	defer func() { _ = second.Close() }()

	head, err := second.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, committed.ID, head)

	reloaded, err := second.GetSnapshot(ctx, committed.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("dark"), reloaded.Entries["theme"])
	require.Equal(t, "survive a restart", reloaded.Message)
	require.Equal(t, []string{root}, reloaded.Parents)

	branches, err := second.ListBranches(ctx)
	require.NoError(t, err)
	require.Contains(t, branches, "dev")
}

func TestLocalFSInitializeFailureSticks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// a regular file where the index db directory belongs makes the open fail
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexDb), []byte("in the way"), 0600))

	l := New(dir)
	require.Error(t, l.Initialize(ctx))
	require.Error(t, l.Initialize(ctx), "a retried Initialize must not report success over a half-opened store")
}

func TestLocalFSBlobDedup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	l := New(dir)
	require.NoError(t, l.Initialize(ctx))
	defer func() { _ = l.Close() }()

	root, err := l.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)

	// the same payload under two keys lands on one object
	blob := []byte("shared payload")
	snap := &model.Snapshot{
		Parents: []string{root},
		Branch:  store.DefaultBranch,
		Message: "dedup",
		Entries: model.Entries{"a": blob, "b": blob},
	}
	committed, err := l.CommitSnapshot(ctx, store.DefaultBranch, root, snap)
	require.NoError(t, err)

	digest := blobDigest(blob)
	path := filepath.Join(dir, "objects", digest[:2], digest)
	require.FileExists(t, path)

	reloaded, err := l.GetSnapshot(ctx, committed.ID)
	require.NoError(t, err)
	require.Equal(t, blob, reloaded.Entries["a"])
	require.Equal(t, blob, reloaded.Entries["b"])
}

func TestLocalFSMemMappedFs(t *testing.T) {
	// an afero memory filesystem can host the object area; only the badger
	// index touches disk
	storetest.RunContract(t, func(t *testing.T) store.Store {
		return New(t.TempDir(), FileSystem(afero.NewMemMapFs()))
	})
}
