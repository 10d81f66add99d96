package gitfs

import (
	"context"
	"io"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/store"
	"github.com/configplane/configplane/pkg/store/storetest"
)

func TestGitFSContract(t *testing.T) {
	storetest.RunContract(t, func(t *testing.T) store.Store {
		return New(t.TempDir())
	})
}

func TestGitFSPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := New(dir)
	require.NoError(t, first.Initialize(ctx))

	root, err := first.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)

	snap := &model.Snapshot{
		Parents: []string{root},
		Branch:  store.DefaultBranch,
		Author:  "tester",
		Message: "survive a reopen",
		Entries: model.Entries{"theme": []byte("dark")},
	}
	committed, err := first.CommitSnapshot(ctx, store.DefaultBranch, root, snap)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := New(dir)
	require.NoError(t, second.Initialize(ctx))

	head, err := second.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, committed.ID, head)

	reloaded, err := second.GetSnapshot(ctx, committed.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("dark"), reloaded.Entries["theme"])
	require.Equal(t, "survive a reopen", reloaded.Message)
	require.Equal(t, store.DefaultBranch, reloaded.Branch)
	require.Equal(t, "tester", reloaded.Author)
}

// TestGitFSPlainGitView checks that committed state is an ordinary git
// history readable with go-git alone
func TestGitFSPlainGitView(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	g := New(dir)
	require.NoError(t, g.Initialize(ctx))

	root, err := g.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)
	committed, err := g.CommitSnapshot(ctx, store.DefaultBranch, root, &model.Snapshot{
		Parents: []string{root},
		Branch:  store.DefaultBranch,
		Message: "set nested keys",
		Entries: model.Entries{
			"app/name":    []byte("MyApp"),
			"app/version": []byte("1"),
			"theme":       []byte("light"),
		},
	})
	require.NoError(t, err)

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(store.DefaultBranch), false)
	require.NoError(t, err)
	require.Equal(t, committed.ID, ref.Hash().String())

	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	require.Len(t, commit.ParentHashes, 1)
	require.Equal(t, root, commit.ParentHashes[0].String())

	tree, err := commit.Tree()
	require.NoError(t, err)

	// nested keys become subtrees with one file per key
	file, err := tree.File("app/name")
	require.NoError(t, err)
	reader, err := file.Reader()
	require.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, []byte("MyApp"), content)

	files := map[string]struct{}{}
	require.NoError(t, tree.Files().ForEach(func(f *object.File) error {
		files[f.Name] = struct{}{}
		return nil
	}))
	require.Len(t, files, 3)
	require.Contains(t, files, "app/version")
	require.Contains(t, files, "theme")
}

func TestGitFSMessageTrailer(t *testing.T) {
	message, branch := decodeMessage(encodeMessage("tweak theme", "dev"))
	require.Equal(t, "tweak theme", message)
	require.Equal(t, "dev", branch)

	message, branch = decodeMessage("bare message\n")
	require.Equal(t, "bare message", message)
	require.Empty(t, branch)
}

func TestGitFSRefCAS(t *testing.T) {
	ctx := context.Background()
	g := New(t.TempDir())
	require.NoError(t, g.Initialize(ctx))

	root, err := g.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)

	first, err := g.CommitSnapshot(ctx, store.DefaultBranch, root, &model.Snapshot{
		Parents: []string{root},
		Branch:  store.DefaultBranch,
		Message: "first",
		Entries: model.Entries{"k": []byte("a")},
	})
	require.NoError(t, err)

	// a writer still holding the root head must lose
	_, err = g.CommitSnapshot(ctx, store.DefaultBranch, root, &model.Snapshot{
		Parents: []string{root},
		Branch:  store.DefaultBranch,
		Message: "stale",
		Entries: model.Entries{"k": []byte("b")},
	})
	require.ErrorIs(t, err, store.ErrConcurrentModification)

	head, err := g.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, first.ID, head)
}
