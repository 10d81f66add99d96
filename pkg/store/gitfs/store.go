// Package gitfs provides a configplane backend persisted in a git
// repository: every snapshot is a git commit, every branch a ref under
// refs/heads, and every key an individual tracked file, so standard git
// tooling can inspect the full configuration history.
package gitfs

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"

	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/store"
)

// branchTrailer records the branch of origin inside the commit message, the
// way git itself records Signed-off-by
const branchTrailer = "Configplane-Branch: "

const defaultAuthor = "configplane"

// Option to configure the gitfs store
type Option func(*gitStore)

// Branch overrides the default branch name
func Branch(name string) Option {
	return func(g *gitStore) {
		if name != "" {
			g.defaultBranch = name
		}
	}
}

// New creates a git backed store at path. A missing repository is
// initialized bare; an existing one, bare or with a worktree, is opened as
// is. The worktree, when present, is never touched: all operations work on
// the object database and refs directly.
func New(path string, opts ...Option) store.Store {
	g := &gitStore{
		path:          path,
		defaultBranch: store.DefaultBranch,
	}
	for _, apply := range opts {
		apply(g)
	}
	return g
}

type gitStore struct {
	path          string
	defaultBranch string
	repo          *git.Repository
	init          sync.Once
	initErr       error
}

func (g *gitStore) Initialize(ctx context.Context) error {
	g.init.Do(func() {
		g.repo, g.initErr = git.PlainOpen(g.path)
		if g.initErr == git.ErrRepositoryNotExists {
			g.repo, g.initErr = git.PlainInit(g.path, true)
		}
		if g.initErr != nil {
			return
		}
		g.initErr = g.ensureRoot()
	})
	return g.initErr
}

func (g *gitStore) Close() error { return nil }

func (g *gitStore) branchRef(name string) plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(name)
}

// ensureRoot creates an empty root commit on the default branch of a fresh
// repository
func (g *gitStore) ensureRoot() error {
	_, err := g.repo.Reference(g.branchRef(g.defaultBranch), false)
	if err == nil {
		return nil
	}
	if err != plumbing.ErrReferenceNotFound {
		return err
	}

	root := &model.Snapshot{
		Branch:    g.defaultBranch,
		Message:   "root",
		Timestamp: time.Now(),
		Entries:   model.Entries{},
	}
	hash, err := g.writeCommit(root)
	if err != nil {
		return err
	}
	if err = g.repo.Storer.SetReference(plumbing.NewHashReference(g.branchRef(g.defaultBranch), hash)); err != nil {
		return err
	}
	// make sure HEAD points somewhere sensible on bare repositories
	return g.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, g.branchRef(g.defaultBranch)))
}

// writeCommit persists the snapshot content as blobs, a tree and a commit
// object. The branch of origin rides in a message trailer.
func (g *gitStore) writeCommit(snap *model.Snapshot) (plumbing.Hash, error) {
	st := g.repo.Storer

	treeHash, err := writeTree(st, snap.Entries)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	parents := make([]plumbing.Hash, len(snap.Parents))
	for i, parent := range snap.Parents {
		parents[i] = plumbing.NewHash(parent)
	}

	author := snap.Author
	if author == "" {
		author = defaultAuthor
	}
	sig := object.Signature{
		Name:  author,
		Email: defaultAuthor + "@localhost",
		When:  snap.Timestamp,
	}

	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      encodeMessage(snap.Message, snap.Branch),
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	obj := st.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return st.SetEncodedObject(obj)
}

func encodeMessage(message, branch string) string {
	if branch == "" {
		return message
	}
	return message + "\n\n" + branchTrailer + branch + "\n"
}

func decodeMessage(raw string) (message, branch string) {
	idx := strings.LastIndex(raw, "\n\n"+branchTrailer)
	if idx < 0 {
		return strings.TrimRight(raw, "\n"), ""
	}
	branch = strings.TrimSpace(raw[idx+len(branchTrailer)+2:])
	return strings.TrimRight(raw[:idx], "\n"), branch
}

func (g *gitStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	if id == "" {
		return nil, store.ErrNameIsRequired
	}
	commit, err := g.repo.CommitObject(plumbing.NewHash(id))
	if err == plumbing.ErrObjectNotFound {
		return nil, store.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return g.snapshotFromCommit(commit)
}

func (g *gitStore) snapshotFromCommit(commit *object.Commit) (*model.Snapshot, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	entries := model.Entries{}
	ferr := tree.Files().ForEach(func(f *object.File) error {
		reader, err := f.Reader()
		if err != nil {
			return err
		}
		defer reader.Close()
		blob, err := io.ReadAll(reader)
		if err != nil {
			return err
		}
		entries[f.Name] = blob
		return nil
	})
	if ferr != nil {
		return nil, ferr
	}

	parents := make([]string, len(commit.ParentHashes))
	for i, parent := range commit.ParentHashes {
		parents[i] = parent.String()
	}

	message, branch := decodeMessage(commit.Message)
	return &model.Snapshot{
		ID:        commit.Hash.String(),
		Parents:   parents,
		Branch:    branch,
		Author:    commit.Author.Name,
		Message:   message,
		Timestamp: commit.Author.When,
		Entries:   entries,
	}, nil
}

func (g *gitStore) Head(ctx context.Context, branch string) (string, error) {
	if branch == "" {
		return "", store.ErrNameIsRequired
	}
	ref, err := g.repo.Reference(g.branchRef(branch), false)
	if err == plumbing.ErrReferenceNotFound {
		return "", store.ErrBranchNotFound
	}
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

func (g *gitStore) ListBranches(ctx context.Context) ([]string, error) {
	iter, err := g.repo.Branches()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	ierr := iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if ierr != nil {
		return nil, ierr
	}
	return names, nil
}

func (g *gitStore) CreateBranch(ctx context.Context, name, headID string) error {
	if name == "" {
		return store.ErrNameIsRequired
	}
	if _, err := g.repo.Reference(g.branchRef(name), false); err == nil {
		return store.ErrBranchAlreadyExists
	} else if err != plumbing.ErrReferenceNotFound {
		return err
	}

	hash := plumbing.NewHash(headID)
	if _, err := g.repo.CommitObject(hash); err != nil {
		if err == plumbing.ErrObjectNotFound {
			return store.ErrSnapshotNotFound
		}
		return err
	}
	return g.repo.Storer.SetReference(plumbing.NewHashReference(g.branchRef(name), hash))
}

func (g *gitStore) DeleteBranch(ctx context.Context, name string) error {
	if _, err := g.repo.Reference(g.branchRef(name), false); err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return store.ErrBranchNotFound
		}
		return err
	}
	return g.repo.Storer.RemoveReference(g.branchRef(name))
}

func (g *gitStore) CommitSnapshot(ctx context.Context, branch, expectedHead string, snap *model.Snapshot) (*model.Snapshot, error) {
	if _, err := g.repo.Reference(g.branchRef(branch), false); err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, store.ErrBranchNotFound
		}
		return nil, err
	}

	hash, err := g.writeCommit(snap)
	if err != nil {
		return nil, err
	}
	if err = g.casRef(branch, expectedHead, hash); err != nil {
		return nil, err
	}

	stored := snap.Clone()
	stored.ID = hash.String()
	return stored, nil
}

func (g *gitStore) AdvanceBranch(ctx context.Context, branch, expectedHead, newHead string) error {
	hash := plumbing.NewHash(newHead)
	if _, err := g.repo.CommitObject(hash); err != nil {
		if err == plumbing.ErrObjectNotFound {
			return store.ErrSnapshotNotFound
		}
		return err
	}
	return g.casRef(branch, expectedHead, hash)
}

// casRef performs the atomic check-and-set of a branch ref, the git
// equivalent of the head compare-and-swap every backend must provide
func (g *gitStore) casRef(branch, expectedHead string, newHead plumbing.Hash) error {
	refName := g.branchRef(branch)
	old := plumbing.NewHashReference(refName, plumbing.NewHash(expectedHead))
	updated := plumbing.NewHashReference(refName, newHead)

	err := g.repo.Storer.CheckAndSetReference(updated, old)
	if err == nil {
		return nil
	}
	if err == storage.ErrReferenceHasChanged {
		return store.ErrConcurrentModification
	}

	// older storers report the race differently: distinguish it from a
	// genuine backend failure by re-reading the head
	ref, rerr := g.repo.Reference(refName, false)
	if rerr == plumbing.ErrReferenceNotFound {
		return store.ErrBranchNotFound
	}
	if rerr == nil && ref.Hash().String() != expectedHead {
		return store.ErrConcurrentModification
	}
	return err
}
