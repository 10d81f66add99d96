package gitfs

import (
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"

	"github.com/configplane/configplane/pkg/model"
)

// treeNode is an in-memory tree under construction. Keys containing "/" are
// laid out as nested directories so external git tooling sees a natural
// file hierarchy.
type treeNode struct {
	blobs map[string]plumbing.Hash
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{
		blobs: map[string]plumbing.Hash{},
		dirs:  map[string]*treeNode{},
	}
}

func (n *treeNode) insert(path string, blob plumbing.Hash) {
	dir, rest, nested := strings.Cut(path, "/")
	if !nested {
		n.blobs[path] = blob
		return
	}
	child, ok := n.dirs[dir]
	if !ok {
		child = newTreeNode()
		n.dirs[dir] = child
	}
	child.insert(rest, blob)
}

// encode writes the tree and its subtrees to the object database,
// bottom-up, and returns the root tree hash
func (n *treeNode) encode(st storage.Storer) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(n.blobs)+len(n.dirs))

	for name, hash := range n.blobs {
		entries = append(entries, object.TreeEntry{
			Name: name,
			Mode: filemode.Regular,
			Hash: hash,
		})
	}
	for name, child := range n.dirs {
		hash, err := child.encode(st)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{
			Name: name,
			Mode: filemode.Dir,
			Hash: hash,
		})
	}

	// canonical git tree order: directory names sort as if suffixed with "/"
	sort.Slice(entries, func(i, j int) bool {
		return sortName(entries[i]) < sortName(entries[j])
	})

	tree := &object.Tree{Entries: entries}
	obj := st.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return st.SetEncodedObject(obj)
}

func sortName(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

func writeBlob(st storage.Storer, data []byte) (plumbing.Hash, error) {
	obj := st.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err = w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err = w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return st.SetEncodedObject(obj)
}

// writeTree persists every blob of the mapping and the tree hierarchy over
// them, returning the root tree hash
func writeTree(st storage.Storer, entries model.Entries) (plumbing.Hash, error) {
	root := newTreeNode()
	for _, key := range entries.Keys() {
		blobHash, err := writeBlob(st, entries[key])
		if err != nil {
			return plumbing.ZeroHash, err
		}
		root.insert(key, blobHash)
	}
	return root.encode(st)
}
