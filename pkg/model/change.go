package model

import "bytes"

// ChangeKind qualifies a single record of a change set
type ChangeKind string

const (
	// ChangeAdded marks a key present in the new mapping only
	ChangeAdded ChangeKind = "added"

	// ChangeModified marks a key present on both sides with different blobs
	ChangeModified ChangeKind = "modified"

	// ChangeRemoved marks a key present in the old mapping only
	ChangeRemoved ChangeKind = "removed"
)

// Change records how a single key differs between two mappings
type Change struct {
	Key  string     `json:"key" yaml:"key"`
	Kind ChangeKind `json:"kind" yaml:"kind"`
	From []byte     `json:"from,omitempty" yaml:"from,omitempty"`
	To   []byte     `json:"to,omitempty" yaml:"to,omitempty"`
	_    struct{}
}

// ChangeSet is a collection of changes, ordered by key
type ChangeSet []Change

// IsEmpty is true when the two compared mappings are identical
func (cs ChangeSet) IsEmpty() bool {
	return len(cs) == 0
}

// Diff compares two materialized mappings and reports one change per key
// that differs, in lexical key order. The returned blobs alias the inputs.
func Diff(old, updated Entries) ChangeSet {
	var changes ChangeSet

	for _, key := range old.Keys() {
		from := old[key]
		to, ok := updated[key]
		switch {
		case !ok:
			changes = append(changes, Change{Key: key, Kind: ChangeRemoved, From: from})
		case !bytes.Equal(from, to):
			changes = append(changes, Change{Key: key, Kind: ChangeModified, From: from, To: to})
		}
	}

	for _, key := range updated.Keys() {
		if _, ok := old[key]; !ok {
			changes = append(changes, Change{Key: key, Kind: ChangeAdded, To: updated[key]})
		}
	}

	sortChanges(changes)
	return changes
}

func sortChanges(changes ChangeSet) {
	// both loops in Diff emit in key order, so a single merge-style fixup
	// keeps the overall ordering stable
	for i := 1; i < len(changes); i++ {
		for j := i; j > 0 && changes[j].Key < changes[j-1].Key; j-- {
			changes[j], changes[j-1] = changes[j-1], changes[j]
		}
	}
}
