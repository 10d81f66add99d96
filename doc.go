/*
Package configplane is a transactional configuration store.

It lets a caller read an immutable, versioned view of configuration data and
safely propose, validate and commit changes to it, independent of where the
data physically lives. Values are opaque byte blobs; the system never
interprets configuration content.

The model is git-like: named branches point at immutable, content-addressed
snapshots; edits accumulate in a single-writer stage derived from a branch
head; committing a stage atomically creates a child snapshot and advances
the branch, failing fast when another writer got there first; branches
combine through three-way merges against their nearest common ancestor.

Four interchangeable backends implement the same contract:

	memory:   process-lifetime state, seedable, for tests and ephemeral use
	localfs:  durable local storage on a badger index and a blob object area
	gitfs:    a git repository, one commit per snapshot, one file per key
	sqlstore: a relational database reached through database/sql

See the pkg/repo package for the operation surface and pkg/store for the
contract every backend satisfies.
*/
package configplane
