// Package model describes the base objects manipulated by configplane.
//
// The object model is composed of:
//
//	Snapshots:
//	  A snapshot is an immutable, fully materialized point in time view of a
//	  branch's key to blob mapping, analogous to a commit in git. Snapshots
//	  carry parent linkage and form an append-only directed acyclic graph.
//
//	Branches:
//	  A branch is a named mutable pointer to exactly one snapshot. It is the
//	  only shared mutable resource in the system and advances only through a
//	  successful commit or merge.
//
//	Changes:
//	  A change set is the difference between two materialized mappings,
//	  one record per key that was added, modified or removed.
package model
