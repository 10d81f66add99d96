package sqlstore

// The schema keeps the three logical tables of the contract: the snapshot
// graph, the materialized entries per snapshot, and the branch pointers.
// Statements stick to portable SQL so the backend runs against sqlite or
// postgres-compatible engines alike.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id         TEXT PRIMARY KEY,
		parents    TEXT NOT NULL DEFAULT '',
		branch     TEXT NOT NULL DEFAULT '',
		author     TEXT NOT NULL DEFAULT '',
		message    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
		key         TEXT NOT NULL,
		blob        BLOB NOT NULL,
		PRIMARY KEY (snapshot_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS branches (
		name TEXT PRIMARY KEY,
		head TEXT NOT NULL REFERENCES snapshots(id)
	)`,
}
