// Package sqlstore provides a configplane backend over a relational
// database reached through database/sql. The branch head update runs in the
// same transaction as the snapshot and entry inserts, with the
// compare-and-swap expressed as a conditional UPDATE on the head column.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/store"
)

// Option to configure the sql store
type Option func(*sqlStore)

// Branch overrides the default branch name
func Branch(name string) Option {
	return func(s *sqlStore) {
		if name != "" {
			s.defaultBranch = name
		}
	}
}

// New creates a store over an opened database handle. The handle plays the
// role of a session factory: every operation acquires its own connection or
// transaction from the pool. The caller keeps ownership of the handle.
func New(db *sql.DB, opts ...Option) store.Store {
	s := &sqlStore{
		db:            db,
		defaultBranch: store.DefaultBranch,
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

type sqlStore struct {
	db            *sql.DB
	defaultBranch string
	init          sync.Once
	initErr       error
}

func (s *sqlStore) Initialize(ctx context.Context) error {
	s.init.Do(func() {
		for _, stmt := range schema {
			if _, s.initErr = s.db.ExecContext(ctx, stmt); s.initErr != nil {
				return
			}
		}
		s.initErr = s.ensureRoot(ctx)
	})
	return s.initErr
}

func (s *sqlStore) Close() error { return nil }

func (s *sqlStore) ensureRoot(ctx context.Context) error {
	var head string
	err := s.db.QueryRowContext(ctx,
		`SELECT head FROM branches WHERE name = ?`, s.defaultBranch).Scan(&head)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	root := &model.Snapshot{
		Branch:    s.defaultBranch,
		Message:   "root",
		Timestamp: time.Now(),
		Entries:   model.Entries{},
	}
	root.ID, err = root.Identify()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err = insertSnapshot(ctx, tx, root); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO branches (name, head) VALUES (?, ?)`, s.defaultBranch, root.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, snap *model.Snapshot) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, parents, branch, author, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, strings.Join(snap.Parents, ","), snap.Branch, snap.Author, snap.Message, snap.Timestamp)
	if err != nil {
		return err
	}
	for _, key := range snap.Entries.Keys() {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO entries (snapshot_id, key, blob) VALUES (?, ?, ?)`,
			snap.ID, key, snap.Entries[key]); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	if id == "" {
		return nil, store.ErrNameIsRequired
	}

	snap := &model.Snapshot{ID: id, Entries: model.Entries{}}
	var parents string
	err := s.db.QueryRowContext(ctx,
		`SELECT parents, branch, author, message, created_at FROM snapshots WHERE id = ?`, id).
		Scan(&parents, &snap.Branch, &snap.Author, &snap.Message, &snap.Timestamp)
	if err == sql.ErrNoRows {
		return nil, store.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	if parents != "" {
		snap.Parents = strings.Split(parents, ",")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, blob FROM entries WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key  string
			blob []byte
		)
		if err = rows.Scan(&key, &blob); err != nil {
			return nil, err
		}
		snap.Entries[key] = blob
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *sqlStore) Head(ctx context.Context, branch string) (string, error) {
	if branch == "" {
		return "", store.ErrNameIsRequired
	}
	var head string
	err := s.db.QueryRowContext(ctx,
		`SELECT head FROM branches WHERE name = ?`, branch).Scan(&head)
	if err == sql.ErrNoRows {
		return "", store.ErrBranchNotFound
	}
	if err != nil {
		return "", err
	}
	return head, nil
}

func (s *sqlStore) ListBranches(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM branches ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *sqlStore) CreateBranch(ctx context.Context, name, headID string) error {
	if name == "" {
		return store.ErrNameIsRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT head FROM branches WHERE name = ?`, name).Scan(&existing)
	if err == nil {
		return store.ErrBranchAlreadyExists
	}
	if err != sql.ErrNoRows {
		return err
	}

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM snapshots WHERE id = ?`, headID).Scan(&id)
	if err == sql.ErrNoRows {
		return store.ErrSnapshotNotFound
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO branches (name, head) VALUES (?, ?)`, name, headID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) DeleteBranch(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE name = ?`, name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrBranchNotFound
	}
	return nil
}

func (s *sqlStore) CommitSnapshot(ctx context.Context, branch, expectedHead string, snap *model.Snapshot) (*model.Snapshot, error) {
	stored := snap.Clone()
	if stored.ID == "" {
		var err error
		stored.ID, err = stored.Identify()
		if err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err = insertSnapshot(ctx, tx, stored); err != nil {
		return nil, err
	}
	if err = s.casHead(ctx, tx, branch, expectedHead, stored.ID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *sqlStore) AdvanceBranch(ctx context.Context, branch, expectedHead, newHead string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM snapshots WHERE id = ?`, newHead).Scan(&id)
	if err == sql.ErrNoRows {
		return store.ErrSnapshotNotFound
	}
	if err != nil {
		return err
	}

	if err = s.casHead(ctx, tx, branch, expectedHead, newHead); err != nil {
		return err
	}
	return tx.Commit()
}

// casHead performs the conditional head update. Zero rows affected means
// either the branch vanished or another writer advanced it first; the
// follow-up read tells the two apart.
func (s *sqlStore) casHead(ctx context.Context, tx *sql.Tx, branch, expectedHead, newHead string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE branches SET head = ? WHERE name = ? AND head = ?`,
		newHead, branch, expectedHead)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var head string
	err = tx.QueryRowContext(ctx, `SELECT head FROM branches WHERE name = ?`, branch).Scan(&head)
	if err == sql.ErrNoRows {
		return store.ErrBranchNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrConcurrentModification
}
