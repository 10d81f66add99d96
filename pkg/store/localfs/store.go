// Package localfs provides a durable local configplane backend: branch refs
// and snapshot descriptors live in a badger database, blob payloads in a
// content-addressed object area next to it.
package localfs

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	jsoniter "github.com/json-iterator/go"
	"github.com/configplane/configplane/pkg/model"
	"github.com/configplane/configplane/pkg/store"
	"github.com/spf13/afero"
)

// Option to configure the localfs store
type Option func(*localStore)

// FileSystem overrides the filesystem hosting the blob object area,
// primarily for tests
func FileSystem(fs afero.Fs) Option {
	return func(l *localStore) {
		l.blobs = blobArea{fs: fs}
	}
}

// Branch overrides the default branch name
func Branch(name string) Option {
	return func(l *localStore) {
		if name != "" {
			l.defaultBranch = name
		}
	}
}

// New creates a localfs backed store rooted at baseDir
func New(baseDir string, opts ...Option) store.Store {
	l := &localStore{
		baseDir:       baseDir,
		defaultBranch: store.DefaultBranch,
		blobs:         blobArea{fs: afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(baseDir, "objects"))},
	}
	for _, apply := range opts {
		apply(l)
	}
	return l
}

type localStore struct {
	baseDir       string
	defaultBranch string
	db            *badger.DB
	blobs         blobArea
	init          sync.Once
	initErr       error
	close         sync.Once
}

// Initialize opens the index db and seeds the default branch. An init
// failure is sticky: every later call reports it again instead of silently
// succeeding over a half-opened store.
func (l *localStore) Initialize(ctx context.Context) error {
	l.init.Do(func() {
		var db *badger.DB
		db, l.initErr = makeBadgerDb(filepath.Join(l.baseDir, indexDb))
		if l.initErr != nil {
			return
		}
		l.db = db
		l.initErr = l.ensureRoot()
	})
	return l.initErr
}

// ensureRoot seeds the default branch with an empty root snapshot on first
// open
func (l *localStore) ensureRoot() error {
	return l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(branchKey(l.defaultBranch))
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		root := &model.Snapshot{
			Branch:    l.defaultBranch,
			Message:   "root",
			Timestamp: time.Now(),
			Entries:   model.Entries{},
		}
		root.ID, err = root.Identify()
		if err != nil {
			return err
		}
		if err = l.putSnapshot(txn, root); err != nil {
			return err
		}
		return txn.Set(branchKey(l.defaultBranch), model.UnsafeStringToBytes(root.ID))
	})
}

func (l *localStore) Close() error {
	var err error
	l.close.Do(func() {
		if l.db != nil {
			err = l.db.Close()
			if err == nil {
				l.db = nil
			}
		}
	})
	return err
}

func (l *localStore) getRecord(txn *badger.Txn, id string) (snapshotRecord, error) {
	return mapSnapshotItemError(txn.Get(snapshotKey(id)))
}

// putSnapshot writes the blob payloads to the object area and the
// descriptor to the index. Blob writes are idempotent and safe outside the
// ref transaction.
func (l *localStore) putSnapshot(txn *badger.Txn, snap *model.Snapshot) error {
	record := snapshotRecord{
		ID:        snap.ID,
		Parents:   snap.Parents,
		Branch:    snap.Branch,
		Author:    snap.Author,
		Message:   snap.Message,
		Timestamp: snap.Timestamp,
		Entries:   make(map[string]string, len(snap.Entries)),
	}
	for key, blob := range snap.Entries {
		digest, err := l.blobs.put(blob)
		if err != nil {
			return err
		}
		record.Entries[key] = digest
	}

	data, err := jsoniter.Marshal(record)
	if err != nil {
		return err
	}
	return txn.Set(snapshotKey(snap.ID), data)
}

func (l *localStore) materialize(record snapshotRecord) (*model.Snapshot, error) {
	snap := &model.Snapshot{
		ID:        record.ID,
		Parents:   record.Parents,
		Branch:    record.Branch,
		Author:    record.Author,
		Message:   record.Message,
		Timestamp: record.Timestamp,
		Entries:   make(model.Entries, len(record.Entries)),
	}
	for key, digest := range record.Entries {
		blob, err := l.blobs.get(digest)
		if err != nil {
			return nil, err
		}
		snap.Entries[key] = blob
	}
	return snap, nil
}

func (l *localStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	var record snapshotRecord
	verr := l.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = l.getRecord(txn, id)
		return err
	})
	if verr != nil {
		return nil, verr
	}
	return l.materialize(record)
}

func (l *localStore) Head(ctx context.Context, branch string) (string, error) {
	var head string
	verr := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(branchKey(branch))
		if err != nil {
			return mapBranchError(err)
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return mapBranchError(err)
		}
		head = string(value)
		return nil
	})
	if verr != nil {
		return "", verr
	}
	return head, nil
}

func (l *localStore) ListBranches(ctx context.Context) ([]string, error) {
	var names []string
	verr := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = branchPref[:]
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			names = append(names, string(key[len(branchPref):]))
		}
		return nil
	})
	if verr != nil {
		return nil, verr
	}
	return names, nil
}

func (l *localStore) CreateBranch(ctx context.Context, name, headID string) error {
	if name == "" {
		return store.ErrNameIsRequired
	}
	return l.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(branchKey(name)); err == nil {
			return store.ErrBranchAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if _, err := l.getRecord(txn, headID); err != nil {
			return err
		}
		return txn.Set(branchKey(name), model.UnsafeStringToBytes(headID))
	})
}

func (l *localStore) DeleteBranch(ctx context.Context, name string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(branchKey(name)); err != nil {
			return mapBranchError(err)
		}
		return txn.Delete(branchKey(name))
	})
}

func (l *localStore) CommitSnapshot(ctx context.Context, branch, expectedHead string, snap *model.Snapshot) (*model.Snapshot, error) {
	stored := snap.Clone()
	if stored.ID == "" {
		var err error
		stored.ID, err = stored.Identify()
		if err != nil {
			return nil, err
		}
	}

	uerr := l.db.Update(func(txn *badger.Txn) error {
		if err := l.checkHead(txn, branch, expectedHead); err != nil {
			return err
		}
		if err := l.putSnapshot(txn, stored); err != nil {
			return err
		}
		return txn.Set(branchKey(branch), model.UnsafeStringToBytes(stored.ID))
	})
	if uerr != nil {
		// a serialization conflict means another writer advanced the head
		// between our read and our commit
		if uerr == badger.ErrConflict {
			return nil, store.ErrConcurrentModification
		}
		return nil, uerr
	}
	return stored, nil
}

func (l *localStore) AdvanceBranch(ctx context.Context, branch, expectedHead, newHead string) error {
	uerr := l.db.Update(func(txn *badger.Txn) error {
		if err := l.checkHead(txn, branch, expectedHead); err != nil {
			return err
		}
		if _, err := l.getRecord(txn, newHead); err != nil {
			return err
		}
		return txn.Set(branchKey(branch), model.UnsafeStringToBytes(newHead))
	})
	if uerr == badger.ErrConflict {
		return store.ErrConcurrentModification
	}
	return uerr
}

func (l *localStore) checkHead(txn *badger.Txn, branch, expectedHead string) error {
	item, err := txn.Get(branchKey(branch))
	if err != nil {
		return mapBranchError(err)
	}
	head, err := item.ValueCopy(nil)
	if err != nil {
		return mapBranchError(err)
	}
	if string(head) != expectedHead {
		return store.ErrConcurrentModification
	}
	return nil
}
