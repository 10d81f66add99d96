package localfs

import (
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	jsoniter "github.com/json-iterator/go"
	"github.com/configplane/configplane/pkg/store"
)

func makeBadgerDb(dir string) (*badger.DB, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	return badger.Open(bopts)
}

// snapshotRecord is the descriptor persisted in the index db. Blob payloads
// live in the content-addressed object area; the record only carries their
// digests.
type snapshotRecord struct {
	ID        string            `json:"id"`
	Parents   []string          `json:"parents,omitempty"`
	Branch    string            `json:"branch,omitempty"`
	Author    string            `json:"author,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Entries   map[string]string `json:"entries,omitempty"`
}

func mapBranchError(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case badger.ErrKeyNotFound:
		return store.ErrBranchNotFound
	case badger.ErrEmptyKey:
		return store.ErrNameIsRequired
	default:
		return err
	}
}

func mapSnapshotError(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case badger.ErrKeyNotFound:
		return store.ErrSnapshotNotFound
	case badger.ErrEmptyKey:
		return store.ErrNameIsRequired
	default:
		return err
	}
}

func mapSnapshotItemError(item *badger.Item, err error) (snapshotRecord, error) {
	if err != nil {
		return snapshotRecord{}, mapSnapshotError(err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return snapshotRecord{}, mapSnapshotError(err)
	}

	var record snapshotRecord
	if e := jsoniter.Unmarshal(data, &record); e != nil {
		return snapshotRecord{}, fmt.Errorf("json unmarshal failed: %v", e)
	}
	return record, nil
}
