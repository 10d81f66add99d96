package repo

import (
	"github.com/configplane/configplane/pkg/model"
	"github.com/google/uuid"
)

type stageOp struct {
	key    string
	value  []byte
	delete bool
}

// Stage records pending changes on top of a base snapshot.
//
// A stage is a single-writer workspace: it is never safe for concurrent
// mutation and carries no internal locking. Deriving many stages from the
// same branch head is the normal concurrent editing pattern; the conflict is
// resolved at commit time, not here.
//
// A stage never touches backend storage: Set and Delete only append to the
// in-memory op log, and all side effects happen in Repo.Commit.
type Stage struct {
	id       string
	branch   string
	base     *model.Snapshot
	ops      []stageOp
	consumed bool
}

func newStage(branch string, base *model.Snapshot) *Stage {
	return &Stage{
		id:     uuid.NewString(),
		branch: branch,
		base:   base,
	}
}

// ID of this edit session
func (s *Stage) ID() string { return s.id }

// Branch this stage intends to commit against
func (s *Stage) Branch() string { return s.branch }

// Base snapshot the stage was derived from
func (s *Stage) Base() *model.Snapshot { return s.base }

// Get resolves a key through the pending ops first, then falls through to
// the base snapshot. The second return is false when the key is absent.
func (s *Stage) Get(key string) ([]byte, bool) {
	// later ops supersede earlier ones
	for i := len(s.ops) - 1; i >= 0; i-- {
		if s.ops[i].key != key {
			continue
		}
		if s.ops[i].delete {
			return nil, false
		}
		return s.ops[i].value, true
	}
	value, ok := s.base.Entries[key]
	return value, ok
}

// Set records a pending write. The blob is copied, so the caller may reuse
// its buffer.
func (s *Stage) Set(key string, blob []byte) {
	value := make([]byte, len(blob))
	copy(value, blob)
	s.ops = append(s.ops, stageOp{key: key, value: value})
}

// Delete records a pending removal. Deleting a key that does not exist is
// legal and becomes a no-op at materialization.
func (s *Stage) Delete(key string) {
	s.ops = append(s.ops, stageOp{key: key, delete: true})
}

// IsDirty is true iff any pending op was recorded
func (s *Stage) IsDirty() bool {
	return len(s.ops) > 0
}

// Diff compares the materialized pending state against the base snapshot.
// Recorded ops that cancel out (e.g. deleting an absent key) produce no
// change. The result is recomputed on every call.
func (s *Stage) Diff() model.ChangeSet {
	return model.Diff(s.base.Entries, s.materialize())
}

// materialize applies the op log, in issue order, over a copy of the base
// entries
func (s *Stage) materialize() model.Entries {
	entries := s.base.Entries.Clone()
	for _, op := range s.ops {
		if op.delete {
			delete(entries, op.key)
			continue
		}
		entries[op.key] = op.value
	}
	return entries
}

// Replay re-issues this stage's pending ops onto a fresh stage. This is the
// retry path after a commit lost the optimistic concurrency race.
func (s *Stage) Replay(onto *Stage) {
	onto.ops = append(onto.ops, s.ops...)
}
