package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
	"unicode"

	blake2b "github.com/minio/blake2b-simd"
)

// Entries is the full key to blob mapping materialized by a snapshot.
//
// Blobs are opaque: two blobs with identical bytes are interchangeable and
// the system never interprets their content.
type Entries map[string][]byte

// Keys of the mapping in lexical order
func (e Entries) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone performs a deep copy of the mapping, so callers can hold on to the
// result while the source keeps evolving
func (e Entries) Clone() Entries {
	clone := make(Entries, len(e))
	for k, v := range e {
		b := make([]byte, len(v))
		copy(b, v)
		clone[k] = b
	}
	return clone
}

// Hash computes the blake2b digest of the mapping, iterating keys in lexical
// order so the digest is independent of insertion order
func (e Entries) Hash() (string, error) {
	hasher, err := blake2b.New(&blake2b.Config{Size: 32})
	if err != nil {
		return "", err
	}

	var sz [8]byte
	for _, key := range e.Keys() {
		binary.BigEndian.PutUint64(sz[:], uint64(len(key)))
		_, _ = hasher.Write(sz[:])
		_, _ = hasher.Write(UnsafeStringToBytes(key))
		binary.BigEndian.PutUint64(sz[:], uint64(len(e[key])))
		_, _ = hasher.Write(sz[:])
		_, _ = hasher.Write(e[key])
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Snapshot represents an immutable point in time view of a branch.
//
// A snapshot is created exactly once, at commit or merge time, by the owning
// backend and is never mutated afterwards. Entries is always the full
// materialized state, not a diff: a deleted key is simply absent.
type Snapshot struct {
	ID        string    `json:"id" yaml:"id"`
	Parents   []string  `json:"parents,omitempty" yaml:"parents,omitempty"`
	Branch    string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	Author    string    `json:"author,omitempty" yaml:"author,omitempty"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Entries   Entries   `json:"entries,omitempty" yaml:"entries,omitempty"`
	_         struct{}
}

// IsRoot is true for snapshots without any parent
func (s *Snapshot) IsRoot() bool {
	return len(s.Parents) == 0
}

// Clone performs a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	clone := *s
	clone.Parents = append([]string(nil), s.Parents...)
	clone.Entries = s.Entries.Clone()
	return &clone
}

// Identify derives the content address of the snapshot: a blake2b digest
// over parents, branch of origin, commit metadata, timestamp and the
// materialized entries.
//
// Backends with a native addressing scheme (e.g. git commit hashes) may
// substitute their own ids; everything downstream treats ids as opaque.
func (s *Snapshot) Identify() (string, error) {
	hasher, err := blake2b.New(&blake2b.Config{Size: 32})
	if err != nil {
		return "", err
	}

	for _, parent := range s.Parents {
		_, _ = hasher.Write(UnsafeStringToBytes(parent))
		_, _ = hasher.Write([]byte{0})
	}
	_, _ = hasher.Write(UnsafeStringToBytes(s.Branch))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write(UnsafeStringToBytes(s.Author))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write(UnsafeStringToBytes(s.Message))
	_, _ = hasher.Write([]byte{0})

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.Timestamp.UnixNano()))
	_, _ = hasher.Write(ts[:])

	entriesHash, err := s.Entries.Hash()
	if err != nil {
		return "", err
	}
	_, _ = hasher.Write(UnsafeStringToBytes(entriesHash))

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Validate a snapshot before it is persisted
func (s *Snapshot) Validate() error {
	if len(s.Parents) > 2 {
		return fmt.Errorf("invalid snapshot: at most 2 parents, got %d", len(s.Parents))
	}
	for _, parent := range s.Parents {
		if parent == "" {
			return fmt.Errorf("invalid snapshot: empty parent id")
		}
	}
	return nil
}

// ValidateBranchName rejects names that would not survive every backend
// (git refs, database keys, file paths)
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("empty field: branch name is empty")
	}
	for _, c := range name {
		if !unicode.IsDigit(c) && !unicode.IsLetter(c) &&
			c != '-' && c != '_' && c != '.' && c != '/' {
			return fmt.Errorf("invalid name: branch name %q contains unsupported character %q",
				name, string(c))
		}
	}
	return nil
}
