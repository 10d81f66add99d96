package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEntriesKeys(t *testing.T) {
	e := Entries{
		"zebra": []byte("z"),
		"alpha": []byte("a"),
		"mango": []byte("m"),
	}
	require.Equal(t, []string{"alpha", "mango", "zebra"}, e.Keys())
	require.Empty(t, Entries{}.Keys())
}

func TestEntriesHashDeterministic(t *testing.T) {
	a := Entries{"k1": []byte("v1"), "k2": []byte("v2")}
	b := Entries{"k2": []byte("v2"), "k1": []byte("v1")}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	require.Equal(t, ha, hb, "insertion order must not matter")

	c := Entries{"k1": []byte("v1"), "k2": []byte("V2")}
	hc, err := c.Hash()
	require.NoError(t, err)
	require.NotEqual(t, ha, hc)
}

func TestEntriesHashUnambiguous(t *testing.T) {
	// key and value bytes must not be confusable across the boundary
	a := Entries{"ab": []byte("c")}
	b := Entries{"a": []byte("bc")}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	require.NotEqual(t, ha, hb)
}

func TestSnapshotIdentify(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{
		Parents:   []string{"parent-1"},
		Branch:    "master",
		Author:    "alice",
		Message:   "seed",
		Timestamp: ts,
		Entries:   Entries{"k": []byte("v")},
	}

	id, err := snap.Identify()
	require.NoError(t, err)
	again, err := snap.Identify()
	require.NoError(t, err)
	require.Equal(t, id, again)

	tweaked := snap.Clone()
	tweaked.Message = "seed!"
	other, err := tweaked.Identify()
	require.NoError(t, err)
	require.NotEqual(t, id, other)

	later := snap.Clone()
	later.Timestamp = ts.Add(time.Nanosecond)
	other, err = later.Identify()
	require.NoError(t, err)
	require.NotEqual(t, id, other)
}

func TestSnapshotClone(t *testing.T) {
	snap := &Snapshot{
		ID:      "id",
		Parents: []string{"p"},
		Entries: Entries{"k": []byte("v")},
	}
	clone := snap.Clone()
	clone.Parents[0] = "mutated"
	clone.Entries["k"][0] = 'X'

	require.Equal(t, []string{"p"}, snap.Parents)
	require.Equal(t, []byte("v"), snap.Entries["k"])
}

func TestSnapshotValidate(t *testing.T) {
	require.NoError(t, (&Snapshot{}).Validate())
	require.NoError(t, (&Snapshot{Parents: []string{"a", "b"}}).Validate())
	require.Error(t, (&Snapshot{Parents: []string{"a", "b", "c"}}).Validate())
	require.Error(t, (&Snapshot{Parents: []string{""}}).Validate())
}

func TestSnapshotIsRoot(t *testing.T) {
	require.True(t, (&Snapshot{}).IsRoot())
	require.False(t, (&Snapshot{Parents: []string{"p"}}).IsRoot())
}

func TestValidateBranchName(t *testing.T) {
	for _, name := range []string{"master", "dev", "release/1.2", "feat_x", "a-b.c", "日本"} {
		require.NoError(t, ValidateBranchName(name), name)
	}
	// multibyte letters ahead of the offending character must not trip up
	// the error path
	for _, name := range []string{"", "no spaces", "tab\tname", "nul\x00", "日本!", "日本 dev"} {
		require.NotPanics(t, func() {
			require.Error(t, ValidateBranchName(name), name)
		}, name)
	}
}
