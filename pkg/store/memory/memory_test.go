package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/configplane/configplane/pkg/store"
	"github.com/configplane/configplane/pkg/store/storetest"
)

func TestMemoryContract(t *testing.T) {
	storetest.RunContract(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestMemoryInitialSeed(t *testing.T) {
	ctx := context.Background()
	seed := map[string][]byte{
		"feature_x": []byte("false"),
		"theme":     []byte("light"),
	}
	m := New(Initial(seed))
	require.NoError(t, m.Initialize(ctx))

	head, err := m.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)
	root, err := m.GetSnapshot(ctx, head)
	require.NoError(t, err)
	require.True(t, root.IsRoot())
	require.Equal(t, []byte("light"), root.Entries["theme"])
	require.Equal(t, []byte("false"), root.Entries["feature_x"])

	// mutating the seed after Initialize must not reach stored state
	seed["theme"][0] = 'X'
	again, err := m.GetSnapshot(ctx, head)
	require.NoError(t, err)
	require.Equal(t, []byte("light"), again.Entries["theme"])
}

func TestMemoryCustomBranch(t *testing.T) {
	ctx := context.Background()
	m := New(Branch("main"))
	require.NoError(t, m.Initialize(ctx))

	_, err := m.Head(ctx, store.DefaultBranch)
	require.ErrorIs(t, err, store.ErrBranchNotFound)

	head, err := m.Head(ctx, "main")
	require.NoError(t, err)
	require.NotEmpty(t, head)
}

func TestMemoryInitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.Initialize(ctx))
	head, err := m.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)

	require.NoError(t, m.Initialize(ctx))
	same, err := m.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, head, same)
}

func TestMemoryCloneIsolation(t *testing.T) {
	ctx := context.Background()
	m := New(Initial(map[string][]byte{"k": []byte("v")}))
	require.NoError(t, m.Initialize(ctx))

	head, err := m.Head(ctx, store.DefaultBranch)
	require.NoError(t, err)
	snap, err := m.GetSnapshot(ctx, head)
	require.NoError(t, err)

	// tamper with the returned copy
	snap.Entries["k"] = []byte("tampered")

	fresh, err := m.GetSnapshot(ctx, head)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), fresh.Entries["k"])
}
