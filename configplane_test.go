package configplane_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/configplane/configplane"
	"github.com/configplane/configplane/pkg/repo"
	"github.com/configplane/configplane/pkg/store/memory"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	r, err := configplane.New(ctx, memory.New())
	require.NoError(t, err)

	// ready for use without further setup
	head, err := r.GetSnapshot(ctx, configplane.DefaultBranch)
	require.NoError(t, err)
	require.True(t, head.IsRoot())

	stage, err := r.CreateStage(ctx, configplane.DefaultBranch)
	require.NoError(t, err)
	stage.Set("greeting", []byte("hello"))
	snap, err := r.Commit(ctx, stage, repo.CommitMessage("first commit"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), snap.Entries["greeting"])
}
