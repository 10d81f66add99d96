package configplane

import (
	"context"

	"github.com/configplane/configplane/pkg/repo"
	"github.com/configplane/configplane/pkg/store"
)

// DefaultBranch to use when none is specified
const DefaultBranch = store.DefaultBranch

// New initializes a repository view over a backend store. The store is
// initialized as part of the call, so the returned repo is ready for use.
func New(ctx context.Context, st store.Store, opts ...repo.Option) (*repo.Repo, error) {
	if err := st.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo.New(st, opts...), nil
}
