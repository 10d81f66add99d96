package dlogger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, level := range []string{"", LogLevelNone, LogLevelInfo, LogLevelDebug} {
		l, err := New(level)
		require.NoError(t, err, level)
		require.NotNil(t, l, level)
	}

	_, err := New("not-a-level")
	require.Error(t, err)

	require.NotPanics(t, func() { MustNew(LogLevelInfo) })
	require.Panics(t, func() { MustNew("not-a-level") })
}
