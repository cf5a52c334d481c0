package vfstesting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// RunFixtureTests verifies that a read-only backend serves exactly
// the Fixture content.
func (suite *Suite) RunFixtureTests(t *testing.T) {
	t.Run("ReadAll", suite.testFixtureReadAll)
	t.Run("StatAll", suite.testFixtureStatAll)
	t.Run("ErrorNotFound", suite.testFixtureNotFound)
}

func (suite *Suite) testFixtureReadAll(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	for raw, want := range suite.Fixture {
		got, err := backend.Read(ctx, mustPath(t, raw))
		require.NoError(t, err, "reading %s", raw)
		require.Equal(t, want, got, "content of %s", raw)
	}
}

func (suite *Suite) testFixtureStatAll(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	for raw, want := range suite.Fixture {
		meta, err := backend.Stat(ctx, mustPath(t, raw))
		require.NoError(t, err, "stat %s", raw)
		require.Equal(t, vnode.KindFile, meta.Kind)
		require.Equal(t, int64(len(want)), meta.Size)
		require.True(t, meta.ReadOnly)
	}
}

func (suite *Suite) testFixtureNotFound(t *testing.T) {
	backend := suite.NewBackend(t)

	_, err := backend.Read(context.Background(), mustPath(t, "/definitely-not-in-the-fixture"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

// RunReadOnlyTests verifies that every mutation fails with ReadOnly
// and leaves the content unchanged.
func (suite *Suite) RunReadOnlyTests(t *testing.T) {
	t.Run("AllMutationsRejected", suite.testMutationsRejected)
	t.Run("ContentUnchangedAfterRejection", suite.testContentUnchanged)
}

func (suite *Suite) testMutationsRejected(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	target := mustPath(t, "/new-file")
	mutations := map[string]func() error{
		"Write": func() error {
			return backend.Write(ctx, target, []byte("x"), vnode.WriteOptions{CreateIfMissing: true, Truncate: true})
		},
		"CreateDir": func() error {
			return backend.CreateDir(ctx, mustPath(t, "/new-dir"), vnode.CreateDirOptions{})
		},
		"Remove": func() error {
			return backend.Remove(ctx, suite.anyFixturePath(t), vnode.RemoveOptions{})
		},
		"Rename": func() error {
			return backend.Rename(ctx, suite.anyFixturePath(t), target)
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			AssertErrorCode(t, verr.ErrReadOnly, mutate())
		})
	}
}

func (suite *Suite) testContentUnchanged(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	victim := suite.anyFixturePath(t)
	_ = backend.Write(ctx, victim, []byte("overwritten"), vnode.WriteOptions{Truncate: true})
	_ = backend.Remove(ctx, victim, vnode.RemoveOptions{Recursive: true})

	got, err := backend.Read(ctx, victim)
	require.NoError(t, err)
	require.Equal(t, suite.Fixture[victim.String()], got)
}

// anyFixturePath returns one fixture path, in stable map-free order.
func (suite *Suite) anyFixturePath(t *testing.T) vpath.Path {
	t.Helper()
	best := ""
	for raw := range suite.Fixture {
		if best == "" || raw < best {
			best = raw
		}
	}
	require.NotEmpty(t, best, "read-only suite requires a non-empty Fixture")
	return mustPath(t, best)
}
