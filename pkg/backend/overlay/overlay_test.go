package overlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/backend/embedded"
	"github.com/vnodefs/vnodefs/pkg/backend/memory"
	"github.com/vnodefs/vnodefs/pkg/backend/vfstesting"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// A single writable memory layer behaves exactly like the memory
// backend, so the whole conformance suite applies.
func TestConformanceSingleWritableLayer(t *testing.T) {
	suite := vfstesting.Suite{
		NewBackend: func(t *testing.T) vnode.Backend {
			b, err := New(Layer{Backend: memory.New(), Writable: true})
			require.NoError(t, err)
			return b
		},
	}
	suite.Run(t)
}

func newBase(t *testing.T) vnode.Backend {
	t.Helper()
	base, err := embedded.New(map[string][]byte{
		"/shared.txt":    []byte("base version"),
		"/base-only.txt": []byte("only in base"),
		"/docs/b.md":     []byte("base doc"),
	})
	require.NoError(t, err)
	return base
}

func newStack(t *testing.T) (*Backend, *memory.Backend) {
	t.Helper()
	top := memory.New()
	stack, err := New(
		Layer{Backend: top, Writable: true},
		Layer{Backend: newBase(t)},
	)
	require.NoError(t, err)
	return stack, top
}

func TestReadFallsThrough(t *testing.T) {
	stack, _ := newStack(t)
	ctx := context.Background()

	got, err := stack.Read(ctx, vpath.MustParse("/base-only.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("only in base"), got)
}

func TestTopmostWins(t *testing.T) {
	stack, _ := newStack(t)
	ctx := context.Background()

	require.NoError(t, stack.Write(ctx, vpath.MustParse("/shared.txt"), []byte("top version"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))

	got, err := stack.Read(ctx, vpath.MustParse("/shared.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("top version"), got)
}

func TestListMergesLayers(t *testing.T) {
	stack, _ := newStack(t)
	ctx := context.Background()

	require.NoError(t, stack.Write(ctx, vpath.MustParse("/top-only.txt"), []byte("x"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))
	require.NoError(t, stack.Write(ctx, vpath.MustParse("/shared.txt"), []byte("ov"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))

	entries, err := stack.List(ctx, vpath.MustParse("/"))
	require.NoError(t, err)

	byName := make(map[string]vnode.DirEntry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.Contains(t, byName, "top-only.txt")
	assert.Contains(t, byName, "base-only.txt")
	assert.Contains(t, byName, "docs")

	// The merged entry for a shadowed name reflects the top layer.
	require.Contains(t, byName, "shared.txt")
	assert.Equal(t, int64(2), byName["shared.txt"].Meta.Size)
	assert.False(t, byName["shared.txt"].Meta.ReadOnly)
}

func TestMutationsGoToWritableLayer(t *testing.T) {
	stack, top := newStack(t)
	ctx := context.Background()

	require.NoError(t, stack.CreateDir(ctx, vpath.MustParse("/scratch"), vnode.CreateDirOptions{}))

	// The directory landed in the top layer, not the base.
	meta, err := top.Stat(ctx, vpath.MustParse("/scratch"))
	require.NoError(t, err)
	assert.Equal(t, vnode.KindDirectory, meta.Kind)
}

// Removing a top-layer copy exposes the base copy again; there are no
// whiteouts.
func TestRemoveUncoversLowerLayer(t *testing.T) {
	stack, _ := newStack(t)
	ctx := context.Background()

	require.NoError(t, stack.Write(ctx, vpath.MustParse("/shared.txt"), []byte("top"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))
	require.NoError(t, stack.Remove(ctx, vpath.MustParse("/shared.txt"), vnode.RemoveOptions{}))

	got, err := stack.Read(ctx, vpath.MustParse("/shared.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("base version"), got)
}

func TestReadOnlyStack(t *testing.T) {
	stack, err := New(Layer{Backend: newBase(t)})
	require.NoError(t, err)
	ctx := context.Background()

	err = stack.Write(ctx, vpath.MustParse("/x"), []byte("x"), vnode.WriteOptions{CreateIfMissing: true, Truncate: true})
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)

	err = stack.CreateDir(ctx, vpath.MustParse("/d"), vnode.CreateDirOptions{})
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)

	err = stack.Remove(ctx, vpath.MustParse("/shared.txt"), vnode.RemoveOptions{})
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)

	err = stack.Rename(ctx, vpath.MustParse("/shared.txt"), vpath.MustParse("/moved"))
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)
}

func TestNewRequiresLayers(t *testing.T) {
	_, err := New()
	vfstesting.AssertErrorCode(t, verr.ErrInvalidPath, err)
}
