package mount

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/backend/memory"
	"github.com/vnodefs/vnodefs/pkg/backend/vfstesting"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// A router with a single memory mount at the root must satisfy the
// full backend contract.
func TestConformance(t *testing.T) {
	suite := vfstesting.Suite{
		NewBackend: func(t *testing.T) vnode.Backend {
			r := NewRouter()
			require.NoError(t, r.Mount(vpath.Root(), memory.New()))
			return r
		},
	}
	suite.Run(t)
}

func TestMountPrecedence(t *testing.T) {
	r := NewRouter()
	rootBackend := memory.New()
	dataBackend := memory.New()
	require.NoError(t, r.Mount(vpath.Root(), rootBackend))
	require.NoError(t, r.Mount(vpath.MustParse("/data"), dataBackend))
	ctx := context.Background()

	// Writing through the router lands in the mount with the longest
	// matching prefix.
	require.NoError(t, r.Write(ctx, vpath.MustParse("/data/file"), []byte("in data"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))
	require.NoError(t, r.Write(ctx, vpath.MustParse("/other"), []byte("in root"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))

	got, err := dataBackend.Read(ctx, vpath.MustParse("/file"))
	require.NoError(t, err)
	assert.Equal(t, []byte("in data"), got)

	got, err = rootBackend.Read(ctx, vpath.MustParse("/other"))
	require.NoError(t, err)
	assert.Equal(t, []byte("in root"), got)

	// The root backend never saw the /data write.
	_, err = rootBackend.Stat(ctx, vpath.MustParse("/data/file"))
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)
}

func TestResolve(t *testing.T) {
	r := NewRouter()
	a := memory.New()
	b := memory.New()
	require.NoError(t, r.Mount(vpath.Root(), a))
	require.NoError(t, r.Mount(vpath.MustParse("/data"), b))

	res, err := r.Resolve(vpath.MustParse("/data/file"))
	require.NoError(t, err)
	assert.Equal(t, b, res.Backend)
	assert.Equal(t, "/file", res.Remainder.String())
	assert.Equal(t, r.Generation(), res.Generation)

	res, err = r.Resolve(vpath.MustParse("/other"))
	require.NoError(t, err)
	assert.Equal(t, a, res.Backend)
	assert.Equal(t, "/other", res.Remainder.String())

	// An exact mount-point hit resolves to that backend's root.
	res, err = r.Resolve(vpath.MustParse("/data"))
	require.NoError(t, err)
	assert.Equal(t, b, res.Backend)
	assert.True(t, res.Remainder.IsRoot())
}

func TestNoMountMatched(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Mount(vpath.MustParse("/data"), memory.New()))

	_, err := r.Resolve(vpath.MustParse("/elsewhere"))
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)

	_, err = r.Read(context.Background(), vpath.MustParse("/elsewhere"))
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)
}

func TestEmptyRouter(t *testing.T) {
	r := NewRouter()
	_, err := r.Stat(context.Background(), vpath.Root())
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)
}

func TestMountTableMutation(t *testing.T) {
	r := NewRouter()
	b := memory.New()
	prefix := vpath.MustParse("/m")

	require.NoError(t, r.Mount(prefix, b))
	err := r.Mount(prefix, memory.New())
	vfstesting.AssertErrorCode(t, verr.ErrAlreadyExists, err)

	require.NoError(t, r.Unmount(prefix))
	err = r.Unmount(prefix)
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)

	assert.Empty(t, r.Mounts())
}

func TestGenerationChangesOnRemount(t *testing.T) {
	r := NewRouter()
	g0 := r.Generation()

	require.NoError(t, r.Mount(vpath.Root(), memory.New()))
	g1 := r.Generation()
	assert.NotEqual(t, g0, g1)

	require.NoError(t, r.Unmount(vpath.Root()))
	assert.NotEqual(t, g1, r.Generation())
}

// A resolution keeps the backend mapping of the generation it started
// from even when the table is remounted concurrently.
func TestGenerationPinning(t *testing.T) {
	r := NewRouter()
	pinned := memory.New()
	require.NoError(t, r.Mount(vpath.Root(), pinned))

	res, err := r.Resolve(vpath.MustParse("/f"))
	require.NoError(t, err)

	// Remount the root onto a different backend.
	require.NoError(t, r.Unmount(vpath.Root()))
	require.NoError(t, r.Mount(vpath.Root(), memory.New()))

	// The pinned resolution still addresses the old backend.
	assert.Equal(t, vnode.Backend(pinned), res.Backend)
	assert.NotEqual(t, r.Generation(), res.Generation)

	ctx := context.Background()
	require.NoError(t, res.Backend.Write(ctx, res.Remainder, []byte("old gen"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))

	got, err := pinned.Read(ctx, vpath.MustParse("/f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old gen"), got)

	// The new generation's backend never saw it.
	_, err = r.Read(ctx, vpath.MustParse("/f"))
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)
}

// Remounting concurrently with resolutions must never panic or hand
// out a half-updated table.
func TestConcurrentRemountAndResolve(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Mount(vpath.Root(), memory.New()))

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			prefix := vpath.MustParse(fmt.Sprintf("/m%d", i%8))
			if err := r.Mount(prefix, memory.New()); err != nil {
				_ = r.Unmount(prefix)
			}
		}
	}()

	for range 500 {
		res, err := r.Resolve(vpath.MustParse("/anything/here"))
		require.NoError(t, err)
		require.NotNil(t, res.Backend)
	}
	close(done)
	wg.Wait()
}

func TestCrossMountRename(t *testing.T) {
	r := NewRouter()
	src := memory.New()
	dst := memory.New()
	require.NoError(t, r.Mount(vpath.Root(), src))
	require.NoError(t, r.Mount(vpath.MustParse("/archive"), dst))
	ctx := context.Background()

	require.NoError(t, r.CreateDir(ctx, vpath.MustParse("/work/sub"), vnode.CreateDirOptions{Recursive: true}))
	require.NoError(t, r.Write(ctx, vpath.MustParse("/work/f"), []byte("one"), vnode.WriteOptions{
		CreateIfMissing: true, Truncate: true,
	}))
	require.NoError(t, r.Write(ctx, vpath.MustParse("/work/sub/g"), []byte("two"), vnode.WriteOptions{
		CreateIfMissing: true, Truncate: true,
	}))

	require.NoError(t, r.Rename(ctx, vpath.MustParse("/work"), vpath.MustParse("/archive/work")))

	// The tree is fully present in the destination backend.
	got, err := dst.Read(ctx, vpath.MustParse("/work/f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
	got, err = dst.Read(ctx, vpath.MustParse("/work/sub/g"))
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	// And gone from the source backend.
	_, err = src.Stat(ctx, vpath.MustParse("/work"))
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)
}

func TestCrossMountRenameDestinationExists(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Mount(vpath.Root(), memory.New()))
	require.NoError(t, r.Mount(vpath.MustParse("/other"), memory.New()))
	ctx := context.Background()

	require.NoError(t, r.Write(ctx, vpath.MustParse("/f"), []byte("src"), vnode.WriteOptions{
		CreateIfMissing: true, Truncate: true,
	}))
	require.NoError(t, r.Write(ctx, vpath.MustParse("/other/f"), []byte("dst"), vnode.WriteOptions{
		CreateIfMissing: true, Truncate: true,
	}))

	err := r.Rename(ctx, vpath.MustParse("/f"), vpath.MustParse("/other/f"))
	vfstesting.AssertErrorCode(t, verr.ErrAlreadyExists, err)

	// Source is untouched.
	got, err := r.Read(ctx, vpath.MustParse("/f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("src"), got)
}
