package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/backend/vfstesting"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

func TestConformance(t *testing.T) {
	suite := vfstesting.Suite{
		NewBackend: func(t *testing.T) vnode.Backend {
			return New()
		},
	}
	suite.Run(t)
}

func TestBackendID(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a.ID(), b.ID())
}

// Writers on independent subtrees must make progress concurrently;
// none of them touches a shared lock beyond its own parent chain
// lookup.
func TestDisjointSubtreeConcurrency(t *testing.T) {
	backend := New()
	ctx := context.Background()

	const subtrees = 8
	const writesPerTree = 50

	for i := range subtrees {
		dir := vpath.Root().Join(fmt.Sprintf("tree%d", i))
		require.NoError(t, backend.CreateDir(ctx, dir, vnode.CreateDirOptions{}))
	}

	var wg sync.WaitGroup
	errs := make(chan error, subtrees)
	for i := range subtrees {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dir := vpath.Root().Join(fmt.Sprintf("tree%d", i))
			for j := range writesPerTree {
				p := dir.Join(fmt.Sprintf("f%d", j))
				err := backend.Write(ctx, p, []byte("payload"), vnode.WriteOptions{
					CreateIfMissing: true,
					Truncate:        true,
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := range subtrees {
		dir := vpath.Root().Join(fmt.Sprintf("tree%d", i))
		entries, err := backend.List(ctx, dir)
		require.NoError(t, err)
		assert.Len(t, entries, writesPerTree)
	}
}

// Concurrent writers to the same path race, but a reader must only
// ever observe one writer's complete content, never a mix.
func TestWriteAtomicityUnderContention(t *testing.T) {
	backend := New()
	ctx := context.Background()
	path := vpath.MustParse("/contended")

	payloads := [][]byte{}
	for i := range 4 {
		buf := make([]byte, 1024)
		for j := range buf {
			buf[j] = byte('a' + i)
		}
		payloads = append(payloads, buf)
	}
	require.NoError(t, backend.Write(ctx, path, payloads[0], vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_ = backend.Write(ctx, path, payloads[i], vnode.WriteOptions{Truncate: true})
			}
		}()
	}

	for range 200 {
		got, err := backend.Read(ctx, path)
		require.NoError(t, err)
		require.Len(t, got, 1024)
		first := got[0]
		for _, b := range got {
			require.Equal(t, first, b, "read observed mixed content")
		}
	}
	close(done)
	wg.Wait()
}

func TestWriteCancelledBeforeCommit(t *testing.T) {
	backend := New()
	ctx := context.Background()
	path := vpath.MustParse("/f")

	require.NoError(t, backend.Write(ctx, path, []byte("original"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := backend.Write(cancelled, path, []byte("never lands"), vnode.WriteOptions{Truncate: true})
	require.ErrorIs(t, err, context.Canceled)

	got, err := backend.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func TestSetReadOnly(t *testing.T) {
	backend := New()
	ctx := context.Background()
	path := vpath.MustParse("/locked")

	require.NoError(t, backend.Write(ctx, path, []byte("frozen"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))
	require.NoError(t, backend.SetReadOnly(ctx, path, true))

	err := backend.Write(ctx, path, []byte("thawed"), vnode.WriteOptions{Truncate: true})
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)

	err = backend.Remove(ctx, path, vnode.RemoveOptions{})
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)

	meta, err := backend.Stat(ctx, path)
	require.NoError(t, err)
	assert.True(t, meta.ReadOnly)

	require.NoError(t, backend.SetReadOnly(ctx, path, false))
	require.NoError(t, backend.Write(ctx, path, []byte("thawed"), vnode.WriteOptions{Truncate: true}))
}

func TestRootReadOnlyOption(t *testing.T) {
	backend := New(WithRootReadOnly())
	ctx := context.Background()

	err := backend.CreateDir(ctx, vpath.MustParse("/d"), vnode.CreateDirOptions{})
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)
}

// A rename that fails its destination checks must leave the source
// untouched, including its whole subtree.
func TestRenameFailureLeavesSourceIntact(t *testing.T) {
	backend := New()
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, vpath.MustParse("/src/sub"), vnode.CreateDirOptions{Recursive: true}))
	require.NoError(t, backend.Write(ctx, vpath.MustParse("/src/sub/f"), []byte("deep"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))

	err := backend.Rename(ctx, vpath.MustParse("/src"), vpath.MustParse("/missing-parent/dst"))
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)

	got, err := backend.Read(ctx, vpath.MustParse("/src/sub/f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("deep"), got)
}

// Two goroutines renaming between the same pair of directories in
// opposite directions must not deadlock; lock ordering by path string
// guarantees progress.
func TestCrossRenameNoDeadlock(t *testing.T) {
	backend := New()
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, vpath.MustParse("/a"), vnode.CreateDirOptions{}))
	require.NoError(t, backend.CreateDir(ctx, vpath.MustParse("/b"), vnode.CreateDirOptions{}))

	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := "/a", "/b"
			if i == 1 {
				from, to = to, from
			}
			for j := range 100 {
				src := vpath.MustParse(from).Join(fmt.Sprintf("n%d", j))
				dst := vpath.MustParse(to).Join(fmt.Sprintf("n%d-%d", i, j))
				_ = backend.Write(ctx, src, []byte("x"), vnode.WriteOptions{CreateIfMissing: true, Truncate: true})
				_ = backend.Rename(ctx, src, dst)
			}
		}()
	}
	wg.Wait()
}

// A parent directory resolved during rename may be detached by a
// concurrent remove before the rename takes its locks. The attach must
// then fail instead of inserting the node into a child map nothing
// references anymore.
func TestAttachedDetectsDetachedParent(t *testing.T) {
	backend := New()
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, vpath.MustParse("/d/e"), vnode.CreateDirOptions{Recursive: true}))
	dir, err := backend.lookup(vpath.MustParse("/d"))
	require.NoError(t, err)
	nested, err := backend.lookup(vpath.MustParse("/d/e"))
	require.NoError(t, err)
	require.True(t, backend.attached(dir))
	require.True(t, backend.attached(nested))

	// Detach /d exactly the way Remove does.
	backend.root.mu.Lock()
	delete(backend.root.children, "d")
	backend.root.mu.Unlock()
	dir.parent.Store(nil)

	assert.False(t, backend.attached(dir))
	// Descendants keep their own parent pointers but the chain no
	// longer reaches the root.
	assert.False(t, backend.attached(nested))
	assert.True(t, backend.attached(backend.root))
}

// Racing a rename into a directory against removal of that directory:
// every interleaving must leave the renamed node reachable, either at
// its destination or untouched at its source.
func TestRenameRemoveRace(t *testing.T) {
	ctx := context.Background()
	for range 300 {
		backend := New()
		require.NoError(t, backend.CreateDir(ctx, vpath.MustParse("/d"), vnode.CreateDirOptions{}))
		require.NoError(t, backend.Write(ctx, vpath.MustParse("/src"), []byte("x"), vnode.WriteOptions{
			CreateIfMissing: true,
			Truncate:        true,
		}))

		var start, done sync.WaitGroup
		start.Add(1)
		done.Add(2)
		var renameErr error
		go func() {
			defer done.Done()
			start.Wait()
			renameErr = backend.Rename(ctx, vpath.MustParse("/src"), vpath.MustParse("/d/moved"))
		}()
		go func() {
			defer done.Done()
			start.Wait()
			_ = backend.Remove(ctx, vpath.MustParse("/d"), vnode.RemoveOptions{})
		}()
		start.Done()
		done.Wait()

		if renameErr == nil {
			// The remove must then have failed with NotEmpty; a node
			// inside a removed directory would be stranded.
			_, err := backend.Stat(ctx, vpath.MustParse("/d/moved"))
			require.NoError(t, err, "rename reported success but the node is unreachable")
		} else {
			_, err := backend.Stat(ctx, vpath.MustParse("/src"))
			require.NoError(t, err, "failed rename must leave the source intact")
		}
	}
}
