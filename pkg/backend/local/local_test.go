package local

import (
	"context"
	"os"
	"path/filepath"
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
			b, err := New(t.TempDir())
			require.NoError(t, err)
			return b
		},
	}
	suite.Run(t)
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"))
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)
}

func TestNewRejectsFileRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file)
	vfstesting.AssertErrorCode(t, verr.ErrNotADirectory, err)
}

func TestReadOnlyOption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("frozen"), 0o644))

	b, err := New(dir, WithReadOnly())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := b.Read(ctx, vpath.MustParse("/f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("frozen"), got)

	err = b.Write(ctx, vpath.MustParse("/f"), []byte("thawed"), vnode.WriteOptions{Truncate: true})
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)

	err = b.Remove(ctx, vpath.MustParse("/f"), vnode.RemoveOptions{})
	vfstesting.AssertErrorCode(t, verr.ErrReadOnly, err)
}

func TestStatReportsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "link")))

	b, err := New(dir)
	require.NoError(t, err)

	meta, err := b.Stat(context.Background(), vpath.MustParse("/link"))
	require.NoError(t, err)
	assert.Equal(t, vnode.KindSymlink, meta.Kind)
}

// Decoded segments carrying OS path structure must never address
// anything outside the configured root.
func TestConfinement(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	// A literal name containing a separator is representable in a
	// path, but the adapter refuses to map it onto the OS tree.
	evil := vpath.Root().Join("sub/../../escape")
	_, err = b.Stat(ctx, evil)
	vfstesting.AssertErrorCode(t, verr.ErrInvalidPath, err)

	evil = vpath.Root().Join("..")
	_, err = b.Stat(ctx, evil)
	vfstesting.AssertErrorCode(t, verr.ErrInvalidPath, err)
}

func TestSharesTreeWithOS(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.CreateDir(ctx, vpath.MustParse("/made"), vnode.CreateDirOptions{}))
	require.NoError(t, b.Write(ctx, vpath.MustParse("/made/f"), []byte("visible"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	}))

	// The write is observable through plain OS calls.
	raw, err := os.ReadFile(filepath.Join(dir, "made", "f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("visible"), raw)

	// And OS-side changes are observable through the adapter.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outside.txt"), []byte("os"), 0o644))
	got, err := b.Read(ctx, vpath.MustParse("/outside.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("os"), got)
}
