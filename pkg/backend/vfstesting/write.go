package vfstesting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
)

// RunDirectoryTests executes the directory creation contract tests.
func (suite *Suite) RunDirectoryTests(t *testing.T) {
	t.Run("Create", suite.testCreateDir)
	t.Run("CreateNested", suite.testCreateDirNested)
	t.Run("CreateRecursive", suite.testCreateDirRecursive)
	t.Run("RecursiveExisting", suite.testCreateDirRecursiveExisting)
	t.Run("ErrorAlreadyExists", suite.testCreateDirAlreadyExists)
	t.Run("ErrorMissingParent", suite.testCreateDirMissingParent)
	t.Run("ErrorFileInChain", suite.testCreateDirFileInChain)
}

func (suite *Suite) testCreateDir(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/d"), vnode.CreateDirOptions{}))

	meta, err := backend.Stat(ctx, mustPath(t, "/d"))
	require.NoError(t, err)
	require.Equal(t, vnode.KindDirectory, meta.Kind)
}

func (suite *Suite) testCreateDirNested(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/a"), vnode.CreateDirOptions{}))
	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/a/b"), vnode.CreateDirOptions{}))

	entries, err := backend.List(ctx, mustPath(t, "/a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Name)
	require.Equal(t, vnode.KindDirectory, entries[0].Meta.Kind)
}

func (suite *Suite) testCreateDirRecursive(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	err := backend.CreateDir(ctx, mustPath(t, "/x/y/z"), vnode.CreateDirOptions{Recursive: true})
	require.NoError(t, err)

	for _, raw := range []string{"/x", "/x/y", "/x/y/z"} {
		meta, err := backend.Stat(ctx, mustPath(t, raw))
		require.NoError(t, err)
		require.Equal(t, vnode.KindDirectory, meta.Kind)
	}
}

func (suite *Suite) testCreateDirRecursiveExisting(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/x"), vnode.CreateDirOptions{}))
	err := backend.CreateDir(ctx, mustPath(t, "/x"), vnode.CreateDirOptions{Recursive: true})
	require.NoError(t, err)
}

func (suite *Suite) testCreateDirAlreadyExists(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/d"), vnode.CreateDirOptions{}))

	err := backend.CreateDir(ctx, mustPath(t, "/d"), vnode.CreateDirOptions{})
	AssertErrorCode(t, verr.ErrAlreadyExists, err)
}

func (suite *Suite) testCreateDirMissingParent(t *testing.T) {
	backend := suite.NewBackend(t)

	err := backend.CreateDir(context.Background(), mustPath(t, "/no/child"), vnode.CreateDirOptions{})
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testCreateDirFileInChain(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/f", []byte("x"))

	err := backend.CreateDir(ctx, mustPath(t, "/f/sub"), vnode.CreateDirOptions{Recursive: true})
	AssertErrorCode(t, verr.ErrNotADirectory, err)
}

// RunRemoveTests executes the removal contract tests.
func (suite *Suite) RunRemoveTests(t *testing.T) {
	t.Run("File", suite.testRemoveFile)
	t.Run("EmptyDirectory", suite.testRemoveEmptyDirectory)
	t.Run("RecursiveTree", suite.testRemoveRecursiveTree)
	t.Run("ErrorNotEmpty", suite.testRemoveNotEmpty)
	t.Run("ErrorNotFound", suite.testRemoveNotFound)
	t.Run("ErrorRoot", suite.testRemoveRoot)
}

func (suite *Suite) testRemoveFile(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/f", []byte("x"))

	require.NoError(t, backend.Remove(ctx, mustPath(t, "/f"), vnode.RemoveOptions{}))

	_, err := backend.Stat(ctx, mustPath(t, "/f"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testRemoveEmptyDirectory(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/d"), vnode.CreateDirOptions{}))
	require.NoError(t, backend.Remove(ctx, mustPath(t, "/d"), vnode.RemoveOptions{}))

	_, err := backend.Stat(ctx, mustPath(t, "/d"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testRemoveRecursiveTree(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/tree/sub"), vnode.CreateDirOptions{Recursive: true}))
	writeFile(t, backend, "/tree/f", []byte("1"))
	writeFile(t, backend, "/tree/sub/g", []byte("2"))

	require.NoError(t, backend.Remove(ctx, mustPath(t, "/tree"), vnode.RemoveOptions{Recursive: true}))

	_, err := backend.Stat(ctx, mustPath(t, "/tree"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testRemoveNotEmpty(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/d"), vnode.CreateDirOptions{}))
	writeFile(t, backend, "/d/f", []byte("x"))

	err := backend.Remove(ctx, mustPath(t, "/d"), vnode.RemoveOptions{})
	AssertErrorCode(t, verr.ErrNotEmpty, err)

	// The tree is untouched.
	_, err = backend.Stat(ctx, mustPath(t, "/d/f"))
	require.NoError(t, err)
}

func (suite *Suite) testRemoveNotFound(t *testing.T) {
	backend := suite.NewBackend(t)

	err := backend.Remove(context.Background(), mustPath(t, "/missing"), vnode.RemoveOptions{})
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testRemoveRoot(t *testing.T) {
	backend := suite.NewBackend(t)

	err := backend.Remove(context.Background(), mustPath(t, "/"), vnode.RemoveOptions{Recursive: true})
	AssertErrorCode(t, verr.ErrInvalidPath, err)
}

// RunRenameTests executes the rename contract tests.
func (suite *Suite) RunRenameTests(t *testing.T) {
	t.Run("FileSameDirectory", suite.testRenameFileSameDirectory)
	t.Run("FileAcrossDirectories", suite.testRenameFileAcrossDirectories)
	t.Run("DirectoryTree", suite.testRenameDirectoryTree)
	t.Run("NoOpSamePath", suite.testRenameNoOpSamePath)
	t.Run("ErrorSourceMissing", suite.testRenameSourceMissing)
	t.Run("ErrorDestinationExists", suite.testRenameDestinationExists)
	t.Run("ErrorDestinationParentMissing", suite.testRenameDestinationParentMissing)
	t.Run("ErrorIntoOwnSubtree", suite.testRenameIntoOwnSubtree)
}

func (suite *Suite) testRenameFileSameDirectory(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/old", []byte("payload"))

	require.NoError(t, backend.Rename(ctx, mustPath(t, "/old"), mustPath(t, "/new")))

	_, err := backend.Stat(ctx, mustPath(t, "/old"))
	AssertErrorCode(t, verr.ErrNotFound, err)

	got, err := backend.Read(ctx, mustPath(t, "/new"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func (suite *Suite) testRenameFileAcrossDirectories(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/src"), vnode.CreateDirOptions{}))
	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/dst"), vnode.CreateDirOptions{}))
	writeFile(t, backend, "/src/f", []byte("x"))

	require.NoError(t, backend.Rename(ctx, mustPath(t, "/src/f"), mustPath(t, "/dst/f")))

	entries, err := backend.List(ctx, mustPath(t, "/src"))
	require.NoError(t, err)
	require.Empty(t, entries)

	got, err := backend.Read(ctx, mustPath(t, "/dst/f"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), got)
}

func (suite *Suite) testRenameDirectoryTree(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/olddir/sub"), vnode.CreateDirOptions{Recursive: true}))
	writeFile(t, backend, "/olddir/sub/f", []byte("deep"))

	require.NoError(t, backend.Rename(ctx, mustPath(t, "/olddir"), mustPath(t, "/newdir")))

	got, err := backend.Read(ctx, mustPath(t, "/newdir/sub/f"))
	require.NoError(t, err)
	require.Equal(t, []byte("deep"), got)

	_, err = backend.Stat(ctx, mustPath(t, "/olddir"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testRenameNoOpSamePath(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/f", []byte("x"))

	require.NoError(t, backend.Rename(ctx, mustPath(t, "/f"), mustPath(t, "/f")))

	got, err := backend.Read(ctx, mustPath(t, "/f"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), got)
}

func (suite *Suite) testRenameSourceMissing(t *testing.T) {
	backend := suite.NewBackend(t)

	err := backend.Rename(context.Background(), mustPath(t, "/missing"), mustPath(t, "/dst"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testRenameDestinationExists(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/a", []byte("1"))
	writeFile(t, backend, "/b", []byte("2"))

	err := backend.Rename(ctx, mustPath(t, "/a"), mustPath(t, "/b"))
	AssertErrorCode(t, verr.ErrAlreadyExists, err)

	// Both files keep their content.
	got, err := backend.Read(ctx, mustPath(t, "/a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
	got, err = backend.Read(ctx, mustPath(t, "/b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}

func (suite *Suite) testRenameDestinationParentMissing(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/f", []byte("survives"))

	err := backend.Rename(ctx, mustPath(t, "/f"), mustPath(t, "/no/such/f"))
	AssertErrorCode(t, verr.ErrNotFound, err)

	// The source is fully intact after the failed rename.
	got, err := backend.Read(ctx, mustPath(t, "/f"))
	require.NoError(t, err)
	require.Equal(t, []byte("survives"), got)
}

func (suite *Suite) testRenameIntoOwnSubtree(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/d/sub"), vnode.CreateDirOptions{Recursive: true}))

	err := backend.Rename(ctx, mustPath(t, "/d"), mustPath(t, "/d/sub/moved"))
	AssertErrorCode(t, verr.ErrInvalidPath, err)

	_, err = backend.Stat(ctx, mustPath(t, "/d/sub"))
	require.NoError(t, err)
}
