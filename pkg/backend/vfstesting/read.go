package vfstesting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
)

// RunStatTests executes the stat contract tests.
func (suite *Suite) RunStatTests(t *testing.T) {
	t.Run("Root", suite.testStatRoot)
	t.Run("File", suite.testStatFile)
	t.Run("Directory", suite.testStatDirectory)
	t.Run("ErrorNotFound", suite.testStatNotFound)
}

func (suite *Suite) testStatRoot(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	meta, err := backend.Stat(ctx, mustPath(t, "/"))
	require.NoError(t, err)
	require.Equal(t, vnode.KindDirectory, meta.Kind)
}

func (suite *Suite) testStatFile(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/hello.txt", []byte("hello"))

	meta, err := backend.Stat(ctx, mustPath(t, "/hello.txt"))
	require.NoError(t, err)
	require.Equal(t, vnode.KindFile, meta.Kind)
	require.Equal(t, int64(5), meta.Size)
}

func (suite *Suite) testStatDirectory(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/docs"), vnode.CreateDirOptions{}))

	meta, err := backend.Stat(ctx, mustPath(t, "/docs"))
	require.NoError(t, err)
	require.Equal(t, vnode.KindDirectory, meta.Kind)
}

func (suite *Suite) testStatNotFound(t *testing.T) {
	backend := suite.NewBackend(t)

	_, err := backend.Stat(context.Background(), mustPath(t, "/missing"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

// RunReadWriteTests executes the read/write contract tests.
func (suite *Suite) RunReadWriteTests(t *testing.T) {
	t.Run("RoundTrip", suite.testWriteReadRoundTrip)
	t.Run("Overwrite", suite.testWriteOverwrite)
	t.Run("Append", suite.testWriteAppend)
	t.Run("EmptyFile", suite.testWriteEmptyFile)
	t.Run("ErrorMissingWithoutCreate", suite.testWriteMissingWithoutCreate)
	t.Run("ErrorMissingParent", suite.testWriteMissingParent)
	t.Run("ErrorReadDirectory", suite.testReadDirectory)
	t.Run("ErrorReadNotFound", suite.testReadNotFound)
	t.Run("ErrorWriteToDirectory", suite.testWriteToDirectory)
}

func (suite *Suite) testWriteReadRoundTrip(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	content := []byte("the quick brown fox")
	writeFile(t, backend, "/fox.txt", content)

	got, err := backend.Read(ctx, mustPath(t, "/fox.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func (suite *Suite) testWriteOverwrite(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/f", []byte("first version"))
	writeFile(t, backend, "/f", []byte("second"))

	got, err := backend.Read(ctx, mustPath(t, "/f"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func (suite *Suite) testWriteAppend(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/log", []byte("one,"))
	err := backend.Write(ctx, mustPath(t, "/log"), []byte("two"), vnode.WriteOptions{
		CreateIfMissing: true,
	})
	require.NoError(t, err)

	got, err := backend.Read(ctx, mustPath(t, "/log"))
	require.NoError(t, err)
	require.Equal(t, []byte("one,two"), got)
}

func (suite *Suite) testWriteEmptyFile(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/empty", nil)

	got, err := backend.Read(ctx, mustPath(t, "/empty"))
	require.NoError(t, err)
	require.Empty(t, got)

	meta, err := backend.Stat(ctx, mustPath(t, "/empty"))
	require.NoError(t, err)
	require.Equal(t, int64(0), meta.Size)
}

func (suite *Suite) testWriteMissingWithoutCreate(t *testing.T) {
	backend := suite.NewBackend(t)

	err := backend.Write(context.Background(), mustPath(t, "/nope"), []byte("x"), vnode.WriteOptions{
		Truncate: true,
	})
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testWriteMissingParent(t *testing.T) {
	backend := suite.NewBackend(t)

	err := backend.Write(context.Background(), mustPath(t, "/no/such/dir/f"), []byte("x"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	})
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testReadDirectory(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/dir"), vnode.CreateDirOptions{}))

	_, err := backend.Read(ctx, mustPath(t, "/dir"))
	AssertErrorCode(t, verr.ErrIsADirectory, err)
}

func (suite *Suite) testReadNotFound(t *testing.T) {
	backend := suite.NewBackend(t)

	_, err := backend.Read(context.Background(), mustPath(t, "/missing"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testWriteToDirectory(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/dir"), vnode.CreateDirOptions{}))

	err := backend.Write(ctx, mustPath(t, "/dir"), []byte("x"), vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	})
	AssertErrorCode(t, verr.ErrIsADirectory, err)
}

// RunListTests executes the listing contract tests.
func (suite *Suite) RunListTests(t *testing.T) {
	t.Run("ReflectsStructure", suite.testListReflectsStructure)
	t.Run("EmptyDirectory", suite.testListEmptyDirectory)
	t.Run("Sorted", suite.testListSorted)
	t.Run("ErrorNotFound", suite.testListNotFound)
	t.Run("ErrorNotADirectory", suite.testListNotADirectory)
}

func (suite *Suite) testListReflectsStructure(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/a"), vnode.CreateDirOptions{}))
	writeFile(t, backend, "/a/f", []byte("x"))

	entries, err := backend.List(ctx, mustPath(t, "/a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "f", entries[0].Name)
	require.Equal(t, vnode.KindFile, entries[0].Meta.Kind)
}

func (suite *Suite) testListEmptyDirectory(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateDir(ctx, mustPath(t, "/empty"), vnode.CreateDirOptions{}))

	entries, err := backend.List(ctx, mustPath(t, "/empty"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func (suite *Suite) testListSorted(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/c", []byte("3"))
	writeFile(t, backend, "/a", []byte("1"))
	writeFile(t, backend, "/b", []byte("2"))

	entries, err := backend.List(ctx, mustPath(t, "/"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "a", entries[0].Name)
	require.Equal(t, "b", entries[1].Name)
	require.Equal(t, "c", entries[2].Name)
}

func (suite *Suite) testListNotFound(t *testing.T) {
	backend := suite.NewBackend(t)

	_, err := backend.List(context.Background(), mustPath(t, "/missing"))
	AssertErrorCode(t, verr.ErrNotFound, err)
}

func (suite *Suite) testListNotADirectory(t *testing.T) {
	backend := suite.NewBackend(t)
	ctx := context.Background()

	writeFile(t, backend, "/f", []byte("x"))

	_, err := backend.List(ctx, mustPath(t, "/f"))
	AssertErrorCode(t, verr.ErrNotADirectory, err)
}

// writeFile creates or truncates a file with content.
func writeFile(t *testing.T, backend vnode.Backend, raw string, content []byte) {
	t.Helper()
	err := backend.Write(context.Background(), mustPath(t, raw), content, vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	})
	require.NoError(t, err)
}
