package embedded

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/backend/vfstesting"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

var fixture = map[string][]byte{
	"/index.html":      []byte("<html></html>"),
	"/assets/app.js":   []byte("console.log(1)"),
	"/assets/app.css":  []byte("body{}"),
	"/docs/guide/a.md": []byte("# a"),
}

func TestConformance(t *testing.T) {
	suite := vfstesting.Suite{
		NewBackend: func(t *testing.T) vnode.Backend {
			b, err := New(fixture)
			require.NoError(t, err)
			return b
		},
		ReadOnly: true,
		Fixture:  fixture,
	}
	suite.Run(t)
}

func TestSynthesizedDirectories(t *testing.T) {
	b, err := New(fixture)
	require.NoError(t, err)
	ctx := context.Background()

	meta, err := b.Stat(ctx, vpath.MustParse("/assets"))
	require.NoError(t, err)
	assert.Equal(t, vnode.KindDirectory, meta.Kind)
	assert.True(t, meta.ReadOnly)

	entries, err := b.List(ctx, vpath.MustParse("/"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"assets", "docs", "index.html"}, names)

	entries, err = b.List(ctx, vpath.MustParse("/assets"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "app.css", entries[0].Name)
	assert.Equal(t, "app.js", entries[1].Name)
}

func TestTableUnchangedAfterMutationAttempts(t *testing.T) {
	b, err := New(fixture)
	require.NoError(t, err)
	ctx := context.Background()

	before := b.Len()
	_ = b.Write(ctx, vpath.MustParse("/index.html"), []byte("overwrite"), vnode.WriteOptions{Truncate: true})
	_ = b.Remove(ctx, vpath.MustParse("/index.html"), vnode.RemoveOptions{})
	_ = b.CreateDir(ctx, vpath.MustParse("/new"), vnode.CreateDirOptions{})

	assert.Equal(t, before, b.Len())
	got, err := b.Read(ctx, vpath.MustParse("/index.html"))
	require.NoError(t, err)
	assert.Equal(t, fixture["/index.html"], got)
}

func TestNewFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"readme.md":  &fstest.MapFile{Data: []byte("hi")},
		"sub/f.txt":  &fstest.MapFile{Data: []byte("nested")},
		"sub/g.bin":  &fstest.MapFile{Data: []byte{0x00, 0x01}},
		"deep/a/b/c": &fstest.MapFile{Data: []byte("leaf")},
	}
	b, err := NewFromFS(fsys)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := b.Read(ctx, vpath.MustParse("/sub/f.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("nested"), got)

	got, err = b.Read(ctx, vpath.MustParse("/deep/a/b/c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("leaf"), got)

	meta, err := b.Stat(ctx, vpath.MustParse("/deep/a"))
	require.NoError(t, err)
	assert.Equal(t, vnode.KindDirectory, meta.Kind)
}

func TestStrayLookups(t *testing.T) {
	b, err := New(fixture)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Read(ctx, vpath.MustParse("/assets"))
	vfstesting.AssertErrorCode(t, verr.ErrIsADirectory, err)

	_, err = b.List(ctx, vpath.MustParse("/index.html"))
	vfstesting.AssertErrorCode(t, verr.ErrNotADirectory, err)

	_, err = b.Stat(ctx, vpath.MustParse("/assets/missing.js"))
	vfstesting.AssertErrorCode(t, verr.ErrNotFound, err)
}
