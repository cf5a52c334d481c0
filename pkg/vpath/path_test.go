package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/verr"
)

func TestParseNormalization(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"Root", "/", "/"},
		{"Empty", "", "/"},
		{"Simple", "/a/b", "/a/b"},
		{"TrailingSlash", "/a/b/", "/a/b/"},
		{"CollapsedEmptySegments", "/a//b///c", "/a/b/c"},
		{"DotSegments", "/a/./b/.", "/a/b"},
		{"DotDotResolved", "/a/b/../c", "/a/c"},
		{"DotDotToRoot", "/a/..", "/"},
		{"SchemeAndAuthority", "mem://host/a/b", "mem://host/a/b"},
		{"SchemeOnly", "file:/a", "file:/a"},
		{"PercentDecodedThenReencoded", "/a%41b", "/aAb"},
		{"ReservedStaysEscaped", "/a%2Fb", "/a%2Fb"},
		{"PercentSign", "/50%25", "/50%25"},
		{"OpaqueSegment", "/=aGVsbG8", "/hello"},
		{"LeadingEqualsEscaped", "/%3Dflag", "/%3Dflag"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"NULByte", "/a\x00b"},
		{"EscapeAboveRoot", "/.."},
		{"EscapeAboveRootDeep", "/a/../.."},
		{"UnterminatedPercent", "/a%4"},
		{"MalformedPercent", "/a%zz"},
		{"BadOpaqueBase64", "/=!!!"},
		{"EmptyOpaquePayload", "/="},
		{"EmptyOpaquePayloadNested", "/a/=/b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.raw)
			require.Error(t, err)
			code, ok := verr.CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, verr.ErrInvalidPath, code)
		})
	}
}

// A parse/render cycle must be a fixed point: rendering a parsed path
// and parsing it again yields the identical canonical string.
func TestRoundTripIdempotence(t *testing.T) {
	inputs := []string{
		"/",
		"/a/b/c",
		"/a//b/./c/../d",
		"mem://node1/x/y/",
		"/with space/and\ttab",
		"/=AAEC",
		"/%3D",
		"/%00",
		"/100%25 done",
	}
	for _, raw := range inputs {
		p, err := Parse(raw)
		require.NoError(t, err, "first parse of %q", raw)
		once := p.String()

		p2, err := Parse(once)
		require.NoError(t, err, "second parse of %q", once)
		assert.Equal(t, once, p2.String(), "canonical form of %q is not stable", raw)
		assert.True(t, p.Equal(p2))
	}
}

func TestOpaqueSegments(t *testing.T) {
	t.Run("InvalidUTF8Name", func(t *testing.T) {
		p := Root().Join(string([]byte{0xff, 0xfe}))
		rendered := p.String()
		assert.Equal(t, "/=__4", rendered)

		back, err := Parse(rendered)
		require.NoError(t, err)
		assert.Equal(t, []string{string([]byte{0xff, 0xfe})}, back.Segments())
	})

	t.Run("NULInName", func(t *testing.T) {
		p := Root().Join("a\x00b")
		back, err := Parse(p.String())
		require.NoError(t, err)
		assert.Equal(t, "a\x00b", back.Base())
	})

	t.Run("LiteralEqualsPrefixDoesNotCollide", func(t *testing.T) {
		p := Root().Join("=notbase64")
		rendered := p.String()
		assert.Equal(t, "/%3Dnotbase64", rendered)

		back, err := Parse(rendered)
		require.NoError(t, err)
		assert.Equal(t, "=notbase64", back.Base())
	})
}

func TestAccessors(t *testing.T) {
	p := MustParse("mem://host/a/b/c")
	assert.Equal(t, "mem", p.Scheme())
	assert.Equal(t, "host", p.Authority())
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, "c", p.Base())
	assert.False(t, p.IsRoot())
	assert.False(t, p.IsDir())

	assert.True(t, MustParse("/a/b/").IsDir())
	assert.True(t, Root().IsRoot())
	assert.Equal(t, "", Root().Base())
}

func TestParentAndJoin(t *testing.T) {
	p := MustParse("/a/b/c")
	assert.Equal(t, "/a/b/", p.Parent().String())
	assert.Equal(t, "/", MustParse("/a").Parent().String())
	assert.Equal(t, "/", Root().Parent().String())

	joined := MustParse("/a").Join("b").Join("c")
	assert.True(t, joined.Equal(p))

	// Join takes the name literally; separators get escaped on output.
	odd := Root().Join("x/y")
	assert.Equal(t, "/x%2Fy", odd.String())
	assert.Equal(t, 1, odd.Len())
}

func TestEqualIgnoresDirMarker(t *testing.T) {
	assert.True(t, MustParse("/a/b").Equal(MustParse("/a/b/")))
	assert.False(t, MustParse("/a/b").Equal(MustParse("/a/c")))
	assert.False(t, MustParse("/a/b").Equal(MustParse("mem:/a/b")))
}

func TestStripPrefix(t *testing.T) {
	t.Run("SegmentWise", func(t *testing.T) {
		rest, ok := MustParse("/data/file").StripPrefix(MustParse("/data"))
		require.True(t, ok)
		assert.Equal(t, "/file", rest.String())
	})

	t.Run("NoByteLevelMatch", func(t *testing.T) {
		_, ok := MustParse("/database/file").StripPrefix(MustParse("/data"))
		assert.False(t, ok)
	})

	t.Run("RootPrefixMatchesEverything", func(t *testing.T) {
		rest, ok := MustParse("/any/where").StripPrefix(Root())
		require.True(t, ok)
		assert.Equal(t, "/any/where", rest.String())
	})

	t.Run("ExactMatchLeavesRoot", func(t *testing.T) {
		rest, ok := MustParse("/data").StripPrefix(MustParse("/data"))
		require.True(t, ok)
		assert.True(t, rest.IsRoot())
	})

	t.Run("SchemeMismatch", func(t *testing.T) {
		_, ok := MustParse("mem:/a/b").StripPrefix(MustParse("/a"))
		assert.False(t, ok)
	})

	t.Run("PrefixLongerThanPath", func(t *testing.T) {
		_, ok := MustParse("/a").StripPrefix(MustParse("/a/b"))
		assert.False(t, ok)
	})
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, MustParse("/a/b/c").HasPrefix(MustParse("/a")))
	assert.True(t, MustParse("/a").HasPrefix(MustParse("/a")))
	assert.False(t, MustParse("/a").HasPrefix(MustParse("/b")))
}
