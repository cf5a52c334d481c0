// Package vpath implements the canonical node address used across all
// backends.
//
// A path mirrors URL syntax: an optional scheme, an optional authority,
// and a sequence of percent-encoded segments. Parsing always produces
// the normalized form: no empty segments (except a trailing one marking
// a directory), no "." segments, and all ".." segments resolved. A ".."
// sequence that would climb above the root is a parse error, never a
// silent clamp.
//
// Segment content is compared byte-exact after decoding; there is no
// case folding. Segments that cannot be represented as valid
// percent-encoded UTF-8 text (invalid UTF-8 or embedded NUL) are
// carried in an opaque form: "=" followed by unpadded base64url of the
// raw bytes. A plain segment whose first byte happens to be '=' is
// percent-escaped on output, so the two forms never collide.
package vpath

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/vnodefs/vnodefs/pkg/verr"
)

// Path is a parsed, normalized node address.
//
// The zero value is the root path with no scheme or authority. Path
// values are immutable; operations return new values.
type Path struct {
	scheme    string
	authority string
	segments  []string
	dir       bool
}

// Root returns the root path ("/").
func Root() Path {
	return Path{dir: true}
}

// Parse parses and normalizes a raw path string.
//
// Accepted grammar: [scheme:][//authority]/segment(/segment)*[/].
// Parse fails with an InvalidPath error when the input contains a NUL
// byte, an unterminated or malformed percent escape, an undecodable
// opaque segment, or a ".." sequence escaping above the root.
func Parse(raw string) (Path, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return Path{}, verr.NewInvalidPath("path contains NUL byte", raw)
	}

	var p Path
	rest := raw

	if i := schemeEnd(rest); i > 0 {
		p.scheme = rest[:i]
		rest = rest[i+1:]
	}
	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			p.authority = rest[:i]
			rest = rest[i:]
		} else {
			p.authority = rest
			rest = ""
		}
	}

	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		p.dir = true
		return p, nil
	}
	p.dir = strings.HasSuffix(rest, "/")

	for _, enc := range strings.Split(strings.TrimSuffix(rest, "/"), "/") {
		switch enc {
		case "", ".":
			// Normalized away.
		case "..":
			if len(p.segments) == 0 {
				return Path{}, verr.NewInvalidPath("path escapes above root", raw)
			}
			p.segments = p.segments[:len(p.segments)-1]
		default:
			seg, err := decodeSegment(enc)
			if err != nil {
				return Path{}, verr.NewInvalidPath(err.Error(), raw)
			}
			p.segments = append(p.segments, seg)
		}
	}
	if len(p.segments) == 0 {
		p.dir = true
	}
	return p, nil
}

// MustParse is Parse for statically known inputs; it panics on error.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// schemeEnd returns the index of the ':' terminating a scheme prefix,
// or -1 when the string does not start with one.
func schemeEnd(s string) int {
	if len(s) == 0 || !isAlpha(s[0]) {
		return -1
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ':':
			return i
		case isAlpha(c) || isDigit(c) || c == '+' || c == '-' || c == '.':
			// Still inside the scheme.
		default:
			return -1
		}
	}
	return -1
}

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// String renders the path in its canonical encoded form. On normalized
// input String is the inverse of Parse: Parse(p.String()) == p.
func (p Path) String() string {
	var b strings.Builder
	if p.scheme != "" {
		b.WriteString(p.scheme)
		b.WriteByte(':')
	}
	if p.authority != "" {
		b.WriteString("//")
		b.WriteString(p.authority)
	}
	if len(p.segments) == 0 {
		b.WriteByte('/')
		return b.String()
	}
	for _, seg := range p.segments {
		b.WriteByte('/')
		b.WriteString(encodeSegment(seg))
	}
	if p.dir {
		b.WriteByte('/')
	}
	return b.String()
}

// Scheme returns the scheme prefix, or "" when absent.
func (p Path) Scheme() string { return p.scheme }

// Authority returns the authority component, or "" when absent.
func (p Path) Authority() string { return p.authority }

// Segments returns a copy of the decoded segment sequence.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// IsRoot reports whether the path has no segments.
func (p Path) IsRoot() bool { return len(p.segments) == 0 }

// IsDir reports whether the path carries a trailing directory marker.
// Backends treat this as a hint only; the node's actual kind wins.
func (p Path) IsDir() bool { return p.dir }

// Base returns the final segment, or "" for the root.
func (p Path) Base() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Parent returns the path with the final segment removed. The parent of
// the root is the root. The result is always a directory path.
func (p Path) Parent() Path {
	out := p
	out.dir = true
	if len(p.segments) == 0 {
		return out
	}
	out.segments = append([]string(nil), p.segments[:len(p.segments)-1]...)
	return out
}

// Join returns the path extended with one literal child name. The name
// is taken as already decoded; it is not re-parsed, so it may contain
// any bytes except '/'. Joining "" returns p unchanged.
func (p Path) Join(name string) Path {
	if name == "" {
		return p
	}
	out := p
	out.segments = append(append([]string(nil), p.segments...), name)
	out.dir = false
	return out
}

// AsDir returns the path with the trailing directory marker set.
func (p Path) AsDir() Path {
	p.dir = true
	return p
}

// Equal reports whether two paths address the same node: same scheme,
// same authority and byte-identical decoded segment sequences. The
// trailing directory marker does not participate in equality.
func (p Path) Equal(other Path) bool {
	if p.scheme != other.scheme || p.authority != other.authority {
		return false
	}
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// StripPrefix removes prefix from p segment-wise and reports whether p
// is inside prefix. Matching is per segment, never per byte, so a
// prefix of /data does not match /database. Scheme and authority must
// match exactly. The returned remainder carries no scheme or authority.
func (p Path) StripPrefix(prefix Path) (Path, bool) {
	if p.scheme != prefix.scheme || p.authority != prefix.authority {
		return Path{}, false
	}
	if len(prefix.segments) > len(p.segments) {
		return Path{}, false
	}
	for i, seg := range prefix.segments {
		if p.segments[i] != seg {
			return Path{}, false
		}
	}
	rest := Path{
		segments: append([]string(nil), p.segments[len(prefix.segments):]...),
		dir:      p.dir,
	}
	if len(rest.segments) == 0 {
		rest.dir = true
	}
	return rest, true
}

// HasPrefix reports whether p is at or below prefix, segment-wise.
func (p Path) HasPrefix(prefix Path) bool {
	_, ok := p.StripPrefix(prefix)
	return ok
}

const opaqueMarker = '='

// decodeSegment decodes one encoded segment: either the opaque base64
// form ("=" prefix) or percent-encoded text.
func decodeSegment(enc string) (string, error) {
	if enc[0] == opaqueMarker {
		raw, err := base64.RawURLEncoding.DecodeString(enc[1:])
		if err != nil {
			return "", errMalformed("opaque segment is not valid base64url")
		}
		// An empty payload would decode to an empty segment, which the
		// normalized form forbids.
		if len(raw) == 0 {
			return "", errMalformed("opaque segment has empty payload")
		}
		return string(raw), nil
	}

	var b strings.Builder
	for i := 0; i < len(enc); i++ {
		c := enc[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(enc) {
			return "", errMalformed("unterminated percent escape")
		}
		hi, ok1 := unhex(enc[i+1])
		lo, ok2 := unhex(enc[i+2])
		if !ok1 || !ok2 {
			return "", errMalformed("malformed percent escape")
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

// encodeSegment renders one decoded segment. Binary-unsafe content
// (invalid UTF-8 or NUL) uses the opaque form; otherwise the reserved
// set {'/', '%', control bytes} is percent-escaped, along with a
// leading '=' to keep the opaque marker unambiguous.
func encodeSegment(seg string) string {
	if !utf8.ValidString(seg) || strings.IndexByte(seg, 0) >= 0 {
		return string(opaqueMarker) + base64.RawURLEncoding.EncodeToString([]byte(seg))
	}
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c == '/' || c == '%' || c < 0x20 || c == 0x7f:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		case c == opaqueMarker && i == 0:
			b.WriteString("%3D")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

const hexDigits = "0123456789ABCDEF"

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

type errMalformed string

func (e errMalformed) Error() string { return string(e) }
