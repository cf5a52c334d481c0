// Package symlink implements a prefix-aliasing backend: a table of
// link prefixes, each mapping to a path served by a target backend.
// Resolution rewrites an incoming path by its longest linked prefix
// and delegates the rewritten path to the target; the backend stores
// nothing itself.
//
// Mounted in a router, a symlink backend gives one subtree alternate
// names for nodes living anywhere else in the namespace. The target
// may itself be a router, so a rewritten path can cross mounts.
package symlink

import (
	"context"
	"sync"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// MaxLinkDepth caps the segment depth of a link prefix, bounding the
// trie walk per resolution.
const MaxLinkDepth = 16

// linkNode is one level of the prefix trie.
type linkNode struct {
	// dest is the rewrite destination when a link terminates here.
	dest     *vpath.Path
	children map[string]*linkNode
}

// Backend is the prefix-aliasing backend.
type Backend struct {
	// mu guards the trie; resolutions take the read side.
	mu     sync.RWMutex
	target vnode.Backend
	root   *linkNode
}

// New creates a symlink backend delegating rewritten paths to target.
// Without links every path fails with NotFound; add them with Link.
func New(target vnode.Backend) (*Backend, error) {
	if target == nil {
		return nil, verr.NewInvalidPath("symlink target backend is required", "/")
	}
	return &Backend{
		target: target,
		root:   &linkNode{children: make(map[string]*linkNode)},
	}, nil
}

// Link registers from as an alias for to. The prefix is matched
// segment-wise; linking the root aliases the whole namespace. A prefix
// carries at most one destination, so re-linking an occupied prefix
// fails with AlreadyExists; links at different depths along the same
// chain are fine, the deepest match wins at resolution.
func (b *Backend) Link(from, to vpath.Path) error {
	if from.Len() > MaxLinkDepth {
		return verr.NewInvalidPath("link prefix exceeds the depth limit", from.String())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.root
	for _, seg := range from.Segments() {
		child := cur.children[seg]
		if child == nil {
			child = &linkNode{children: make(map[string]*linkNode)}
			cur.children[seg] = child
		}
		cur = child
	}
	if cur.dest != nil {
		return verr.NewAlreadyExists(from.String())
	}
	dest := to
	cur.dest = &dest
	return nil
}

// Unlink removes the link at from. Deeper links below the prefix are
// untouched.
func (b *Backend) Unlink(from vpath.Path) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.root
	for _, seg := range from.Segments() {
		cur = cur.children[seg]
		if cur == nil {
			return verr.NewNotFound(from.String())
		}
	}
	if cur.dest == nil {
		return verr.NewNotFound(from.String())
	}
	cur.dest = nil
	return nil
}

// resolve rewrites path by its longest linked prefix: the destination
// of the deepest trie node with a link, extended with the unmatched
// remainder. A path matching no link is NotFound.
func (b *Backend) resolve(path vpath.Path) (vpath.Path, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	segs := path.Segments()
	cur := b.root
	dest := cur.dest
	matched := 0
	for i, seg := range segs {
		if i >= MaxLinkDepth {
			break
		}
		child := cur.children[seg]
		if child == nil {
			break
		}
		cur = child
		if cur.dest != nil {
			dest = cur.dest
			matched = i + 1
		}
	}
	if dest == nil {
		return vpath.Path{}, verr.NewNotFound(path.String())
	}
	out := *dest
	for _, seg := range segs[matched:] {
		out = out.Join(seg)
	}
	if path.IsDir() {
		out = out.AsDir()
	}
	return out, nil
}

// Stat resolves the alias and delegates.
func (b *Backend) Stat(ctx context.Context, path vpath.Path) (*vnode.NodeMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dest, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	return b.target.Stat(ctx, dest)
}

// Read resolves the alias and delegates.
func (b *Backend) Read(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dest, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	return b.target.Read(ctx, dest)
}

// Write resolves the alias and delegates; the write lands at the
// rewritten path in the target backend.
func (b *Backend) Write(ctx context.Context, path vpath.Path, data []byte, opts vnode.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := b.resolve(path)
	if err != nil {
		return err
	}
	return b.target.Write(ctx, dest, data, opts)
}

// List resolves the alias and delegates. Entry names come back as the
// target reports them, without the alias applied in reverse.
func (b *Backend) List(ctx context.Context, path vpath.Path) ([]vnode.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dest, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	return b.target.List(ctx, dest)
}

// CreateDir resolves the alias and delegates.
func (b *Backend) CreateDir(ctx context.Context, path vpath.Path, opts vnode.CreateDirOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := b.resolve(path)
	if err != nil {
		return err
	}
	return b.target.CreateDir(ctx, dest, opts)
}

// Remove resolves the alias and delegates. The link table itself is
// untouched: removing an aliased node removes the target node, not
// the alias.
func (b *Backend) Remove(ctx context.Context, path vpath.Path, opts vnode.RemoveOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := b.resolve(path)
	if err != nil {
		return err
	}
	return b.target.Remove(ctx, dest, opts)
}

// Rename resolves both aliases and delegates, so the rename keeps the
// target backend's atomicity.
func (b *Backend) Rename(ctx context.Context, from, to vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := b.resolve(from)
	if err != nil {
		return err
	}
	dst, err := b.resolve(to)
	if err != nil {
		return err
	}
	return b.target.Rename(ctx, src, dst)
}

var _ vnode.Backend = (*Backend)(nil)
