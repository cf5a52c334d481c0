// Package memory implements the capability interface over a concurrent
// in-memory tree.
//
// The tree is rooted at a single directory node and uses fine-grained
// locking: each directory guards its own child map with an RWMutex and
// each file guards its own content buffer. A read locks only the node
// it touches, structural mutation locks only the immediate parent, so
// operations on disjoint subtrees never contend. There is no global
// lock.
//
// This backend is intended for scratch and staging namespaces. It
// offers no durability: the tree lives and dies with the process.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// node is one entry of the tree: a file holding a content buffer or a
// directory holding a child map.
//
// Locking discipline:
//   - mu guards content/modTime/readOnly for files and
//     children/modTime/readOnly for directories.
//   - A node is reached only through its parent's child map, so holding
//     the parent's write lock is sufficient to attach or detach it.
//   - Locks are only ever taken parent-before-child; no operation locks
//     a child and then its parent, which rules out deadlock between
//     traversal and mutation.
//
// The parent pointer exists for navigation only. It carries no
// ownership: a node is owned exclusively by its parent's child map, and
// no node is shared across two parents.
type node struct {
	mu sync.RWMutex

	kind     vnode.NodeKind
	modTime  time.Time
	readOnly bool

	// content is the file payload. Writes build a fresh buffer off to
	// the side and swap it in under mu; readers therefore observe
	// either the previous buffer or the new one, never a partial state.
	content []byte

	// children maps child name to node. Directories only.
	children map[string]*node

	// parent is a navigation-only back-reference, read atomically so
	// lock-free ancestor walks are race-clean. It never carries
	// ownership. Remove clears it, so a walk that fails to reach the
	// root identifies a detached subtree.
	parent atomic.Pointer[node]
}

// Backend is the in-memory backend.
type Backend struct {
	id   uuid.UUID
	root *node
}

// Option configures a Backend at construction.
type Option func(*Backend)

// WithRootReadOnly flags the root directory read-only at construction,
// freezing the top level of the namespace while still allowing
// mutation inside pre-created subtrees.
func WithRootReadOnly() Option {
	return func(b *Backend) {
		b.root.readOnly = true
	}
}

// New creates an empty in-memory backend with a root directory.
func New(opts ...Option) *Backend {
	b := &Backend{
		id: uuid.New(),
		root: &node{
			kind:     vnode.KindDirectory,
			modTime:  time.Now(),
			children: make(map[string]*node),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID returns the backend's instance identity. Two backends never share
// an ID, which lets a router distinguish instances of the same type.
func (b *Backend) ID() uuid.UUID { return b.id }

// SetReadOnly flags or unflags the node at path as read-only. A
// read-only node rejects every mutation with ErrReadOnly; for a
// directory the flag guards the directory's own child map, not the
// subtree below it.
func (b *Backend) SetReadOnly(ctx context.Context, path vpath.Path, readOnly bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := b.lookup(path)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.readOnly = readOnly
	n.mu.Unlock()
	return nil
}

// lookup walks the tree to the node at path. Each directory's child
// map is read-locked only for the duration of its own step, so a
// traversal never holds more than one lock at a time.
func (b *Backend) lookup(path vpath.Path) (*node, error) {
	cur := b.root
	segs := path.Segments()
	for i, name := range segs {
		if cur.kind != vnode.KindDirectory {
			return nil, verr.NewNotADirectory(ancestor(path, i))
		}
		cur.mu.RLock()
		child := cur.children[name]
		cur.mu.RUnlock()
		if child == nil {
			return nil, verr.NewNotFound(path.String())
		}
		cur = child
	}
	return cur, nil
}

// lookupDir is lookup plus a directory check on the result.
func (b *Backend) lookupDir(path vpath.Path) (*node, error) {
	n, err := b.lookup(path)
	if err != nil {
		return nil, err
	}
	if n.kind != vnode.KindDirectory {
		return nil, verr.NewNotADirectory(path.String())
	}
	return n, nil
}

// lookupParent resolves the parent directory of path and returns it
// with the final segment name. The root has no parent.
func (b *Backend) lookupParent(path vpath.Path) (*node, string, error) {
	if path.IsRoot() {
		return nil, "", verr.NewInvalidPath("operation requires a non-root path", path.String())
	}
	parent, err := b.lookupDir(path.Parent())
	if err != nil {
		return nil, "", err
	}
	return parent, path.Base(), nil
}

// metadata snapshots a node's metadata under its read lock.
func (n *node) metadata() vnode.NodeMetadata {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.metadataLocked()
}

// metadataLocked is metadata for callers already holding n.mu.
func (n *node) metadataLocked() vnode.NodeMetadata {
	meta := vnode.NodeMetadata{
		Kind:     n.kind,
		ModTime:  n.modTime,
		ReadOnly: n.readOnly,
	}
	if n.kind == vnode.KindFile {
		meta.Size = int64(len(n.content))
	}
	return meta
}

// attached reports whether n is still reachable from the root through
// the navigation back-references. A concurrently removed ancestor
// breaks the chain, so a walk that does not end at the root means the
// node now lives in a detached subtree.
func (b *Backend) attached(n *node) bool {
	for ; n != nil; n = n.parent.Load() {
		if n == b.root {
			return true
		}
	}
	return false
}

// ancestor renders the first n segments of path, for error reporting
// when traversal stops midway.
func ancestor(path vpath.Path, n int) string {
	p := vpath.Root()
	for _, seg := range path.Segments()[:n] {
		p = p.Join(seg)
	}
	return p.String()
}

var _ vnode.Backend = (*Backend)(nil)
