package memory

import (
	"context"
	"sort"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Stat returns metadata for the node at path.
//
// Only the target node's own lock is taken, never an ancestor's, so
// Stat on one subtree never contends with operations elsewhere.
func (b *Backend) Stat(ctx context.Context, path vpath.Path) (*vnode.NodeMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := b.lookup(path)
	if err != nil {
		return nil, err
	}
	meta := n.metadata()
	return &meta, nil
}

// Read returns a copy of the file content at path.
//
// The copy is taken under the file's read lock, so a concurrent write
// (which swaps in a complete new buffer) is observed either entirely
// or not at all.
func (b *Backend) Read(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := b.lookup(path)
	if err != nil {
		return nil, err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.kind == vnode.KindDirectory {
		return nil, verr.NewIsADirectory(path.String())
	}
	out := make([]byte, len(n.content))
	copy(out, n.content)
	return out, nil
}

// List returns the directory's entries as a snapshot taken under its
// read lock. A child added or removed after the snapshot is not
// reflected. Entries are sorted by name for deterministic output.
func (b *Backend) List(ctx context.Context, path vpath.Path) ([]vnode.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := b.lookup(path)
	if err != nil {
		return nil, err
	}

	n.mu.RLock()
	if n.kind != vnode.KindDirectory {
		n.mu.RUnlock()
		return nil, verr.NewNotADirectory(path.String())
	}
	children := make([]*node, 0, len(n.children))
	names := make([]string, 0, len(n.children))
	for name, child := range n.children {
		names = append(names, name)
		children = append(children, child)
	}
	n.mu.RUnlock()

	entries := make([]vnode.DirEntry, len(names))
	for i, child := range children {
		entries[i] = vnode.DirEntry{Name: names[i], Meta: child.metadata()}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
