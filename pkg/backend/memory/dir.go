package memory

import (
	"context"
	"time"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// CreateDir creates a directory at path.
//
// Non-recursive creation requires the parent to exist and the target
// to be absent. Recursive creation walks down from the root, taking
// each directory's exclusive lock only for the step that may insert a
// missing child.
func (b *Backend) CreateDir(ctx context.Context, path vpath.Path, opts vnode.CreateDirOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path.IsRoot() {
		if opts.Recursive {
			return nil
		}
		return verr.NewAlreadyExists(path.String())
	}

	if opts.Recursive {
		return b.createDirAll(ctx, path)
	}

	parent, name, err := b.lookupParent(path)
	if err != nil {
		return err
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.readOnly {
		return verr.NewReadOnly(path.String())
	}
	if _, exists := parent.children[name]; exists {
		return verr.NewAlreadyExists(path.String())
	}
	now := time.Now()
	child := &node{
		kind:     vnode.KindDirectory,
		modTime:  now,
		children: make(map[string]*node),
	}
	child.parent.Store(parent)
	parent.children[name] = child
	parent.modTime = now
	return nil
}

// createDirAll creates path and any missing ancestors. An existing
// directory along the way is fine; an existing file anywhere in the
// chain is ErrNotADirectory at that ancestor's path.
func (b *Backend) createDirAll(ctx context.Context, path vpath.Path) error {
	cur := b.root
	segs := path.Segments()
	for i, name := range segs {
		cur.mu.RLock()
		child := cur.children[name]
		cur.mu.RUnlock()

		if child == nil {
			var err error
			child, err = cur.insertDir(ctx, name, ancestor(path, i+1))
			if err != nil {
				return err
			}
		}
		if child.kind != vnode.KindDirectory {
			return verr.NewNotADirectory(ancestor(path, i+1))
		}
		cur = child
	}
	return nil
}

// insertDir adds a directory child under n, tolerating a racing
// insert of the same name.
func (n *node) insertDir(ctx context.Context, name, fullPath string) (*node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.readOnly {
		return nil, verr.NewReadOnly(fullPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if existing := n.children[name]; existing != nil {
		return existing, nil
	}
	now := time.Now()
	child := &node{
		kind:     vnode.KindDirectory,
		modTime:  now,
		children: make(map[string]*node),
	}
	child.parent.Store(n)
	n.children[name] = child
	n.modTime = now
	return child, nil
}

// Remove detaches the node at path from its parent.
//
// The parent's exclusive lock covers the lookup and the detach; a
// node's identity is reached only through its parent's map, so no lock
// on the removed subtree itself is needed. The emptiness check for
// non-recursive directory removal takes the child's read lock while
// holding the parent's lock, which respects the parent-before-child
// ordering.
func (b *Backend) Remove(ctx context.Context, path vpath.Path, opts vnode.RemoveOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path.IsRoot() {
		return verr.NewInvalidPath("cannot remove the root directory", path.String())
	}
	parent, name, err := b.lookupParent(path)
	if err != nil {
		return err
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.readOnly {
		return verr.NewReadOnly(path.String())
	}
	target := parent.children[name]
	if target == nil {
		return verr.NewNotFound(path.String())
	}

	target.mu.RLock()
	if target.readOnly {
		target.mu.RUnlock()
		return verr.NewReadOnly(path.String())
	}
	if target.kind == vnode.KindDirectory && !opts.Recursive && len(target.children) > 0 {
		target.mu.RUnlock()
		return verr.NewNotEmpty(path.String())
	}
	target.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	delete(parent.children, name)
	target.parent.Store(nil)
	parent.modTime = time.Now()
	return nil
}
