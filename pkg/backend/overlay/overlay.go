// Package overlay composes an ordered stack of backends into one
// view. Reads fall through the layers top-down and the first layer
// that knows a path answers for it. Listings merge all layers with
// the topmost definition of a name winning. Mutations go to the
// designated writable layer; a stack without one is read-only.
//
// There are no whiteouts: removing a node that also exists in a lower
// layer exposes the lower copy again. The stack is a view, not a
// union filesystem.
package overlay

import (
	"context"
	"sort"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Layer is one entry of the stack.
type Layer struct {
	// Backend serves the layer's nodes.
	Backend vnode.Backend

	// Writable marks the layer as a mutation target. Only the topmost
	// writable layer receives mutations.
	Writable bool
}

// Backend is the layered backend.
type Backend struct {
	layers   []Layer
	writable vnode.Backend // topmost writable layer, nil if none
}

// New builds a stack from layers, ordered topmost first. At least one
// layer is required.
func New(layers ...Layer) (*Backend, error) {
	if len(layers) == 0 {
		return nil, verr.NewInvalidPath("overlay requires at least one layer", "/")
	}
	b := &Backend{layers: layers}
	for _, l := range layers {
		if l.Writable {
			b.writable = l.Backend
			break
		}
	}
	return b, nil
}

// Stat returns the metadata of the topmost layer that knows path.
func (b *Backend) Stat(ctx context.Context, path vpath.Path) (*vnode.NodeMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var lastErr error
	for _, l := range b.layers {
		meta, err := l.Backend.Stat(ctx, path)
		if err == nil {
			return meta, nil
		}
		if !verr.HasCode(err, verr.ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Read returns the content of the topmost layer that knows path.
func (b *Backend) Read(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var lastErr error
	for _, l := range b.layers {
		data, err := l.Backend.Read(ctx, path)
		if err == nil {
			return data, nil
		}
		if !verr.HasCode(err, verr.ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// List merges the directory listings of every layer that knows path.
// When a name appears in several layers the topmost entry wins. The
// directory must exist in at least one layer.
func (b *Backend) List(ctx context.Context, path vpath.Path) ([]vnode.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	merged := make(map[string]vnode.DirEntry)
	found := false
	var lastErr error
	for _, l := range b.layers {
		entries, err := l.Backend.List(ctx, path)
		if err != nil {
			if verr.HasCode(err, verr.ErrNotFound) {
				lastErr = err
				continue
			}
			// A file in a higher layer shadows lower directories, and
			// the reverse holds too.
			if verr.HasCode(err, verr.ErrNotADirectory) && !found {
				return nil, err
			}
			if verr.HasCode(err, verr.ErrNotADirectory) {
				break
			}
			return nil, err
		}
		found = true
		for _, e := range entries {
			if _, ok := merged[e.Name]; !ok {
				merged[e.Name] = e
			}
		}
	}
	if !found {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, verr.NewNotFound(path.String())
	}
	out := make([]vnode.DirEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Write stores data in the writable layer.
func (b *Backend) Write(ctx context.Context, path vpath.Path, data []byte, opts vnode.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.writable == nil {
		return verr.NewReadOnly(path.String())
	}
	return b.writable.Write(ctx, path, data, opts)
}

// CreateDir creates a directory in the writable layer.
func (b *Backend) CreateDir(ctx context.Context, path vpath.Path, opts vnode.CreateDirOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.writable == nil {
		return verr.NewReadOnly(path.String())
	}
	return b.writable.CreateDir(ctx, path, opts)
}

// Remove deletes a node from the writable layer. Copies of the same
// path in read-only layers stay visible.
func (b *Backend) Remove(ctx context.Context, path vpath.Path, opts vnode.RemoveOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.writable == nil {
		return verr.NewReadOnly(path.String())
	}
	return b.writable.Remove(ctx, path, opts)
}

// Rename moves a node within the writable layer.
func (b *Backend) Rename(ctx context.Context, from, to vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.writable == nil {
		return verr.NewReadOnly(from.String())
	}
	return b.writable.Rename(ctx, from, to)
}

var _ vnode.Backend = (*Backend)(nil)
