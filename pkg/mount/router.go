// Package mount routes node operations to backends by path prefix.
//
// A Router holds an immutable mount table. Reconfiguration
// (Mount/Unmount) builds a new table and swaps it in atomically, so
// an operation that started against generation N of the table keeps
// using generation N's backend mapping until it returns, no matter
// how many remounts happen in between. Resolution picks the mount
// whose prefix is the longest segment-wise prefix of the request
// path and forwards the remainder.
package mount

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Entry binds a path prefix to the backend serving it.
type Entry struct {
	Prefix  vpath.Path
	Backend vnode.Backend
}

// table is one immutable generation of the mount table.
type table struct {
	generation uuid.UUID
	entries    []Entry
}

// Router dispatches operations to mounted backends. It implements
// the capability interface itself, so a router can be mounted inside
// another router or wrapped in an overlay.
type Router struct {
	// mu serializes reconfiguration only. Resolution never takes it.
	mu  sync.Mutex
	tab atomic.Pointer[table]
}

// NewRouter returns a router with an empty mount table. Every
// resolution fails with NotFound until a mount is added.
func NewRouter() *Router {
	r := &Router{}
	r.tab.Store(&table{generation: uuid.New()})
	return r
}

// Mount binds backend at prefix. The prefix must be a directory-like
// path; mounting over an existing prefix fails with AlreadyExists.
func (r *Router) Mount(prefix vpath.Path, backend vnode.Backend) error {
	if backend == nil {
		return verr.NewInvalidPath("backend is required", prefix.String())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.tab.Load()
	for _, e := range cur.entries {
		if e.Prefix.Equal(prefix) {
			return verr.NewAlreadyExists(prefix.String())
		}
	}
	next := &table{
		generation: uuid.New(),
		entries:    make([]Entry, 0, len(cur.entries)+1),
	}
	next.entries = append(next.entries, cur.entries...)
	next.entries = append(next.entries, Entry{Prefix: prefix, Backend: backend})
	r.tab.Store(next)
	return nil
}

// Unmount removes the mount at prefix.
func (r *Router) Unmount(prefix vpath.Path) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.tab.Load()
	next := &table{
		generation: uuid.New(),
		entries:    make([]Entry, 0, len(cur.entries)),
	}
	found := false
	for _, e := range cur.entries {
		if e.Prefix.Equal(prefix) {
			found = true
			continue
		}
		next.entries = append(next.entries, e)
	}
	if !found {
		return verr.NewNotFound(prefix.String())
	}
	r.tab.Store(next)
	return nil
}

// Mounts returns the current mount entries. The slice is a copy.
func (r *Router) Mounts() []Entry {
	cur := r.tab.Load()
	out := make([]Entry, len(cur.entries))
	copy(out, cur.entries)
	return out
}

// Generation identifies the current mount table. It changes on every
// Mount and Unmount.
func (r *Router) Generation() uuid.UUID {
	return r.tab.Load().generation
}

// Resolved is the outcome of routing one path: the owning backend,
// the path remainder relative to the mount point, and the table
// generation the resolution is pinned to.
type Resolved struct {
	Backend    vnode.Backend
	Prefix     vpath.Path
	Remainder  vpath.Path
	Generation uuid.UUID
}

// Resolve routes path against the current table generation.
func (r *Router) Resolve(path vpath.Path) (Resolved, error) {
	return resolveIn(r.tab.Load(), path)
}

// resolveIn routes path within one pinned generation, choosing the
// entry with the longest matching prefix.
func resolveIn(tab *table, path vpath.Path) (Resolved, error) {
	best := -1
	var out Resolved
	for _, e := range tab.entries {
		rest, ok := path.StripPrefix(e.Prefix)
		if !ok {
			continue
		}
		if n := e.Prefix.Len(); n > best {
			best = n
			out = Resolved{
				Backend:    e.Backend,
				Prefix:     e.Prefix,
				Remainder:  rest,
				Generation: tab.generation,
			}
		}
	}
	if best < 0 {
		return Resolved{}, verr.NewNotFound(path.String())
	}
	return out, nil
}

// Stat routes to the owning backend.
func (r *Router) Stat(ctx context.Context, path vpath.Path) (*vnode.NodeMetadata, error) {
	res, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	return res.Backend.Stat(ctx, res.Remainder)
}

// Read routes to the owning backend.
func (r *Router) Read(ctx context.Context, path vpath.Path) ([]byte, error) {
	res, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	return res.Backend.Read(ctx, res.Remainder)
}

// Write routes to the owning backend.
func (r *Router) Write(ctx context.Context, path vpath.Path, data []byte, opts vnode.WriteOptions) error {
	res, err := r.Resolve(path)
	if err != nil {
		return err
	}
	return res.Backend.Write(ctx, res.Remainder, data, opts)
}

// List routes to the owning backend. Entry names come back relative,
// exactly as the backend reported them.
func (r *Router) List(ctx context.Context, path vpath.Path) ([]vnode.DirEntry, error) {
	res, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	return res.Backend.List(ctx, res.Remainder)
}

// CreateDir routes to the owning backend.
func (r *Router) CreateDir(ctx context.Context, path vpath.Path, opts vnode.CreateDirOptions) error {
	res, err := r.Resolve(path)
	if err != nil {
		return err
	}
	return res.Backend.CreateDir(ctx, res.Remainder, opts)
}

// Remove routes to the owning backend.
func (r *Router) Remove(ctx context.Context, path vpath.Path, opts vnode.RemoveOptions) error {
	res, err := r.Resolve(path)
	if err != nil {
		return err
	}
	return res.Backend.Remove(ctx, res.Remainder, opts)
}

var _ vnode.Backend = (*Router)(nil)
