// Package vnode defines the capability interface every backend
// implements and the metadata types flowing through it.
//
// The interface is the sole contract a new backend must satisfy to
// participate in a mount router. All operations are context-first: a
// backend may suspend on I/O completion or lock acquisition, and a
// caller may abandon an in-flight operation by cancelling the context.
// Cancellation errors pass through unwrapped; every other failure is a
// verr taxonomy error.
package vnode

import (
	"context"
	"time"

	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// NodeKind is the kind of an addressable node.
type NodeKind int

const (
	// KindFile is a node with byte content.
	KindFile NodeKind = iota

	// KindDirectory is a node with named children.
	KindDirectory

	// KindSymlink is an alias pointing at another path. Backends that
	// do not support aliases never produce it.
	KindSymlink
)

// String returns the lowercase name of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// NodeMetadata describes a node at a point in time.
//
// Metadata is produced by backend operations and never mutated in
// place; observing fresh state requires a new Stat.
type NodeMetadata struct {
	// Kind is the node kind.
	Kind NodeKind

	// Size is the content length in bytes. Meaningful for files only;
	// backends report 0 for directories.
	Size int64

	// ModTime is the last modification timestamp.
	ModTime time.Time

	// ReadOnly reports whether mutation of this node is rejected.
	ReadOnly bool
}

// DirEntry is one entry of a directory listing. Name is relative to
// the listed directory, never a full path.
type DirEntry struct {
	Name string
	Meta NodeMetadata
}

// WriteOptions controls Write behavior.
type WriteOptions struct {
	// CreateIfMissing creates the file when absent. When false, writing
	// to an absent path fails with ErrNotFound.
	CreateIfMissing bool

	// Truncate replaces existing content. When false, the payload is
	// appended.
	Truncate bool
}

// CreateDirOptions controls CreateDir behavior.
type CreateDirOptions struct {
	// Recursive creates missing ancestors and tolerates an existing
	// directory at the target path.
	Recursive bool
}

// RemoveOptions controls Remove behavior.
type RemoveOptions struct {
	// Recursive removes directories together with their contents.
	// Without it, removing a non-empty directory fails with
	// ErrNotEmpty.
	Recursive bool
}

// Backend is the node capability interface.
//
// Implementations must be safe for concurrent use by multiple
// goroutines. Operations are all-or-nothing: there are no
// partial-success return values, and a failed operation leaves the
// backend state as it was. Errors are never swallowed and never
// retried by the core.
type Backend interface {
	// Stat returns metadata for the node at path. Fails with
	// ErrNotFound when absent.
	Stat(ctx context.Context, path vpath.Path) (*NodeMetadata, error)

	// Read returns the full content of the file at path. Fails with
	// ErrNotFound or ErrIsADirectory.
	Read(ctx context.Context, path vpath.Path) ([]byte, error)

	// Write stores data at path according to opts. Fails with
	// ErrNotFound (absent path without CreateIfMissing),
	// ErrIsADirectory, or ErrReadOnly. Each write is atomic: a
	// concurrent Read observes either the previous or the new content,
	// never a partial state.
	Write(ctx context.Context, path vpath.Path, data []byte, opts WriteOptions) error

	// List returns the entries of the directory at path as a snapshot
	// taken at call time; concurrent mutation after the snapshot is not
	// reflected. Fails with ErrNotFound or ErrNotADirectory.
	List(ctx context.Context, path vpath.Path) ([]DirEntry, error)

	// CreateDir creates a directory at path. Fails with
	// ErrAlreadyExists (unless Recursive and the existing node is
	// itself a directory), ErrNotFound (absent parent without
	// Recursive), or ErrReadOnly.
	CreateDir(ctx context.Context, path vpath.Path, opts CreateDirOptions) error

	// Remove deletes the node at path. Fails with ErrNotFound,
	// ErrReadOnly, or ErrNotEmpty (non-recursive on a non-empty
	// directory).
	Remove(ctx context.Context, path vpath.Path, opts RemoveOptions) error

	// Rename moves the node at from to to, atomically within a single
	// backend. Fails with ErrNotFound, ErrAlreadyExists (destination
	// occupied), or ErrReadOnly. No backend supports crossing into a
	// different backend; only a mount router may emulate that.
	Rename(ctx context.Context, from, to vpath.Path) error
}
