// Package local implements the capability interface over a real
// on-disk directory.
//
// The adapter holds no state beyond its configured root: every
// operation forwards to the OS and maps the resulting errno into the
// shared error taxonomy. Every resolved path is confined to the root:
// even though the path model already rejects upward escapes during
// normalization, the adapter re-checks the joined OS path so a
// malformed segment (an opaque segment decoding to bytes containing a
// separator, for instance) can never address a location outside the
// sandbox.
package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Backend is the local filesystem adapter.
type Backend struct {
	root     string
	readOnly bool
}

// Option configures a Backend at construction.
type Option func(*Backend)

// WithReadOnly makes the adapter reject every mutation with
// ErrReadOnly, regardless of on-disk permissions.
func WithReadOnly() Option {
	return func(b *Backend) {
		b.readOnly = true
	}
}

// New creates an adapter rooted at dir. The directory must already
// exist; the adapter never creates or escapes its root.
func New(dir string, opts ...Option) (*Backend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, verr.NewInvalidPath(err.Error(), dir)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, mapOSError(err, dir)
	}
	if !info.IsDir() {
		return nil, verr.NewNotADirectory(dir)
	}
	b := &Backend{root: abs}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Root returns the confinement root as an absolute OS path.
func (b *Backend) Root() string { return b.root }

// resolve maps a node path onto an OS path at or below the root.
func (b *Backend) resolve(path vpath.Path) (string, error) {
	full := b.root
	for _, seg := range path.Segments() {
		// A decoded segment may carry arbitrary bytes; anything the OS
		// would treat as path structure must not sneak through.
		if strings.ContainsRune(seg, os.PathSeparator) || strings.ContainsRune(seg, '/') ||
			strings.IndexByte(seg, 0) >= 0 || seg == "." || seg == ".." {
			return "", verr.NewInvalidPath("segment is not representable on the local filesystem", path.String())
		}
		full = filepath.Join(full, seg)
	}
	if full != b.root && !strings.HasPrefix(full, b.root+string(os.PathSeparator)) {
		return "", verr.NewInvalidPath("path resolves outside the adapter root", path.String())
	}
	return full, nil
}

// Stat returns metadata for the node at path. Symlinks are reported as
// aliases, not followed.
func (b *Backend) Stat(ctx context.Context, path vpath.Path) (*vnode.NodeMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(full)
	if err != nil {
		return nil, mapOSError(err, path.String())
	}
	meta := metadataFromInfo(info)
	meta.ReadOnly = meta.ReadOnly || b.readOnly
	return &meta, nil
}

// Read returns the full content of the file at path.
func (b *Backend) Read(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, mapOSError(err, path.String())
	}
	if info.IsDir() {
		return nil, verr.NewIsADirectory(path.String())
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, mapOSError(err, path.String())
	}
	return content, nil
}

// Write stores data at path, creating or truncating per opts. The OS
// open flags carry the exact create/truncate/append semantics.
func (b *Backend) Write(ctx context.Context, path vpath.Path, data []byte, opts vnode.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.readOnly {
		return verr.NewReadOnly(path.String())
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(full); statErr == nil && info.IsDir() {
		return verr.NewIsADirectory(path.String())
	}

	flags := os.O_WRONLY
	if opts.CreateIfMissing {
		flags |= os.O_CREATE
	}
	if opts.Truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return mapOSError(err, path.String())
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return mapOSError(err, path.String())
	}
	if err := f.Close(); err != nil {
		return mapOSError(err, path.String())
	}
	return nil
}

// List returns the directory entries at path.
func (b *Backend) List(ctx context.Context, path vpath.Path) ([]vnode.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	osEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, mapOSError(err, path.String())
	}
	entries := make([]vnode.DirEntry, 0, len(osEntries))
	for _, e := range osEntries {
		info, err := e.Info()
		if err != nil {
			// Entry vanished between the scan and the stat; the
			// snapshot simply does not include it.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, mapOSError(err, path.Join(e.Name()).String())
		}
		meta := metadataFromInfo(info)
		meta.ReadOnly = meta.ReadOnly || b.readOnly
		entries = append(entries, vnode.DirEntry{Name: e.Name(), Meta: meta})
	}
	return entries, nil
}

// CreateDir creates a directory at path.
func (b *Backend) CreateDir(ctx context.Context, path vpath.Path, opts vnode.CreateDirOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.readOnly {
		return verr.NewReadOnly(path.String())
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if opts.Recursive {
		// MkdirAll tolerates an existing directory but fails on an
		// existing file, matching the contract.
		if err := os.MkdirAll(full, 0o755); err != nil {
			return mapOSError(err, path.String())
		}
		return nil
	}
	if err := os.Mkdir(full, 0o755); err != nil {
		return mapOSError(err, path.String())
	}
	return nil
}

// Remove deletes the node at path.
func (b *Backend) Remove(ctx context.Context, path vpath.Path, opts vnode.RemoveOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.readOnly {
		return verr.NewReadOnly(path.String())
	}
	if path.IsRoot() {
		return verr.NewInvalidPath("cannot remove the root directory", path.String())
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if opts.Recursive {
		// RemoveAll succeeds on an absent path, while the contract
		// requires ErrNotFound, so probe first.
		if _, err := os.Lstat(full); err != nil {
			return mapOSError(err, path.String())
		}
		if err := os.RemoveAll(full); err != nil {
			return mapOSError(err, path.String())
		}
		return nil
	}
	if err := os.Remove(full); err != nil {
		return mapOSError(err, path.String())
	}
	return nil
}

// Rename moves the node at from to to. The destination must be absent:
// overwrite is not implied by the contract, so an occupied destination
// fails with ErrAlreadyExists before the OS rename runs.
func (b *Backend) Rename(ctx context.Context, from, to vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.readOnly {
		return verr.NewReadOnly(from.String())
	}
	if from.IsRoot() {
		return verr.NewInvalidPath("cannot rename the root directory", from.String())
	}
	if to.HasPrefix(from) && !from.Equal(to) {
		return verr.NewInvalidPath("cannot move a directory into its own subtree", to.String())
	}
	src, err := b.resolve(from)
	if err != nil {
		return err
	}
	dst, err := b.resolve(to)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(src); err != nil {
		return mapOSError(err, from.String())
	}
	if from.Equal(to) {
		return nil
	}
	if _, err := os.Lstat(dst); err == nil {
		return verr.NewAlreadyExists(to.String())
	}
	if err := os.Rename(src, dst); err != nil {
		return mapOSError(err, from.String())
	}
	return nil
}

// metadataFromInfo converts an os.FileInfo into node metadata.
func metadataFromInfo(info fs.FileInfo) vnode.NodeMetadata {
	meta := vnode.NodeMetadata{
		ModTime:  info.ModTime(),
		ReadOnly: info.Mode().Perm()&0o200 == 0,
	}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		meta.Kind = vnode.KindSymlink
	case info.IsDir():
		meta.Kind = vnode.KindDirectory
	default:
		meta.Kind = vnode.KindFile
		meta.Size = info.Size()
	}
	return meta
}

// mapOSError converts an OS-level error into the shared taxonomy. No
// raw errno ever crosses the capability interface.
func mapOSError(err error, path string) error {
	switch {
	// ENOTEMPTY must be tested before fs.ErrExist: the Go runtime
	// treats ENOTEMPTY as matching ErrExist on some platforms.
	case errors.Is(err, syscall.ENOTEMPTY):
		return verr.NewNotEmpty(path)
	case errors.Is(err, fs.ErrNotExist):
		return verr.NewNotFound(path)
	case errors.Is(err, fs.ErrExist):
		return verr.NewAlreadyExists(path)
	case errors.Is(err, fs.ErrPermission):
		return verr.NewPermissionDenied(path)
	case errors.Is(err, syscall.EISDIR):
		return verr.NewIsADirectory(path)
	case errors.Is(err, syscall.ENOTDIR):
		return verr.NewNotADirectory(path)
	case errors.Is(err, syscall.EROFS):
		return verr.NewReadOnly(path)
	default:
		return verr.NewUnavailable(err.Error(), path)
	}
}

var _ vnode.Backend = (*Backend)(nil)
