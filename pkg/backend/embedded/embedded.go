// Package embedded implements the capability interface over a
// read-only table of path→content entries baked in at construction.
//
// The natural source for the table is an embed.FS compiled into the
// binary, but any io/fs.FS or plain map works. Directories are not
// stored: they are implicit in the path structure of the file entries
// and synthesized on demand. The whole table is immutable for the
// backend's lifetime; every mutating operation fails with ErrReadOnly
// and provably leaves the table unchanged.
package embedded

import (
	"context"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Backend is the embedded read-only backend.
type Backend struct {
	// entries maps the canonical path string of each file to its
	// content. Never mutated after construction.
	entries map[string][]byte

	// paths holds the sorted canonical path strings, for deterministic
	// directory synthesis.
	paths []string

	built time.Time
}

// New creates an embedded backend from a table of raw path strings to
// content. Keys are parsed and normalized through the path model; a
// key that fails to parse fails construction.
func New(table map[string][]byte) (*Backend, error) {
	b := &Backend{
		entries: make(map[string][]byte, len(table)),
		built:   time.Now(),
	}
	for raw, content := range table {
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		p, err := vpath.Parse(raw)
		if err != nil {
			return nil, err
		}
		if p.IsRoot() {
			return nil, verr.NewInvalidPath("embedded entry cannot be the root", raw)
		}
		owned := make([]byte, len(content))
		copy(owned, content)
		b.entries[p.String()] = owned
	}
	b.paths = make([]string, 0, len(b.entries))
	for p := range b.entries {
		b.paths = append(b.paths, p)
	}
	sort.Strings(b.paths)
	return b, nil
}

// NewFromFS materializes an embedded backend by walking fsys once and
// copying every regular file into the table. Intended for embed.FS.
func NewFromFS(fsys fs.FS) (*Backend, error) {
	table := make(map[string][]byte)
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		table["/"+path] = content
		return nil
	})
	if err != nil {
		return nil, verr.NewUnavailable("walking embedded filesystem: "+err.Error(), "/")
	}
	return New(table)
}

// Stat returns metadata for path: a file entry when the table holds
// it, a synthesized directory when any entry lives below it.
func (b *Backend) Stat(ctx context.Context, path vpath.Path) (*vnode.NodeMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if content, ok := b.entries[fileKey(path)]; ok {
		return &vnode.NodeMetadata{
			Kind:     vnode.KindFile,
			Size:     int64(len(content)),
			ModTime:  b.built,
			ReadOnly: true,
		}, nil
	}
	if b.isDir(path) {
		return &vnode.NodeMetadata{
			Kind:     vnode.KindDirectory,
			ModTime:  b.built,
			ReadOnly: true,
		}, nil
	}
	return nil, verr.NewNotFound(path.String())
}

// Read returns a copy of the content of the file entry at path.
func (b *Backend) Read(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, ok := b.entries[fileKey(path)]
	if !ok {
		if b.isDir(path) {
			return nil, verr.NewIsADirectory(path.String())
		}
		return nil, verr.NewNotFound(path.String())
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// List synthesizes the immediate children of path by scanning the
// table. Child directories appear once regardless of how many entries
// live below them. The static table is the snapshot.
func (b *Backend) List(ctx context.Context, path vpath.Path) ([]vnode.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, isFile := b.entries[fileKey(path)]; isFile {
		return nil, verr.NewNotADirectory(path.String())
	}
	if !path.IsRoot() && !b.isDir(path) {
		return nil, verr.NewNotFound(path.String())
	}

	depth := path.Len()
	entries := make([]vnode.DirEntry, 0)
	seenDirs := make(map[string]struct{})
	for _, key := range b.paths {
		entry := vpath.MustParse(key)
		rest, ok := entry.StripPrefix(path)
		if !ok || rest.IsRoot() {
			continue
		}
		name := rest.Segments()[0]
		if entry.Len() == depth+1 {
			entries = append(entries, vnode.DirEntry{
				Name: name,
				Meta: vnode.NodeMetadata{
					Kind:     vnode.KindFile,
					Size:     int64(len(b.entries[key])),
					ModTime:  b.built,
					ReadOnly: true,
				},
			})
			continue
		}
		if _, seen := seenDirs[name]; seen {
			continue
		}
		seenDirs[name] = struct{}{}
		entries = append(entries, vnode.DirEntry{
			Name: name,
			Meta: vnode.NodeMetadata{
				Kind:     vnode.KindDirectory,
				ModTime:  b.built,
				ReadOnly: true,
			},
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Write always fails with ErrReadOnly.
func (b *Backend) Write(ctx context.Context, path vpath.Path, data []byte, opts vnode.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return verr.NewReadOnly(path.String())
}

// CreateDir always fails with ErrReadOnly.
func (b *Backend) CreateDir(ctx context.Context, path vpath.Path, opts vnode.CreateDirOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return verr.NewReadOnly(path.String())
}

// Remove always fails with ErrReadOnly.
func (b *Backend) Remove(ctx context.Context, path vpath.Path, opts vnode.RemoveOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return verr.NewReadOnly(path.String())
}

// Rename always fails with ErrReadOnly.
func (b *Backend) Rename(ctx context.Context, from, to vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return verr.NewReadOnly(from.String())
}

// Len returns the number of file entries in the table.
func (b *Backend) Len() int { return len(b.entries) }

// isDir reports whether any table entry lives strictly below path.
func (b *Backend) isDir(path vpath.Path) bool {
	if path.IsRoot() {
		return true
	}
	for _, key := range b.paths {
		if vpath.MustParse(key).HasPrefix(path) {
			return true
		}
	}
	return false
}

// fileKey renders path the way table keys are stored: without the
// trailing directory marker.
func fileKey(path vpath.Path) string {
	if path.IsRoot() {
		return "/"
	}
	raw := path.String()
	return strings.TrimSuffix(raw, "/")
}

var _ vnode.Backend = (*Backend)(nil)
