package mount

import (
	"context"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
	"golang.org/x/sync/errgroup"
)

// copyConcurrency bounds parallel file copies during a cross-mount
// rename.
const copyConcurrency = 8

// Rename moves a node, possibly across mounts. Both paths resolve
// against the same pinned table generation. Within one backend the
// rename is delegated and keeps that backend's atomicity; across
// backends it degrades to copy-then-remove: the source stays intact
// until the full copy has succeeded, and a failure during the copy
// leaves a partial destination for the caller to clean up.
func (r *Router) Rename(ctx context.Context, from, to vpath.Path) error {
	tab := r.tab.Load()
	src, err := resolveIn(tab, from)
	if err != nil {
		return err
	}
	dst, err := resolveIn(tab, to)
	if err != nil {
		return err
	}
	if src.Backend == dst.Backend {
		return src.Backend.Rename(ctx, src.Remainder, dst.Remainder)
	}

	meta, err := src.Backend.Stat(ctx, src.Remainder)
	if err != nil {
		return err
	}
	if _, err := dst.Backend.Stat(ctx, dst.Remainder); err == nil {
		return verr.NewAlreadyExists(to.String())
	} else if !verr.HasCode(err, verr.ErrNotFound) {
		return err
	}
	if err := copyNode(ctx, src.Backend, src.Remainder, dst.Backend, dst.Remainder, meta); err != nil {
		return err
	}
	return src.Backend.Remove(ctx, src.Remainder, vnode.RemoveOptions{Recursive: true})
}

// copyNode replicates the node at srcPath into dstBackend. Directory
// trees copy level by level with bounded parallelism for the files.
func copyNode(ctx context.Context, srcBackend vnode.Backend, srcPath vpath.Path, dstBackend vnode.Backend, dstPath vpath.Path, meta *vnode.NodeMetadata) error {
	if meta.Kind != vnode.KindDirectory {
		return copyFile(ctx, srcBackend, srcPath, dstBackend, dstPath)
	}
	if err := dstBackend.CreateDir(ctx, dstPath, vnode.CreateDirOptions{}); err != nil {
		return err
	}
	entries, err := srcBackend.List(ctx, srcPath)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(copyConcurrency)
	var subdirs []vnode.DirEntry
	for _, e := range entries {
		if e.Meta.Kind == vnode.KindDirectory {
			subdirs = append(subdirs, e)
			continue
		}
		g.Go(func() error {
			return copyFile(gctx, srcBackend, srcPath.Join(e.Name), dstBackend, dstPath.Join(e.Name))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, e := range subdirs {
		childMeta := e.Meta
		if err := copyNode(ctx, srcBackend, srcPath.Join(e.Name), dstBackend, dstPath.Join(e.Name), &childMeta); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(ctx context.Context, srcBackend vnode.Backend, srcPath vpath.Path, dstBackend vnode.Backend, dstPath vpath.Path) error {
	data, err := srcBackend.Read(ctx, srcPath)
	if err != nil {
		return err
	}
	return dstBackend.Write(ctx, dstPath, data, vnode.WriteOptions{
		CreateIfMissing: true,
		Truncate:        true,
	})
}
