package memory

import (
	"context"
	"time"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Write stores data at path.
//
// The new content is assembled in a staging buffer outside the file's
// lock, then swapped in under the exclusive lock. The swap is the
// single commit point: cancellation before it is a no-op, and a
// concurrent Read never observes partial content. Racing writers to
// the same path serialize on the file lock and the last to commit
// wins.
//
// Creating a missing file is a structural mutation and takes the
// parent directory's exclusive lock instead; the content of the fresh
// node is installed before it becomes reachable.
func (b *Backend) Write(ctx context.Context, path vpath.Path, data []byte, opts vnode.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parent, name, err := b.lookupParent(path)
	if err != nil {
		if path.IsRoot() {
			return verr.NewIsADirectory(path.String())
		}
		return err
	}

	parent.mu.RLock()
	target := parent.children[name]
	parent.mu.RUnlock()

	if target == nil {
		if !opts.CreateIfMissing {
			return verr.NewNotFound(path.String())
		}
		return b.createFile(ctx, parent, name, path, data)
	}

	if target.kind == vnode.KindDirectory {
		return verr.NewIsADirectory(path.String())
	}

	// Stage the full new content before taking the lock. For appends
	// the current content is sampled under a read lock first; if a
	// racing writer commits in between, last-writer-wins applies, which
	// is the documented contract.
	var staged []byte
	if opts.Truncate {
		staged = make([]byte, len(data))
		copy(staged, data)
	} else {
		target.mu.RLock()
		staged = make([]byte, 0, len(target.content)+len(data))
		staged = append(staged, target.content...)
		target.mu.RUnlock()
		staged = append(staged, data...)
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if target.readOnly {
		return verr.NewReadOnly(path.String())
	}
	// Last cancellation point before the commit.
	if err := ctx.Err(); err != nil {
		return err
	}
	target.content = staged
	target.modTime = time.Now()
	return nil
}

// createFile attaches a new file node under parent. The parent's
// exclusive lock covers the existence re-check and the attach, so two
// racing creators cannot both insert.
func (b *Backend) createFile(ctx context.Context, parent *node, name string, path vpath.Path, data []byte) error {
	content := make([]byte, len(data))
	copy(content, data)

	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.readOnly {
		return verr.NewReadOnly(path.String())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if existing := parent.children[name]; existing != nil {
		// Lost the race to another creator; append semantics on a node
		// we did not observe would be surprising, so last-writer-wins:
		// replace its content wholesale.
		existing.mu.Lock()
		defer existing.mu.Unlock()
		if existing.kind == vnode.KindDirectory {
			return verr.NewIsADirectory(path.String())
		}
		if existing.readOnly {
			return verr.NewReadOnly(path.String())
		}
		existing.content = content
		existing.modTime = time.Now()
		return nil
	}
	now := time.Now()
	child := &node{
		kind:    vnode.KindFile,
		modTime: now,
		content: content,
	}
	child.parent.Store(parent)
	parent.children[name] = child
	parent.modTime = now
	return nil
}
