package memory

import (
	"context"
	"time"

	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Rename atomically detaches the node at from and attaches it at to.
//
// Both parent directories are locked exclusively for the duration of
// the move. When the parents differ, locks are taken in the order of
// their normalized path strings; that global ordering makes two
// concurrent cross-renames acquire the same pair in the same order and
// rules out deadlock. A rename that fails any precondition leaves the
// source fully intact at its original path.
//
// Moving a directory into its own subtree is rejected with
// ErrInvalidPath: it would detach the subtree from the namespace with
// no path leading to it.
func (b *Backend) Rename(ctx context.Context, from, to vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from.IsRoot() {
		return verr.NewInvalidPath("cannot rename the root directory", from.String())
	}
	if to.IsRoot() {
		return verr.NewAlreadyExists(to.String())
	}
	if from.Equal(to) {
		// No-op rename still requires the source to exist.
		_, err := b.lookup(from)
		return err
	}
	if to.HasPrefix(from) {
		return verr.NewInvalidPath("cannot move a directory into its own subtree", to.String())
	}

	srcParent, srcName, err := b.lookupParent(from)
	if err != nil {
		return err
	}
	dstParent, dstName, err := b.lookupParent(to)
	if err != nil {
		return err
	}

	lockParents(srcParent, from.Parent(), dstParent, to.Parent())
	defer unlockParents(srcParent, dstParent)

	// Either parent may have been detached by a concurrent Remove
	// between resolution and locking; attaching into a detached child
	// map would strand the node with no path leading to it.
	if !b.attached(srcParent) {
		return verr.NewNotFound(from.String())
	}
	if !b.attached(dstParent) {
		return verr.NewNotFound(to.String())
	}

	if srcParent.readOnly {
		return verr.NewReadOnly(from.String())
	}
	if dstParent.readOnly {
		return verr.NewReadOnly(to.String())
	}

	target := srcParent.children[srcName]
	if target == nil {
		return verr.NewNotFound(from.String())
	}
	if _, occupied := dstParent.children[dstName]; occupied {
		return verr.NewAlreadyExists(to.String())
	}
	// The destination parent may have been moved under the source
	// subtree after the lexical check above; re-verify by walking the
	// navigation back-references.
	for anc := dstParent; anc != nil; anc = anc.parent.Load() {
		if anc == target {
			return verr.NewInvalidPath("cannot move a directory into its own subtree", to.String())
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	delete(srcParent.children, srcName)
	dstParent.children[dstName] = target
	target.parent.Store(dstParent)
	srcParent.modTime = now
	dstParent.modTime = now
	return nil
}

// lockParents locks one or two parent directories in the global order
// given by their normalized path strings.
func lockParents(a *node, aPath vpath.Path, b *node, bPath vpath.Path) {
	if a == b {
		a.mu.Lock()
		return
	}
	if aPath.String() <= bPath.String() {
		a.mu.Lock()
		b.mu.Lock()
		return
	}
	b.mu.Lock()
	a.mu.Lock()
}

func unlockParents(a, b *node) {
	if a == b {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	b.mu.Unlock()
}
