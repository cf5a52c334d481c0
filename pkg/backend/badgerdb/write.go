package badgerdb

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// requireParentDir verifies that the parent of path exists and is a
// directory, returning the parent key.
func requireParentDir(txn *badger.Txn, path vpath.Path) (string, error) {
	parentKey, err := pathKey(path.Parent())
	if err != nil {
		return "", err
	}
	rec, err := getRecord(txn, parentKey)
	if err != nil {
		return "", err
	}
	if rec.Kind != vnode.KindDirectory {
		return "", verr.NewNotADirectory(parentKey)
	}
	return parentKey, nil
}

// Write stores data as the full content of the file at path.
func (b *Backend) Write(ctx context.Context, path vpath.Path, data []byte, opts vnode.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := pathKey(path)
	if err != nil {
		return err
	}
	if path.IsRoot() {
		return verr.NewIsADirectory(key)
	}
	return b.update(func(txn *badger.Txn) error {
		parentKey, err := requireParentDir(txn, path)
		if err != nil {
			return err
		}
		rec, err := getRecord(txn, key)
		switch {
		case err == nil:
			if rec.Kind == vnode.KindDirectory {
				return verr.NewIsADirectory(key)
			}
			if rec.ReadOnly {
				return verr.NewReadOnly(key)
			}
		case verr.HasCode(err, verr.ErrNotFound):
			if !opts.CreateIfMissing {
				return err
			}
			rec = &nodeRecord{Kind: vnode.KindFile}
			if err := txn.Set(entryKey(parentKey, path.Base()), []byte{byte(vnode.KindFile)}); err != nil {
				return verr.NewUnavailable(err.Error(), key)
			}
		default:
			return err
		}

		content := data
		if !opts.Truncate {
			item, err := txn.Get(contentKey(key))
			if err == nil {
				prev, err := item.ValueCopy(nil)
				if err != nil {
					return verr.NewUnavailable(err.Error(), key)
				}
				content = append(prev, data...)
			} else if err != badger.ErrKeyNotFound {
				return verr.NewUnavailable(err.Error(), key)
			}
		}
		if err := txn.Set(contentKey(key), content); err != nil {
			return verr.NewUnavailable(err.Error(), key)
		}
		rec.Size = int64(len(content))
		rec.ModTime = time.Now()
		return putRecord(txn, key, rec)
	})
}

// CreateDir creates the directory at path.
func (b *Backend) CreateDir(ctx context.Context, path vpath.Path, opts vnode.CreateDirOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := pathKey(path)
	if err != nil {
		return err
	}
	if path.IsRoot() {
		if opts.Recursive {
			return nil
		}
		return verr.NewAlreadyExists(key)
	}
	return b.update(func(txn *badger.Txn) error {
		if opts.Recursive {
			return createDirAll(txn, path)
		}
		parentKey, err := requireParentDir(txn, path)
		if err != nil {
			return err
		}
		if _, err := getRecord(txn, key); err == nil {
			return verr.NewAlreadyExists(key)
		} else if !verr.HasCode(err, verr.ErrNotFound) {
			return err
		}
		return insertDir(txn, parentKey, key, path.Base())
	})
}

// createDirAll creates path and any missing ancestors, tolerating the
// ones that already exist as directories.
func createDirAll(txn *badger.Txn, path vpath.Path) error {
	cur := vpath.Root()
	parentKey := "/"
	for _, seg := range path.Segments() {
		cur = cur.Join(seg)
		key, err := pathKey(cur)
		if err != nil {
			return err
		}
		rec, err := getRecord(txn, key)
		switch {
		case err == nil:
			if rec.Kind != vnode.KindDirectory {
				return verr.NewNotADirectory(key)
			}
		case verr.HasCode(err, verr.ErrNotFound):
			if err := insertDir(txn, parentKey, key, seg); err != nil {
				return err
			}
		default:
			return err
		}
		parentKey = key
	}
	return nil
}

func insertDir(txn *badger.Txn, parentKey, key, name string) error {
	if err := txn.Set(entryKey(parentKey, name), []byte{byte(vnode.KindDirectory)}); err != nil {
		return verr.NewUnavailable(err.Error(), key)
	}
	return putRecord(txn, key, &nodeRecord{
		Kind:    vnode.KindDirectory,
		ModTime: time.Now(),
	})
}

// Remove deletes the node at path.
func (b *Backend) Remove(ctx context.Context, path vpath.Path, opts vnode.RemoveOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := pathKey(path)
	if err != nil {
		return err
	}
	if path.IsRoot() {
		return verr.NewInvalidPath("cannot remove the root directory", key)
	}
	return b.update(func(txn *badger.Txn) error {
		parentKey, err := requireParentDir(txn, path)
		if err != nil {
			return err
		}
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if rec.ReadOnly {
			return verr.NewReadOnly(key)
		}
		if rec.Kind == vnode.KindDirectory {
			empty, err := dirEmpty(txn, key)
			if err != nil {
				return err
			}
			if !empty {
				if !opts.Recursive {
					return verr.NewNotEmpty(key)
				}
				if err := removeSubtree(txn, key); err != nil {
					return err
				}
			}
		}
		if err := txn.Delete(entryKey(parentKey, path.Base())); err != nil {
			return verr.NewUnavailable(err.Error(), key)
		}
		return deleteNode(txn, key)
	})
}

func dirEmpty(txn *badger.Txn, key string) (bool, error) {
	prefix := entryScanPrefix(key)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	it.Rewind()
	return !it.Valid(), nil
}

// removeSubtree deletes every descendant of key, depth-first.
func removeSubtree(txn *badger.Txn, key string) error {
	names, err := listNames(txn, key)
	if err != nil {
		return err
	}
	for _, name := range names {
		ck := childKey(key, name)
		rec, err := getRecord(txn, ck)
		if err != nil {
			return err
		}
		if rec.Kind == vnode.KindDirectory {
			if err := removeSubtree(txn, ck); err != nil {
				return err
			}
		}
		if err := txn.Delete(entryKey(key, name)); err != nil {
			return verr.NewUnavailable(err.Error(), ck)
		}
		if err := deleteNode(txn, ck); err != nil {
			return err
		}
	}
	return nil
}

func listNames(txn *badger.Txn, key string) ([]string, error) {
	prefix := entryScanPrefix(key)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	var names []string
	for it.Rewind(); it.Valid(); it.Next() {
		name, err := decodeName(string(it.Item().Key()[len(prefix):]))
		if err != nil {
			return nil, verr.NewUnavailable("corrupt directory entry: "+err.Error(), key)
		}
		names = append(names, name)
	}
	return names, nil
}

func deleteNode(txn *badger.Txn, key string) error {
	if err := txn.Delete(metaKey(key)); err != nil {
		return verr.NewUnavailable(err.Error(), key)
	}
	if err := txn.Delete(contentKey(key)); err != nil {
		return verr.NewUnavailable(err.Error(), key)
	}
	return nil
}

// Rename moves the node at from to to within one transaction. The
// destination must not exist and the source subtree cannot contain
// its own destination.
func (b *Backend) Rename(ctx context.Context, from, to vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fromKey, err := pathKey(from)
	if err != nil {
		return err
	}
	toKey, err := pathKey(to)
	if err != nil {
		return err
	}
	if from.IsRoot() {
		return verr.NewInvalidPath("cannot rename the root directory", fromKey)
	}
	if to.IsRoot() {
		return verr.NewAlreadyExists(toKey)
	}
	if to.HasPrefix(from) && !from.Equal(to) {
		return verr.NewInvalidPath("cannot move a directory into its own subtree", toKey)
	}
	return b.update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, fromKey)
		if err != nil {
			return err
		}
		if from.Equal(to) {
			return nil
		}
		if rec.ReadOnly {
			return verr.NewReadOnly(fromKey)
		}
		fromParent, err := requireParentDir(txn, from)
		if err != nil {
			return err
		}
		toParent, err := requireParentDir(txn, to)
		if err != nil {
			return err
		}
		if _, err := getRecord(txn, toKey); err == nil {
			return verr.NewAlreadyExists(toKey)
		} else if !verr.HasCode(err, verr.ErrNotFound) {
			return err
		}
		if err := moveNode(txn, fromKey, toKey, rec); err != nil {
			return err
		}
		if err := txn.Delete(entryKey(fromParent, from.Base())); err != nil {
			return verr.NewUnavailable(err.Error(), fromKey)
		}
		if err := txn.Set(entryKey(toParent, to.Base()), []byte{byte(rec.Kind)}); err != nil {
			return verr.NewUnavailable(err.Error(), toKey)
		}
		return nil
	})
}

// moveNode rewrites the metadata, content and descendant keys of
// fromKey under toKey.
func moveNode(txn *badger.Txn, fromKey, toKey string, rec *nodeRecord) error {
	if rec.Kind != vnode.KindDirectory {
		item, err := txn.Get(contentKey(fromKey))
		if err == nil {
			data, err := item.ValueCopy(nil)
			if err != nil {
				return verr.NewUnavailable(err.Error(), fromKey)
			}
			if err := txn.Set(contentKey(toKey), data); err != nil {
				return verr.NewUnavailable(err.Error(), toKey)
			}
		} else if err != badger.ErrKeyNotFound {
			return verr.NewUnavailable(err.Error(), fromKey)
		}
	} else {
		names, err := listNames(txn, fromKey)
		if err != nil {
			return err
		}
		for _, name := range names {
			srcChild := childKey(fromKey, name)
			dstChild := childKey(toKey, name)
			childRec, err := getRecord(txn, srcChild)
			if err != nil {
				return err
			}
			if err := moveNode(txn, srcChild, dstChild, childRec); err != nil {
				return err
			}
			if err := txn.Delete(entryKey(fromKey, name)); err != nil {
				return verr.NewUnavailable(err.Error(), srcChild)
			}
			if err := txn.Set(entryKey(toKey, name), []byte{byte(childRec.Kind)}); err != nil {
				return verr.NewUnavailable(err.Error(), dstChild)
			}
		}
	}
	if err := putRecord(txn, toKey, rec); err != nil {
		return err
	}
	return deleteNode(txn, fromKey)
}
