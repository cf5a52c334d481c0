package badgerdb

import (
	"context"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Stat returns the metadata of the node at path.
func (b *Backend) Stat(ctx context.Context, path vpath.Path) (*vnode.NodeMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := pathKey(path)
	if err != nil {
		return nil, err
	}
	var meta vnode.NodeMetadata
	err = b.view(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		meta = rec.metadata()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// Read returns the full content of the file at path.
func (b *Backend) Read(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := pathKey(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = b.view(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if rec.Kind == vnode.KindDirectory {
			return verr.NewIsADirectory(key)
		}
		item, err := txn.Get(contentKey(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				// Metadata exists but content was never written.
				data = []byte{}
				return nil
			}
			return verr.NewUnavailable(err.Error(), key)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List returns the entries of the directory at path, sorted by name.
func (b *Backend) List(ctx context.Context, path vpath.Path) ([]vnode.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := pathKey(path)
	if err != nil {
		return nil, err
	}
	var entries []vnode.DirEntry
	err = b.view(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if rec.Kind != vnode.KindDirectory {
			return verr.NewNotADirectory(key)
		}
		prefix := entryScanPrefix(key)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		entries = nil
		for it.Rewind(); it.Valid(); it.Next() {
			encName := string(it.Item().Key()[len(prefix):])
			name, err := decodeName(encName)
			if err != nil {
				return verr.NewUnavailable("corrupt directory entry: "+err.Error(), key)
			}
			child, err := getRecord(txn, childKey(key, name))
			if err != nil {
				return err
			}
			entries = append(entries, vnode.DirEntry{
				Name: name,
				Meta: child.metadata(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
