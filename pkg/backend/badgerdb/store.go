// Package badgerdb implements the capability interface over a
// BadgerDB keyspace, giving the scratch namespace a durable sibling
// with identical semantics.
//
// Key namespace design
// ====================
//
// BadgerDB is a flat key-value store, so the tree is encoded with
// prefixed keys:
//
//	Data Type        Prefix  Key Format            Value
//	------------------------------------------------------------------
//	Node metadata    "m:"    m:<path>              nodeRecord (JSON)
//	File content     "c:"    c:<path>              raw bytes
//	Directory entry  "e:"    e:<dirpath>\x00<name> child kind (1 byte)
//
// <path> is the canonical encoded string of the node path, which can
// never contain a NUL byte, so "\x00" is a collision-free separator
// and a prefix scan over "e:<dirpath>\x00" enumerates exactly one
// directory. Metadata records are JSON so they stay inspectable with
// badger's CLI tooling; content stays raw.
//
// Every operation runs inside a single Badger transaction, which makes
// the whole interface atomic per call, including Rename.
package badgerdb

import (
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

const (
	prefixMeta    = "m:"
	prefixContent = "c:"
	prefixEntry   = "e:"

	entrySep = "\x00"
)

// nodeRecord is the persisted metadata of one node.
type nodeRecord struct {
	Kind     vnode.NodeKind `json:"kind"`
	Size     int64          `json:"size"`
	ModTime  time.Time      `json:"mod_time"`
	ReadOnly bool           `json:"read_only"`
}

// Backend is the BadgerDB-backed backend.
type Backend struct {
	db *badger.DB
}

// Open opens (or creates) a backend at dir. The root directory record
// is written on first open. Badger's own logger is silenced; this
// package reports through the shared taxonomy instead.
func Open(dir string) (*Backend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, verr.NewUnavailable("opening badger store: "+err.Error(), "/")
	}
	b := &Backend{db: db}
	if err := b.ensureRoot(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// OpenInMemory opens a non-persistent backend, useful in tests.
func OpenInMemory() (*Backend, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, verr.NewUnavailable("opening badger store: "+err.Error(), "/")
	}
	b := &Backend{db: db}
	if err := b.ensureRoot(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Close releases the underlying database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) ensureRoot() error {
	return b.update(func(txn *badger.Txn) error {
		key := metaKey("/")
		if _, err := txn.Get(key); err == nil {
			return nil
		}
		return putRecord(txn, "/", &nodeRecord{
			Kind:    vnode.KindDirectory,
			ModTime: time.Now(),
		})
	})
}

// pathKey returns the canonical key string for path, with no trailing
// directory marker so files and directories share one key space.
func pathKey(path vpath.Path) (string, error) {
	for _, seg := range path.Segments() {
		// Decoded opaque segments may carry NUL, which would break the
		// entry-key separator.
		for i := 0; i < len(seg); i++ {
			if seg[i] == 0 {
				return "", verr.NewInvalidPath("segment contains NUL byte", path.String())
			}
		}
	}
	if path.IsRoot() {
		return "/", nil
	}
	raw := path.String()
	if raw[len(raw)-1] == '/' {
		raw = raw[:len(raw)-1]
	}
	return raw, nil
}

func metaKey(key string) []byte    { return []byte(prefixMeta + key) }
func contentKey(key string) []byte { return []byte(prefixContent + key) }

// entryKey builds the directory-entry key of name inside dirKey.
func entryKey(dirKey, name string) []byte {
	return []byte(prefixEntry + dirKey + entrySep + encodeName(name))
}

// entryScanPrefix is the prefix covering all entries of dirKey.
func entryScanPrefix(dirKey string) []byte {
	return []byte(prefixEntry + dirKey + entrySep)
}

// childKey joins dirKey and name into the child's canonical key.
func childKey(dirKey, name string) string {
	if dirKey == "/" {
		return "/" + encodeName(name)
	}
	return dirKey + "/" + encodeName(name)
}

// encodeName renders one decoded child name the way the path model
// encodes a segment, keeping keys aligned with canonical path strings.
func encodeName(name string) string {
	return vpath.Root().Join(name).String()[1:]
}

// decodeName reverses encodeName.
func decodeName(enc string) (string, error) {
	p, err := vpath.Parse("/" + enc)
	if err != nil {
		return "", err
	}
	return p.Base(), nil
}

func getRecord(txn *badger.Txn, key string) (*nodeRecord, error) {
	item, err := txn.Get(metaKey(key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, verr.NewNotFound(key)
		}
		return nil, verr.NewUnavailable(err.Error(), key)
	}
	var rec nodeRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, verr.NewUnavailable("decoding node record: "+err.Error(), key)
	}
	return &rec, nil
}

func putRecord(txn *badger.Txn, key string, rec *nodeRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return verr.NewUnavailable("encoding node record: "+err.Error(), key)
	}
	if err := txn.Set(metaKey(key), raw); err != nil {
		return verr.NewUnavailable(err.Error(), key)
	}
	return nil
}

// metadata converts a record into interface metadata.
func (r *nodeRecord) metadata() vnode.NodeMetadata {
	meta := vnode.NodeMetadata{
		Kind:     r.Kind,
		ModTime:  r.ModTime,
		ReadOnly: r.ReadOnly,
	}
	if r.Kind == vnode.KindFile {
		meta.Size = r.Size
	}
	return meta
}

// view runs fn in a read-only transaction, translating Badger's
// conflict-free read errors into the taxonomy.
func (b *Backend) view(fn func(txn *badger.Txn) error) error {
	if err := b.db.View(fn); err != nil {
		if _, ok := verr.CodeOf(err); ok {
			return err
		}
		return verr.NewUnavailable(err.Error(), "")
	}
	return nil
}

// update runs fn in a read-write transaction.
func (b *Backend) update(fn func(txn *badger.Txn) error) error {
	if err := b.db.Update(fn); err != nil {
		if _, ok := verr.CodeOf(err); ok {
			return err
		}
		return verr.NewUnavailable(err.Error(), "")
	}
	return nil
}

var _ vnode.Backend = (*Backend)(nil)
