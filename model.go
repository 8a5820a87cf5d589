package eden

import "context"

// EntryType is the type tag carried by an ObjectKey and by every directory
// entry, mirroring the teacher's quantumfs.ObjectType (ObjectTypeDirectory,
// ObjectTypeSmallFile, ...) but collapsed to the five kinds below.
type EntryType uint8

const (
	EntryTree EntryType = iota
	EntryRegular
	EntryExecutable
	EntrySymlink
	EntrySocket
)

func (t EntryType) String() string {
	switch t {
	case EntryTree:
		return "tree"
	case EntryRegular:
		return "regular"
	case EntryExecutable:
		return "executable"
	case EntrySymlink:
		return "symlink"
	case EntrySocket:
		return "socket"
	default:
		return "unknown"
	}
}

func (t EntryType) IsDir() bool { return t == EntryTree }

// ObjectKey addresses an immutable Tree or Blob: a content hash plus the
// type of object it names, the way teacher's quantumfs.ObjectKey pairs a
// Hash with a KeyType.
type ObjectKey struct {
	Hash Hash
	Type EntryType
}

func (k ObjectKey) String() string {
	return k.Type.String() + ":" + k.Hash.String()
}

func (k ObjectKey) IsZero() bool { return k.Hash.IsZero() }

// TreeEntry is one child record inside an immutable Tree object, as read
// from the ObjectStore. Entries within a Tree are sorted by Name.
type TreeEntry struct {
	Name string
	Mode uint32
	Key  ObjectKey
}

// Tree is an immutable, content-addressed directory snapshot.
type Tree struct {
	key     ObjectKey
	entries []TreeEntry
}

// NewTree builds a Tree from entries already sorted by Name; callers that
// cannot guarantee ordering should sort before calling this.
func NewTree(key ObjectKey, entries []TreeEntry) *Tree {
	return &Tree{key: key, entries: entries}
}

func (t *Tree) Key() ObjectKey { return t.key }
func (t *Tree) Hash() Hash     { return t.key.Hash }

// Entries returns the Tree's children in byte-lexicographic order by name.
func (t *Tree) Entries() []TreeEntry { return t.entries }

// EntryByName returns the entry named name and whether it was found. Trees
// are small enough in practice that a linear scan (entries are already
// sorted, so this could binary search) is not worth complicating; kept as
// a linear scan for clarity, matching the merge-walk's own sequential use.
func (t *Tree) EntryByName(name string) (TreeEntry, bool) {
	for _, e := range t.entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Blob is an immutable, content-addressed file payload.
type Blob struct {
	key  ObjectKey
	Data []byte
}

func NewBlob(key ObjectKey, data []byte) *Blob {
	return &Blob{key: key, Data: data}
}

func (b *Blob) Key() ObjectKey { return b.key }

// ObjectStore is the read-only content-addressed object store dependency
// named in spec §6: immutable Tree and Blob retrieval by hash. Concrete
// backends live under objectstore/.
type ObjectStore interface {
	GetTree(ctx context.Context, key ObjectKey) (*Tree, error)
	GetBlob(ctx context.Context, key ObjectKey) (*Blob, error)
}

// ObjectStoreWriter is implemented by backends that also accept new
// objects (e.g. from checkout-time materialization of a tree the daemon
// itself constructed, or test fixtures). Kept separate from ObjectStore
// so the read path never depends on write capability.
type ObjectStoreWriter interface {
	PutTree(ctx context.Context, tree *Tree) (ObjectKey, error)
	PutBlob(ctx context.Context, data []byte, etype EntryType) (ObjectKey, error)
}

// DirEntryRecord is the persisted shape of one TreeInode directory entry,
// the Overlay-side analogue of spec §3's "Directory entry": a name, its
// POSIX mode, and exactly one of a source-control hash (unmaterialized) or
// a live inode number (materialized/loaded).
type DirEntryRecord struct {
	Name         string
	Mode         uint32
	Hash         Hash
	HasHash      bool
	InodeNum     uint64
	HasInodeNum  bool
	Materialized bool
}

// DirRecord is the Overlay's persisted representation of a materialized
// TreeInode's contents: its entries plus the timestamps and clean-hash
// state that would otherwise live only in memory.
type DirRecord struct {
	Entries        []DirEntryRecord
	TreeHash       Hash
	HasTreeHash    bool
	ATimeUnixNano  int64
	CTimeUnixNano  int64
	MTimeUnixNano  int64
}

// Overlay is the local mutable persistence dependency named in spec §6:
// directory records keyed by inode number, plus per-inode backing files
// for regular file / symlink / socket content. Concrete backends live
// under overlay/.
type Overlay interface {
	LoadDir(ctx context.Context, inodeNum uint64) (*DirRecord, bool, error)
	SaveDir(ctx context.Context, inodeNum uint64, rec *DirRecord) error
	RemoveData(ctx context.Context, inodeNum uint64) error

	CreateFile(ctx context.Context, inodeNum uint64) error
	OpenFile(ctx context.Context, inodeNum uint64) (OverlayFile, error)
	FilePath(inodeNum uint64) string
}

// OverlayFile is a per-inode backing file for materialized regular file,
// symlink, or socket content.
type OverlayFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Size() (int64, error)
	Close() error
}

// DeltaKind is the type tag of a Journal entry.
type DeltaKind uint8

const (
	DeltaCreated DeltaKind = iota
	DeltaRemoved
	DeltaRenamed
	DeltaAttrChanged
)

// Delta is one journal record, per spec §6: CREATED(path), REMOVED(path),
// RENAME(src, dst), or an attribute change.
type Delta struct {
	Kind    DeltaKind
	Path    string
	NewPath string // set only for DeltaRenamed
}

// Journal is the append-only mutation log dependency named in spec §6.
// Concrete backends live under journal/.
type Journal interface {
	AddDelta(ctx context.Context, d Delta) error
}
