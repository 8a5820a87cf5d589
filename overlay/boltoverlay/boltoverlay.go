// Package boltoverlay is a boltdb-backed eden.Overlay, grounded on the
// teacher's systemlocal.WorkspaceDB: a single bolt.DB file with one
// top-level bucket per concern. Directory records are cbor-encoded;
// per-inode file content is held in a separate bucket, zstd-compressed
// on write the way the teacher's local datastore variants compress
// large blocks before committing them to disk.
package boltoverlay

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/Happy-Ferret/eden"
)

var (
	dirsBucket  = []byte("Dirs")
	filesBucket = []byte("Files")
)

// Overlay is a boltdb-backed eden.Overlay. A bolt.DB has no internal
// concurrency beyond one writer at a time; edenvfs relies on the
// directory-level DeferableRwMutex in the inodes package to keep
// concurrent SaveDir calls for distinct inodes from serializing any
// more than bolt itself already requires.
type Overlay struct {
	db  *bolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (creating if necessary) the bolt database at path and
// prepares its buckets.
func Open(path string) (*Overlay, error) {
	var options *bolt.Options
	if len(path) >= 4 && path[:4] == "/tmp" {
		options = &bolt.Options{Timeout: 100 * time.Millisecond}
	}
	db, err := bolt.Open(path, 0600, options)
	if err != nil {
		return nil, eden.Wrap(eden.IO, err, "opening overlay db %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(dirsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(filesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, eden.Wrap(eden.IO, err, "initializing overlay buckets")
	}
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &Overlay{db: db, enc: enc, dec: dec}, nil
}

func (o *Overlay) Close() error { return o.db.Close() }

func inodeKey(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func (o *Overlay) LoadDir(ctx context.Context, inodeNum uint64) (*eden.DirRecord, bool, error) {
	var rec *eden.DirRecord
	found := false
	err := o.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(dirsBucket).Get(inodeKey(inodeNum))
		if data == nil {
			return nil
		}
		found = true
		rec = &eden.DirRecord{}
		return cbor.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, false, eden.Wrap(eden.IO, err, "loading dir record %d", inodeNum)
	}
	return rec, found, nil
}

func (o *Overlay) SaveDir(ctx context.Context, inodeNum uint64, rec *eden.DirRecord) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return eden.Wrap(eden.IO, err, "encoding dir record %d", inodeNum)
	}
	err = o.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dirsBucket).Put(inodeKey(inodeNum), data)
	})
	if err != nil {
		return eden.Wrap(eden.IO, err, "saving dir record %d", inodeNum)
	}
	return nil
}

func (o *Overlay) RemoveData(ctx context.Context, inodeNum uint64) error {
	err := o.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(dirsBucket).Delete(inodeKey(inodeNum)); err != nil {
			return err
		}
		return tx.Bucket(filesBucket).Delete(inodeKey(inodeNum))
	})
	if err != nil {
		return eden.Wrap(eden.IO, err, "removing overlay data for inode %d", inodeNum)
	}
	return nil
}

func (o *Overlay) CreateFile(ctx context.Context, inodeNum uint64) error {
	return o.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		if b.Get(inodeKey(inodeNum)) != nil {
			return eden.Errorf(eden.Exists, "overlay file %d already exists", inodeNum)
		}
		return b.Put(inodeKey(inodeNum), o.enc.EncodeAll(nil, nil))
	})
}

func (o *Overlay) OpenFile(ctx context.Context, inodeNum uint64) (eden.OverlayFile, error) {
	var data []byte
	err := o.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(filesBucket).Get(inodeKey(inodeNum))
		if raw == nil {
			return eden.Errorf(eden.NotFound, "overlay file %d not found", inodeNum)
		}
		data = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	plain, err := o.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, eden.Wrap(eden.IO, err, "decompressing overlay file %d", inodeNum)
	}
	return &boltFile{o: o, inodeNum: inodeNum, data: plain}, nil
}

func (o *Overlay) FilePath(inodeNum uint64) string {
	return fmt.Sprintf("bolt://%s/%d", o.db.Path(), inodeNum)
}

// boltFile buffers one inode's content in memory between Open and Close,
// flushing a single zstd-compressed blob on Close, the way the teacher's
// on-disk datastores batch a whole block into one put rather than
// streaming individual writes to bolt.
type boltFile struct {
	o        *Overlay
	inodeNum uint64
	data     []byte
	dirty    bool
}

func (f *boltFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	return copy(p, f.data[off:]), nil
}

func (f *boltFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], p)
	f.dirty = true
	return len(p), nil
}

func (f *boltFile) Truncate(size int64) error {
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	f.dirty = true
	return nil
}

func (f *boltFile) Size() (int64, error) {
	return int64(len(f.data)), nil
}

func (f *boltFile) Close() error {
	if !f.dirty {
		return nil
	}
	compressed := f.o.enc.EncodeAll(f.data, nil)
	err := f.o.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).Put(inodeKey(f.inodeNum), compressed)
	})
	if err != nil {
		return eden.Wrap(eden.IO, err, "flushing overlay file %d", f.inodeNum)
	}
	return nil
}
