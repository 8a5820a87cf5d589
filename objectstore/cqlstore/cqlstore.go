// Package cqlstore is a Cassandra-backed eden.ObjectStore, grounded on
// the teacher's backends/cql blobstore: objects are immutable and
// content-addressed, so every row is an insert-if-absent keyed by its
// hash, with the object's encoded bytes as the value and no update path.
package cqlstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/gocql/gocql"

	"github.com/Happy-Ferret/eden"
)

// Config names the keyspace and column family pair the teacher's
// backends/cql.Config carries, trimmed to what a single-table object
// store needs.
type Config struct {
	Hosts    []string
	Keyspace string
	Table    string
}

// Store is a gocql-backed ObjectStore/ObjectStoreWriter: one table keyed
// by hex hash whose value column holds a blob's raw bytes or a cbor
// encoding of a tree's entries. The entry type is not stored.
type Store struct {
	session *gocql.Session
	table   string
}

// Open connects to the cluster described by cfg. The keyspace and table
// must already exist; edenvfs does not run schema migrations.
func Open(cfg Config) (*Store, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, eden.Wrap(eden.IO, err, "connecting to cql cluster")
	}
	return &Store{session: session, table: cfg.Table}, nil
}

func (s *Store) Close() { s.session.Close() }

type treeRow struct {
	Entries []eden.TreeEntry
}

func (s *Store) GetTree(ctx context.Context, key eden.ObjectKey) (*eden.Tree, error) {
	data, err := s.get(ctx, key.Hash)
	if err != nil {
		return nil, err
	}
	var row treeRow
	if err := cbor.Unmarshal(data, &row); err != nil {
		return nil, eden.Wrap(eden.IO, err, "decoding tree %s", key.Hash)
	}
	return eden.NewTree(key, row.Entries), nil
}

func (s *Store) GetBlob(ctx context.Context, key eden.ObjectKey) (*eden.Blob, error) {
	data, err := s.get(ctx, key.Hash)
	if err != nil {
		return nil, err
	}
	return eden.NewBlob(key, data), nil
}

func (s *Store) get(ctx context.Context, h eden.Hash) ([]byte, error) {
	var data []byte
	q := s.session.Query(
		fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, s.table),
		hex.EncodeToString(h[:]),
	).WithContext(ctx)
	if err := q.Scan(&data); err != nil {
		if err == gocql.ErrNotFound {
			return nil, eden.Errorf(eden.NotFound, "object %s not in cql store", h)
		}
		return nil, eden.Wrap(eden.IO, err, "reading object %s", h)
	}
	return data, nil
}

func (s *Store) PutTree(ctx context.Context, tree *eden.Tree) (eden.ObjectKey, error) {
	entries := append([]eden.TreeEntry(nil), tree.Entries()...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	data, err := cbor.Marshal(treeRow{Entries: entries})
	if err != nil {
		return eden.ObjectKey{}, eden.Wrap(eden.IO, err, "encoding tree")
	}
	key := eden.ObjectKey{Hash: tree.Hash(), Type: eden.EntryTree}
	return key, s.put(ctx, key.Hash, data)
}

func (s *Store) PutBlob(ctx context.Context, data []byte, etype eden.EntryType) (eden.ObjectKey, error) {
	key := eden.ObjectKey{Hash: eden.HashBytes(data), Type: etype}
	return key, s.put(ctx, key.Hash, data)
}

// put is idempotent: the value is content-addressed, so inserting the
// same key twice with the same bytes is harmless, and the store never
// accepts a second write under an existing key with different bytes.
func (s *Store) put(ctx context.Context, h eden.Hash, data []byte) error {
	q := s.session.Query(
		fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?) IF NOT EXISTS`, s.table),
		hex.EncodeToString(h[:]), data,
	).WithContext(ctx)
	if err := q.Exec(); err != nil {
		return eden.Wrap(eden.IO, err, "writing object %s", h)
	}
	return nil
}
