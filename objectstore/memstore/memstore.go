// Package memstore is an in-memory eden.ObjectStore, grounded on the
// teacher's processlocal.DataStore: a single map guarded by a RWMutex,
// suitable for tests and for a single-node daemon with no durability
// requirement across restarts.
package memstore

import (
	"context"
	"sync"

	"github.com/Happy-Ferret/eden"
)

type entry struct {
	tree *eden.Tree
	blob *eden.Blob
}

// Store is an in-memory, process-local eden.ObjectStore and
// eden.ObjectStoreWriter.
type Store struct {
	mu   sync.RWMutex
	data map[eden.Hash]entry
}

func New() *Store {
	return &Store{
		data: make(map[eden.Hash]entry),
	}
}

func (s *Store) GetTree(ctx context.Context, key eden.ObjectKey) (*eden.Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key.Hash]
	if !ok || e.tree == nil {
		return nil, eden.Errorf(eden.NotFound, "tree %s not in store", key.Hash)
	}
	return e.tree, nil
}

func (s *Store) GetBlob(ctx context.Context, key eden.ObjectKey) (*eden.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key.Hash]
	if !ok || e.blob == nil {
		return nil, eden.Errorf(eden.NotFound, "blob %s not in store", key.Hash)
	}
	return e.blob, nil
}

func (s *Store) PutTree(ctx context.Context, tree *eden.Tree) (eden.ObjectKey, error) {
	key := eden.ObjectKey{Hash: tree.Hash(), Type: eden.EntryTree}
	s.mu.Lock()
	s.data[key.Hash] = entry{tree: tree}
	s.mu.Unlock()
	return key, nil
}

func (s *Store) PutBlob(ctx context.Context, data []byte, etype eden.EntryType) (eden.ObjectKey, error) {
	h := eden.HashBytes(data)
	key := eden.ObjectKey{Hash: h, Type: etype}
	s.mu.Lock()
	s.data[key.Hash] = entry{blob: eden.NewBlob(key, append([]byte(nil), data...))}
	s.mu.Unlock()
	return key, nil
}

// Exists reports whether key addresses a known object of either kind,
// mirroring the teacher's DataStore.Exists used by the fsck/gc tooling.
func (s *Store) Exists(key eden.ObjectKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key.Hash]
	return ok
}
