// Package memory provides the in-memory storage backend used by tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/google/btree"

	"attrix/internal/storage"
)

type item struct {
	sortKey string
	value   []byte
}

func less(a, b item) bool { return a.sortKey < b.sortKey }

// Store is a Store backed by one btree per partition.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]*btree.BTreeG[item]
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{partitions: make(map[string]*btree.BTreeG[item])}
}

func (s *Store) tree(partition string, create bool) *btree.BTreeG[item] {
	t, ok := s.partitions[partition]
	if !ok && create {
		t = btree.NewG[item](32, less)
		s.partitions[partition] = t
	}
	return t
}

func (s *Store) Get(ctx context.Context, key storage.Key) (storage.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tree(key.Partition, false)
	if t == nil {
		return storage.Row{}, storage.ErrRowNotFound
	}
	it, ok := t.Get(item{sortKey: key.SortKey})
	if !ok {
		return storage.Row{}, storage.ErrRowNotFound
	}
	return storage.Row{Partition: key.Partition, SortKey: it.sortKey, Value: cloneBytes(it.value)}, nil
}

func (s *Store) Put(ctx context.Context, row storage.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree(row.Partition, true).ReplaceOrInsert(item{sortKey: row.SortKey, value: cloneBytes(row.Value)})
	return nil
}

func (s *Store) Delete(ctx context.Context, key storage.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.tree(key.Partition, false); t != nil {
		t.Delete(item{sortKey: key.SortKey})
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, partition string, opts storage.ScanOptions) ([]storage.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tree(partition, false)
	if t == nil {
		return nil, nil
	}

	var rows []storage.Row
	collect := func(it item) bool {
		ok, past := storage.InScanBounds(it.sortKey, opts)
		if past {
			return false
		}
		if ok {
			rows = append(rows, storage.Row{Partition: partition, SortKey: it.sortKey, Value: cloneBytes(it.value)})
			if opts.Limit > 0 && len(rows) >= opts.Limit {
				return false
			}
		}
		return true
	}

	if opts.Reverse {
		pivot := storage.ScanUpperBound(opts)
		if pivot == "" {
			t.Descend(collect)
		} else {
			t.DescendLessOrEqual(item{sortKey: pivot}, collect)
		}
		return rows, nil
	}

	start := opts.Prefix
	if opts.Start != "" && opts.Start > start {
		start = opts.Start
	}
	t.AscendGreaterOrEqual(item{sortKey: start}, collect)
	return rows, nil
}

func (s *Store) Apply(ctx context.Context, muts []storage.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range muts {
		switch {
		case m.Put != nil:
			s.tree(m.Put.Partition, true).ReplaceOrInsert(item{sortKey: m.Put.SortKey, value: cloneBytes(m.Put.Value)})
		case m.Delete != nil:
			if t := s.tree(m.Delete.Partition, false); t != nil {
				t.Delete(item{sortKey: m.Delete.SortKey})
			}
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error { return nil }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
