// Package pebblestore provides the embedded PebbleDB storage backend.
// Partition and sort key are joined into a single key with a 0x00
// separator so a partition occupies one contiguous key range.
package pebblestore

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"

	"attrix/internal/storage"
)

// Store is a Store backed by a single pebble database.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// sep separates partition from sort key. Partitions and sort keys never
// contain 0x00.
const sep = byte(0)

func rowKey(partition, sortKey string) []byte {
	key := make([]byte, 0, len(partition)+1+len(sortKey))
	key = append(key, partition...)
	key = append(key, sep)
	key = append(key, sortKey...)
	return key
}

func (s *Store) Get(ctx context.Context, key storage.Key) (storage.Row, error) {
	if err := ctx.Err(); err != nil {
		return storage.Row{}, err
	}
	value, closer, err := s.db.Get(rowKey(key.Partition, key.SortKey))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return storage.Row{}, storage.ErrRowNotFound
		}
		return storage.Row{}, err
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return storage.Row{Partition: key.Partition, SortKey: key.SortKey, Value: out}, nil
}

func (s *Store) Put(ctx context.Context, row storage.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Set(rowKey(row.Partition, row.SortKey), row.Value, pebble.Sync)
}

func (s *Store) Delete(ctx context.Context, key storage.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Delete(rowKey(key.Partition, key.SortKey), pebble.Sync)
}

func (s *Store) Scan(ctx context.Context, partition string, opts storage.ScanOptions) ([]storage.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Bound the iterator to the partition's key range. Reverse scans start
	// from the tightest known upper bound so the first key seen is already
	// inside the requested range.
	lower := rowKey(partition, opts.Prefix)
	upper := append(rowKey(partition, ""), 0xff)
	if opts.Reverse {
		if pivot := storage.ScanUpperBound(opts); pivot != "" {
			upper = append(rowKey(partition, pivot), 0x00)
		}
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var rows []storage.Row
	collect := func() bool {
		sortKey := string(iter.Key()[len(partition)+1:])
		ok, past := storage.InScanBounds(sortKey, opts)
		if past {
			return false
		}
		if ok {
			value := make([]byte, len(iter.Value()))
			copy(value, iter.Value())
			rows = append(rows, storage.Row{Partition: partition, SortKey: sortKey, Value: value})
			if opts.Limit > 0 && len(rows) >= opts.Limit {
				return false
			}
		}
		return true
	}

	if opts.Reverse {
		for valid := iter.Last(); valid; valid = iter.Prev() {
			if !collect() {
				break
			}
		}
	} else {
		for valid := iter.First(); valid; valid = iter.Next() {
			if !collect() {
				break
			}
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) Apply(ctx context.Context, muts []storage.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, m := range muts {
		switch {
		case m.Put != nil:
			if err := batch.Set(rowKey(m.Put.Partition, m.Put.SortKey), m.Put.Value, nil); err != nil {
				return err
			}
		case m.Delete != nil:
			if err := batch.Delete(rowKey(m.Delete.Partition, m.Delete.SortKey), nil); err != nil {
				return err
			}
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}
