// Package storage defines the partition+sort-key store contract the rule
// catalogs and the secondary index are persisted in. Backends implement
// point get/put/delete, ordered range scans within a partition, and logical
// write batches.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrRowNotFound is returned by Get when the row does not exist.
	ErrRowNotFound = errors.New("row not found")
)

// Row is a single record. Rows within a partition are ordered by SortKey.
type Row struct {
	Partition string
	SortKey   string
	Value     []byte
}

// Key addresses a row.
type Key struct {
	Partition string
	SortKey   string
}

// Mutation is one entry of a write batch. Exactly one of Put or Delete is set.
type Mutation struct {
	Put    *Row
	Delete *Key
}

// ScanOptions bounds an ordered scan within a partition.
type ScanOptions struct {
	// Prefix restricts the scan to sort keys with this prefix.
	Prefix string
	// Start is an inclusive lower bound on the sort key (after Prefix).
	Start string
	// End is an inclusive upper bound on the sort key. Empty means no bound.
	End string
	// StartAfter resumes a scan after this sort key (exclusive cursor).
	StartAfter string
	// Reverse scans in descending sort-key order.
	Reverse bool
	// Limit caps the number of returned rows. Zero means no cap.
	Limit int
}

// Store is the key-value contract shared by all backends. Scans are ordered
// by sort key; batches apply atomically where the backend supports it and as
// a single logical unit otherwise.
type Store interface {
	Get(ctx context.Context, key Key) (Row, error)
	Put(ctx context.Context, row Row) error
	Delete(ctx context.Context, key Key) error
	Scan(ctx context.Context, partition string, opts ScanOptions) ([]Row, error)
	Apply(ctx context.Context, muts []Mutation) error
	Close(ctx context.Context) error
}

// InScanBounds reports whether sortKey falls inside the scan options. Shared
// by backends that filter during iteration. past is true once iteration in
// the scan's direction can stop.
func InScanBounds(sortKey string, opts ScanOptions) (ok bool, past bool) {
	if opts.Prefix != "" && !hasPrefix(sortKey, opts.Prefix) {
		return false, true
	}
	if opts.StartAfter != "" {
		if !opts.Reverse && sortKey <= opts.StartAfter {
			return false, false
		}
		if opts.Reverse && sortKey >= opts.StartAfter {
			return false, false
		}
	}
	if !opts.Reverse {
		if opts.Start != "" && sortKey < opts.Start {
			return false, false
		}
		if opts.End != "" && sortKey > opts.End {
			return false, true
		}
	} else {
		if opts.End != "" && sortKey > opts.End {
			return false, false
		}
		if opts.Start != "" && sortKey < opts.Start {
			return false, true
		}
	}
	return true, false
}

// ScanUpperBound picks the descending-scan starting point: the tightest of
// End, StartAfter, and the prefix's last possible key. Empty means the
// partition's end.
func ScanUpperBound(opts ScanOptions) string {
	bound := ""
	if opts.Prefix != "" {
		bound = opts.Prefix + "\xff\xff\xff\xff"
	}
	if opts.End != "" && (bound == "" || opts.End < bound) {
		bound = opts.End
	}
	if opts.StartAfter != "" && (bound == "" || opts.StartAfter < bound) {
		bound = opts.StartAfter
	}
	return bound
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
