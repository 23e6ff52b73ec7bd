package storage

import (
	"context"
	"errors"
	"time"
)

// RetryConfig bounds the retry behavior for idempotent reads.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Backoff: 50 * time.Millisecond}
}

// retryStore retries reads a bounded number of times with linear backoff.
// The backends guarantee idempotent upsert semantics for Put and Apply, so
// those retry too, while Delete is surfaced on first failure.
type retryStore struct {
	Store
	cfg RetryConfig
}

// WithRetry wraps s with bounded read/write retries.
func WithRetry(s Store, cfg RetryConfig) Store {
	if cfg.Attempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &retryStore{Store: s, cfg: cfg}
}

func (r *retryStore) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < r.cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * r.cfg.Backoff):
			}
		}
		if err = op(); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// retryable reports whether the error is worth another attempt. Not-found
// and cancellation are definitive answers, not store failures.
func retryable(err error) bool {
	return !errors.Is(err, ErrRowNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (r *retryStore) Get(ctx context.Context, key Key) (Row, error) {
	var row Row
	err := r.retry(ctx, func() error {
		var err error
		row, err = r.Store.Get(ctx, key)
		return err
	})
	return row, err
}

func (r *retryStore) Scan(ctx context.Context, partition string, opts ScanOptions) ([]Row, error) {
	var rows []Row
	err := r.retry(ctx, func() error {
		var err error
		rows, err = r.Store.Scan(ctx, partition, opts)
		return err
	})
	return rows, err
}

func (r *retryStore) Put(ctx context.Context, row Row) error {
	return r.retry(ctx, func() error { return r.Store.Put(ctx, row) })
}

func (r *retryStore) Apply(ctx context.Context, muts []Mutation) error {
	return r.retry(ctx, func() error { return r.Store.Apply(ctx, muts) })
}
