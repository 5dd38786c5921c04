package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
	"github.com/foodhakhq/foodhak-health-data/internal/observability"
)

// TimeoutStore bounds every store operation with a deadline and classifies failures.
type TimeoutStore struct {
	next    domain.RecordStore
	timeout time.Duration
}

// WithTimeout wraps next. A non-positive timeout leaves the caller's context untouched.
func WithTimeout(next domain.RecordStore, timeout time.Duration) *TimeoutStore {
	return &TimeoutStore{next: next, timeout: timeout}
}

// Put implements domain.RecordStore.
func (s *TimeoutStore) Put(ctx context.Context, record domain.CanonicalRecord) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	start := time.Now()
	err := s.next.Put(ctx, record)
	observability.ObserveStoreOperation("put", start, err)
	return classify(ctx, "put", err)
}

// Query implements domain.RecordStore.
func (s *TimeoutStore) Query(ctx context.Context, filter domain.Filter) ([]domain.CanonicalRecord, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	start := time.Now()
	records, err := s.next.Query(ctx, filter)
	observability.ObserveStoreOperation("query", start, err)
	if err != nil {
		return nil, classify(ctx, "query", err)
	}
	return records, nil
}

// Ping implements domain.RecordStore.
func (s *TimeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return classify(ctx, "ping", s.next.Ping(ctx))
}

func (s *TimeoutStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// classify maps deadline failures to StoreTimeoutError and anything else to ErrStoreUnavailable.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var timeout *domain.StoreTimeoutError
	if errors.As(err, &timeout) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.StoreTimeoutError{Op: op}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
