package domain

import "context"

// RecordStore persists canonical records and reads them back filtered and ordered.
type RecordStore interface {
	// Put writes by identity: an existing (user, schema, timestamp) record is replaced.
	Put(ctx context.Context, record CanonicalRecord) error
	// Query returns matching records ordered by Less. No match is an empty slice, not an error.
	Query(ctx context.Context, filter Filter) ([]CanonicalRecord, error)
	Ping(ctx context.Context) error
}

// ConnectionChecker exposes the read-only device connection state owned by another service.
type ConnectionChecker interface {
	IsConnected(ctx context.Context, userID string, provider ProviderType) (bool, error)
}
