// Package postgres implements the time-series record store on Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
	"github.com/foodhakhq/foodhak-health-data/internal/events"
	"github.com/foodhakhq/foodhak-health-data/internal/observability"
)

// Repository stores canonical records in health_records and records a stored event per write.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Put writes by identity and appends the outbox event inside one transaction.
// An existing (user_id, schema_type, recorded_at) row has its data and provider replaced.
func (r *Repository) Put(ctx context.Context, record domain.CanonicalRecord) (err error) {
	record = domain.NewRecord(record.UserID, record.ProviderType, record.SchemaType, record.Timestamp, record.Data)
	storedAt := r.now()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const upsert = `INSERT INTO health_records (user_id, schema_type, recorded_at, record_date, provider_type, data, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (user_id, schema_type, recorded_at)
        DO UPDATE SET provider_type = EXCLUDED.provider_type, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, upsert,
		record.UserID,
		string(record.SchemaType),
		record.Timestamp,
		record.Date,
		string(record.ProviderType),
		[]byte(record.Data),
		storedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, record, storedAt); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordPersisted(storedAt)
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, record domain.CanonicalRecord, storedAt time.Time) error {
	meta, ok := eventCatalog[events.HealthRecordStoredType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", events.HealthRecordStoredType)
	}

	eventID := uuid.NewString()
	body, err := json.Marshal(events.HealthRecordStored{
		EventID:      eventID,
		UserID:       record.UserID,
		ProviderType: string(record.ProviderType),
		SchemaType:   string(record.SchemaType),
		Timestamp:    record.Timestamp,
		Date:         record.Date.Format(domain.DateLayout),
		StoredAt:     storedAt,
	})
	if err != nil {
		return err
	}

	aggregateID := fmt.Sprintf("%s:%s:%d", record.UserID, record.SchemaType, record.Timestamp.UnixNano())
	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		record.UserID,
		"health_record",
		aggregateID,
		events.HealthRecordStoredType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(record),
		body,
		eventID,
	)
	return err
}

// Query returns matching records ordered by date, then time of day, descending.
func (r *Repository) Query(ctx context.Context, filter domain.Filter) ([]domain.CanonicalRecord, error) {
	query, args := buildQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.CanonicalRecord, 0)
	for rows.Next() {
		var (
			rec      domain.CanonicalRecord
			provider string
			schema   string
			data     []byte
		)
		if err := rows.Scan(&rec.UserID, &provider, &schema, &rec.Timestamp, &rec.Date, &data); err != nil {
			return nil, err
		}
		rec.ProviderType = domain.ProviderType(provider)
		rec.SchemaType = domain.SchemaType(schema)
		rec.Timestamp = rec.Timestamp.UTC()
		rec.Date = domain.DateOf(rec.Date)
		rec.Data = json.RawMessage(data)
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Ping checks pool connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func buildQuery(filter domain.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ProviderType != "" {
		add("provider_type = $%d", string(filter.ProviderType))
	}
	if filter.SchemaType != "" {
		add("schema_type = $%d", string(filter.SchemaType))
	}
	if filter.StartDate != nil {
		add("record_date >= $%d", domain.DateOf(*filter.StartDate))
	}
	if filter.EndDate != nil {
		add("record_date <= $%d", domain.DateOf(*filter.EndDate))
	}

	query := `SELECT user_id, provider_type, schema_type, recorded_at, record_date, data FROM health_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY record_date DESC, recorded_at DESC, schema_type, user_id`
	return query, args
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.CanonicalRecord) string
}

var eventCatalog = map[string]EventMetadata{
	events.HealthRecordStoredType: {
		Topic:         "health_record_events",
		SchemaSubject: "health_record_events-value",
		PartitionKeyFn: func(r domain.CanonicalRecord) string {
			return r.UserID
		},
	},
}
