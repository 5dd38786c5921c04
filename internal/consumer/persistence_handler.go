package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
	"github.com/foodhakhq/foodhak-health-data/internal/events"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PersistenceHandler appends health_record.stored events to health_record_event_log.
// Redelivered events are ignored by event id.
type PersistenceHandler struct {
	db execer
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{db: pool}
}

// Handle stores one event. Other event types are acknowledged without a write.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.HealthRecordStoredType {
		return nil
	}
	event, err := decodeStored(msg.Payload)
	if err != nil {
		return err
	}
	date, _ := time.Parse(domain.DateLayout, event.Date)

	_, err = h.db.Exec(ctx,
		`INSERT INTO health_record_event_log (event_id, user_id, provider_type, schema_type, recorded_at, record_date, stored_at, schema_id, topic, kafka_partition, kafka_offset)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
         ON CONFLICT (event_id) DO NOTHING`,
		event.EventID,
		event.UserID,
		event.ProviderType,
		event.SchemaType,
		event.Timestamp,
		date,
		event.StoredAt,
		msg.SchemaID,
		msg.Topic,
		msg.Partition,
		msg.Offset,
	)
	return err
}

func decodeStored(payload json.RawMessage) (events.HealthRecordStored, error) {
	var event events.HealthRecordStored
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.EventID == "" || event.UserID == "" {
		return event, fmt.Errorf("%w: event_id and user_id are required", ErrMalformedEvent)
	}
	if _, err := domain.ParseProviderType(event.ProviderType); err != nil {
		return event, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if _, err := domain.ParseSchemaType(event.SchemaType); err != nil {
		return event, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if _, err := time.Parse(domain.DateLayout, event.Date); err != nil {
		return event, fmt.Errorf("%w: date: %v", ErrMalformedEvent, err)
	}
	return event, nil
}
