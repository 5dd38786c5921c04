// Package events defines event payloads shared by the outbox dispatcher and the consumer.
package events

import "time"

// HealthRecordStoredType is the outbox event_type of HealthRecordStored.
const HealthRecordStoredType = "health_record.stored"

// HealthRecordStored is emitted whenever a canonical record is written or overwritten.
type HealthRecordStored struct {
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	ProviderType string    `json:"provider_type"`
	SchemaType   string    `json:"schema_type"`
	Timestamp    time.Time `json:"timestamp"`
	Date         string    `json:"date"`
	StoredAt     time.Time `json:"stored_at"`
}
