// Package domain defines the canonical health record model shared by the ingestion and query paths.
package domain

import (
	"encoding/json"
	"time"
)

// ProviderType identifies the device platform a payload came from.
type ProviderType string

const (
	ProviderAppleHealth   ProviderType = "APPLE_HEALTH"
	ProviderHealthConnect ProviderType = "HEALTH_CONNECT"
	ProviderGarmin        ProviderType = "GARMIN"
	ProviderFitbit        ProviderType = "FITBIT"
)

// ProviderTypes lists the closed provider set in declaration order.
var ProviderTypes = []ProviderType{ProviderAppleHealth, ProviderHealthConnect, ProviderGarmin, ProviderFitbit}

// ParseProviderType matches value against the closed provider set. Matching is exact and case-sensitive.
func ParseProviderType(value string) (ProviderType, error) {
	for _, p := range ProviderTypes {
		if string(p) == value {
			return p, nil
		}
	}
	return "", &ValidationError{Field: "provider_type", Reason: "must be one of APPLE_HEALTH, HEALTH_CONNECT, GARMIN, FITBIT"}
}

// SchemaType names one of the three persisted record shapes.
type SchemaType string

const (
	SchemaDaily SchemaType = "daily"
	SchemaBody  SchemaType = "body"
	SchemaSleep SchemaType = "sleep"
)

// SchemaTypes lists the closed schema set in summary order.
var SchemaTypes = []SchemaType{SchemaDaily, SchemaBody, SchemaSleep}

// ParseSchemaType matches value against the closed schema set. Matching is exact and case-sensitive.
func ParseSchemaType(value string) (SchemaType, error) {
	for _, s := range SchemaTypes {
		if string(s) == value {
			return s, nil
		}
	}
	return "", &ValidationError{Field: "schema_type", Reason: "must be one of daily, body, sleep"}
}

// CanonicalRecord is the persisted unit. (UserID, SchemaType, Timestamp) is its identity.
type CanonicalRecord struct {
	UserID       string
	ProviderType ProviderType
	SchemaType   SchemaType
	Timestamp    time.Time
	Date         time.Time
	Data         json.RawMessage
}

// NewRecord builds a record whose Date is derived from the UTC timestamp. Timestamps are kept
// at microsecond precision, the resolution of the Postgres store.
func NewRecord(userID string, provider ProviderType, schema SchemaType, ts time.Time, data json.RawMessage) CanonicalRecord {
	ts = ts.UTC().Truncate(time.Microsecond)
	return CanonicalRecord{
		UserID:       userID,
		ProviderType: provider,
		SchemaType:   schema,
		Timestamp:    ts,
		Date:         DateOf(ts),
		Data:         data,
	}
}

// Key returns the identity of the record.
func (r CanonicalRecord) Key() RecordKey {
	return RecordKey{UserID: r.UserID, SchemaType: r.SchemaType, Timestamp: r.Timestamp.UTC().UnixNano()}
}

// RecordKey is the natural identity of a record; writes with an equal key overwrite.
type RecordKey struct {
	UserID     string
	SchemaType SchemaType
	Timestamp  int64
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Filter selects records for a read. Empty fields are unbounded.
type Filter struct {
	UserID       string
	ProviderType ProviderType
	SchemaType   SchemaType
	StartDate    *time.Time
	EndDate      *time.Time
}

// Matches reports whether the record satisfies every set dimension of the filter.
func (f Filter) Matches(r CanonicalRecord) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.ProviderType != "" && r.ProviderType != f.ProviderType {
		return false
	}
	if f.SchemaType != "" && r.SchemaType != f.SchemaType {
		return false
	}
	if f.StartDate != nil && r.Date.Before(DateOf(*f.StartDate)) {
		return false
	}
	if f.EndDate != nil && r.Date.After(DateOf(*f.EndDate)) {
		return false
	}
	return true
}

// Less orders records by date descending, then time of day descending.
// Ties fall back to schema type and user id so results are deterministic.
func Less(a, b CanonicalRecord) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if a.SchemaType != b.SchemaType {
		return a.SchemaType < b.SchemaType
	}
	return a.UserID < b.UserID
}
