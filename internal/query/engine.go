// Package query validates caller filters and reads canonical records through the store.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
	"github.com/foodhakhq/foodhak-health-data/internal/observability"
)

// Params are the raw, unvalidated query parameters. Empty strings mean "not set".
type Params struct {
	UserID       string
	ProviderType string
	SchemaType   string
	StartDate    string
	EndDate      string
}

// ParseFilter validates params. Enum values must match exactly. Dates are YYYY-MM-DD; an
// RFC3339 timestamp is accepted and contributes only its calendar date as written.
func ParseFilter(p Params) (domain.Filter, error) {
	filter := domain.Filter{UserID: strings.TrimSpace(p.UserID)}

	if p.ProviderType != "" {
		provider, err := domain.ParseProviderType(p.ProviderType)
		if err != nil {
			return domain.Filter{}, err
		}
		filter.ProviderType = provider
	}
	if p.SchemaType != "" {
		schema, err := domain.ParseSchemaType(p.SchemaType)
		if err != nil {
			return domain.Filter{}, err
		}
		filter.SchemaType = schema
	}

	start, err := parseDate("start_date", p.StartDate)
	if err != nil {
		return domain.Filter{}, err
	}
	end, err := parseDate("end_date", p.EndDate)
	if err != nil {
		return domain.Filter{}, err
	}
	if start != nil && end != nil && start.After(*end) {
		return domain.Filter{}, &domain.ValidationError{Field: "start_date", Reason: "must not be after end_date"}
	}
	filter.StartDate, filter.EndDate = start, end
	return filter, nil
}

func parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		ts, tsErr := time.Parse(time.RFC3339Nano, value)
		if tsErr != nil {
			return nil, &domain.ValidationError{Field: field, Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", value)}
		}
		t = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return &t, nil
}

// Engine serves read queries.
type Engine struct {
	store domain.RecordStore
}

// NewEngine constructs an Engine over store.
func NewEngine(store domain.RecordStore) *Engine {
	return &Engine{store: store}
}

// Query returns every matching record, most recent first. No match is an empty slice.
func (e *Engine) Query(ctx context.Context, p Params) ([]domain.CanonicalRecord, error) {
	filter, err := ParseFilter(p)
	if err != nil {
		return nil, err
	}
	records, err := e.store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.CanonicalRecord{}
	}
	observability.RecordQueryResults("query", len(records))
	return records, nil
}

// Latest returns the most recent record of each schema type matching p, in schema order.
// Schema types without a match are omitted.
func (e *Engine) Latest(ctx context.Context, p Params) ([]domain.CanonicalRecord, error) {
	records, err := e.Query(ctx, p)
	if err != nil {
		return nil, err
	}
	first := make(map[domain.SchemaType]domain.CanonicalRecord, len(domain.SchemaTypes))
	for _, r := range records {
		if _, seen := first[r.SchemaType]; !seen {
			first[r.SchemaType] = r
		}
	}
	latest := make([]domain.CanonicalRecord, 0, len(first))
	for _, schema := range domain.SchemaTypes {
		if r, ok := first[schema]; ok {
			latest = append(latest, r)
		}
	}
	observability.RecordQueryResults("latest", len(latest))
	return latest, nil
}
