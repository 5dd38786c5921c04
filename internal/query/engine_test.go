package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
	"github.com/foodhakhq/foodhak-health-data/internal/persistence"
)

func TestParseFilterRejectsUnknownProvider(t *testing.T) {
	_, err := ParseFilter(Params{ProviderType: "UNKNOWN"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "provider_type", ve.Field)
}

func TestParseFilterIsCaseSensitive(t *testing.T) {
	_, err := ParseFilter(Params{ProviderType: "apple_health"})
	require.True(t, domain.IsValidation(err))

	_, err = ParseFilter(Params{SchemaType: "Daily"})
	require.True(t, domain.IsValidation(err))
}

func TestParseFilterDates(t *testing.T) {
	filter, err := ParseFilter(Params{UserID: "user-1", SchemaType: "sleep", StartDate: "2025-05-01", EndDate: "2025-05-01"})
	require.NoError(t, err)
	require.Equal(t, domain.SchemaSleep, filter.SchemaType)
	require.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), *filter.StartDate)
	require.Equal(t, *filter.StartDate, *filter.EndDate)

	_, err = ParseFilter(Params{StartDate: "2025-05-03", EndDate: "2025-05-01"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "start_date", ve.Field)

	_, err = ParseFilter(Params{EndDate: "05/01/2025"})
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "end_date", ve.Field)
}

func TestParseFilterAcceptsTimestampDates(t *testing.T) {
	filter, err := ParseFilter(Params{StartDate: "2025-05-09T00:00:00Z", EndDate: "2025-05-09T23:59:59+02:00"})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC), *filter.StartDate)
	require.Equal(t, time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC), *filter.EndDate)
}

func seed(t *testing.T) *persistence.MemoryStore {
	t.Helper()
	store := persistence.NewMemoryStore()
	put := func(user string, provider domain.ProviderType, schema domain.SchemaType, ts time.Time) {
		require.NoError(t, store.Put(context.Background(), domain.NewRecord(user, provider, schema, ts, json.RawMessage(`{}`))))
	}
	put("user-1", domain.ProviderAppleHealth, domain.SchemaDaily, time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
	put("user-1", domain.ProviderAppleHealth, domain.SchemaDaily, time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC))
	put("user-1", domain.ProviderAppleHealth, domain.SchemaSleep, time.Date(2025, 5, 2, 7, 0, 0, 0, time.UTC))
	put("user-1", domain.ProviderGarmin, domain.SchemaBody, time.Date(2025, 4, 30, 7, 0, 0, 0, time.UTC))
	put("user-2", domain.ProviderFitbit, domain.SchemaDaily, time.Date(2025, 5, 3, 7, 0, 0, 0, time.UTC))
	return store
}

func TestEngineQuery(t *testing.T) {
	engine := NewEngine(seed(t))

	records, err := engine.Query(context.Background(), Params{UserID: "user-1", ProviderType: "APPLE_HEALTH"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, 2, records[0].Date.Day())
	require.Equal(t, domain.SchemaDaily, records[0].SchemaType)
	require.Equal(t, domain.SchemaSleep, records[1].SchemaType)
	require.Equal(t, 1, records[2].Date.Day())

	all, err := engine.Query(context.Background(), Params{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "user-2", all[0].UserID)

	none, err := engine.Query(context.Background(), Params{UserID: "user-3"})
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestEngineQueryValidatesBeforeReading(t *testing.T) {
	engine := NewEngine(seed(t))
	records, err := engine.Query(context.Background(), Params{ProviderType: "UNKNOWN"})
	require.True(t, domain.IsValidation(err))
	require.Nil(t, records)
}

func TestEngineLatest(t *testing.T) {
	engine := NewEngine(seed(t))

	latest, err := engine.Latest(context.Background(), Params{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, latest, 3)
	require.Equal(t, domain.SchemaDaily, latest[0].SchemaType)
	require.Equal(t, 2, latest[0].Date.Day())
	require.Equal(t, domain.SchemaBody, latest[1].SchemaType)
	require.Equal(t, domain.SchemaSleep, latest[2].SchemaType)
}
