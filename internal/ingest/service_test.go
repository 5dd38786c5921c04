package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
	"github.com/foodhakhq/foodhak-health-data/internal/persistence"
	"github.com/foodhakhq/foodhak-health-data/internal/provider"
)

const appleScenario = `{"step_count":{"value":5350,"startDate":"2025-05-02T12:19:00+0100","endDate":"2025-05-02T14:19:00+0100"}}`

const appleFull = `{
	"step_count":{"value":5350,"startDate":"2025-05-02T12:19:00+0100","endDate":"2025-05-02T14:19:00+0100"},
	"hr_samples":[{"value":64,"startDate":"2025-05-02T08:00:00Z"},{"value":80,"startDate":"2025-05-02T09:00:00Z"}],
	"blood_pressure_samples":{"bloodPressureSystolicValue":120,"bloodPressureDiastolicValue":80,"startDate":"2025-05-02T07:00:00Z","endDate":"2025-05-02T07:00:00Z"},
	"sleep_samples":[{"value":"DEEP","startDate":"2025-05-01T23:00:00Z","endDate":"2025-05-02T01:00:00Z"}]
}`

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestService(store domain.RecordStore, opts ...Option) *Service {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewService(provider.DefaultRegistry(), store, opts...)
}

func scenarioRequest(payload string) Request {
	return Request{
		UserID:       "user-1",
		ProviderType: "APPLE_HEALTH",
		Payload:      json.RawMessage(payload),
		Timestamp:    "2025-05-02T13:58:20.918Z",
	}
}

func TestIngestAppleStepScenario(t *testing.T) {
	store := persistence.NewMemoryStore()
	svc := newTestService(store)

	summary, err := svc.Ingest(context.Background(), scenarioRequest(appleScenario))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, summary.Status)
	require.Equal(t, StoredRecords{Daily: 1, Body: 0, Sleep: 0}, summary.Data.StoredRecords)
	require.NotNil(t, summary.Data.DailyData)
	require.Equal(t, int64(5350), summary.Data.DailyData.Steps)
	require.Nil(t, summary.Data.BodyData)
	require.Nil(t, summary.Data.SleepData)

	records, err := store.Query(context.Background(), domain.Filter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "2025-05-02", records[0].Date.Format(domain.DateLayout))
	require.Equal(t, domain.SchemaDaily, records[0].SchemaType)
	require.Equal(t, domain.ProviderAppleHealth, records[0].ProviderType)
}

func TestIngestAppleStepTotalWithHourlySamples(t *testing.T) {
	svc := newTestService(persistence.NewMemoryStore())
	payload := `{
		"step_count":{"value":1000,"startDate":"2025-05-02T12:00:00Z","endDate":"2025-05-02T14:00:00Z"},
		"step_samples":[
			{"value":600,"startDate":"2025-05-02T12:10:00Z","endDate":"2025-05-02T12:50:00Z"},
			{"value":400,"startDate":"2025-05-02T13:10:00Z","endDate":"2025-05-02T13:50:00Z"}
		]}`

	summary, err := svc.Ingest(context.Background(), scenarioRequest(payload))
	require.NoError(t, err)
	daily := summary.Data.DailyData
	require.Equal(t, int64(1000), daily.Steps)
	require.Len(t, daily.StepSamples, 3)
	require.Equal(t, []int64{600, 400, 0}, []int64{daily.StepSamples[0].Value, daily.StepSamples[1].Value, daily.StepSamples[2].Value})
}

func TestIngestIsIdempotent(t *testing.T) {
	store := persistence.NewMemoryStore()
	svc := newTestService(store)

	for i := 0; i < 2; i++ {
		summary, err := svc.Ingest(context.Background(), scenarioRequest(appleFull))
		require.NoError(t, err)
		require.Equal(t, StoredRecords{Daily: 1, Body: 1, Sleep: 1}, summary.Data.StoredRecords)
	}
	require.Equal(t, 3, store.Len())
}

func TestIngestRejectsInvalidInputBeforeWriting(t *testing.T) {
	cases := map[string]Request{
		"unknown provider": {UserID: "user-1", ProviderType: "POLAR", Timestamp: "2025-05-02T13:58:20Z"},
		"lowercase enum":   {UserID: "user-1", ProviderType: "apple_health", Timestamp: "2025-05-02T13:58:20Z"},
		"missing user":     {ProviderType: "APPLE_HEALTH", Timestamp: "2025-05-02T13:58:20Z"},
		"missing time":     {UserID: "user-1", ProviderType: "APPLE_HEALTH"},
		"bad time":         {UserID: "user-1", ProviderType: "APPLE_HEALTH", Timestamp: "yesterday"},
		"bad timezone":     {UserID: "user-1", ProviderType: "APPLE_HEALTH", Timestamp: "2025-05-02T13:58:20Z", LocalTimezone: "Mars/Olympus"},
		"bad sample time":  {UserID: "user-1", ProviderType: "APPLE_HEALTH", Timestamp: "2025-05-02T13:58:20Z", Payload: json.RawMessage(`{"hr_samples":[{"value":60,"startDate":"noon"}]}`)},
		"window inverted":  {UserID: "user-1", ProviderType: "APPLE_HEALTH", Timestamp: "2025-05-02T13:58:20Z", StartTime: "2025-05-02T10:00:00Z", EndTime: "2025-05-02T09:00:00Z"},
		"nan heart rate":   {UserID: "user-1", ProviderType: "APPLE_HEALTH", Timestamp: "2025-05-02T13:58:20Z", Payload: json.RawMessage(`{"hr_samples":[{"value":"NaN","startDate":"2025-05-02T08:00:00Z"}]}`)},
		"infinite steps":   {UserID: "user-1", ProviderType: "APPLE_HEALTH", Timestamp: "2025-05-02T13:58:20Z", Payload: json.RawMessage(`{"step_count":{"value":"Infinity","startDate":"2025-05-02T12:00:00Z"}}`)},
		"negative steps":   {UserID: "user-1", ProviderType: "HEALTH_CONNECT", Timestamp: "2025-05-02T13:58:20Z", Payload: json.RawMessage(`{"step_count":{"COUNT_TOTAL":-5}}`)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			store := persistence.NewMemoryStore()
			_, err := newTestService(store).Ingest(context.Background(), req)
			require.True(t, domain.IsValidation(err), "got %v", err)
			require.Zero(t, store.Len())
		})
	}
}

func TestIngestUnsupportedProvider(t *testing.T) {
	svc := NewService(provider.NewRegistry(provider.AppleHealth{}), persistence.NewMemoryStore(), WithLogger(quietLogger()))

	_, err := svc.Ingest(context.Background(), Request{UserID: "user-1", ProviderType: "GARMIN", Timestamp: "2025-05-02T13:58:20Z"})
	var ue *domain.UnsupportedProviderError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, domain.ProviderGarmin, ue.Provider)
}

type failingStore struct {
	*persistence.MemoryStore
	fail map[domain.SchemaType]error
}

func (f failingStore) Put(ctx context.Context, r domain.CanonicalRecord) error {
	if err := f.fail[r.SchemaType]; err != nil {
		return err
	}
	return f.MemoryStore.Put(ctx, r)
}

func TestIngestPartialFailureKeepsOtherSchemas(t *testing.T) {
	inner := persistence.NewMemoryStore()
	timeout := &domain.StoreTimeoutError{Op: "put"}
	store := failingStore{MemoryStore: inner, fail: map[domain.SchemaType]error{domain.SchemaBody: timeout}}
	svc := newTestService(store)

	summary, err := svc.Ingest(context.Background(), scenarioRequest(appleFull))
	require.NoError(t, err)
	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, StoredRecords{Daily: 1, Body: 0, Sleep: 1}, summary.Data.StoredRecords)
	require.Equal(t, []domain.SchemaType{domain.SchemaBody}, summary.Failed)
	require.ErrorIs(t, summary.Err, timeout)
	require.Contains(t, summary.Message, "body")
	require.NotNil(t, summary.Data.BodyData)
	require.Equal(t, 2, inner.Len())
}

type stubConnections struct {
	connected bool
	err       error
}

func (s stubConnections) IsConnected(context.Context, string, domain.ProviderType) (bool, error) {
	return s.connected, s.err
}

func TestIngestRequiresActiveConnection(t *testing.T) {
	store := persistence.NewMemoryStore()
	svc := newTestService(store, WithConnectionChecker(stubConnections{connected: false}))

	_, err := svc.Ingest(context.Background(), scenarioRequest(appleScenario))
	require.ErrorIs(t, err, domain.ErrNotConnected)
	require.Zero(t, store.Len())

	svc = newTestService(store, WithConnectionChecker(stubConnections{connected: true}))
	_, err = svc.Ingest(context.Background(), scenarioRequest(appleScenario))
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
}

type recordingArchiver struct {
	mu      sync.Mutex
	schemas []domain.SchemaType
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, r domain.CanonicalRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.schemas = append(a.schemas, r.SchemaType)
	return a.err
}

func TestIngestArchivesStoredRecordsOnly(t *testing.T) {
	store := failingStore{MemoryStore: persistence.NewMemoryStore(), fail: map[domain.SchemaType]error{domain.SchemaSleep: errors.New("down")}}
	archiver := &recordingArchiver{err: errors.New("s3 unavailable")}
	svc := newTestService(store, WithArchiver(archiver))

	summary, err := svc.Ingest(context.Background(), scenarioRequest(appleFull))
	require.NoError(t, err)
	require.Equal(t, StoredRecords{Daily: 1, Body: 1, Sleep: 0}, summary.Data.StoredRecords)
	require.Equal(t, []domain.SchemaType{domain.SchemaDaily, domain.SchemaBody}, archiver.schemas)
}

func TestIngestBatch(t *testing.T) {
	store := persistence.NewMemoryStore()
	svc := newTestService(store)

	batch := svc.IngestBatch(context.Background(), []Request{
		scenarioRequest(appleScenario),
		{UserID: "user-2", ProviderType: "UNKNOWN", Timestamp: "2025-05-02T13:58:20Z"},
		{UserID: "user-3", ProviderType: "HEALTH_CONNECT", Timestamp: "2025-05-02T13:58:20Z", Payload: json.RawMessage(`{"step_count":{"COUNT_TOTAL":1000}}`)},
	})

	require.Equal(t, StatusPartialSuccess, batch.Status)
	require.Equal(t, "Processed 2 out of 3 records.", batch.Message)
	require.Equal(t, StoredRecords{Daily: 2}, batch.Data.StoredRecords)
	require.Len(t, batch.Data.BatchResponse, 2)
	require.Equal(t, "user-3", batch.Data.BatchResponse[1].UserID)
	require.Len(t, batch.Data.Errors, 1)
	require.Equal(t, 1, batch.Data.Errors[0].Index)
	require.Contains(t, batch.Data.Errors[0].Error, "provider_type")

	clean := svc.IngestBatch(context.Background(), []Request{scenarioRequest(appleScenario)})
	require.Equal(t, StatusSuccess, clean.Status)
	require.Empty(t, clean.Data.Errors)
}

func TestIngestBatchHidesInternalErrors(t *testing.T) {
	svc := newTestService(persistence.NewMemoryStore(), WithConnectionChecker(stubConnections{err: errors.New("pq: password authentication failed")}))

	batch := svc.IngestBatch(context.Background(), []Request{scenarioRequest(appleScenario)})
	require.Len(t, batch.Data.Errors, 1)
	require.Equal(t, "internal error", batch.Data.Errors[0].Error)
}
