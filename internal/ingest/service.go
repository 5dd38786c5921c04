// Package ingest coordinates one ingestion request from raw payload to stored records.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/archive"
	"github.com/foodhakhq/foodhak-health-data/internal/domain"
	"github.com/foodhakhq/foodhak-health-data/internal/mapper"
	"github.com/foodhakhq/foodhak-health-data/internal/observability"
	"github.com/foodhakhq/foodhak-health-data/internal/provider"
)

const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusPartialSuccess = "partial_success"
)

// Request is one device upload. Timestamp is required; StartTime and EndTime bound the
// measurement window and default to Timestamp. LocalTimezone is an IANA name, UTC when empty.
type Request struct {
	UserID        string
	ProviderType  string
	Payload       json.RawMessage
	Timestamp     string
	StartTime     string
	EndTime       string
	LocalTimezone string
}

// StoredRecords counts successful writes per schema type.
type StoredRecords struct {
	Daily int `json:"daily"`
	Body  int `json:"body"`
	Sleep int `json:"sleep"`
}

func (s *StoredRecords) inc(schema domain.SchemaType) {
	switch schema {
	case domain.SchemaDaily:
		s.Daily++
	case domain.SchemaBody:
		s.Body++
	case domain.SchemaSleep:
		s.Sleep++
	}
}

func (s *StoredRecords) add(other StoredRecords) {
	s.Daily += other.Daily
	s.Body += other.Body
	s.Sleep += other.Sleep
}

// SummaryData is the transformed data of each schema plus the stored counts.
type SummaryData struct {
	DailyData     *mapper.DailyData `json:"daily_data"`
	BodyData      *mapper.BodyData  `json:"body_data"`
	SleepData     *mapper.SleepData `json:"sleep_data"`
	StoredRecords StoredRecords     `json:"stored_records"`
}

// Summary is the outcome of Ingest. Failed lists schemas whose write failed and Err
// holds the first such failure.
type Summary struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Data    SummaryData         `json:"data"`
	Failed  []domain.SchemaType `json:"-"`
	Err     error               `json:"-"`
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger used to report write and archive failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithArchiver mirrors each stored record.
func WithArchiver(a archive.Archiver) Option {
	return func(s *Service) {
		s.archiver = a
	}
}

// WithConnectionChecker rejects requests for users without an active connection to the provider.
func WithConnectionChecker(c domain.ConnectionChecker) Option {
	return func(s *Service) {
		s.connections = c
	}
}

// Service runs the ingestion pipeline.
type Service struct {
	registry    *provider.Registry
	store       domain.RecordStore
	archiver    archive.Archiver
	connections domain.ConnectionChecker
	logger      *log.Logger
}

// NewService constructs a Service writing through store.
func NewService(registry *provider.Registry, store domain.RecordStore, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		archiver: archive.Noop{},
		logger:   log.New(log.Writer(), "[ingest] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates, extracts, maps and writes one request. Input errors are returned before
// any write. Once writing starts each schema is written independently: a failed write is
// reported in the summary, never rolled back, and does not stop the remaining writes.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary, err := s.ingest(ctx, req)
	status := summary.Status
	if err != nil {
		status = StatusError
	}
	label := "invalid"
	if p, perr := domain.ParseProviderType(req.ProviderType); perr == nil {
		label = string(p)
	}
	observability.RecordIngest(label, status)
	return summary, err
}

func (s *Service) ingest(ctx context.Context, req Request) (Summary, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return Summary{}, &domain.ValidationError{Field: "foodhak_user_id", Reason: "is required"}
	}
	providerType, err := domain.ParseProviderType(req.ProviderType)
	if err != nil {
		return Summary{}, err
	}
	loc, err := location(req.LocalTimezone)
	if err != nil {
		return Summary{}, err
	}
	ts, ok, err := provider.ParseTime(req.Timestamp, "timestamp", loc)
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		return Summary{}, &domain.ValidationError{Field: "timestamp", Reason: "is required"}
	}
	window, err := requestWindow(req, ts, loc)
	if err != nil {
		return Summary{}, err
	}

	if s.connections != nil {
		connected, err := s.connections.IsConnected(ctx, userID, providerType)
		if err != nil {
			return Summary{}, fmt.Errorf("check device connection: %w", err)
		}
		if !connected {
			return Summary{}, fmt.Errorf("%w for device type %s", domain.ErrNotConnected, providerType)
		}
	}

	adapter, err := s.registry.Resolve(providerType)
	if err != nil {
		return Summary{}, err
	}
	payload, err := provider.NewPayload(providerType, req.Payload, window, loc)
	if err != nil {
		return Summary{}, err
	}
	samples, err := provider.Extract(ctx, adapter, payload)
	if err != nil {
		return Summary{}, err
	}
	result, err := mapper.Map(mapper.Unit{UserID: userID, Provider: providerType, Timestamp: ts, Location: loc}, samples)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Data: SummaryData{DailyData: result.Daily, BodyData: result.Body, SleepData: result.Sleep}}
	for _, record := range result.Records {
		err := s.store.Put(ctx, record)
		observability.RecordWrite(string(record.SchemaType), err)
		if err != nil {
			s.logger.Printf("write %s record for user=%s provider=%s failed: %v", record.SchemaType, userID, providerType, err)
			summary.Failed = append(summary.Failed, record.SchemaType)
			if summary.Err == nil {
				summary.Err = err
			}
			continue
		}
		summary.Data.StoredRecords.inc(record.SchemaType)
		if err := s.archiver.Archive(ctx, record); err != nil {
			s.logger.Printf("archive %s record for user=%s provider=%s failed: %v", record.SchemaType, userID, providerType, err)
		}
	}

	if len(summary.Failed) > 0 {
		names := make([]string, len(summary.Failed))
		for i, schema := range summary.Failed {
			names[i] = string(schema)
		}
		summary.Status = StatusError
		summary.Message = fmt.Sprintf("Failed to store %s data", strings.Join(names, ", "))
		return summary, nil
	}
	summary.Status = StatusSuccess
	summary.Message = "Health data processed and stored successfully"
	return summary, nil
}

func location(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &domain.ValidationError{Field: "local_timezone", Reason: fmt.Sprintf("unknown timezone %q", name)}
	}
	return loc, nil
}

func requestWindow(req Request, ts time.Time, loc *time.Location) (provider.Window, error) {
	start, ok, err := provider.ParseTime(req.StartTime, "start_time", loc)
	if err != nil {
		return provider.Window{}, err
	}
	if !ok {
		start = ts
	}
	end, ok, err := provider.ParseTime(req.EndTime, "end_time", loc)
	if err != nil {
		return provider.Window{}, err
	}
	if !ok {
		end = start
	}
	if end.Before(start) {
		return provider.Window{}, &domain.ValidationError{Field: "end_time", Reason: "must not be before start_time"}
	}
	return provider.Window{Start: start, End: end}, nil
}

// ItemError reports the failure of one batch item.
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// ItemResult is the transformed data of one successful batch item.
type ItemResult struct {
	UserID    string            `json:"user_id"`
	DailyData *mapper.DailyData `json:"daily_data"`
	BodyData  *mapper.BodyData  `json:"body_data"`
	SleepData *mapper.SleepData `json:"sleep_data"`
}

// BatchData is the payload of a batch summary.
type BatchData struct {
	BatchResponse []ItemResult  `json:"batch_response"`
	StoredRecords StoredRecords `json:"stored_records"`
	Errors        []ItemError   `json:"errors"`
}

// BatchSummary is the outcome of IngestBatch.
type BatchSummary struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    BatchData `json:"data"`
}

// IngestBatch ingests each request independently. Stored counts accumulate across items
// and a failed item never prevents the others.
func (s *Service) IngestBatch(ctx context.Context, reqs []Request) BatchSummary {
	start := time.Now()
	batch := BatchSummary{Data: BatchData{BatchResponse: []ItemResult{}, Errors: []ItemError{}}}
	processed := 0

	for i, req := range reqs {
		summary, err := s.Ingest(ctx, req)
		if err != nil {
			batch.Data.Errors = append(batch.Data.Errors, ItemError{Index: i, Error: publicMessage(err)})
			continue
		}
		batch.Data.StoredRecords.add(summary.Data.StoredRecords)
		if len(summary.Failed) > 0 {
			batch.Data.Errors = append(batch.Data.Errors, ItemError{Index: i, Error: summary.Message})
			continue
		}
		batch.Data.BatchResponse = append(batch.Data.BatchResponse, ItemResult{
			UserID:    strings.TrimSpace(req.UserID),
			DailyData: summary.Data.DailyData,
			BodyData:  summary.Data.BodyData,
			SleepData: summary.Data.SleepData,
		})
		processed++
	}

	batch.Status = StatusSuccess
	if len(batch.Data.Errors) > 0 {
		batch.Status = StatusPartialSuccess
	}
	batch.Message = fmt.Sprintf("Processed %d out of %d records.", processed, len(reqs))
	s.logger.Printf("batch of %d processed=%d errors=%d in %s", len(reqs), processed, len(batch.Data.Errors), time.Since(start))
	return batch
}

// publicMessage hides internal failure detail for anything that is not a caller error.
func publicMessage(err error) string {
	var timeout *domain.StoreTimeoutError
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrNotConnected):
		return err.Error()
	case errors.As(err, &timeout):
		return timeout.Error()
	default:
		return "internal error"
	}
}
