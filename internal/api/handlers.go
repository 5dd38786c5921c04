// Package api exposes HTTP handlers for the health data service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/foodhakhq/foodhak-health-data/internal/auth"
	"github.com/foodhakhq/foodhak-health-data/internal/domain"
	"github.com/foodhakhq/foodhak-health-data/internal/ingest"
	"github.com/foodhakhq/foodhak-health-data/internal/query"
)

const (
	maxBodyBytes = 10 << 20
	maxBatchSize = 500
	serviceName  = "health-data"
)

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithLogger overrides the logger used for unexpected errors.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithVersion sets the version reported by the health check.
func WithVersion(version string) Option {
	return func(h *Handler) {
		h.version = version
	}
}

// WithHealthCheckTimeout bounds the store ping of the health check.
func WithHealthCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.checkTimeout = d
	}
}

// Handler coordinates HTTP requests with the ingestion service and query engine.
type Handler struct {
	ingest       *ingest.Service
	query        *query.Engine
	store        Pinger
	validate     *validator.Validate
	logger       *log.Logger
	version      string
	checkTimeout time.Duration
}

// NewHandler builds a Handler.
func NewHandler(svc *ingest.Service, engine *query.Engine, store Pinger, opts ...Option) *Handler {
	h := &Handler{
		ingest:       svc,
		query:        engine,
		store:        store,
		validate:     newValidator(),
		logger:       log.New(log.Writer(), "[api] ", log.LstdFlags|log.Lshortfile),
		version:      "dev",
		checkTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// newValidator reports json field names in validation failures.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/health-data", h.healthData)
	mux.HandleFunc("/v1/health-data/", h.healthDataSubtree)
	mux.HandleFunc("/v1/health/check", h.healthCheck)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) healthData(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		auth.RequireScope(auth.ScopeHealthWrite, h.ingestOne)(w, r)
	case http.MethodGet:
		auth.RequireScope(auth.ScopeHealthRead, h.listRecords)(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) healthDataSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/health-data/"), "/")
	switch {
	case rest == "":
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case rest == "batch" && r.Method == http.MethodPost:
		auth.RequireScope(auth.ScopeHealthWrite, h.ingestBatch)(w, r)
	case rest == "latest" && r.Method == http.MethodGet:
		auth.RequireScope(auth.ScopeHealthRead, h.latestRecords)(w, r)
	case rest != "batch" && rest != "latest" && !strings.Contains(rest, "/") && r.Method == http.MethodGet:
		auth.RequireScope(auth.ScopeHealthRead, func(w http.ResponseWriter, r *http.Request) {
			h.userRecords(w, r, rest)
		})(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// IngestRequest is the payload of POST /v1/health-data and one item of the batch endpoint.
type IngestRequest struct {
	FoodhakUserID    string          `json:"foodhak_user_id" validate:"required"`
	ProviderType     string          `json:"provider_type" validate:"required"`
	DeviceHealthData json.RawMessage `json:"device_health_data"`
	Timestamp        string          `json:"timestamp" validate:"required"`
	StartTime        string          `json:"start_time,omitempty"`
	EndTime          string          `json:"end_time,omitempty"`
	LocalTimezone    string          `json:"local_timezone,omitempty" validate:"omitempty,max=64"`
}

func (r IngestRequest) toIngest() ingest.Request {
	return ingest.Request{
		UserID:        r.FoodhakUserID,
		ProviderType:  r.ProviderType,
		Payload:       r.DeviceHealthData,
		Timestamp:     r.Timestamp,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		LocalTimezone: r.LocalTimezone,
	}
}

func (h *Handler) ingestOne(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeDomainError(w, toValidationError(err))
		return
	}

	summary, err := h.ingest.Ingest(r.Context(), req.toIngest())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if len(summary.Failed) > 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, summary)
}

func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be an array of health data requests")
		return
	}
	if err := h.validate.Var(reqs, fmt.Sprintf("min=1,max=%d", maxBatchSize)); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("batch must hold between 1 and %d items", maxBatchSize))
		return
	}

	items := make([]ingest.Request, len(reqs))
	for i, req := range reqs {
		items[i] = req.toIngest()
	}
	writeJSON(w, http.StatusOK, h.ingest.IngestBatch(r.Context(), items))
}

// RecordView is one canonical record in a query response.
type RecordView struct {
	Timestamp    time.Time           `json:"timestamp"`
	Date         string              `json:"date"`
	ProviderType domain.ProviderType `json:"provider_type"`
	UserID       string              `json:"user_id"`
	SchemaType   domain.SchemaType   `json:"schema_type"`
	Data         json.RawMessage     `json:"data"`
}

// RecordListResponse packages query results.
type RecordListResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Data    []RecordView `json:"data"`
}

func queryParams(r *http.Request) query.Params {
	q := r.URL.Query()
	return query.Params{
		UserID:       q.Get("user_id"),
		ProviderType: q.Get("provider_type"),
		SchemaType:   q.Get("schema_type"),
		StartDate:    q.Get("start_date"),
		EndDate:      q.Get("end_date"),
	}
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	h.respondRecords(w, r, queryParams(r), false)
}

func (h *Handler) userRecords(w http.ResponseWriter, r *http.Request, userID string) {
	params := queryParams(r)
	params.UserID = userID
	h.respondRecords(w, r, params, false)
}

func (h *Handler) latestRecords(w http.ResponseWriter, r *http.Request) {
	h.respondRecords(w, r, queryParams(r), true)
}

func (h *Handler) respondRecords(w http.ResponseWriter, r *http.Request, params query.Params, latest bool) {
	read := h.query.Query
	if latest {
		read = h.query.Latest
	}
	records, err := read(r.Context(), params)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := RecordListResponse{
		Status:  ingest.StatusSuccess,
		Message: fmt.Sprintf("Successfully retrieved %d health data records", len(records)),
		Data:    make([]RecordView, 0, len(records)),
	}
	for _, rec := range records {
		resp.Data = append(resp.Data, toRecordView(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toRecordView(rec domain.CanonicalRecord) RecordView {
	return RecordView{
		Timestamp:    rec.Timestamp.UTC(),
		Date:         rec.Date.Format(domain.DateLayout),
		ProviderType: rec.ProviderType,
		UserID:       rec.UserID,
		SchemaType:   rec.SchemaType,
		Data:         rec.Data,
	}
}

// HealthCheckResponse is the body of GET /v1/health/check.
type HealthCheckResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	resp := HealthCheckResponse{
		Status:    "up",
		Service:   serviceName,
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{"store": "healthy"},
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Printf("health check: store ping failed: %v", err)
		resp.Status = "degraded"
		resp.Checks["store"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// toValidationError reports the first failed field the way the domain does.
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	fe := fieldErrs[0]
	reason := "failed " + fe.Tag()
	if fe.Tag() == "required" {
		reason = "is required"
	}
	return &domain.ValidationError{Field: fe.Field(), Reason: reason}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation  *domain.ValidationError
		unsupported *domain.UnsupportedProviderError
		timeout     *domain.StoreTimeoutError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, "unsupported_provider", unsupported.Error())
	case errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusNotFound, "not_connected", err.Error())
	case errors.As(err, &timeout):
		writeError(w, http.StatusInternalServerError, "store_timeout", timeout.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.logger.Printf("store failure: %v", err)
		writeError(w, http.StatusInternalServerError, "store_unavailable", domain.ErrStoreUnavailable.Error())
	default:
		h.logger.Printf("unexpected error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"detail":    detail,
		"code":      code,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
