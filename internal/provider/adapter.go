// Package provider translates provider-specific device payloads into provider-neutral samples.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// Adapter extracts the four supported metrics from one provider's payload shape.
// A metric absent from the payload yields no samples and no error.
type Adapter interface {
	Provider() domain.ProviderType
	ExtractSteps(p Payload) ([]domain.Sample, error)
	ExtractHeartRate(p Payload) ([]domain.Sample, error)
	ExtractBloodPressure(p Payload) ([]domain.Sample, error)
	ExtractSleep(p Payload) ([]domain.Sample, error)
}

// Window is the request-level measurement window.
type Window struct {
	Start time.Time
	End   time.Time
}

// Payload is the decoded top level of a device_health_data object.
type Payload struct {
	fields   map[string]json.RawMessage
	Window   Window
	Location *time.Location
}

// NewPayload decodes the top level of raw. Empty or null input yields an empty payload.
func NewPayload(provider domain.ProviderType, raw json.RawMessage, window Window, loc *time.Location) (Payload, error) {
	if loc == nil {
		loc = time.UTC
	}
	if window.End.IsZero() || window.End.Before(window.Start) {
		window.End = window.Start
	}
	p := Payload{fields: map[string]json.RawMessage{}, Window: window, Location: loc}
	if isNull(raw) {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p.fields); err != nil {
		return Payload{}, &domain.ValidationError{Field: "device_health_data", Provider: provider, Reason: "must be a JSON object"}
	}
	return p, nil
}

// decode unmarshals the value under key into dst. It reports false when the key is absent or null.
func (p Payload) decode(provider domain.ProviderType, key string, dst any) (bool, error) {
	raw, ok := p.fields[key]
	if !ok || isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var ne *numberError
		if errors.As(err, &ne) {
			return false, &domain.ValidationError{Field: key, Provider: provider, Reason: ne.Error()}
		}
		return false, &domain.ValidationError{Field: key, Provider: provider, Reason: "unexpected shape"}
	}
	return true, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Registry resolves adapters by provider type.
type Registry struct {
	adapters map[domain.ProviderType]Adapter
}

// NewRegistry registers the given adapters, later entries replacing earlier ones.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.ProviderType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// DefaultRegistry registers an adapter for every known provider.
func DefaultRegistry() *Registry {
	return NewRegistry(AppleHealth{}, HealthConnect{}, Garmin{}, Fitbit{})
}

// Resolve returns the adapter for provider.
func (r *Registry) Resolve(provider domain.ProviderType) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, &domain.UnsupportedProviderError{Provider: provider}
	}
	return a, nil
}

// Extract runs the four extractions concurrently and joins them in metric order.
// When several extractions fail the error of the first metric in that order is returned.
// Negative counts, rates and pressures are rejected.
func Extract(ctx context.Context, a Adapter, p Payload) ([]domain.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	extractors := []func(Payload) ([]domain.Sample, error){
		a.ExtractSteps,
		a.ExtractHeartRate,
		a.ExtractBloodPressure,
		a.ExtractSleep,
	}
	results := make([][]domain.Sample, len(extractors))
	errs := make([]error, len(extractors))

	var g errgroup.Group
	for i, extract := range extractors {
		g.Go(func() error {
			results[i], errs[i] = extract(p)
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]domain.Sample, 0, total)
	for _, r := range results {
		for _, s := range r {
			if s.Value < 0 || s.Diastolic < 0 {
				return nil, &domain.ValidationError{Field: string(s.Metric), Provider: a.Provider(), Reason: "must not be negative"}
			}
			out = append(out, s)
		}
	}
	return out, nil
}
