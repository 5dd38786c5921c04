package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// number accepts JSON numbers and numeric strings. Valid is false for null, "" or absent values.
// NaN and infinities are rejected.
type number struct {
	Value float64
	Valid bool
}

type numberError struct {
	text string
}

func (e *numberError) Error() string {
	return fmt.Sprintf("not a finite number: %q", e.text)
}

func (n *number) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if isNull(trimmed) {
		*n = number{}
		return nil
	}
	text := string(trimmed)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		text = strings.TrimSpace(s)
		if text == "" {
			*n = number{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return &numberError{text: text}
	}
	*n = number{Value: v, Valid: true}
	return nil
}

// oneOrMany decodes either a single object or a list of objects.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if isNull(trimmed) {
		*o = nil
		return nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*o = items
		return nil
	}
	var item T
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return err
	}
	*o = oneOrMany[T]{item}
	return nil
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05 Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// parseTime parses a provider timestamp and returns it in UTC. Values without an offset are
// interpreted in loc. Blank values are reported with ok=false and no error.
func parseTime(value, field string, provider domain.ProviderType, loc *time.Location) (t time.Time, ok bool, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range offsetLayouts {
		if parsed, perr := time.Parse(layout, value); perr == nil {
			return parsed.UTC(), true, nil
		}
	}
	for _, layout := range localLayouts {
		if parsed, perr := time.ParseInLocation(layout, value, loc); perr == nil {
			return parsed.UTC(), true, nil
		}
	}
	return time.Time{}, false, &domain.ValidationError{Field: field, Provider: provider, Reason: fmt.Sprintf("unparseable timestamp %q", value)}
}

// parseDate parses a calendar day and returns local midnight in loc.
func parseDate(value, field string, provider domain.ProviderType, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, nil
	}
	parsed, err := time.ParseInLocation(domain.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, false, &domain.ValidationError{Field: field, Provider: provider, Reason: fmt.Sprintf("unparseable date %q", value)}
	}
	return parsed, true, nil
}

// epoch converts Unix seconds.
func epoch(n number) (time.Time, bool) {
	if !n.Valid || n.Value < 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(n.Value), 0).UTC(), true
}

// pressure is a reading that may be reported in mmHg or kPa.
type pressure struct {
	MmHg number `json:"inMillimetersOfMercury"`
	KPa  number `json:"inKilopascals"`
}

func (p pressure) mmHg() (float64, bool) {
	if p.MmHg.Valid {
		return p.MmHg.Value, true
	}
	if p.KPa.Valid {
		return p.KPa.Value * domain.KilopascalToMmHg, true
	}
	return 0, false
}

func stepInterval(count float64, start, end time.Time, source string) domain.Sample {
	return domain.Sample{
		Metric: domain.MetricStepInterval,
		Value:  count,
		Start:  start,
		End:    end,
		Unit:   domain.UnitCount,
		Source: source,
	}
}

func bloodPressureSample(systolic, diastolic float64, start, end time.Time, source string) domain.Sample {
	return domain.Sample{
		Metric:    domain.MetricBloodPressure,
		Value:     systolic,
		Diastolic: diastolic,
		Start:     start,
		End:       end,
		Unit:      domain.UnitMmHg,
		Source:    source,
	}
}

func sleepSample(stage domain.SleepStage, start, end time.Time, session string) domain.Sample {
	return domain.Sample{
		Metric:  domain.MetricSleepStage,
		Stage:   stage,
		Start:   start,
		End:     end,
		Unit:    domain.UnitStage,
		Session: session,
	}
}

// interval parses a start/end pair. A blank start yields a zero start; a blank end equals the start.
func interval(provider domain.ProviderType, startField, endField, startValue, endValue string, p Payload) (start, end time.Time, err error) {
	start, _, err = parseTime(startValue, startField, provider, p.Location)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, ok, err := parseTime(endValue, endField, provider, p.Location)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		end = start
	}
	return start, end, nil
}

// ParseTime parses a request-level timestamp with the same layouts the adapters accept.
func ParseTime(value, field string, loc *time.Location) (time.Time, bool, error) {
	if loc == nil {
		loc = time.UTC
	}
	return parseTime(value, field, "", loc)
}
