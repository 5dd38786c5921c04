// Package mapper folds provider-neutral samples into the daily, body and sleep records.
package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// SessionGap is the largest pause between unkeyed sleep intervals that still belongs to one session.
const SessionGap = 2 * time.Hour

// localLayout renders hourly bins in the user's timezone, millisecond precision, offset without colon.
const localLayout = "2006-01-02T15:04:05.000-0700"

// Unit identifies one ingestion unit of work. Every record it produces shares Timestamp.
type Unit struct {
	UserID    string
	Provider  domain.ProviderType
	Timestamp time.Time
	Location  *time.Location
}

// Result is the mapper output. A nil data pointer means the schema produced no record.
type Result struct {
	Records []domain.CanonicalRecord
	Daily   *DailyData
	Body    *BodyData
	Sleep   *SleepData
}

// Map builds up to three canonical records from samples. The same input always yields the same output.
func Map(unit Unit, samples []domain.Sample) (Result, error) {
	if unit.Location == nil {
		unit.Location = time.UTC
	}
	unit.Timestamp = unit.Timestamp.UTC()

	sorted := sortSamples(samples)
	var steps, stepIntervals, heartRate, bloodPressure, sleep []domain.Sample
	for _, s := range sorted {
		switch s.Metric {
		case domain.MetricStepCount:
			steps = append(steps, s)
		case domain.MetricStepInterval:
			stepIntervals = append(stepIntervals, s)
		case domain.MetricHeartRate:
			heartRate = append(heartRate, s)
		case domain.MetricBloodPressure:
			bloodPressure = append(bloodPressure, s)
		case domain.MetricSleepStage:
			sleep = append(sleep, s)
		}
	}

	var res Result
	res.Daily = buildDaily(unit, steps, stepIntervals)
	res.Body = buildBody(heartRate, bloodPressure)
	res.Sleep = buildSleep(sleep)

	if res.Daily != nil {
		if err := res.add(unit, domain.SchemaDaily, res.Daily); err != nil {
			return Result{}, err
		}
	}
	if res.Body != nil {
		if err := res.add(unit, domain.SchemaBody, res.Body); err != nil {
			return Result{}, err
		}
	}
	if res.Sleep != nil {
		if err := res.add(unit, domain.SchemaSleep, res.Sleep); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (r *Result) add(unit Unit, schema domain.SchemaType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", schema, err)
	}
	r.Records = append(r.Records, domain.NewRecord(unit.UserID, unit.Provider, schema, unit.Timestamp, raw))
	return nil
}

func sortSamples(samples []domain.Sample) []domain.Sample {
	out := make([]domain.Sample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Metric != b.Metric:
			return a.Metric < b.Metric
		case !a.Start.Equal(b.Start):
			return a.Start.Before(b.Start)
		case !a.End.Equal(b.End):
			return a.End.Before(b.End)
		case a.Value != b.Value:
			return a.Value < b.Value
		case a.Diastolic != b.Diastolic:
			return a.Diastolic < b.Diastolic
		case a.Stage != b.Stage:
			return a.Stage < b.Stage
		default:
			return a.Session < b.Session
		}
	})
	return out
}

// Window is the UTC span covered by the samples behind a record.
type Window struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (w *Window) extend(start, end time.Time) {
	if w.StartTime.IsZero() || start.Before(w.StartTime) {
		w.StartTime = start
	}
	if end.After(w.EndTime) {
		w.EndTime = end
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
