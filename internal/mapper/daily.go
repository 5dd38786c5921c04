package mapper

import (
	"math"
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// DailyData is the daily record payload.
type DailyData struct {
	Date        string        `json:"date"`
	Metadata    Window        `json:"metadata"`
	Steps       int64         `json:"steps"`
	StepSamples []HourlySteps `json:"step_samples"`
}

// HourlySteps is one local-time hour of the step series.
type HourlySteps struct {
	Value     int64  `json:"value"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// buildDaily reports the step windows that start on the ingestion date in the user's timezone.
// Steps is the sum of the declared totals; without totals it is the sum of the intervals.
// The hourly series is built from the intervals, or from the totals when no interval is given.
// Overlapping windows are summed, not deduplicated.
func buildDaily(unit Unit, totals, intervals []domain.Sample) *DailyData {
	day := localDay(unit.Timestamp, unit.Location)
	next := day.AddDate(0, 0, 1)

	var window Window
	onDay := func(samples []domain.Sample) ([]domain.Sample, float64) {
		var included []domain.Sample
		var sum float64
		for _, s := range samples {
			start := s.Start.In(unit.Location)
			if start.Before(day) || !start.Before(next) {
				continue
			}
			included = append(included, s)
			sum += s.Value
			window.extend(s.Start.UTC(), s.End.UTC())
		}
		return included, sum
	}
	dayTotals, total := onDay(totals)
	dayIntervals, intervalSum := onDay(intervals)
	if len(dayTotals) == 0 && len(dayIntervals) == 0 {
		return nil
	}

	series := dayIntervals
	if len(series) == 0 {
		series = dayTotals
	}
	if len(dayTotals) == 0 {
		total = intervalSum
	}
	return &DailyData{
		Date:        day.Format(domain.DateLayout),
		Metadata:    window,
		Steps:       int64(math.Round(total)),
		StepSamples: hourlySeries(series, window, day, next, unit.Location),
	}
}

// hourlySeries bins samples by their local start hour over the covered hours of one day.
// Hours without samples are reported as zero.
func hourlySeries(samples []domain.Sample, window Window, day, next time.Time, loc *time.Location) []HourlySteps {
	first := startOfHour(window.StartTime, loc)
	if first.Before(day) {
		first = day
	}
	last := window.EndTime.In(loc)
	if last.After(next) || last.Equal(next) {
		last = next
	} else {
		last = startOfHour(last, loc).Add(time.Hour)
	}

	var bins []time.Time
	values := map[int64]float64{}
	for cursor := first; cursor.Before(last); cursor = cursor.Add(time.Hour) {
		bins = append(bins, cursor)
		values[cursor.Unix()] = 0
	}
	for _, s := range samples {
		key := startOfHour(s.Start, loc).Unix()
		if _, ok := values[key]; ok {
			values[key] += s.Value
		}
	}

	out := make([]HourlySteps, 0, len(bins))
	for _, bin := range bins {
		out = append(out, HourlySteps{
			Value:     int64(math.Round(values[bin.Unix()])),
			StartTime: bin.Format(localLayout),
			EndTime:   bin.Add(time.Hour).In(loc).Format(localLayout),
		})
	}
	return out
}

func localDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// startOfHour truncates in local wall time so half-hour offsets bin correctly.
func startOfHour(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
}
