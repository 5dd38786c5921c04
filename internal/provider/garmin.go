package provider

import (
	"sort"
	"strconv"
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// Garmin maps Garmin Health API summaries. Times are Unix seconds in UTC.
type Garmin struct{}

type garminDaily struct {
	Steps                      number            `json:"steps"`
	StartTimeInSeconds         number            `json:"startTimeInSeconds"`
	DurationInSeconds          number            `json:"durationInSeconds"`
	TimeOffsetHeartRateSamples map[string]number `json:"timeOffsetHeartRateSamples"`
}

type garminBloodPressure struct {
	Systolic                 number `json:"systolic"`
	Diastolic                number `json:"diastolic"`
	MeasurementTimeInSeconds number `json:"measurementTimeInSeconds"`
}

type garminLevel struct {
	StartTimeInSeconds number `json:"startTimeInSeconds"`
	EndTimeInSeconds   number `json:"endTimeInSeconds"`
}

type garminSleep struct {
	StartTimeInSeconds number                   `json:"startTimeInSeconds"`
	DurationInSeconds  number                   `json:"durationInSeconds"`
	SleepLevelsMap     map[string][]garminLevel `json:"sleepLevelsMap"`
}

var garminLevels = map[string]domain.SleepStage{
	"deep":  domain.StageDeep,
	"light": domain.StageCore,
	"rem":   domain.StageREM,
	"awake": domain.StageAwake,
}

// Provider implements Adapter.
func (Garmin) Provider() domain.ProviderType { return domain.ProviderGarmin }

// ExtractSteps reads one window per daily summary.
func (g Garmin) ExtractSteps(p Payload) ([]domain.Sample, error) {
	var dailies []garminDaily
	if ok, err := p.decode(g.Provider(), "dailies", &dailies); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(dailies))
	for _, d := range dailies {
		if !d.Steps.Valid {
			continue
		}
		start, end := p.Window.Start, p.Window.End
		if s, ok := epoch(d.StartTimeInSeconds); ok {
			start, end = s, s.Add(seconds(d.DurationInSeconds))
		}
		out = append(out, domain.Sample{Metric: domain.MetricStepCount, Value: d.Steps.Value, Start: start, End: end, Unit: domain.UnitCount})
	}
	return out, nil
}

// ExtractHeartRate expands timeOffsetHeartRateSamples relative to each summary start.
func (g Garmin) ExtractHeartRate(p Payload) ([]domain.Sample, error) {
	var dailies []garminDaily
	if ok, err := p.decode(g.Provider(), "dailies", &dailies); !ok || err != nil {
		return nil, err
	}
	var out []domain.Sample
	for _, d := range dailies {
		base, ok := epoch(d.StartTimeInSeconds)
		if !ok || len(d.TimeOffsetHeartRateSamples) == 0 {
			continue
		}
		offsets := make([]int, 0, len(d.TimeOffsetHeartRateSamples))
		values := make(map[int]number, len(d.TimeOffsetHeartRateSamples))
		for key, bpm := range d.TimeOffsetHeartRateSamples {
			offset, err := strconv.Atoi(key)
			if err != nil {
				return nil, &domain.ValidationError{Field: "dailies.timeOffsetHeartRateSamples", Provider: g.Provider(), Reason: "offset keys must be integer seconds"}
			}
			offsets = append(offsets, offset)
			values[offset] = bpm
		}
		sort.Ints(offsets)
		for _, offset := range offsets {
			bpm := values[offset]
			if !bpm.Valid {
				continue
			}
			at := base.Add(time.Duration(offset) * time.Second)
			out = append(out, domain.Sample{Metric: domain.MetricHeartRate, Value: bpm.Value, Start: at, End: at, Unit: domain.UnitBPM})
		}
	}
	return out, nil
}

// ExtractBloodPressure reads bloodPressures readings.
func (g Garmin) ExtractBloodPressure(p Payload) ([]domain.Sample, error) {
	var readings []garminBloodPressure
	if ok, err := p.decode(g.Provider(), "bloodPressures", &readings); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(readings))
	for _, r := range readings {
		at, ok := epoch(r.MeasurementTimeInSeconds)
		if !ok || !r.Systolic.Valid || !r.Diastolic.Valid {
			continue
		}
		out = append(out, bloodPressureSample(r.Systolic.Value, r.Diastolic.Value, at, at, ""))
	}
	return out, nil
}

// ExtractSleep reads sleeps. Each summary is a session; level intervals become stage samples.
func (g Garmin) ExtractSleep(p Payload) ([]domain.Sample, error) {
	var sleeps []garminSleep
	if ok, err := p.decode(g.Provider(), "sleeps", &sleeps); !ok || err != nil {
		return nil, err
	}
	var out []domain.Sample
	for _, s := range sleeps {
		start, ok := epoch(s.StartTimeInSeconds)
		if !ok {
			continue
		}
		session := "garmin-" + strconv.FormatInt(start.Unix(), 10)

		levels := make([]string, 0, len(s.SleepLevelsMap))
		for level := range s.SleepLevelsMap {
			levels = append(levels, level)
		}
		sort.Strings(levels)

		emitted := 0
		for _, level := range levels {
			stage, known := garminLevels[level]
			if !known {
				continue
			}
			for _, iv := range s.SleepLevelsMap[level] {
				ivStart, sok := epoch(iv.StartTimeInSeconds)
				ivEnd, eok := epoch(iv.EndTimeInSeconds)
				if !sok || !eok {
					continue
				}
				out = append(out, sleepSample(stage, ivStart, ivEnd, session))
				emitted++
			}
		}
		if emitted == 0 {
			out = append(out, sleepSample(domain.StageAsleep, start, start.Add(seconds(s.DurationInSeconds)), session))
		}
	}
	return out, nil
}

func seconds(n number) time.Duration {
	if !n.Valid || n.Value < 0 {
		return 0
	}
	return time.Duration(n.Value) * time.Second
}
