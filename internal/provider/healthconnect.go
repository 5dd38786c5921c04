package provider

import (
	"strconv"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// HealthConnect maps Android Health Connect records.
type HealthConnect struct{}

type hcStepTotal struct {
	CountTotal number `json:"COUNT_TOTAL"`
}

type hcStepSample struct {
	Count     number `json:"count"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type hcHeartRateSeries struct {
	Samples []struct {
		BeatsPerMinute number `json:"beatsPerMinute"`
		Time           string `json:"time"`
	} `json:"samples"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type hcBloodPressure struct {
	Systolic  pressure `json:"systolic"`
	Diastolic pressure `json:"diastolic"`
	Time      string   `json:"time"`
}

type hcSleepSession struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Stages    []struct {
		Stage     number `json:"stage"`
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
	} `json:"stages"`
}

// hcStageCodes follows SleepSessionRecord stage constants; 0 (unknown) is dropped.
var hcStageCodes = map[int]domain.SleepStage{
	1: domain.StageAwake,
	2: domain.StageAsleep,
	3: domain.StageAwake,
	4: domain.StageCore,
	5: domain.StageDeep,
	6: domain.StageREM,
	7: domain.StageAwake,
}

// Provider implements Adapter.
func (HealthConnect) Provider() domain.ProviderType { return domain.ProviderHealthConnect }

// ExtractSteps reads the aggregated step_count.COUNT_TOTAL, attributed to the request
// window, and the per-interval step_samples.
func (h HealthConnect) ExtractSteps(p Payload) ([]domain.Sample, error) {
	var samples []hcStepSample
	if _, err := p.decode(h.Provider(), "step_samples", &samples); err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(samples)+1)
	for _, s := range samples {
		if !s.Count.Valid {
			continue
		}
		start, end, err := interval(h.Provider(), "step_samples.startTime", "step_samples.endTime", s.StartTime, s.EndTime, p)
		if err != nil {
			return nil, err
		}
		if start.IsZero() {
			start, end = p.Window.Start, p.Window.End
		}
		out = append(out, stepInterval(s.Count.Value, start, end, ""))
	}

	var total hcStepTotal
	if ok, err := p.decode(h.Provider(), "step_count", &total); !ok || err != nil {
		return out, err
	}
	if total.CountTotal.Valid {
		out = append(out, domain.Sample{
			Metric: domain.MetricStepCount,
			Value:  total.CountTotal.Value,
			Start:  p.Window.Start,
			End:    p.Window.End,
			Unit:   domain.UnitCount,
		})
	}
	return out, nil
}

// ExtractHeartRate flattens each series into one sample per sub-sample instant.
func (h HealthConnect) ExtractHeartRate(p Payload) ([]domain.Sample, error) {
	var series []hcHeartRateSeries
	if ok, err := p.decode(h.Provider(), "hr_samples", &series); !ok || err != nil {
		return nil, err
	}
	var out []domain.Sample
	for _, s := range series {
		for _, sub := range s.Samples {
			at, ok, err := parseTime(sub.Time, "hr_samples.samples.time", h.Provider(), p.Location)
			if err != nil {
				return nil, err
			}
			if !ok || !sub.BeatsPerMinute.Valid {
				continue
			}
			out = append(out, domain.Sample{
				Metric: domain.MetricHeartRate,
				Value:  sub.BeatsPerMinute.Value,
				Start:  at,
				End:    at,
				Unit:   domain.UnitBPM,
			})
		}
	}
	return out, nil
}

// ExtractBloodPressure reads nested systolic/diastolic pressures taken at a single instant.
func (h HealthConnect) ExtractBloodPressure(p Payload) ([]domain.Sample, error) {
	var readings oneOrMany[hcBloodPressure]
	if ok, err := p.decode(h.Provider(), "blood_pressure_samples", &readings); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(readings))
	for _, r := range readings {
		at, ok, err := parseTime(r.Time, "blood_pressure_samples.time", h.Provider(), p.Location)
		if err != nil {
			return nil, err
		}
		systolic, sok := r.Systolic.mmHg()
		diastolic, dok := r.Diastolic.mmHg()
		if !ok || !sok || !dok {
			continue
		}
		out = append(out, bloodPressureSample(systolic, diastolic, at, at, ""))
	}
	return out, nil
}

// ExtractSleep emits stage intervals per session. A session without stages becomes a
// single Asleep interval spanning the session.
func (h HealthConnect) ExtractSleep(p Payload) ([]domain.Sample, error) {
	var sessions []hcSleepSession
	if ok, err := p.decode(h.Provider(), "sleep_samples", &sessions); !ok || err != nil {
		return nil, err
	}
	var out []domain.Sample
	for i, s := range sessions {
		start, end, err := interval(h.Provider(), "sleep_samples.startTime", "sleep_samples.endTime", s.StartTime, s.EndTime, p)
		if err != nil {
			return nil, err
		}
		if start.IsZero() {
			continue
		}
		session := "hc-" + strconv.Itoa(i)
		if len(s.Stages) == 0 {
			out = append(out, sleepSample(domain.StageAsleep, start, end, session))
			continue
		}
		for _, st := range s.Stages {
			stageStart, stageEnd, err := interval(h.Provider(), "sleep_samples.stages.startTime", "sleep_samples.stages.endTime", st.StartTime, st.EndTime, p)
			if err != nil {
				return nil, err
			}
			if !st.Stage.Valid || stageStart.IsZero() {
				continue
			}
			stage, known := hcStageCodes[int(st.Stage.Value)]
			if !known {
				continue
			}
			out = append(out, sleepSample(stage, stageStart, stageEnd, session))
		}
	}
	return out, nil
}
