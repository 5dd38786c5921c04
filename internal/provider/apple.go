package provider

import (
	"strings"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// AppleHealth maps HealthKit exports.
type AppleHealth struct{}

type appleQuantity struct {
	Value      number `json:"value"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	SourceName string `json:"sourceName"`
}

type appleBloodPressure struct {
	Systolic  number `json:"bloodPressureSystolicValue"`
	Diastolic number `json:"bloodPressureDiastolicValue"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type appleSleep struct {
	Value     string `json:"value"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Provider implements Adapter.
func (AppleHealth) Provider() domain.ProviderType { return domain.ProviderAppleHealth }

// ExtractSteps reads the step_count totals, a single window or a list of windows, plus the
// step_samples intervals. A total without dates falls back to the request window.
func (a AppleHealth) ExtractSteps(p Payload) ([]domain.Sample, error) {
	out, err := appleStepIntervals(a, p)
	if err != nil {
		return nil, err
	}
	var windows oneOrMany[appleQuantity]
	if ok, err := p.decode(a.Provider(), "step_count", &windows); !ok || err != nil {
		return out, err
	}
	for _, w := range windows {
		if !w.Value.Valid {
			continue
		}
		start, end, err := interval(a.Provider(), "step_count.startDate", "step_count.endDate", w.StartDate, w.EndDate, p)
		if err != nil {
			return nil, err
		}
		if start.IsZero() {
			start, end = p.Window.Start, p.Window.End
		}
		out = append(out, domain.Sample{
			Metric: domain.MetricStepCount,
			Value:  w.Value.Value,
			Start:  start,
			End:    end,
			Unit:   domain.UnitCount,
			Source: w.SourceName,
		})
	}
	return out, nil
}

// appleStepIntervals reads step_samples. Intervals without a start are skipped.
func appleStepIntervals(a AppleHealth, p Payload) ([]domain.Sample, error) {
	var samples []appleQuantity
	if ok, err := p.decode(a.Provider(), "step_samples", &samples); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(samples))
	for _, s := range samples {
		start, end, err := interval(a.Provider(), "step_samples.startDate", "step_samples.endDate", s.StartDate, s.EndDate, p)
		if err != nil {
			return nil, err
		}
		if !s.Value.Valid || start.IsZero() {
			continue
		}
		out = append(out, stepInterval(s.Value.Value, start, end, s.SourceName))
	}
	return out, nil
}

// ExtractHeartRate reads the flat hr_samples list.
func (a AppleHealth) ExtractHeartRate(p Payload) ([]domain.Sample, error) {
	var samples []appleQuantity
	if ok, err := p.decode(a.Provider(), "hr_samples", &samples); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(samples))
	for _, s := range samples {
		start, end, err := interval(a.Provider(), "hr_samples.startDate", "hr_samples.endDate", s.StartDate, s.EndDate, p)
		if err != nil {
			return nil, err
		}
		if !s.Value.Valid || start.IsZero() {
			continue
		}
		out = append(out, domain.Sample{
			Metric: domain.MetricHeartRate,
			Value:  s.Value.Value,
			Start:  start,
			End:    end,
			Unit:   domain.UnitBPM,
			Source: s.SourceName,
		})
	}
	return out, nil
}

// ExtractBloodPressure reads blood_pressure_samples, a single reading or a list.
func (a AppleHealth) ExtractBloodPressure(p Payload) ([]domain.Sample, error) {
	var readings oneOrMany[appleBloodPressure]
	if ok, err := p.decode(a.Provider(), "blood_pressure_samples", &readings); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(readings))
	for _, r := range readings {
		start, end, err := interval(a.Provider(), "blood_pressure_samples.startDate", "blood_pressure_samples.endDate", r.StartDate, r.EndDate, p)
		if err != nil {
			return nil, err
		}
		if !r.Systolic.Valid || !r.Diastolic.Valid || start.IsZero() {
			continue
		}
		out = append(out, bloodPressureSample(r.Systolic.Value, r.Diastolic.Value, start, end, ""))
	}
	return out, nil
}

// ExtractSleep reads sleep_samples stage intervals. Unknown stage values are skipped.
func (a AppleHealth) ExtractSleep(p Payload) ([]domain.Sample, error) {
	var intervals []appleSleep
	if ok, err := p.decode(a.Provider(), "sleep_samples", &intervals); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(intervals))
	for _, iv := range intervals {
		start, end, err := interval(a.Provider(), "sleep_samples.startDate", "sleep_samples.endDate", iv.StartDate, iv.EndDate, p)
		if err != nil {
			return nil, err
		}
		stage, known := appleStage(iv.Value)
		if !known || start.IsZero() {
			continue
		}
		out = append(out, sleepSample(stage, start, end, ""))
	}
	return out, nil
}

// appleStage accepts both the short export labels and HealthKit category identifiers.
func appleStage(value string) (domain.SleepStage, bool) {
	v := strings.ToUpper(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, "HKCATEGORYVALUESLEEPANALYSIS")
	switch v {
	case "REM", "ASLEEPREM":
		return domain.StageREM, true
	case "CORE", "ASLEEPCORE":
		return domain.StageCore, true
	case "DEEP", "ASLEEPDEEP":
		return domain.StageDeep, true
	case "AWAKE":
		return domain.StageAwake, true
	case "ASLEEP", "ASLEEPUNSPECIFIED":
		return domain.StageAsleep, true
	case "INBED":
		return domain.StageInBed, true
	}
	return "", false
}
