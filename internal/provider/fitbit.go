package provider

import (
	"strconv"
	"strings"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// Fitbit maps Fitbit Web API responses. Fitbit reports local times without an offset,
// so timestamps are interpreted in the payload location.
type Fitbit struct{}

type fitbitDayValue struct {
	DateTime string `json:"dateTime"`
	Value    number `json:"value"`
}

type fitbitHeartDay struct {
	DateTime string `json:"dateTime"`
}

type fitbitIntraday struct {
	Dataset []struct {
		Time  string `json:"time"`
		Value number `json:"value"`
	} `json:"dataset"`
}

type fitbitBloodPressure struct {
	Systolic  number `json:"systolic"`
	Diastolic number `json:"diastolic"`
	DateTime  string `json:"dateTime"`
}

type fitbitSleep struct {
	LogID     number `json:"logId"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Levels    struct {
		Data []struct {
			DateTime string `json:"dateTime"`
			Level    string `json:"level"`
			Seconds  number `json:"seconds"`
		} `json:"data"`
	} `json:"levels"`
}

var fitbitLevels = map[string]domain.SleepStage{
	"deep":     domain.StageDeep,
	"light":    domain.StageCore,
	"rem":      domain.StageREM,
	"wake":     domain.StageAwake,
	"awake":    domain.StageAwake,
	"restless": domain.StageAwake,
	"asleep":   domain.StageAsleep,
}

// Provider implements Adapter.
func (Fitbit) Provider() domain.ProviderType { return domain.ProviderFitbit }

// ExtractSteps reads activities-steps day totals, each spanning its local calendar day.
func (f Fitbit) ExtractSteps(p Payload) ([]domain.Sample, error) {
	var days []fitbitDayValue
	if ok, err := p.decode(f.Provider(), "activities-steps", &days); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(days))
	for _, d := range days {
		day, ok, err := parseDate(d.DateTime, "activities-steps.dateTime", f.Provider(), p.Location)
		if err != nil {
			return nil, err
		}
		if !ok || !d.Value.Valid {
			continue
		}
		out = append(out, domain.Sample{
			Metric: domain.MetricStepCount,
			Value:  d.Value.Value,
			Start:  day.UTC(),
			End:    day.AddDate(0, 0, 1).UTC(),
			Unit:   domain.UnitCount,
		})
	}
	return out, nil
}

// ExtractHeartRate reads the intraday dataset anchored at the activities-heart day.
// Without an anchor the local day of the request window start is used.
func (f Fitbit) ExtractHeartRate(p Payload) ([]domain.Sample, error) {
	var intraday fitbitIntraday
	if ok, err := p.decode(f.Provider(), "activities-heart-intraday", &intraday); !ok || err != nil {
		return nil, err
	}
	var summary []fitbitHeartDay
	if _, err := p.decode(f.Provider(), "activities-heart", &summary); err != nil {
		return nil, err
	}
	anchor := p.Window.Start.In(p.Location).Format(domain.DateLayout)
	if len(summary) > 0 && strings.TrimSpace(summary[0].DateTime) != "" {
		anchor = strings.TrimSpace(summary[0].DateTime)
	}

	out := make([]domain.Sample, 0, len(intraday.Dataset))
	for _, point := range intraday.Dataset {
		if strings.TrimSpace(point.Time) == "" || !point.Value.Valid {
			continue
		}
		at, _, err := parseTime(anchor+" "+strings.TrimSpace(point.Time), "activities-heart-intraday.dataset.time", f.Provider(), p.Location)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Sample{Metric: domain.MetricHeartRate, Value: point.Value.Value, Start: at, End: at, Unit: domain.UnitBPM})
	}
	return out, nil
}

// ExtractBloodPressure reads bloodPressure readings.
func (f Fitbit) ExtractBloodPressure(p Payload) ([]domain.Sample, error) {
	var readings []fitbitBloodPressure
	if ok, err := p.decode(f.Provider(), "bloodPressure", &readings); !ok || err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(readings))
	for _, r := range readings {
		at, ok, err := parseTime(r.DateTime, "bloodPressure.dateTime", f.Provider(), p.Location)
		if err != nil {
			return nil, err
		}
		if !ok || !r.Systolic.Valid || !r.Diastolic.Valid {
			continue
		}
		out = append(out, bloodPressureSample(r.Systolic.Value, r.Diastolic.Value, at, at, ""))
	}
	return out, nil
}

// ExtractSleep reads sleep logs. Each log is a session; levels.data entries become stage samples.
func (f Fitbit) ExtractSleep(p Payload) ([]domain.Sample, error) {
	var logs []fitbitSleep
	if ok, err := p.decode(f.Provider(), "sleep", &logs); !ok || err != nil {
		return nil, err
	}
	var out []domain.Sample
	for i, entry := range logs {
		start, end, err := interval(f.Provider(), "sleep.startTime", "sleep.endTime", entry.StartTime, entry.EndTime, p)
		if err != nil {
			return nil, err
		}
		if start.IsZero() {
			continue
		}
		session := "fitbit-" + strconv.Itoa(i)
		if entry.LogID.Valid {
			session = "fitbit-" + strconv.FormatInt(int64(entry.LogID.Value), 10)
		}

		emitted := 0
		for _, level := range entry.Levels.Data {
			stage, known := fitbitLevels[strings.ToLower(strings.TrimSpace(level.Level))]
			if !known {
				continue
			}
			at, ok, err := parseTime(level.DateTime, "sleep.levels.data.dateTime", f.Provider(), p.Location)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			out = append(out, sleepSample(stage, at, at.Add(seconds(level.Seconds)), session))
			emitted++
		}
		if emitted == 0 {
			out = append(out, sleepSample(domain.StageAsleep, start, end, session))
		}
	}
	return out, nil
}
