package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

var ingestedAt = time.Date(2025, 5, 2, 13, 58, 20, 918_000_000, time.UTC)

func testUnit() Unit {
	return Unit{UserID: "user-1", Provider: domain.ProviderAppleHealth, Timestamp: ingestedAt}
}

func steps(value float64, start, end time.Time) domain.Sample {
	return domain.Sample{Metric: domain.MetricStepCount, Value: value, Start: start, End: end, Unit: domain.UnitCount}
}

func stepInterval(value float64, start, end time.Time) domain.Sample {
	return domain.Sample{Metric: domain.MetricStepInterval, Value: value, Start: start, End: end, Unit: domain.UnitCount}
}

func heartRate(value float64, at time.Time) domain.Sample {
	return domain.Sample{Metric: domain.MetricHeartRate, Value: value, Start: at, End: at, Unit: domain.UnitBPM}
}

func stage(s domain.SleepStage, start, end time.Time, session string) domain.Sample {
	return domain.Sample{Metric: domain.MetricSleepStage, Stage: s, Start: start, End: end, Unit: domain.UnitStage, Session: session}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 5, 2, hour, minute, 0, 0, time.UTC)
}

func TestMapSingleStepWindow(t *testing.T) {
	plusOne := time.FixedZone("", 3600)
	start := time.Date(2025, 5, 2, 12, 19, 0, 0, plusOne)
	end := time.Date(2025, 5, 2, 14, 19, 0, 0, plusOne)

	res, err := Map(testUnit(), []domain.Sample{steps(5350, start.UTC(), end.UTC())})
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	record := res.Records[0]
	require.Equal(t, domain.SchemaDaily, record.SchemaType)
	require.Equal(t, "2025-05-02", record.Date.Format(domain.DateLayout))
	require.True(t, ingestedAt.Equal(record.Timestamp))
	require.Nil(t, res.Body)
	require.Nil(t, res.Sleep)

	require.NotNil(t, res.Daily)
	require.Equal(t, int64(5350), res.Daily.Steps)
	require.Equal(t, "2025-05-02", res.Daily.Date)

	var decoded DailyData
	require.NoError(t, json.Unmarshal(record.Data, &decoded))
	require.Equal(t, int64(5350), decoded.Steps)
	require.Len(t, decoded.StepSamples, 3)
	require.Equal(t, int64(5350), decoded.StepSamples[0].Value)
	require.Equal(t, "2025-05-02T11:00:00.000+0000", decoded.StepSamples[0].StartTime)
	require.Equal(t, int64(0), decoded.StepSamples[2].Value)
}

func TestMapSumsStepWindowsOnIngestionDate(t *testing.T) {
	samples := []domain.Sample{
		steps(1200, at(7, 0), at(8, 0)),
		steps(800, at(7, 30), at(8, 30)),
		steps(400, at(12, 0), at(12, 45)),
		steps(9999, at(7, 0).AddDate(0, 0, -1), at(8, 0).AddDate(0, 0, -1)),
	}

	res, err := Map(testUnit(), samples)
	require.NoError(t, err)
	require.Equal(t, int64(2400), res.Daily.Steps)
	require.Len(t, res.Daily.StepSamples, 6)
	require.Equal(t, int64(2000), res.Daily.StepSamples[0].Value)
	require.Equal(t, int64(400), res.Daily.StepSamples[5].Value)
	require.Equal(t, at(7, 0), res.Daily.Metadata.StartTime)
	require.Equal(t, at(12, 45), res.Daily.Metadata.EndTime)
}

func TestMapDailyTotalWithHourlyIntervals(t *testing.T) {
	samples := []domain.Sample{
		steps(1000, at(12, 0), at(14, 0)),
		stepInterval(600, at(12, 10), at(12, 50)),
		stepInterval(400, at(13, 10), at(13, 50)),
	}

	res, err := Map(testUnit(), samples)
	require.NoError(t, err)
	require.Equal(t, int64(1000), res.Daily.Steps)
	require.Len(t, res.Daily.StepSamples, 3)
	require.Equal(t, int64(600), res.Daily.StepSamples[0].Value)
	require.Equal(t, int64(400), res.Daily.StepSamples[1].Value)
	require.Equal(t, int64(0), res.Daily.StepSamples[2].Value)
	require.Equal(t, "2025-05-02T12:00:00.000+0000", res.Daily.StepSamples[0].StartTime)
}

func TestMapDailyDeclaredTotalWins(t *testing.T) {
	samples := []domain.Sample{
		steps(9999, at(0, 0), at(10, 0)),
		stepInterval(100, at(8, 0), at(8, 15)),
		stepInterval(250, at(9, 0), at(9, 15)),
	}

	res, err := Map(testUnit(), samples)
	require.NoError(t, err)
	require.Equal(t, int64(9999), res.Daily.Steps)
	require.Len(t, res.Daily.StepSamples, 11)
	require.Equal(t, int64(100), res.Daily.StepSamples[8].Value)
	require.Equal(t, int64(250), res.Daily.StepSamples[9].Value)
}

func TestMapDailyIntervalsOnly(t *testing.T) {
	res, err := Map(testUnit(), []domain.Sample{stepInterval(100, at(8, 0), at(8, 15)), stepInterval(250, at(9, 0), at(9, 15))})
	require.NoError(t, err)
	require.Equal(t, int64(350), res.Daily.Steps)
	require.Len(t, res.Daily.StepSamples, 2)
}

func TestMapDailyUsesLocalDate(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	unit := testUnit()
	unit.Location = tokyo

	// 2025-05-02 20:00 UTC is already 2025-05-03 in Tokyo, ingestion is 2025-05-02 22:58 local.
	res, err := Map(unit, []domain.Sample{steps(100, at(20, 0), at(20, 30)), steps(50, at(1, 0), at(1, 30))})
	require.NoError(t, err)
	require.Equal(t, int64(50), res.Daily.Steps)
	require.Equal(t, "2025-05-02", res.Daily.Date)
	require.Equal(t, "2025-05-02T10:00:00.000+0900", res.Daily.StepSamples[0].StartTime)
}

func TestMapOmitsEmptySchemas(t *testing.T) {
	res, err := Map(testUnit(), nil)
	require.NoError(t, err)
	require.Empty(t, res.Records)
	require.Nil(t, res.Daily)
	require.Nil(t, res.Body)
	require.Nil(t, res.Sleep)
}

func TestMapBody(t *testing.T) {
	samples := []domain.Sample{
		heartRate(72, at(9, 0)),
		heartRate(58, at(6, 0)),
		heartRate(101, at(12, 0)),
		{Metric: domain.MetricBloodPressure, Value: 130, Diastolic: 85, Start: at(19, 0), End: at(19, 0), Unit: domain.UnitMmHg},
		{Metric: domain.MetricBloodPressure, Value: 118, Diastolic: 76, Start: at(7, 0), End: at(7, 0), Unit: domain.UnitMmHg},
	}

	res, err := Map(testUnit(), samples)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, domain.SchemaBody, res.Records[0].SchemaType)

	body := res.Body
	require.Equal(t, 130.0, *body.SystolicBP)
	require.Equal(t, 85.0, *body.DiastolicBP)
	require.Len(t, body.BloodPressureSamples, 2)
	require.Equal(t, 77.0, *body.AvgHRBPM)
	require.Equal(t, 58.0, *body.RestingHRBPM)
	require.Equal(t, 101.0, *body.MaxHRBPM)
	require.Len(t, body.HeartRateSamples, 3)
	require.Equal(t, at(6, 0), body.HeartRateSamples[0].Timestamp)
	require.Equal(t, at(6, 0), body.Metadata.StartTime)
	require.Equal(t, at(19, 0), body.Metadata.EndTime)
}

func TestMapBodyWithoutPressure(t *testing.T) {
	res, err := Map(testUnit(), []domain.Sample{heartRate(64, at(9, 0))})
	require.NoError(t, err)
	require.Nil(t, res.Body.SystolicBP)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(res.Records[0].Data, &raw))
	require.NotContains(t, raw, "systolic_bp")
	require.Contains(t, raw, "avg_hr_bpm")
}

func TestMapSleepPicksLatestSession(t *testing.T) {
	night := func(h, m int) time.Time { return time.Date(2025, 5, 1, h, m, 0, 0, time.UTC) }
	samples := []domain.Sample{
		stage(domain.StageCore, night(23, 0), at(0, 30), ""),
		stage(domain.StageDeep, at(0, 30), at(1, 30), ""),
		stage(domain.StageCore, at(1, 45), at(3, 0), ""),
		stage(domain.StageREM, at(3, 0), at(3, 40), ""),
		// more than two hours later: a nap
		stage(domain.StageAsleep, at(14, 0), at(14, 20), ""),
		stage(domain.StageAwake, at(5, 0), at(5, 0), ""),
	}

	res, err := Map(testUnit(), samples)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, domain.SchemaSleep, res.Records[0].SchemaType)
	require.Equal(t, "2025-05-02", res.Sleep.SessionDate)
	require.Equal(t, int64(20), res.Sleep.DurationMin)
	require.Len(t, res.Sleep.Stages, 1)
	require.Equal(t, domain.StageAsleep, res.Sleep.Stages[0].Type)
}

func TestMapSleepAggregatesStages(t *testing.T) {
	night := func(h, m int) time.Time { return time.Date(2025, 5, 1, h, m, 0, 0, time.UTC) }
	samples := []domain.Sample{
		stage(domain.StageCore, night(23, 0), at(0, 30), "s1"),
		stage(domain.StageDeep, at(0, 30), at(1, 30), "s1"),
		stage(domain.StageCore, at(1, 30), at(3, 0), "s1"),
		stage(domain.StageREM, at(3, 0), at(3, 40), "s1"),
	}

	res, err := Map(testUnit(), samples)
	require.NoError(t, err)
	sleep := res.Sleep
	require.Equal(t, "2025-05-01", sleep.SessionDate)
	require.Equal(t, night(23, 0), sleep.Metadata.StartTime)
	require.Equal(t, at(3, 40), sleep.Metadata.EndTime)
	require.Equal(t, int64(280), sleep.DurationMin)
	require.Equal(t, []StageSummary{
		{Type: domain.StageCore, StartTime: night(23, 0), EndTime: at(3, 0), TotalDuration: 180},
		{Type: domain.StageDeep, StartTime: at(0, 30), EndTime: at(1, 30), TotalDuration: 60},
		{Type: domain.StageREM, StartTime: at(3, 0), EndTime: at(3, 40), TotalDuration: 40},
	}, sleep.Stages)
}

func TestMapSleepSumsSecondsBeforeTruncating(t *testing.T) {
	base := at(1, 0)
	var samples []domain.Sample
	for i := 0; i < 4; i++ {
		start := base.Add(time.Duration(i) * 90 * time.Second)
		samples = append(samples, stage(domain.StageAwake, start, start.Add(30*time.Second), "log-1"))
	}

	res, err := Map(testUnit(), samples)
	require.NoError(t, err)
	require.Len(t, res.Sleep.Stages, 1)
	require.Equal(t, int64(2), res.Sleep.Stages[0].TotalDuration)
}

func TestMapIsDeterministic(t *testing.T) {
	samples := []domain.Sample{
		steps(300, at(9, 0), at(9, 30)),
		heartRate(70, at(9, 0)),
		stage(domain.StageDeep, at(1, 0), at(2, 0), ""),
		steps(200, at(8, 0), at(8, 30)),
		heartRate(60, at(8, 0)),
		stage(domain.StageCore, at(0, 0), at(1, 0), ""),
	}
	reversed := make([]domain.Sample, len(samples))
	for i, s := range samples {
		reversed[len(samples)-1-i] = s
	}

	first, err := Map(testUnit(), samples)
	require.NoError(t, err)
	second, err := Map(testUnit(), reversed)
	require.NoError(t, err)

	require.Len(t, first.Records, 3)
	require.Equal(t, len(first.Records), len(second.Records))
	for i := range first.Records {
		require.Equal(t, first.Records[i].SchemaType, second.Records[i].SchemaType)
		require.JSONEq(t, string(first.Records[i].Data), string(second.Records[i].Data))
	}
}
