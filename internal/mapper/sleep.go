package mapper

import (
	"sort"
	"strconv"
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// SleepData is the sleep record payload for one session.
type SleepData struct {
	SessionDate string         `json:"session_date"`
	Metadata    Window         `json:"metadata"`
	DurationMin int64          `json:"duration_min"`
	Stages      []StageSummary `json:"stages"`
}

// StageSummary aggregates every interval of one stage within a session.
type StageSummary struct {
	Type          domain.SleepStage `json:"type"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	TotalDuration int64             `json:"total_duration"`
}

type session struct {
	key       string
	intervals []domain.Sample
	window    Window
}

// buildSleep expects intervals sorted by start and returns the most recent session.
func buildSleep(intervals []domain.Sample) *SleepData {
	sessions := groupSessions(intervals)
	if len(sessions) == 0 {
		return nil
	}

	chosen := sessions[0]
	for _, s := range sessions[1:] {
		switch {
		case s.window.EndTime.After(chosen.window.EndTime):
			chosen = s
		case s.window.EndTime.Equal(chosen.window.EndTime) && s.window.StartTime.After(chosen.window.StartTime):
			chosen = s
		}
	}

	byStage := map[domain.SleepStage]*StageSummary{}
	elapsed := map[domain.SleepStage]time.Duration{}
	var order []domain.SleepStage
	for _, iv := range chosen.intervals {
		start, end := iv.Start.UTC(), iv.End.UTC()
		summary, ok := byStage[iv.Stage]
		if !ok {
			summary = &StageSummary{Type: iv.Stage, StartTime: start, EndTime: end}
			byStage[iv.Stage] = summary
			order = append(order, iv.Stage)
		}
		if start.Before(summary.StartTime) {
			summary.StartTime = start
		}
		if end.After(summary.EndTime) {
			summary.EndTime = end
		}
		elapsed[iv.Stage] += end.Sub(start)
	}

	stages := make([]StageSummary, 0, len(order))
	for _, stage := range order {
		summary := *byStage[stage]
		summary.TotalDuration = int64(elapsed[stage] / time.Minute)
		stages = append(stages, summary)
	}
	return &SleepData{
		SessionDate: domain.DateOf(chosen.window.StartTime).Format(domain.DateLayout),
		Metadata:    chosen.window,
		DurationMin: int64(chosen.window.EndTime.Sub(chosen.window.StartTime) / time.Minute),
		Stages:      stages,
	}
}

// groupSessions groups keyed intervals by key. Unkeyed intervals start a new session
// whenever they begin more than SessionGap after the previous unkeyed session ended.
// Intervals that do not end after they start are dropped.
func groupSessions(intervals []domain.Sample) []*session {
	var sessions []*session
	keyed := map[string]*session{}
	var open *session
	anonymous := 0

	for _, iv := range intervals {
		if !iv.End.After(iv.Start) {
			continue
		}
		var target *session
		switch {
		case iv.Session != "":
			target = keyed[iv.Session]
			if target == nil {
				target = &session{key: iv.Session}
				keyed[iv.Session] = target
				sessions = append(sessions, target)
			}
		case open != nil && iv.Start.Sub(open.window.EndTime) <= SessionGap:
			target = open
		default:
			anonymous++
			target = &session{key: "session-" + strconv.Itoa(anonymous)}
			open = target
			sessions = append(sessions, target)
		}
		target.intervals = append(target.intervals, iv)
		target.window.extend(iv.Start.UTC(), iv.End.UTC())
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].window.StartTime.Before(sessions[j].window.StartTime)
	})
	return sessions
}
