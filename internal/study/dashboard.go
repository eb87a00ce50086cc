package study

import (
	"fmt"
	"math"
	"sort"

	"github.com/hitoshi/studystreak/internal/model"
)

// ダッシュボード集計の既定値
const (
	DailyGoalMinutes   = 60
	WeeklyGoalMinutes  = 300
	analysisWindowDays = 30
	trendWindowDays    = 14
	weekDays           = 7
)

// 週比較の傾向
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendSame = "same"
)

// SubjectStat は科目ごとの集計。
type SubjectStat struct {
	Subject      model.Subject `json:"subject"`
	TotalMinutes int           `json:"total_minutes"`
	SessionCount int           `json:"session_count"`
}

// WeeklyComparison は直近7日間とその前の7日間の比較。
type WeeklyComparison struct {
	ThisWeek      int     `json:"this_week"`
	LastWeek      int     `json:"last_week"`
	ChangePercent float64 `json:"change_percent"`
	Trend         string  `json:"trend"`
}

// HourAnalysis はローカル開始時刻ごとの学習分数。
type HourAnalysis struct {
	HourlyData      [24]int `json:"hourly_data"`
	PeakHour        int     `json:"peak_hour"`
	PeakMinutes     int     `json:"peak_minutes"`
	PeakTimeDisplay string  `json:"peak_time_display"`
}

// Goal は1つの目標に対する進捗。
type Goal struct {
	Current         int     `json:"current"`
	Goal            int     `json:"goal"`
	ProgressPercent float64 `json:"progress_percent"`
	Completed       bool    `json:"completed"`
}

// GoalProgress は日次・週次目標の進捗。
type GoalProgress struct {
	Daily  Goal `json:"daily"`
	Weekly Goal `json:"weekly"`
}

// Analytics は完了済みセッションから求めるダッシュボードの集計値。
type Analytics struct {
	TotalStudyMinutes  int              `json:"total_study_time"`
	WeeklyStudyMinutes int              `json:"weekly_study_time"`
	TotalSessions      int              `json:"total_sessions"`
	SubjectStats       []SubjectStat    `json:"subject_stats"`
	StudyTrends        map[string]int   `json:"study_trends"`
	WeeklyComparison   WeeklyComparison `json:"weekly_comparison"`
	HourAnalysis       HourAnalysis     `json:"hour_analysis"`
	GoalProgress       GoalProgress     `json:"goal_progress"`
}

// Analyze は完了済みセッション（StartedAtはローカル時刻）をtoday基準で集計する。
// todayより後の日付のセッションは期間集計に含めない。
func Analyze(sessions []model.CompletedSession, today model.Date) Analytics {
	a := Analytics{
		SubjectStats: []SubjectStat{},
		StudyTrends:  make(map[string]int, trendWindowDays),
	}

	trendStart := today.AddDays(-(trendWindowDays - 1))
	for d := trendStart; !d.After(today); d = d.AddDays(1) {
		a.StudyTrends[d.String()] = 0
	}

	analysisStart := today.AddDays(-(analysisWindowDays - 1))
	thisWeekStart := today.AddDays(-(weekDays - 1))
	lastWeekStart := today.AddDays(-(2*weekDays - 1))
	lastWeekEnd := today.AddDays(-weekDays)

	bySubject := make(map[model.Subject]*SubjectStat)
	var analyzed, todayMinutes int

	for _, s := range sessions {
		a.TotalStudyMinutes += s.DurationMinutes
		a.TotalSessions++

		d := s.SessionDate
		if d.After(today) {
			continue
		}
		if d == today {
			todayMinutes += s.DurationMinutes
		}
		if !d.Before(thisWeekStart) {
			a.WeeklyComparison.ThisWeek += s.DurationMinutes
		} else if !d.Before(lastWeekStart) && !d.After(lastWeekEnd) {
			a.WeeklyComparison.LastWeek += s.DurationMinutes
		}
		if !d.Before(trendStart) {
			a.StudyTrends[d.String()] += s.DurationMinutes
		}
		if d.Before(analysisStart) {
			continue
		}

		st, ok := bySubject[s.Subject]
		if !ok {
			st = &SubjectStat{Subject: s.Subject}
			bySubject[s.Subject] = st
		}
		st.TotalMinutes += s.DurationMinutes
		st.SessionCount++

		if !s.StartedAt.IsZero() {
			a.HourAnalysis.HourlyData[s.StartedAt.Hour()] += s.DurationMinutes
			analyzed++
		}
	}

	for _, st := range bySubject {
		a.SubjectStats = append(a.SubjectStats, *st)
	}
	sort.Slice(a.SubjectStats, func(i, j int) bool {
		if a.SubjectStats[i].TotalMinutes != a.SubjectStats[j].TotalMinutes {
			return a.SubjectStats[i].TotalMinutes > a.SubjectStats[j].TotalMinutes
		}
		return a.SubjectStats[i].Subject < a.SubjectStats[j].Subject
	})

	a.WeeklyStudyMinutes = a.WeeklyComparison.ThisWeek
	a.WeeklyComparison = compareWeeks(a.WeeklyComparison.ThisWeek, a.WeeklyComparison.LastWeek)
	a.HourAnalysis = peakHour(a.HourAnalysis.HourlyData, analyzed > 0)
	a.GoalProgress = GoalProgress{
		Daily:  goal(todayMinutes, DailyGoalMinutes),
		Weekly: goal(a.WeeklyStudyMinutes, WeeklyGoalMinutes),
	}
	return a
}

func compareWeeks(thisWeek, lastWeek int) WeeklyComparison {
	c := WeeklyComparison{ThisWeek: thisWeek, LastWeek: lastWeek}
	switch {
	case lastWeek > 0:
		c.ChangePercent = round1(float64(thisWeek-lastWeek) * 100 / float64(lastWeek))
	case thisWeek > 0:
		c.ChangePercent = 100
	}
	switch {
	case c.ChangePercent > 0:
		c.Trend = TrendUp
	case c.ChangePercent < 0:
		c.Trend = TrendDown
	default:
		c.Trend = TrendSame
	}
	return c
}

// peakHour は最も学習分数の多い時を求める。同数の場合は早い時を優先し、データがなければ12時とする。
func peakHour(hourly [24]int, hasData bool) HourAnalysis {
	h := HourAnalysis{HourlyData: hourly, PeakHour: 12}
	if hasData {
		h.PeakHour = 0
		for hour, minutes := range hourly {
			if minutes > hourly[h.PeakHour] {
				h.PeakHour = hour
			}
		}
	}
	h.PeakMinutes = hourly[h.PeakHour]
	h.PeakTimeDisplay = formatHour(h.PeakHour)
	return h
}

// formatHour は0-23時を"9:00 AM"形式で表す。
func formatHour(hour int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:00 %s", h, suffix)
}

func goal(current, target int) Goal {
	pct := math.Min(100, float64(current)*100/float64(target))
	return Goal{
		Current:         current,
		Goal:            target,
		ProgressPercent: round1(pct),
		Completed:       pct >= 100,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
