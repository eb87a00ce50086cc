// Package streak は学習ストリーク（連続学習日数）の計算を提供する。
//
// 計算はすべてユーザーのローカル暦日（model.Date）で行う。
// 評価日Dに対して最終学習日がDまたはD-1であればストリークは継続中とみなし、
// D-2以前であれば途切れた（0にリセットされた）とみなす。
package streak

import (
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
)

// DefaultMinDailyMinutes はその日を学習日とみなす最小合計分数のデフォルト値。
const DefaultMinDailyMinutes = 1

// Days は暦日ごとの完了済み学習分数の集計。
type Days map[model.Date]int

// DaysFromSessions は完了済みセッションを暦日ごとに集計する。
func DaysFromSessions(sessions []model.CompletedSession) Days {
	days := make(Days, len(sessions))
	for _, s := range sessions {
		days[s.SessionDate] += s.DurationMinutes
	}
	return days
}

// State は導出されたストリーク状態。保存はせず、要求のたびに再計算する。
type State struct {
	CurrentStreak   int        `json:"current_streak"`
	LongestStreak   int        `json:"longest_streak"`
	LastStudyDate   model.Date `json:"last_study_date"`
	StreakStartDate model.Date `json:"streak_start_date"`
	LongestStart    model.Date `json:"longest_streak_start"`
	LongestEnd      model.Date `json:"longest_streak_end"`
}

// Calculator はストリーク計算を行う。状態を持たないため並行利用できる。
type Calculator struct {
	minDailyMinutes int
}

// NewCalculator はCalculatorを生成する。minDailyMinutesが1未満の場合はデフォルト値を使う。
func NewCalculator(minDailyMinutes int) *Calculator {
	if minDailyMinutes < 1 {
		minDailyMinutes = DefaultMinDailyMinutes
	}
	return &Calculator{minDailyMinutes: minDailyMinutes}
}

// studyDates は学習日として数える日付を昇順で返す。today より後の日付は除外する。
func (c *Calculator) studyDates(days Days, today model.Date) []model.Date {
	dates := make([]model.Date, 0, len(days))
	for d, minutes := range days {
		if minutes < c.minDailyMinutes || d.After(today) {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// IsStudyDay はその日が学習日として数えられるかどうかを返す。
func (c *Calculator) IsStudyDay(days Days, d model.Date) bool {
	return days[d] >= c.minDailyMinutes
}

// Compute は評価日todayにおけるストリーク状態を計算する。
func (c *Calculator) Compute(days Days, today model.Date) State {
	dates := c.studyDates(days, today)
	if len(dates) == 0 {
		return State{}
	}

	var st State
	st.LastStudyDate = dates[len(dates)-1]

	// 最長ストリーク: 昇順に走査して連続区間の最大長を求める
	runStart := dates[0]
	runLen := 1
	st.LongestStreak, st.LongestStart, st.LongestEnd = 1, dates[0], dates[0]
	for i := 1; i < len(dates); i++ {
		if dates[i].DaysSince(dates[i-1]) == 1 {
			runLen++
		} else {
			runStart = dates[i]
			runLen = 1
		}
		if runLen > st.LongestStreak {
			st.LongestStreak = runLen
			st.LongestStart = runStart
			st.LongestEnd = dates[i]
		}
	}

	// 現在のストリーク: 最終学習日が今日か昨日でなければ途切れている
	if today.DaysSince(st.LastStudyDate) > 1 {
		return st
	}
	st.CurrentStreak = 1
	st.StreakStartDate = st.LastStudyDate
	for i := len(dates) - 2; i >= 0; i-- {
		if dates[i+1].DaysSince(dates[i]) != 1 {
			break
		}
		st.CurrentStreak++
		st.StreakStartDate = dates[i]
	}

	return st
}

// ストリークの状況区分
const (
	StatusActiveStudiedToday = "active_studied_today"
	StatusAtRisk             = "at_risk"
	StatusBroken             = "broken"
	StatusNoStreak           = "no_streak"
)

// Status はダッシュボード表示用のストリーク状況。
type Status struct {
	State
	Status          string `json:"status"`
	Message         string `json:"message"`
	HasStudiedToday bool   `json:"has_studied_today"`
	TodayMinutes    int    `json:"today_study_minutes"`
	IsNewRecord     bool   `json:"is_new_record"`
}

// Status は評価日todayにおけるストリーク状況を返す。
func (c *Calculator) Status(days Days, today model.Date) Status {
	st := c.Compute(days, today)
	out := Status{
		State:           st,
		HasStudiedToday: c.IsStudyDay(days, today),
		TodayMinutes:    days[today],
		IsNewRecord:     st.CurrentStreak > 0 && st.CurrentStreak == st.LongestStreak,
	}

	switch {
	case st.CurrentStreak == 0 && st.LongestStreak > 0:
		out.Status = StatusBroken
		out.Message = "Your streak was broken! Study today to start a new one."
	case st.CurrentStreak == 0:
		out.Status = StatusNoStreak
		out.Message = "No active streak. Start studying to begin your streak!"
	case out.HasStudiedToday:
		out.Status = StatusActiveStudiedToday
		out.Message = fmt.Sprintf("Great job! You're on a %d-day streak!", st.CurrentStreak)
	default:
		out.Status = StatusAtRisk
		out.Message = fmt.Sprintf("You're on a %d-day streak. Study today to keep it going!", st.CurrentStreak)
	}

	return out
}

// CalendarDay はカレンダー1日分の集計。
type CalendarDay struct {
	TotalStudyMinutes int  `json:"total_study_minutes"`
	HasStreakActivity bool `json:"has_streak_activity"`
	IsToday           bool `json:"is_today"`
}

// Calendar は指定年月の全日について集計を返す。キーは"YYYY-MM-DD"。
func (c *Calculator) Calendar(days Days, year int, month int, today model.Date) map[string]CalendarDay {
	first := model.NewDate(year, time.Month(month), 1)
	out := make(map[string]CalendarDay, 31)
	for d := first; d.Month == first.Month && d.Year == first.Year; d = d.AddDays(1) {
		out[d.String()] = CalendarDay{
			TotalStudyMinutes: days[d],
			HasStreakActivity: c.IsStudyDay(days, d),
			IsToday:           d == today,
		}
	}
	return out
}
