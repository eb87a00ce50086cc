package badge

import (
	"time"

	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/streak"
)

// recentWindowDays は「1週間以内」の判定に使う日数（今日を含む）。
const recentWindowDays = 7

// Stats はバッジ判定に使う1ユーザー分の集計値。
type Stats struct {
	CurrentStreak   int
	LongestStreak   int
	TotalMinutes    int
	Sessions        int
	SubjectSessions map[model.Subject]int
	SubjectMinutes  map[model.Subject]int
	LongestSession  int
	HourSessions    [24]int // ローカル開始時刻の時ごとのセッション数
	Weekends        int
	RecentSubjects  map[model.Subject]bool
}

// NewStats は完了済みセッションとストリーク状態から集計値を作る。
func NewStats(sessions []model.CompletedSession, st streak.State, today model.Date) Stats {
	s := Stats{
		CurrentStreak:   st.CurrentStreak,
		LongestStreak:   st.LongestStreak,
		SubjectSessions: make(map[model.Subject]int),
		SubjectMinutes:  make(map[model.Subject]int),
		RecentSubjects:  make(map[model.Subject]bool),
	}

	weekends := make(map[model.Date]struct{})
	windowStart := today.AddDays(-(recentWindowDays - 1))

	for _, cs := range sessions {
		s.Sessions++
		s.TotalMinutes += cs.DurationMinutes
		s.SubjectSessions[cs.Subject]++
		s.SubjectMinutes[cs.Subject] += cs.DurationMinutes
		if cs.DurationMinutes > s.LongestSession {
			s.LongestSession = cs.DurationMinutes
		}
		if !cs.StartedAt.IsZero() {
			s.HourSessions[cs.StartedAt.Hour()]++
		}

		// 週末は土曜日の日付で識別する
		switch cs.SessionDate.Weekday() {
		case time.Saturday:
			weekends[cs.SessionDate] = struct{}{}
		case time.Sunday:
			weekends[cs.SessionDate.AddDays(-1)] = struct{}{}
		}

		if !cs.SessionDate.Before(windowStart) && !cs.SessionDate.After(today) {
			s.RecentSubjects[cs.Subject] = true
		}
	}
	s.Weekends = len(weekends)

	return s
}

// Satisfied はバッジの獲得条件を満たしているかどうかを返す。
func (b Badge) Satisfied(s Stats) bool {
	current, required := b.Criteria.Measure(s)
	return current >= required
}

// Evaluate は条件を満たしているバッジのキー集合を返す。
func Evaluate(s Stats) map[string]bool {
	out := make(map[string]bool)
	for _, b := range catalog {
		if b.Satisfied(s) {
			out[b.Key] = true
		}
	}
	return out
}

// Diff はpreでは未達成でpostで達成したバッジをカタログ順で返す。
func Diff(pre, post Stats) []Badge {
	var out []Badge
	for _, b := range catalog {
		if !b.Satisfied(pre) && b.Satisfied(post) {
			out = append(out, b)
		}
	}
	return out
}

// ProgressEntry は1バッジ分の進捗を表す。
type ProgressEntry struct {
	Badge
	Kind     Kind    `json:"criteria_type"`
	Current  int     `json:"current"`
	Required int     `json:"required"`
	Percent  float64 `json:"progress_percent"`
	IsEarned bool    `json:"is_earned"`
	Points   int     `json:"points"`
}

// Progress は各バッジへの進捗を返す。獲得済みは100%とし、未獲得のシークレットバッジは含めない。
func Progress(s Stats, earned map[string]bool) []ProgressEntry {
	out := make([]ProgressEntry, 0, len(catalog))
	for _, b := range catalog {
		isEarned := earned[b.Key]
		if b.Secret && !isEarned {
			continue
		}
		current, required := b.Criteria.Measure(s)
		e := ProgressEntry{
			Badge:    b,
			Kind:     b.Criteria.Kind(),
			Current:  current,
			Required: required,
			IsEarned: isEarned,
			Points:   b.Points(),
		}
		switch {
		case isEarned:
			e.Percent = 100
		case required > 0:
			e.Percent = min(100, float64(current)*100/float64(required))
		}
		out = append(out, e)
	}
	return out
}

// TotalPoints は獲得済みバッジのポイント合計を返す。カタログにないキーは無視する。
func TotalPoints(earnedKeys []string) int {
	total := 0
	for _, key := range earnedKeys {
		if b, ok := byKey[key]; ok {
			total += b.Points()
		}
	}
	return total
}
