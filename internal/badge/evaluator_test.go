package badge

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/streak"
)

func session(date model.Date, subject model.Subject, minutes int, hour int) model.CompletedSession {
	return model.CompletedSession{
		Subject:         subject,
		SessionDate:     date,
		StartedAt:       time.Date(date.Year, date.Month, date.Day, hour, 0, 0, 0, time.UTC),
		DurationMinutes: minutes,
	}
}

func statsAt(sessions []model.CompletedSession, today model.Date) Stats {
	calc := streak.NewCalculator(1)
	st := calc.Compute(streak.DaysFromSessions(sessions), today)
	return NewStats(sessions, st, today)
}

func keysOf(badges []Badge) map[string]bool {
	out := make(map[string]bool, len(badges))
	for _, b := range badges {
		out[b.Key] = true
	}
	return out
}

// 3日連続のバッジは3日目の完了で新規獲得になり、4日目では報告されない
func TestDiff_ThreeDayStreakBadgeOnlyOnThirdDay(t *testing.T) {
	var history []model.CompletedSession
	var reported []string

	for day := 1; day <= 4; day++ {
		today := model.NewDate(2025, 1, day)
		pre := statsAt(history, today)
		history = append(history, session(today, model.SubjectMath, 25, 15))
		post := statsAt(history, today)

		if keysOf(Diff(pre, post))["flame_keeper"] {
			reported = append(reported, today.String())
		}
	}

	if len(reported) != 1 || reported[0] != "2025-01-03" {
		t.Errorf("flame_keeper reported on %v, want [2025-01-03]", reported)
	}
}

func TestDiff_FirstSession(t *testing.T) {
	today := model.NewDate(2025, 1, 1)
	pre := statsAt(nil, today)
	post := statsAt([]model.CompletedSession{session(today, model.SubjectScience, 60, 10)}, today)

	got := keysOf(Diff(pre, post))
	if !got["first_steps"] {
		t.Error("first_steps should be newly earned")
	}
	if !got["quick_learner"] {
		t.Error("quick_learner (60 min) should be newly earned")
	}
	if got["spark_ignited"] {
		t.Error("spark_ignited requires 2 days")
	}
}

func TestDiff_NothingNewWhenStatsUnchanged(t *testing.T) {
	today := model.NewDate(2025, 1, 1)
	s := statsAt([]model.CompletedSession{session(today, model.SubjectMath, 30, 9)}, today)
	if got := Diff(s, s); len(got) != 0 {
		t.Errorf("Diff(s, s) = %v, want empty", got)
	}
}

func TestNewStats_Aggregates(t *testing.T) {
	today := model.NewDate(2025, 1, 12) // 日曜日
	sessions := []model.CompletedSession{
		session(model.NewDate(2025, 1, 4), model.SubjectMath, 30, 22),    // 土曜
		session(model.NewDate(2025, 1, 5), model.SubjectMath, 130, 6),    // 日曜（同じ週末）
		session(model.NewDate(2025, 1, 11), model.SubjectEnglish, 20, 21), // 土曜
		session(model.NewDate(2025, 1, 12), model.SubjectHistory, 10, 12),
	}
	s := statsAt(sessions, today)

	if s.Sessions != 4 || s.TotalMinutes != 190 {
		t.Errorf("sessions=%d minutes=%d", s.Sessions, s.TotalMinutes)
	}
	if s.SubjectSessions[model.SubjectMath] != 2 || s.SubjectMinutes[model.SubjectMath] != 160 {
		t.Errorf("math = %d sessions / %d min", s.SubjectSessions[model.SubjectMath], s.SubjectMinutes[model.SubjectMath])
	}
	if s.LongestSession != 130 {
		t.Errorf("LongestSession = %d", s.LongestSession)
	}
	if s.Weekends != 2 {
		t.Errorf("Weekends = %d, want 2", s.Weekends)
	}
	if s.CurrentStreak != 2 {
		t.Errorf("CurrentStreak = %d, want 2", s.CurrentStreak)
	}
	if !s.RecentSubjects[model.SubjectEnglish] || s.RecentSubjects[model.SubjectMath] {
		t.Errorf("RecentSubjects = %v", s.RecentSubjects)
	}
}

func TestCriteria_TimeOfDay(t *testing.T) {
	var s Stats
	s.HourSessions[21] = 2
	s.HourSessions[23] = 3
	s.HourSessions[7] = 1
	s.HourSessions[8] = 4

	owl, _ := Lookup("night_owl")
	if cur, req := owl.Criteria.Measure(s); cur != 5 || req != 5 {
		t.Errorf("night_owl = %d/%d", cur, req)
	}
	if !owl.Satisfied(s) {
		t.Error("night_owl should be satisfied")
	}

	bird, _ := Lookup("early_bird")
	if cur, _ := bird.Criteria.Measure(s); cur != 1 {
		t.Errorf("early_bird current = %d, want 1", cur)
	}
}

func TestCriteria_TimeOfDayBoundaries(t *testing.T) {
	tests := []struct {
		key     string
		hour    int
		counted bool
		phrase  string
	}{
		{"early_bird", 7, true, "before 8 AM"},
		{"early_bird", 8, false, "before 8 AM"},
		{"night_owl", 21, true, "at or after 9 PM"},
		{"night_owl", 20, false, "at or after 9 PM"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d時", tt.key, tt.hour), func(t *testing.T) {
			b, _ := Lookup(tt.key)
			var s Stats
			s.HourSessions[tt.hour] = 1
			if cur, _ := b.Criteria.Measure(s); (cur == 1) != tt.counted {
				t.Errorf("hour %d counted = %v, want %v", tt.hour, cur == 1, tt.counted)
			}
			// 説明文は判定の境界と一致させる
			if !strings.Contains(b.Description, tt.phrase) {
				t.Errorf("description = %q, want to contain %q", b.Description, tt.phrase)
			}
		})
	}
}

func TestCriteria_RecentSubjects(t *testing.T) {
	s := Stats{RecentSubjects: map[model.Subject]bool{
		model.SubjectMath: true, model.SubjectScience: true, model.SubjectEnglish: true,
	}}
	b, _ := Lookup("diversity_champion")
	if b.Satisfied(s) {
		t.Error("should not be satisfied without History")
	}
	s.RecentSubjects[model.SubjectHistory] = true
	if !b.Satisfied(s) {
		t.Error("should be satisfied with all four subjects")
	}
}

func TestBadge_Points(t *testing.T) {
	tests := []struct {
		key  string
		want int
	}{
		{"first_steps", 10},         // bronze x common
		{"week_warrior", 37},        // silver x rare (37.5)
		{"study_champion", 100},     // gold x epic
		{"legendary_scholar", 750},  // legendary x legendary
		{"diversity_champion", 200}, // platinum x epic
	}
	for _, tt := range tests {
		b, ok := Lookup(tt.key)
		if !ok {
			t.Fatalf("badge %q not in catalog", tt.key)
		}
		if got := b.Points(); got != tt.want {
			t.Errorf("%s.Points() = %d, want %d", tt.key, got, tt.want)
		}
	}
	if got := TotalPoints([]string{"first_steps", "week_warrior", "unknown"}); got != 47 {
		t.Errorf("TotalPoints = %d, want 47", got)
	}
}

func TestCatalog_KeysAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, b := range Catalog() {
		if seen[b.Key] {
			t.Errorf("duplicate key %q", b.Key)
		}
		seen[b.Key] = true
		if b.Criteria == nil {
			t.Errorf("%s has no criteria", b.Key)
		}
	}
}

func TestProgress(t *testing.T) {
	s := Stats{Sessions: 5, TotalMinutes: 30}
	entries := Progress(s, map[string]bool{"first_steps": true})

	var sawSecret bool
	for _, e := range entries {
		if e.Secret {
			sawSecret = true
		}
		switch e.Key {
		case "first_steps":
			if !e.IsEarned || e.Percent != 100 {
				t.Errorf("first_steps = %+v", e)
			}
		case "session_starter":
			if e.Current != 5 || e.Required != 10 || e.Percent != 50 {
				t.Errorf("session_starter = %d/%d (%.1f%%)", e.Current, e.Required, e.Percent)
			}
		case "quick_learner":
			if e.Percent != 50 || e.Kind != KindTotalMinutes {
				t.Errorf("quick_learner = %+v", e)
			}
		}
	}
	if sawSecret {
		t.Error("unearned secret badges must be hidden")
	}
}
