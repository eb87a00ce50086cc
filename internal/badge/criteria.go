package badge

import "github.com/hitoshi/studystreak/internal/model"

// Kind は獲得条件の種別を表す。
type Kind string

const (
	KindStreak         Kind = "streak"
	KindTotalMinutes   Kind = "time"
	KindSessions       Kind = "sessions"
	KindSubjectCount   Kind = "subject_sessions"
	KindSubjectMinutes Kind = "subject_time"
	KindLongestSession Kind = "single_session_duration"
	KindTimeOfDay      Kind = "time_of_day"
	KindWeekends       Kind = "weekend_sessions"
	KindRecentSubjects Kind = "subjects_in_week"
)

// Criteria はバッジの獲得条件。このパッケージ内の型だけが実装できる。
//
// Measure は集計値から現在値と必要値を返し、current >= required で獲得とみなす。
type Criteria interface {
	Kind() Kind
	Measure(s Stats) (current, required int)
	sealed()
}

// StreakAtLeast は現在の連続学習日数がDays日以上。
type StreakAtLeast struct{ Days int }

// TotalMinutesAtLeast は累計学習時間がMinutes分以上。
type TotalMinutesAtLeast struct{ Minutes int }

// SessionsAtLeast は完了セッション数がCount以上。
type SessionsAtLeast struct{ Count int }

// SubjectSessionsAtLeast は指定科目の完了セッション数がCount以上。
type SubjectSessionsAtLeast struct {
	Subject model.Subject
	Count   int
}

// SubjectMinutesAtLeast は指定科目の累計学習時間がMinutes分以上。
type SubjectMinutesAtLeast struct {
	Subject model.Subject
	Minutes int
}

// LongestSessionAtLeast は1回のセッションでMinutes分以上学習した。
type LongestSessionAtLeast struct{ Minutes int }

// TimeOfDaySessionsAtLeast は開始時刻が条件を満たすセッションがCount以上。
// Afterがtrueなら Hour 時以降、falseなら Hour 時台以前に開始したセッションを数える。
type TimeOfDaySessionsAtLeast struct {
	Hour  int
	After bool
	Count int
}

// WeekendsAtLeast は学習した週末（土日）の数がCount以上。
type WeekendsAtLeast struct{ Count int }

// RecentSubjectsAll は直近1週間で指定科目をすべて学習した。
type RecentSubjectsAll struct{ Subjects []model.Subject }

func (StreakAtLeast) Kind() Kind            { return KindStreak }
func (TotalMinutesAtLeast) Kind() Kind      { return KindTotalMinutes }
func (SessionsAtLeast) Kind() Kind          { return KindSessions }
func (SubjectSessionsAtLeast) Kind() Kind   { return KindSubjectCount }
func (SubjectMinutesAtLeast) Kind() Kind    { return KindSubjectMinutes }
func (LongestSessionAtLeast) Kind() Kind    { return KindLongestSession }
func (TimeOfDaySessionsAtLeast) Kind() Kind { return KindTimeOfDay }
func (WeekendsAtLeast) Kind() Kind          { return KindWeekends }
func (RecentSubjectsAll) Kind() Kind        { return KindRecentSubjects }

func (c StreakAtLeast) Measure(s Stats) (int, int) { return s.CurrentStreak, c.Days }

func (c TotalMinutesAtLeast) Measure(s Stats) (int, int) { return s.TotalMinutes, c.Minutes }

func (c SessionsAtLeast) Measure(s Stats) (int, int) { return s.Sessions, c.Count }

func (c SubjectSessionsAtLeast) Measure(s Stats) (int, int) {
	return s.SubjectSessions[c.Subject], c.Count
}

func (c SubjectMinutesAtLeast) Measure(s Stats) (int, int) {
	return s.SubjectMinutes[c.Subject], c.Minutes
}

func (c LongestSessionAtLeast) Measure(s Stats) (int, int) { return s.LongestSession, c.Minutes }

func (c TimeOfDaySessionsAtLeast) Measure(s Stats) (int, int) {
	n := 0
	for h, count := range s.HourSessions {
		if (c.After && h >= c.Hour) || (!c.After && h <= c.Hour) {
			n += count
		}
	}
	return n, c.Count
}

func (c WeekendsAtLeast) Measure(s Stats) (int, int) { return s.Weekends, c.Count }

func (c RecentSubjectsAll) Measure(s Stats) (int, int) {
	n := 0
	for _, subj := range c.Subjects {
		if s.RecentSubjects[subj] {
			n++
		}
	}
	return n, len(c.Subjects)
}

func (StreakAtLeast) sealed()            {}
func (TotalMinutesAtLeast) sealed()      {}
func (SessionsAtLeast) sealed()          {}
func (SubjectSessionsAtLeast) sealed()   {}
func (SubjectMinutesAtLeast) sealed()    {}
func (LongestSessionAtLeast) sealed()    {}
func (TimeOfDaySessionsAtLeast) sealed() {}
func (WeekendsAtLeast) sealed()          {}
func (RecentSubjectsAll) sealed()        {}
