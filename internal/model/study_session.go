package model

import (
	"encoding/json"
	"time"
)

// Subject は学習科目を表す。
type Subject string

const (
	SubjectMath    Subject = "Math"
	SubjectScience Subject = "Science"
	SubjectEnglish Subject = "English"
	SubjectHistory Subject = "History"
	SubjectOther   Subject = "Other"
)

// Subjects は有効な科目の一覧。表示順を兼ねる。
var Subjects = []Subject{SubjectMath, SubjectScience, SubjectEnglish, SubjectHistory, SubjectOther}

// ParseSubject は文字列を科目に変換する。未知の科目の場合はfalseを返す。
func ParseSubject(s string) (Subject, bool) {
	for _, subj := range Subjects {
		if string(subj) == s {
			return subj, true
		}
	}
	return "", false
}

// SessionStatus は学習セッションの状態を表す。
type SessionStatus string

const (
	// SessionStatusActive はタイマー実行中（未確定）のセッション。
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted は完了済みのセッション。ストリーク・バッジ計算の対象。
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusCanceled はキャンセルされたセッション。集計には一切含めない。
	SessionStatusCanceled SessionStatus = "canceled"
)

// StudySession は1回の学習タイマーの記録を表す。
// 作成時はactiveで、完了またはキャンセルで1度だけ遷移し、以後は変更しない。
type StudySession struct {
	ID              string
	UserID          string
	Subject         Subject
	Status          SessionStatus
	StartedAt       time.Time
	SessionDate     Date // 開始時点のユーザーローカル日付
	PlannedMinutes  int
	DurationMinutes int
	Completed       bool
	CompletedAt     *time.Time
	Notes           string

	// CompletionResult は完了処理の結果（JSON）。二重完了時にそのまま返す。
	CompletionResult json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CompletedSession はストリーク・バッジ評価に必要な完了済みセッションの要約。
type CompletedSession struct {
	ID              string
	Subject         Subject
	SessionDate     Date
	StartedAt       time.Time // ユーザーのローカルタイムゾーンに変換済み
	DurationMinutes int
}

// CompletionResult はセッション完了時にクライアントへ返す結果。
// 二重完了に備えてセッション行に保存される。
type CompletionResult struct {
	SessionID     string        `json:"session_id"`
	NewStreak     int           `json:"new_streak"`
	LongestStreak int           `json:"longest_streak"`
	StreakMessage string        `json:"streak_message"`
	NewRecord     bool          `json:"new_record"`
	NewBadges     []EarnedBadge `json:"new_badges"`
}

// EarnedBadge はクライアントの祝福表示に必要なバッジ情報。
type EarnedBadge struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// UserBadge はユーザーが獲得したバッジの記録を表す。
type UserBadge struct {
	UserID    string
	BadgeKey  string
	SessionID string
	EarnedAt  time.Time
}
