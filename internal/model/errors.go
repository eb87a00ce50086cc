// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, session, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrCodeInvalidDuration  = "INVALID_DURATION"
	ErrCodeInvalidSubject   = "INVALID_SUBJECT"
	ErrCodeSessionCanceled  = "SESSION_CANCELED"
	ErrCodeSessionCompleted = "SESSION_COMPLETED"
	ErrCodeInvalidMonth     = "INVALID_MONTH"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeInvalidSnapshot  = "INVALID_SNAPSHOT"
	ErrCodeInvalidTimezone  = "INVALID_TIMEZONE"
)

// NewSessionNotFoundError は学習セッション未検出エラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定された学習セッションが見つかりません: %s", sessionID),
		Category: "session",
		Action:   "タイマーを開始し直してください。",
	}
}

// NewInvalidDurationError は学習時間が不正な場合のエラーを生成する。
func NewInvalidDurationError(minutes int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("無効な学習時間です: %d分", minutes),
		Category: "validation",
		Action:   "1分以上の学習時間を指定してください。",
	}
}

// NewDurationExceedsElapsedError は報告された学習時間が開始からの経過時間と予定時間を超える場合のエラーを生成する。
func NewDurationExceedsElapsedError(minutes, limit int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("学習時間が長すぎます: %d分（上限%d分）", minutes, limit),
		Category: "validation",
		Action:   "タイマーで計測した学習時間を指定してください。",
	}
}

// NewInvalidSubjectError は未知の科目が指定された場合のエラーを生成する。
func NewInvalidSubjectError(subject string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSubject,
		Message:  fmt.Sprintf("無効な科目です: %s", subject),
		Category: "validation",
		Action:   "科目には Math、Science、English、History、Other のいずれかを指定してください。",
	}
}

// NewSessionCanceledError はキャンセル済みセッションを完了しようとした場合のエラーを生成する。
func NewSessionCanceledError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionCanceled,
		Message:  "この学習セッションはキャンセルされています。",
		Category: "session",
		Action:   "新しいタイマーを開始してください。",
	}
}

// NewSessionCompletedError は完了済みセッションをキャンセルしようとした場合のエラーを生成する。
func NewSessionCompletedError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionCompleted,
		Message:  "この学習セッションは既に完了しています。",
		Category: "session",
		Action:   "完了済みのセッションは取り消せません。",
	}
}

// NewInvalidMonthError はカレンダーの年月が不正な場合のエラーを生成する。
func NewInvalidMonthError(year, month string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMonth,
		Message:  fmt.Sprintf("無効な年月です: year=%s month=%s", year, month),
		Category: "validation",
		Action:   "monthには1から12の整数を指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewInvalidSnapshotError はタイマー状態のスナップショットが不正な場合のエラーを生成する。
func NewInvalidSnapshotError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSnapshot,
		Message:  fmt.Sprintf("タイマー状態が不正です: %s", reason),
		Category: "validation",
		Action:   "タイマーをリセットしてください。",
	}
}

// NewInvalidTimezoneError は未知のタイムゾーンが指定された場合のエラーを生成する。
func NewInvalidTimezoneError(timezone string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimezone,
		Message:  fmt.Sprintf("無効なタイムゾーンです: %s", timezone),
		Category: "validation",
		Action:   "America/New_York のようなIANAタイムゾーン名を指定してください。",
	}
}
