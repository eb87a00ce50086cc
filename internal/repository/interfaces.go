// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithSession は訪問者ユーザーとログインセッションを同一トランザクションで作成する。
	CreateWithSession(ctx context.Context, user *model.User, session *model.Session) error

	// UpdateTimezone はユーザーのタイムゾーンを更新する。
	UpdateTimezone(ctx context.Context, id, timezone string) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend はセッションの有効期限を延長する。期限切れまたは存在しない場合はfalseを返す。
	Extend(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// StudySessionRepository は学習セッションの永続化インターフェース。
type StudySessionRepository interface {
	// Create はactiveな学習セッションを作成する。
	// 同じユーザーの既存のactiveセッションは同一トランザクションでキャンセルされる。
	Create(ctx context.Context, session *model.StudySession) error

	// FindByID は指定IDの学習セッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.StudySession, error)

	// Cancel はactiveな学習セッションをcanceledに遷移させる。
	// 遷移した場合はtrue、activeでなかった場合はfalseを返す。
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)

	// Complete はactiveな学習セッションをcompletedに遷移させ、
	// computeで算出した結果の保存とバッジ付与を同一トランザクションで行う。
	// 既に遷移済みの場合はcomputeを呼ばずにfalseを返す。
	Complete(ctx context.Context, req CompleteRequest, compute CompletionFunc) (bool, error)

	// ListCompleted はユーザーの完了済みセッションを開始日時の昇順で返す。
	// StartedAtはUTCで返す。
	ListCompleted(ctx context.Context, userID string) ([]model.CompletedSession, error)

	// ListRecent はユーザーのキャンセル以外のセッションを新しい順に最大limit件返す。
	ListRecent(ctx context.Context, userID string, limit int) ([]*model.StudySession, error)
}

// CompleteRequest は学習セッション完了の入力。
type CompleteRequest struct {
	SessionID       string
	DurationMinutes int
	CompletedAt     time.Time
}

// CompletionInput は完了トランザクション内で読み取った評価の材料。
type CompletionInput struct {
	Session   *model.StudySession      // 完了に遷移した直後のセッション
	Completed []model.CompletedSession // 今回のセッションを含む完了済みセッション
	Awarded   map[string]bool          // 付与済みのバッジキー
}

// CompletionFunc は完了結果（JSON）と新たに付与するバッジを算出する。
type CompletionFunc func(in CompletionInput) (result []byte, awards []model.UserBadge, err error)

// UserBadgeRepository は獲得バッジの永続化インターフェース。
type UserBadgeRepository interface {
	// ListByUser はユーザーの獲得バッジを獲得日時の昇順で返す。
	ListByUser(ctx context.Context, userID string) ([]model.UserBadge, error)
}
