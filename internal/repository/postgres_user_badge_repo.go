package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/studystreak/internal/model"
)

// PostgresUserBadgeRepo はPostgreSQLを使用した獲得バッジリポジトリ。
// 付与はPostgresStudySessionRepo.Completeのトランザクション内で行う。
type PostgresUserBadgeRepo struct {
	db *sql.DB
}

// NewPostgresUserBadgeRepo はPostgresUserBadgeRepoを生成する。
func NewPostgresUserBadgeRepo(db *sql.DB) *PostgresUserBadgeRepo {
	return &PostgresUserBadgeRepo{db: db}
}

// ListByUser はユーザーの獲得バッジを獲得日時の昇順で返す。
func (r *PostgresUserBadgeRepo) ListByUser(ctx context.Context, userID string) ([]model.UserBadge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, badge_key, COALESCE(session_id::text, ''), earned_at
		 FROM user_badges
		 WHERE user_id = $1
		 ORDER BY earned_at ASC, badge_key ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	defer rows.Close()

	var badges []model.UserBadge
	for rows.Next() {
		var b model.UserBadge
		if err := rows.Scan(&b.UserID, &b.BadgeKey, &b.SessionID, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user badge: %w", err)
		}
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user badges: %w", err)
	}
	return badges, nil
}

// compile-time interface check
var _ UserBadgeRepository = (*PostgresUserBadgeRepo)(nil)
