package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
)

// studySessionColumns はstudy_sessionsのSELECT対象カラム。scanStudySessionと順序を合わせる。
const studySessionColumns = `id, user_id, subject, status, started_at, session_date,
	planned_minutes, duration_minutes, completed, completed_at, notes,
	completion_result, created_at, updated_at`

// queryer は*sql.DBと*sql.Txの共通の読み取り操作。
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通のScan操作。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStudySessionRepo はPostgreSQLを使用した学習セッションリポジトリ。
type PostgresStudySessionRepo struct {
	db *sql.DB
}

// NewPostgresStudySessionRepo はPostgresStudySessionRepoを生成する。
func NewPostgresStudySessionRepo(db *sql.DB) *PostgresStudySessionRepo {
	return &PostgresStudySessionRepo{db: db}
}

func scanStudySession(row rowScanner) (*model.StudySession, error) {
	s := &model.StudySession{}
	var completedAt sql.NullTime
	var result []byte
	err := row.Scan(
		&s.ID, &s.UserID, &s.Subject, &s.Status, &s.StartedAt, &s.SessionDate,
		&s.PlannedMinutes, &s.DurationMinutes, &s.Completed, &completedAt, &s.Notes,
		&result, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	if len(result) > 0 {
		s.CompletionResult = result
	}
	return s, nil
}

// Create はactiveな学習セッションを作成する。
// 同じユーザーの既存のactiveセッションは同一トランザクションでキャンセルされる。
func (r *PostgresStudySessionRepo) Create(ctx context.Context, session *model.StudySession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 前回のタイマーを破棄
	_, err = tx.ExecContext(ctx,
		`UPDATE study_sessions SET status = 'canceled', updated_at = $2
		 WHERE user_id = $1 AND status = 'active'`,
		session.UserID, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel previous active session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO study_sessions
		   (id, user_id, subject, status, started_at, session_date, planned_minutes, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, 'active', $4, $5, $6, $7, $8, $9)`,
		session.ID, session.UserID, session.Subject, session.StartedAt, session.SessionDate,
		session.PlannedMinutes, session.Notes, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert study session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	session.Status = model.SessionStatusActive
	return nil
}

// FindByID は指定IDの学習セッションを取得する。見つからない場合はnilを返す。
func (r *PostgresStudySessionRepo) FindByID(ctx context.Context, id string) (*model.StudySession, error) {
	s, err := scanStudySession(r.db.QueryRowContext(ctx,
		`SELECT `+studySessionColumns+` FROM study_sessions WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find study session: %w", err)
	}
	return s, nil
}

// Cancel はactiveな学習セッションをcanceledに遷移させる。
func (r *PostgresStudySessionRepo) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE study_sessions SET status = 'canceled', updated_at = $2
		 WHERE id = $1 AND status = 'active'`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel study session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Complete はactiveな学習セッションをcompletedに遷移させ、結果の保存とバッジ付与を行う。
// 条件付きUPDATEで遷移できたリクエストだけがcomputeを実行する。
// 同時に完了した別リクエストは行ロックの解放後に0件更新となりfalseを受け取る。
func (r *PostgresStudySessionRepo) Complete(ctx context.Context, req CompleteRequest, compute CompletionFunc) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	session, err := scanStudySession(tx.QueryRowContext(ctx,
		`UPDATE study_sessions
		 SET status = 'completed', completed = true, duration_minutes = $2,
		     completed_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'active'
		 RETURNING `+studySessionColumns,
		req.SessionID, req.DurationMinutes, req.CompletedAt,
	))
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to complete study session: %w", err)
	}

	completed, err := listCompleted(ctx, tx, session.UserID)
	if err != nil {
		return false, err
	}
	awarded, err := awardedKeys(ctx, tx, session.UserID)
	if err != nil {
		return false, err
	}

	result, awards, err := compute(CompletionInput{
		Session:   session,
		Completed: completed,
		Awarded:   awarded,
	})
	if err != nil {
		return false, err
	}

	for _, a := range awards {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_badges (user_id, badge_key, session_id, earned_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, badge_key) DO NOTHING`,
			a.UserID, a.BadgeKey, a.SessionID, a.EarnedAt,
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert user badge: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE study_sessions SET completion_result = $2 WHERE id = $1`,
		session.ID, result,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store completion result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ListCompleted はユーザーの完了済みセッションを開始日時の昇順で返す。
func (r *PostgresStudySessionRepo) ListCompleted(ctx context.Context, userID string) ([]model.CompletedSession, error) {
	return listCompleted(ctx, r.db, userID)
}

func listCompleted(ctx context.Context, q queryer, userID string) ([]model.CompletedSession, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, subject, session_date, started_at, duration_minutes
		 FROM study_sessions
		 WHERE user_id = $1 AND status = 'completed'
		 ORDER BY started_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.CompletedSession
	for rows.Next() {
		var s model.CompletedSession
		if err := rows.Scan(&s.ID, &s.Subject, &s.SessionDate, &s.StartedAt, &s.DurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan completed session: %w", err)
		}
		s.StartedAt = s.StartedAt.UTC()
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completed sessions: %w", err)
	}
	return sessions, nil
}

func awardedKeys(ctx context.Context, q queryer, userID string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT badge_key FROM user_badges WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list awarded badges: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan badge key: %w", err)
		}
		keys[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate awarded badges: %w", err)
	}
	return keys, nil
}

// ListRecent はユーザーのキャンセル以外のセッションを新しい順に最大limit件返す。
func (r *PostgresStudySessionRepo) ListRecent(ctx context.Context, userID string, limit int) ([]*model.StudySession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+studySessionColumns+`
		 FROM study_sessions
		 WHERE user_id = $1 AND status <> 'canceled'
		 ORDER BY started_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.StudySession
	for rows.Next() {
		s, err := scanStudySession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent sessions: %w", err)
	}
	return sessions, nil
}

// compile-time interface check
var _ StudySessionRepository = (*PostgresStudySessionRepo)(nil)
