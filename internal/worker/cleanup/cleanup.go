// Package cleanup は放置された学習セッションと期限切れデータの定期削除ジョブを提供する。
// 開始から一定時間が経過したactiveセッションをキャンセル扱いにし、
// 保持期間を超えたキャンセル済みセッションと期限切れのログインセッションを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// StaleRecorder は自動キャンセル件数の記録先。
type StaleRecorder interface {
	RecordStaleSessionsCanceled(count int64)
}

const (
	cancelStaleQuery = `UPDATE study_sessions
		SET status = 'canceled', updated_at = now()
		WHERE status = 'active' AND started_at < now() - $1::interval`
	deleteCanceledQuery = `DELETE FROM study_sessions
		WHERE status = 'canceled' AND updated_at < now() - $1::interval`
	deleteExpiredLoginQuery = `DELETE FROM sessions WHERE expires_at <= now()`
)

// Result は1回の実行で処理した件数。
type Result struct {
	StaleCanceled   int64
	CanceledDeleted int64
	ExpiredLogins   int64
}

// CleanupJob は定期実行のバッチジョブ。各ステップは冪等。
type CleanupJob struct {
	db       Executor
	logger   *slog.Logger
	recorder StaleRecorder

	StaleAfter            time.Duration // activeのまま放置とみなすまでの時間（デフォルト: 24時間）
	CanceledRetentionDays int           // キャンセル済みセッションの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(db Executor, logger *slog.Logger, recorder StaleRecorder) *CleanupJob {
	return &CleanupJob{
		db:                    db,
		logger:                logger,
		recorder:              recorder,
		StaleAfter:            24 * time.Hour,
		CanceledRetentionDays: 30,
	}
}

// Run は放置セッションのキャンセル、キャンセル済みセッションの削除、
// 期限切れログインセッションの削除を順に実行する。
// いずれかのステップが失敗した時点でエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	staleInterval := fmt.Sprintf("%d seconds", int64(j.StaleAfter/time.Second))
	n, err := j.exec(ctx, "cancel_stale", cancelStaleQuery, staleInterval)
	if err != nil {
		return nil, err
	}
	res.StaleCanceled = n
	if j.recorder != nil && n > 0 {
		j.recorder.RecordStaleSessionsCanceled(n)
	}

	retention := fmt.Sprintf("%d days", j.CanceledRetentionDays)
	if res.CanceledDeleted, err = j.exec(ctx, "delete_canceled", deleteCanceledQuery, retention); err != nil {
		return nil, err
	}

	if res.ExpiredLogins, err = j.exec(ctx, "delete_expired_logins", deleteExpiredLoginQuery); err != nil {
		return nil, err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("stale_canceled", res.StaleCanceled),
		slog.Int64("canceled_deleted", res.CanceledDeleted),
		slog.Int64("expired_logins", res.ExpiredLogins),
		slog.String("stale_after", j.StaleAfter.String()),
		slog.Int("retention_days", j.CanceledRetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return res, nil
}

func (j *CleanupJob) exec(ctx context.Context, step, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("クリーンアップ(%s)の実行に失敗: %w", step, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("処理件数の取得に失敗しました",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("処理件数(%s)の取得に失敗: %w", step, err)
	}
	return n, nil
}

// RunEvery はctxがキャンセルされるまでintervalごとにRunを実行する。
// 起動直後に1回実行する。個々の実行エラーはログに記録して継続する。
func (j *CleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("クリーンアップジョブをスキップしました", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
		}
	}
}
