// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 有効期限を猶予期間より前に過ぎたセッションを一括で削除する。
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

// Metrics は削除件数を記録するインターフェース。
type Metrics interface {
	RecordSessionsCleaned(count int64)
}

type nopMetrics struct{}

func (nopMetrics) RecordSessionsCleaned(int64) {}

// SessionCleanupJob は期限切れセッションの削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type SessionCleanupJob struct {
	db      Executor
	logger  *slog.Logger
	metrics Metrics
	// GraceMinutes は有効期限切れから削除までの猶予（分）。
	// 期限切れ直後のセッションはSessionRepository.FindByIDがnilを返すため、猶予中も認証には使えない。
	GraceMinutes int
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
// metricsがnilの場合は記録しない。デフォルトの猶予は60分。
func NewSessionCleanupJob(db Executor, logger *slog.Logger, metrics Metrics) *SessionCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SessionCleanupJob{
		db:           db,
		logger:       logger,
		metrics:      metrics,
		GraceMinutes: 60,
	}
}

// Run は猶予期間を過ぎた期限切れセッションを削除し、削除件数を返す。
func (j *SessionCleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	interval := fmt.Sprintf("%d minutes", j.GraceMinutes)

	query := `DELETE FROM sessions WHERE expires_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("grace_minutes", j.GraceMinutes),
		)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to read deleted session count",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	j.metrics.RecordSessionsCleaned(deletedCount)

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("grace_minutes", j.GraceMinutes),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}

// Start はintervalごとにRunを実行する。起動直後にも1回実行する。
// ctxがキャンセルされるまでブロックする。個々の実行エラーはログのみに残して継続する。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.logger.Info("session cleanup worker started", slog.Duration("interval", interval))

	_, _ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session cleanup worker stopped")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
