package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/lumiskin/internal/model"
)

// PostgresAnalyticsRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresAnalyticsRepo struct {
	db *sql.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sql.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

// Append はイベントを1件追記する。
// event_dataは受信した内容をそのままJSONBとして保存する。
func (r *PostgresAnalyticsRepo) Append(ctx context.Context, event *model.AnalyticsEvent) error {
	data, err := encodeEventData(event.EventData)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, post_slug, event_type, event_data, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.PostSlug, string(event.EventType), data, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return nil
}

// CountByType はsince以降のイベント件数を種別ごとに返す。
func (r *PostgresAnalyticsRepo) CountByType(ctx context.Context, since time.Time) ([]model.EventTypeCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*)
		 FROM analytics_events
		 WHERE occurred_at >= $1
		 GROUP BY event_type
		 ORDER BY event_type`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count analytics events: %w", err)
	}
	defer rows.Close()

	counts := []model.EventTypeCount{}
	for rows.Next() {
		var (
			eventType string
			count     int64
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan analytics count: %w", err)
		}
		counts = append(counts, model.EventTypeCount{EventType: model.EventType(eventType), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analytics counts: %w", err)
	}
	return counts, nil
}

// encodeEventData はイベント付随データをJSONに変換する。nilは空オブジェクトとして扱う。
func encodeEventData(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event data: %w", err)
	}
	return b, nil
}

// compile-time interface check
var _ AnalyticsEventRepository = (*PostgresAnalyticsRepo)(nil)
