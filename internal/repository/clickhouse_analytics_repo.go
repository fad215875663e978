package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/hitoshi/lumiskin/internal/model"
)

// ClickHouseAnalyticsRepo はClickHouseを使用したイベントリポジトリ。
// ANALYTICS_STORE=clickhouse のときPostgresAnalyticsRepoの代わりに使用する。
type ClickHouseAnalyticsRepo struct {
	conn clickhouse.Conn
}

// NewClickHouseAnalyticsRepo はClickHouseAnalyticsRepoを生成する。
func NewClickHouseAnalyticsRepo(conn clickhouse.Conn) *ClickHouseAnalyticsRepo {
	return &ClickHouseAnalyticsRepo{conn: conn}
}

// Append はイベントを1件追記する。
// event_dataはJSON文字列としてString列に保存する。
func (r *ClickHouseAnalyticsRepo) Append(ctx context.Context, event *model.AnalyticsEvent) error {
	data, err := encodeEventData(event.EventData)
	if err != nil {
		return err
	}

	batch, err := r.conn.PrepareBatch(ctx,
		`INSERT INTO analytics_events (id, post_slug, event_type, event_data, occurred_at)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare analytics batch: %w", err)
	}

	if err := batch.Append(
		event.ID,
		event.PostSlug,
		string(event.EventType),
		string(data),
		event.OccurredAt.UTC(),
	); err != nil {
		batch.Abort()
		return fmt.Errorf("failed to append analytics event: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send analytics batch: %w", err)
	}
	return nil
}

// CountByType はsince以降のイベント件数を種別ごとに返す。
func (r *ClickHouseAnalyticsRepo) CountByType(ctx context.Context, since time.Time) ([]model.EventTypeCount, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT event_type, count() AS total
		 FROM analytics_events
		 WHERE occurred_at >= ?
		 GROUP BY event_type
		 ORDER BY event_type`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count analytics events: %w", err)
	}
	defer rows.Close()

	counts := []model.EventTypeCount{}
	for rows.Next() {
		var (
			eventType string
			total     uint64
		)
		if err := rows.Scan(&eventType, &total); err != nil {
			return nil, fmt.Errorf("failed to scan analytics count: %w", err)
		}
		counts = append(counts, model.EventTypeCount{EventType: model.EventType(eventType), Count: int64(total)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analytics counts: %w", err)
	}
	return counts, nil
}

// compile-time interface check
var _ AnalyticsEventRepository = (*ClickHouseAnalyticsRepo)(nil)
