package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseConfig はClickHouse接続設定を保持する。
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// clickHouseSchema はイベント保存用テーブルのDDL。
// PostgreSQLのanalytics_eventsと同じ列構成でMergeTreeに追記する。
const clickHouseSchema = `
	CREATE TABLE IF NOT EXISTS analytics_events (
		id          String,
		post_slug   String,
		event_type  LowCardinality(String),
		event_data  String,
		occurred_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	ORDER BY (post_slug, occurred_at)
`

// OpenClickHouse はClickHouseへのネイティブTCP接続を開き、疎通確認とテーブル作成を行う。
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (clickhouse.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "lumiskin", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	if err := conn.Exec(pingCtx, clickHouseSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create clickhouse schema: %w", err)
	}

	return conn, nil
}
