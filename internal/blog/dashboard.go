package blog

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
)

// DashboardWindow は管理ダッシュボードで集計するイベントの期間。
const DashboardWindow = 30 * 24 * time.Hour

// DashboardSummary は管理ダッシュボードの集計値。
type DashboardSummary struct {
	Posts  model.PostStats
	Events []model.EventTypeCount
	Since  time.Time
}

// Dashboard は管理ダッシュボードの集計を提供する。
type Dashboard struct {
	posts  repository.PostRepository
	events repository.AnalyticsEventRepository
	now    func() time.Time
}

// NewDashboard はDashboardを生成する。
func NewDashboard(posts repository.PostRepository, events repository.AnalyticsEventRepository) *Dashboard {
	return &Dashboard{posts: posts, events: events, now: time.Now}
}

// Summary は記事の集計値と直近のイベント件数を返す。
// 全イベント種別を0件を含めて既知の順序で返す。
func (d *Dashboard) Summary(ctx context.Context) (*DashboardSummary, error) {
	stats, err := d.posts.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load post stats: %w", err)
	}

	since := d.now().UTC().Add(-DashboardWindow)
	counts, err := d.events.CountByType(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count analytics events: %w", err)
	}

	byType := make(map[model.EventType]int64, len(counts))
	for _, c := range counts {
		byType[c.EventType] += c.Count
	}
	events := make([]model.EventTypeCount, 0, len(model.EventTypes))
	for _, t := range model.EventTypes {
		events = append(events, model.EventTypeCount{EventType: t, Count: byType[t]})
	}

	return &DashboardSummary{Posts: *stats, Events: events, Since: since}, nil
}
