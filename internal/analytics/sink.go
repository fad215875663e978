// Package analytics は記事ページから送られるエンゲージメントイベントの記録を提供する。
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
)

// EventMetrics はイベント記録の結果を集計する。
type EventMetrics interface {
	RecordAnalyticsEvent(eventType string)
	RecordAnalyticsFailure(eventType string)
}

// Sink はイベントを1件ずつ追記する。
// 重複排除やscroll深度の単調性チェックは行わない。
type Sink struct {
	events  repository.AnalyticsEventRepository
	metrics EventMetrics
	now     func() time.Time
}

// NewSink はSinkを生成する。metricsがnilの場合は集計しない。
func NewSink(events repository.AnalyticsEventRepository, metrics EventMetrics) *Sink {
	return &Sink{events: events, metrics: metrics, now: time.Now}
}

// Record はイベント種別を検証して1件追記する。
// 空のスラッグはMISSING_SLUG、未知の種別はINVALID_EVENT_TYPEになる。
// ストレージ障害はラップしたエラーとして返し、利用者への応答可否は呼び出し側が決める。
func (s *Sink) Record(ctx context.Context, postSlug, eventType string, eventData map[string]any) error {
	// 1. 入力の検証（ストレージには触れない）
	postSlug = strings.TrimSpace(postSlug)
	if postSlug == "" {
		return model.NewMissingSlugError()
	}
	kind, err := model.ParseEventType(eventType)
	if err != nil {
		return model.NewInvalidEventTypeError(eventType)
	}
	if eventData == nil {
		eventData = map[string]any{}
	}

	// 2. 追記
	event := &model.AnalyticsEvent{
		ID:         uuid.NewString(),
		PostSlug:   postSlug,
		EventType:  kind,
		EventData:  eventData,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.RecordAnalyticsFailure(string(kind))
		}
		slog.Error("failed to record analytics event",
			slog.String("post_slug", postSlug),
			slog.String("event_type", string(kind)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to append analytics event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordAnalyticsEvent(string(kind))
	}
	return nil
}
