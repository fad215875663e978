// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// EventType は記事ページから送信されるエンゲージメントイベントの種別を表す。
type EventType string

const (
	// EventTypePageview はページ閲覧イベント。
	EventTypePageview EventType = "pageview"
	// EventTypeScroll はスクロール深度イベント。
	// クライアントは25%刻みで深度が増えたときのみ送信するが、サーバーは単調性を仮定しない。
	EventTypeScroll EventType = "scroll"
	// EventTypeProductClick は記事内の商品リンククリックイベント。
	EventTypeProductClick EventType = "product_click"
)

// EventTypes は受け付けるイベント種別の一覧。
var EventTypes = []EventType{EventTypePageview, EventTypeScroll, EventTypeProductClick}

// ParseEventType は文字列をEventTypeに変換する。
// 未知の種別はエラーを返す。
func ParseEventType(s string) (EventType, error) {
	for _, t := range EventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type: %q", s)
}

// AnalyticsEvent は記事に紐づくエンゲージメントイベントを表す。
// 追記のみで、更新・削除はしない。
type AnalyticsEvent struct {
	ID         string
	PostSlug   string
	EventType  EventType
	EventData  map[string]any
	OccurredAt time.Time
}

// EventTypeCount はイベント種別ごとの件数を表す。
type EventTypeCount struct {
	EventType EventType
	Count     int64
}
