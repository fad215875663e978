package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lumiskin/internal/model"
)

// AnalyticsRecorder は解析ハンドラーが必要とするイベント記録インターフェース。
type AnalyticsRecorder interface {
	Record(ctx context.Context, postSlug, eventType string, eventData map[string]any) error
}

// AnalyticsHandler はエンゲージメントイベント受信のHTTPハンドラー。
type AnalyticsHandler struct {
	recorder AnalyticsRecorder
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(recorder AnalyticsRecorder) *AnalyticsHandler {
	return &AnalyticsHandler{recorder: recorder}
}

// recordEventRequest はイベント送信リクエストのボディ。
type recordEventRequest struct {
	EventType string         `json:"eventType" validate:"required"`
	EventData map[string]any `json:"eventData"`
}

var acceptedResponse = map[string]string{"status": "accepted"}

// RecordEvent はイベントを1件記録する。
// 入力不正は400を返すが、記録自体の失敗はログのみに残し202を返す。
// POST /api/blog/posts/{slug}/analytics
func (h *AnalyticsHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	err := h.recorder.Record(r.Context(), chi.URLParam(r, "slug"), req.EventType, req.EventData)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			handleServiceError(w, r, apiErr)
			return
		}
		slog.Warn("analytics event dropped",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse)
}
