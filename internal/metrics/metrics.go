// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordPostView()
	RecordViewIncrementFailure()
	RecordAnalyticsEvent(eventType string)
	RecordAnalyticsFailure(eventType string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	postViews         prometheus.Counter
	viewIncrementFail prometheus.Counter
	analyticsEvents   *prometheus.CounterVec
	analyticsFail     *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	sessionsCleaned   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		postViews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lumiskin_post_views_total",
			Help: "閲覧数を加算できた記事表示の合計数",
		}),
		viewIncrementFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lumiskin_view_increment_fail_total",
			Help: "閲覧数の加算に失敗した記事表示の合計数",
		}),
		analyticsEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumiskin_analytics_events_total",
			Help: "イベント種別ごとの記録済みエンゲージメントイベント数",
		}, []string{"event_type"}),
		analyticsFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumiskin_analytics_fail_total",
			Help: "イベント種別ごとの記録失敗数",
		}, []string{"event_type"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumiskin_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lumiskin_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lumiskin_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.postViews,
		c.viewIncrementFail,
		c.analyticsEvents,
		c.analyticsFail,
		c.httpStatus,
		c.requestLatency,
		c.sessionsCleaned,
	)

	return c
}

// RecordPostView は閲覧数の加算成功を記録する。
func (c *Collector) RecordPostView() {
	c.postViews.Inc()
}

// RecordViewIncrementFailure は閲覧数の加算失敗を記録する。
func (c *Collector) RecordViewIncrementFailure() {
	c.viewIncrementFail.Inc()
}

// RecordAnalyticsEvent はイベントの記録成功を記録する。
func (c *Collector) RecordAnalyticsEvent(eventType string) {
	c.analyticsEvents.WithLabelValues(eventType).Inc()
}

// RecordAnalyticsFailure はイベントの記録失敗を記録する。
func (c *Collector) RecordAnalyticsFailure(eventType string) {
	c.analyticsFail.WithLabelValues(eventType).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsCleaned は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
