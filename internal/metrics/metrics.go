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
// ハンドラーやワーカー、取り込みサービスから利用する。
type MetricsCollector interface {
	RecordPostSaved(platform string)
	RecordPostSkipped(platform string, reason string)
	RecordActorRunSuccess(platform string)
	RecordActorRunFailure(platform string, reason string)
	RecordActorRunLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordHistoryRecorded(platform string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	postsSaved      *prometheus.CounterVec
	postsSkipped    *prometheus.CounterVec
	actorRunSuccess *prometheus.CounterVec
	actorRunFail    *prometheus.CounterVec
	actorRunLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	historyRecorded *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		postsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscope_posts_saved_total",
			Help: "アップサートに成功した投稿の合計数",
		}, []string{"platform"}),
		postsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscope_posts_skipped_total",
			Help: "スキップされた投稿の合計数（理由別）",
		}, []string{"platform", "reason"}),
		actorRunSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscope_actor_run_success_total",
			Help: "スクレイピングアクター実行成功の合計数",
		}, []string{"platform"}),
		actorRunFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscope_actor_run_fail_total",
			Help: "スクレイピングアクター実行失敗の合計数（理由別）",
		}, []string{"platform", "reason"}),
		actorRunLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "trendscope_actor_run_latency_seconds",
			Help: "スクレイピングアクター実行のレイテンシ（秒）",
			// アクター実行は数十秒かかるため、デフォルトより広いバケットを使う
			Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscope_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		historyRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscope_history_recorded_total",
			Help: "記録された検索履歴の合計数",
		}, []string{"platform"}),
	}

	reg.MustRegister(
		c.postsSaved,
		c.postsSkipped,
		c.actorRunSuccess,
		c.actorRunFail,
		c.actorRunLatency,
		c.httpStatus,
		c.historyRecorded,
	)

	return c
}

// RecordPostSaved は投稿のアップサート成功を記録する。
func (c *Collector) RecordPostSaved(platform string) {
	c.postsSaved.WithLabelValues(platform).Inc()
}

// RecordPostSkipped は投稿のスキップを理由付きで記録する。
func (c *Collector) RecordPostSkipped(platform string, reason string) {
	c.postsSkipped.WithLabelValues(platform, reason).Inc()
}

// RecordActorRunSuccess はアクター実行成功を記録する。
func (c *Collector) RecordActorRunSuccess(platform string) {
	c.actorRunSuccess.WithLabelValues(platform).Inc()
}

// RecordActorRunFailure はアクター実行失敗を理由付きで記録する。
func (c *Collector) RecordActorRunFailure(platform string, reason string) {
	c.actorRunFail.WithLabelValues(platform, reason).Inc()
}

// RecordActorRunLatency はアクター実行のレイテンシを記録する。
func (c *Collector) RecordActorRunLatency(duration time.Duration) {
	c.actorRunLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHistoryRecorded は検索履歴の記録を記録する。
func (c *Collector) RecordHistoryRecorded(platform string) {
	c.historyRecorded.WithLabelValues(platform).Inc()
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
