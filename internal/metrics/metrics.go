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
	RecordSessionStarted(subject string)
	RecordSessionCompleted(subject string, minutes int)
	RecordSessionCanceled()
	RecordBadgeAwarded(badgeKey string)
	RecordEvaluationLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordStaleSessionsCanceled(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsStarted   *prometheus.CounterVec
	sessionsCompleted *prometheus.CounterVec
	studyMinutes      prometheus.Counter
	sessionsCanceled  prometheus.Counter
	badgesAwarded     *prometheus.CounterVec
	evalLatency       prometheus.Histogram
	httpStatus        *prometheus.CounterVec
	staleCanceled     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studystreak_sessions_started_total",
			Help: "開始された学習セッションの合計数",
		}, []string{"subject"}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studystreak_sessions_completed_total",
			Help: "完了した学習セッションの合計数",
		}, []string{"subject"}),
		studyMinutes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studystreak_study_minutes_total",
			Help: "完了したセッションの学習時間（分）の合計",
		}),
		sessionsCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studystreak_sessions_canceled_total",
			Help: "キャンセルされた学習セッションの合計数",
		}),
		badgesAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studystreak_badges_awarded_total",
			Help: "バッジ別の付与数",
		}, []string{"badge"}),
		evalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "studystreak_evaluation_latency_seconds",
			Help:    "ストリーク・バッジ評価のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studystreak_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		staleCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studystreak_stale_sessions_canceled_total",
			Help: "放置により自動キャンセルされた学習セッションの合計数",
		}),
	}

	reg.MustRegister(
		c.sessionsStarted,
		c.sessionsCompleted,
		c.studyMinutes,
		c.sessionsCanceled,
		c.badgesAwarded,
		c.evalLatency,
		c.httpStatus,
		c.staleCanceled,
	)

	return c
}

// RecordSessionStarted はセッション開始を記録する。
func (c *Collector) RecordSessionStarted(subject string) {
	c.sessionsStarted.WithLabelValues(subject).Inc()
}

// RecordSessionCompleted はセッション完了と学習時間を記録する。
func (c *Collector) RecordSessionCompleted(subject string, minutes int) {
	c.sessionsCompleted.WithLabelValues(subject).Inc()
	c.studyMinutes.Add(float64(minutes))
}

// RecordSessionCanceled はセッションのキャンセルを記録する。
func (c *Collector) RecordSessionCanceled() {
	c.sessionsCanceled.Inc()
}

// RecordBadgeAwarded はバッジ付与を記録する。
func (c *Collector) RecordBadgeAwarded(badgeKey string) {
	c.badgesAwarded.WithLabelValues(badgeKey).Inc()
}

// RecordEvaluationLatency は評価処理のレイテンシを記録する。
func (c *Collector) RecordEvaluationLatency(duration time.Duration) {
	c.evalLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordStaleSessionsCanceled はクリーンアップで自動キャンセルした件数を記録する。
func (c *Collector) RecordStaleSessionsCanceled(count int64) {
	c.staleCanceled.Add(float64(count))
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
