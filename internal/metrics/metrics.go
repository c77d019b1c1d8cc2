// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// トランスクリプト取得カスケード、HTTPリクエスト、フィード取得ワーカーの
// 各所から記録される。
type Collector struct {
	transcriptAttempts    *prometheus.CounterVec
	transcriptSuccess     *prometheus.CounterVec
	transcriptUnavailable prometheus.Counter
	transcriptDuration    prometheus.Histogram
	httpRequests          *prometheus.CounterVec
	httpDuration          *prometheus.HistogramVec
	feedFetchSuccess      prometheus.Counter
	feedFetchFailure      prometheus.Counter
	videosDiscovered      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transcriptAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalman_transcript_attempts_total",
			Help: "トランスクリプト取得試行の合計数（戦略別）",
		}, []string{"strategy"}),
		transcriptSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalman_transcript_success_total",
			Help: "トランスクリプト取得成功の合計数（戦略別）",
		}, []string{"strategy"}),
		transcriptUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalman_transcript_unavailable_total",
			Help: "全戦略が失敗しトランスクリプトが取得できなかった合計数",
		}),
		transcriptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalman_transcript_duration_seconds",
			Help:    "トランスクリプト取得カスケード全体の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalman_http_requests_total",
			Help: "HTTPリクエストの合計数",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		feedFetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalman_feed_fetch_success_total",
			Help: "チャンネルフィード取得成功の合計数",
		}),
		feedFetchFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalman_feed_fetch_failure_total",
			Help: "チャンネルフィード取得失敗の合計数",
		}),
		videosDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalman_videos_discovered_total",
			Help: "フィードから発見された新規動画の合計数",
		}),
	}

	reg.MustRegister(
		c.transcriptAttempts,
		c.transcriptSuccess,
		c.transcriptUnavailable,
		c.transcriptDuration,
		c.httpRequests,
		c.httpDuration,
		c.feedFetchSuccess,
		c.feedFetchFailure,
		c.videosDiscovered,
	)

	return c
}

// TranscriptAttempt はトランスクリプト取得試行を戦略別に記録する。
func (c *Collector) TranscriptAttempt(strategy string) {
	c.transcriptAttempts.WithLabelValues(strategy).Inc()
}

// TranscriptSuccess はトランスクリプト取得成功を戦略別に記録する。
func (c *Collector) TranscriptSuccess(strategy string) {
	c.transcriptSuccess.WithLabelValues(strategy).Inc()
}

// TranscriptUnavailable は全戦略失敗を記録する。
func (c *Collector) TranscriptUnavailable() {
	c.transcriptUnavailable.Inc()
}

// TranscriptDuration はカスケード全体の所要時間を記録する。
func (c *Collector) TranscriptDuration(seconds float64) {
	c.transcriptDuration.Observe(seconds)
}

// HTTPRequest はHTTPリクエストの完了を記録する。
func (c *Collector) HTTPRequest(method, path string, status int, durationSeconds float64) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// FeedFetchSuccess はチャンネルフィード取得成功を記録する。
func (c *Collector) FeedFetchSuccess() {
	c.feedFetchSuccess.Inc()
}

// FeedFetchFailure はチャンネルフィード取得失敗を記録する。
func (c *Collector) FeedFetchFailure() {
	c.feedFetchFailure.Inc()
}

// VideosDiscovered はフィードから発見された新規動画数を記録する。
func (c *Collector) VideosDiscovered(count int) {
	c.videosDiscovered.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
