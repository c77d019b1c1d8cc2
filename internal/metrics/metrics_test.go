package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketpod/signalman/internal/middleware"
	"github.com/marketpod/signalman/internal/transcript"
)

// CollectorがカスケードとHTTPロギングの両方のレコーダーとして使えること
var (
	_ transcript.MetricsRecorder     = (*Collector)(nil)
	_ middleware.HTTPMetricsRecorder = (*Collector)(nil)
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("メトリクスの収集に失敗: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			var sum float64
			for _, m := range mf.GetMetric() {
				sum += m.GetCounter().GetValue()
			}
			return sum
		}
	}
	t.Fatalf("メトリクス %q が見つからない", name)
	return 0
}

// TestTranscriptCounters 戦略別カウンタの増加
func TestTranscriptCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.TranscriptAttempt("innertube")
	c.TranscriptAttempt("innertube")
	c.TranscriptAttempt("scrape")
	c.TranscriptSuccess("scrape")
	c.TranscriptUnavailable()

	if got := counterValue(t, reg, "signalman_transcript_attempts_total"); got != 3 {
		t.Errorf("attempts = %v, want 3", got)
	}
	if got := counterValue(t, reg, "signalman_transcript_success_total"); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := counterValue(t, reg, "signalman_transcript_unavailable_total"); got != 1 {
		t.Errorf("unavailable = %v, want 1", got)
	}
}

// TestTranscriptAttemptLabels 戦略ラベルが独立に集計されること
func TestTranscriptAttemptLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.TranscriptAttempt("innertube")
	c.TranscriptAttempt("scrape:en")
	c.TranscriptAttempt("scrape:en")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("メトリクスの収集に失敗: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != "signalman_transcript_attempts_total" {
			continue
		}
		if len(mf.GetMetric()) != 2 {
			t.Fatalf("ラベル数 = %d, want 2", len(mf.GetMetric()))
		}
		for _, m := range mf.GetMetric() {
			label := m.GetLabel()[0].GetValue()
			val := m.GetCounter().GetValue()
			switch label {
			case "innertube":
				if val != 1 {
					t.Errorf("innertube = %v, want 1", val)
				}
			case "scrape:en":
				if val != 2 {
					t.Errorf("scrape:en = %v, want 2", val)
				}
			default:
				t.Errorf("予期しないラベル: %s", label)
			}
		}
	}
}

// TestTranscriptDuration ヒストグラムへの記録
func TestTranscriptDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.TranscriptDuration(0.5)
	c.TranscriptDuration(3.0)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("メトリクスの収集に失敗: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "signalman_transcript_duration_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			if h.GetSampleSum() < 3.4 || h.GetSampleSum() > 3.6 {
				t.Errorf("sample_sum = %v, want ~3.5", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("signalman_transcript_duration_secondsが見つからない")
	}
}

// TestHTTPRequest メソッド・パス・ステータス別の集計
func TestHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.HTTPRequest(http.MethodGet, "/api/contents", 200, 0.01)
	c.HTTPRequest(http.MethodGet, "/api/contents", 200, 0.02)
	c.HTTPRequest(http.MethodPost, "/api/contents", 422, 1.5)

	if got := counterValue(t, reg, "signalman_http_requests_total"); got != 3 {
		t.Errorf("http_requests = %v, want 3", got)
	}
}

// TestFeedFetchCounters ワーカー用カウンタの増加
func TestFeedFetchCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.FeedFetchSuccess()
	c.FeedFetchSuccess()
	c.FeedFetchFailure()
	c.VideosDiscovered(4)
	c.VideosDiscovered(1)

	if got := counterValue(t, reg, "signalman_feed_fetch_success_total"); got != 2 {
		t.Errorf("fetch_success = %v, want 2", got)
	}
	if got := counterValue(t, reg, "signalman_feed_fetch_failure_total"); got != 1 {
		t.Errorf("fetch_failure = %v, want 1", got)
	}
	if got := counterValue(t, reg, "signalman_videos_discovered_total"); got != 5 {
		t.Errorf("videos_discovered = %v, want 5", got)
	}
}

// TestMetricsHandler /metricsエンドポイントがPrometheus形式で返すこと
func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.TranscriptAttempt("innertube")
	c.TranscriptSuccess("innertube")
	c.HTTPRequest(http.MethodGet, "/api/contents", 200, 0.01)
	c.FeedFetchSuccess()

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expected := []string{
		"signalman_transcript_attempts_total",
		"signalman_transcript_success_total",
		"signalman_http_requests_total",
		"signalman_feed_fetch_success_total",
	}
	for _, name := range expected {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("レスポンスに %q が含まれるべき", name)
		}
	}
}
