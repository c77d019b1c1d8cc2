package transcript

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketpod/signalman/internal/model"
)

// MetricsRecorder はカスケードの観測値を記録する。
type MetricsRecorder interface {
	TranscriptAttempt(strategy string)
	TranscriptSuccess(strategy string)
	TranscriptUnavailable()
	TranscriptDuration(seconds float64)
}

// nopMetrics は何も記録しない。レコーダ未指定時に使う。
type nopMetrics struct{}

func (nopMetrics) TranscriptAttempt(string)  {}
func (nopMetrics) TranscriptSuccess(string)  {}
func (nopMetrics) TranscriptUnavailable()    {}
func (nopMetrics) TranscriptDuration(float64) {}

// fetchFunc は単一の取得試行。非空のトランスクリプトを返せば成功。
type fetchFunc func(ctx context.Context, videoID string) (string, error)

type strategy struct {
	name  string
	fetch fetchFunc
}

// Cascade は取得戦略を固定順で試行し、最初の成功結果を返す。
// 各試行の失敗は記録するだけで伝播させない。全戦略が失敗した場合のみ
// model.ErrTranscriptUnavailableを返す。
type Cascade struct {
	strategies     []strategy
	attemptTimeout time.Duration
	logger         *slog.Logger
	metrics        MetricsRecorder
}

// NewCascade はInnertube経路を先頭に、視聴ページスクレイプの言語バリアントを
// 続けて試行するカスケードを作成する。最後に言語制約なしの試行を再度行う。
func NewCascade(inner *InnertubeClient, scraper *PageScraper, attemptTimeout time.Duration, logger *slog.Logger, metrics MetricsRecorder) *Cascade {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	strategies := []strategy{
		{name: "innertube", fetch: inner.FetchTranscript},
		{name: "scrape", fetch: func(ctx context.Context, videoID string) (string, error) {
			return scraper.FetchTranscript(ctx, videoID, "")
		}},
	}
	for _, lang := range defaultLanguages {
		lang := lang
		strategies = append(strategies, strategy{
			name: "scrape:" + lang,
			fetch: func(ctx context.Context, videoID string) (string, error) {
				return scraper.FetchTranscript(ctx, videoID, lang)
			},
		})
	}
	// 最終手段として言語制約なしでもう一度試す
	strategies = append(strategies, strategy{
		name: "scrape:any",
		fetch: func(ctx context.Context, videoID string) (string, error) {
			return scraper.FetchTranscript(ctx, videoID, "")
		},
	})

	return &Cascade{
		strategies:     strategies,
		attemptTimeout: attemptTimeout,
		logger:         logger,
		metrics:        metrics,
	}
}

// Fetch は動画IDのトランスクリプトを取得する。
// 全戦略が失敗した場合はmodel.ErrTranscriptUnavailableを返す。
// 呼び出し元コンテキストのキャンセルは即座に伝播する。
func (c *Cascade) Fetch(ctx context.Context, videoID string) (string, error) {
	start := time.Now()
	defer func() {
		c.metrics.TranscriptDuration(time.Since(start).Seconds())
	}()

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		c.metrics.TranscriptAttempt(s.name)

		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		text, err := s.fetch(attemptCtx, videoID)
		cancel()

		if err == nil && text != "" {
			c.logger.Info("トランスクリプト取得成功",
				slog.String("video_id", videoID),
				slog.String("strategy", s.name),
				slog.Int("length", len(text)))
			c.metrics.TranscriptSuccess(s.name)
			return text, nil
		}

		if err != nil {
			c.logger.Warn("トランスクリプト取得試行に失敗",
				slog.String("video_id", videoID),
				slog.String("strategy", s.name),
				slog.String("error", err.Error()))
		} else {
			c.logger.Warn("トランスクリプト取得試行が空の結果",
				slog.String("video_id", videoID),
				slog.String("strategy", s.name))
		}
	}

	c.logger.Warn("全戦略でトランスクリプト取得に失敗",
		slog.String("video_id", videoID))
	c.metrics.TranscriptUnavailable()
	return "", model.ErrTranscriptUnavailable
}
