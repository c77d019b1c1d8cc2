// Package ingest は監視チャンネルのバックグラウンド取り込みを提供する。
// スケジューラ、フィードフェッチャー、リトライ/バックオフ戦略を含む。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/repository"
	"github.com/marketpod/signalman/internal/transcript"
)

// VideoIngester は新着動画の取り込みインターフェース。
type VideoIngester interface {
	Ingest(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// ContentChecker は動画の取り込み済み判定のインターフェース。
type ContentChecker interface {
	ExistsByVideoID(ctx context.Context, videoID string) (bool, error)
}

// FetchMetrics はフェッチワーカーのメトリクス記録インターフェース。
type FetchMetrics interface {
	FeedFetchSuccess()
	FeedFetchFailure()
	VideosDiscovered(count int)
}

// nopFetchMetrics はメトリクス未設定時のno-op実装。
type nopFetchMetrics struct{}

func (nopFetchMetrics) FeedFetchSuccess()    {}
func (nopFetchMetrics) FeedFetchFailure()    {}
func (nopFetchMetrics) VideosDiscovered(int) {}

// Fetcher は個別チャンネルのAtomフィードをフェッチし、新着動画を取り込む。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、gofeedによるパースを行う。
type Fetcher struct {
	channels    repository.ChannelRepository
	contents    ContentChecker
	ingester    VideoIngester
	ssrfGuard   SSRFValidator
	logger      *slog.Logger
	metrics     FetchMetrics
	timeout     time.Duration
	maxBodySize int64
	interval    time.Duration
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// metricsがnilの場合はno-op実装を使用する。
func NewFetcher(
	channels repository.ChannelRepository,
	contents ContentChecker,
	ingester VideoIngester,
	ssrfGuard SSRFValidator,
	logger *slog.Logger,
	metrics FetchMetrics,
	timeout time.Duration,
	maxBodySize int64,
	interval time.Duration,
) *Fetcher {
	if metrics == nil {
		metrics = nopFetchMetrics{}
	}
	return &Fetcher{
		channels:    channels,
		contents:    contents,
		ingester:    ingester,
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		metrics:     metrics,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		interval:    interval,
	}
}

// Fetch はチャンネルのフィードをフェッチし、結果に応じてチャンネル状態を更新する。
// ChannelFetcherServiceインターフェースを実装する。
func (f *Fetcher) Fetch(ctx context.Context, ch *model.Channel) error {
	start := time.Now()

	if err := f.ssrfGuard.ValidateURL(ch.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗",
			slog.String("channel_id", ch.ChannelID),
			slog.String("feed_url", ch.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyStop(ch, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		f.persistFailure(ctx, ch)
		f.metrics.FeedFetchFailure()
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ch.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", "Signalman/1.0 Feed Watcher")
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET
	if ch.ETag != "" {
		req.Header.Set("If-None-Match", ch.ETag)
	}
	if ch.LastModified != "" {
		req.Header.Set("If-Modified-Since", ch.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("フィードのフェッチに失敗",
			slog.String("channel_id", ch.ChannelID),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(ch, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		f.persistFailure(ctx, ch)
		f.metrics.FeedFetchFailure()
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("フィードは未変更（304）",
			slog.String("channel_id", ch.ChannelID),
		)
		ApplySuccess(ch, f.interval)
		f.metrics.FeedFetchSuccess()
		return f.channels.UpdateFetchSuccess(ctx, ch.ID, ch.ETag, ch.LastModified, ch.NextFetchAt)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.Warn("チャンネルのフェッチを停止",
			slog.String("channel_id", ch.ChannelID),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyStop(ch, reason)
		f.persistFailure(ctx, ch)
		f.metrics.FeedFetchFailure()
		return nil

	case FetchResultBackoff, FetchResultUnknown:
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode)
		f.logger.Warn("チャンネルのフェッチにバックオフを適用",
			slog.String("channel_id", ch.ChannelID),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", ch.ConsecutiveErrors+1),
		)
		ApplyBackoff(ch, reason)
		f.persistFailure(ctx, ch)
		f.metrics.FeedFetchFailure()
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		ApplyBackoff(ch, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		f.persistFailure(ctx, ch)
		f.metrics.FeedFetchFailure()
		return fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		ch.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		ch.LastModified = lastMod
	}

	parsedFeed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗",
			slog.String("channel_id", ch.ChannelID),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(ch, fmt.Sprintf("パース失敗: %s", err.Error()))
		f.persistFailure(ctx, ch)
		f.metrics.FeedFetchFailure()
		return nil
	}

	discovered := f.ingestNewVideos(ctx, ch, parsedFeed)

	ApplySuccess(ch, f.interval)
	if err := f.channels.UpdateFetchSuccess(ctx, ch.ID, ch.ETag, ch.LastModified, ch.NextFetchAt); err != nil {
		f.logger.Error("チャンネル状態の更新に失敗",
			slog.String("channel_id", ch.ChannelID),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.metrics.FeedFetchSuccess()
	f.logger.Info("チャンネルのフェッチが完了",
		slog.String("channel_id", ch.ChannelID),
		slog.Int("entries", len(parsedFeed.Items)),
		slog.Int("videos_ingested", discovered),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// ingestNewVideos はフィードエントリから未取り込みの動画を取り込む。
// 個別動画の失敗（字幕なし等）はログに記録して続行する。
func (f *Fetcher) ingestNewVideos(ctx context.Context, ch *model.Channel, feed *gofeed.Feed) int {
	discovered := 0
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		videoID, ok := videoIDFromEntry(item)
		if !ok {
			continue
		}

		exists, err := f.contents.ExistsByVideoID(ctx, videoID)
		if err != nil {
			f.logger.Error("取り込み済み判定に失敗",
				slog.String("video_id", videoID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if exists {
			continue
		}

		if _, err := f.ingester.Ingest(ctx, videoID, item.Link); err != nil {
			// 字幕が存在しない動画はレコードを残さずスキップされる
			if errors.Is(err, model.ErrTranscriptUnavailable) {
				f.logger.Info("字幕が取得できないためスキップ",
					slog.String("video_id", videoID),
					slog.String("channel_id", ch.ChannelID),
				)
				continue
			}
			f.logger.Error("動画の取り込みに失敗",
				slog.String("video_id", videoID),
				slog.String("channel_id", ch.ChannelID),
				slog.String("error", err.Error()),
			)
			continue
		}
		discovered++
	}

	if discovered > 0 {
		f.metrics.VideosDiscovered(discovered)
	}
	return discovered
}

// persistFailure はフェッチ失敗後のチャンネル状態を保存する。
func (f *Fetcher) persistFailure(ctx context.Context, ch *model.Channel) {
	if err := f.channels.UpdateFetchFailure(ctx, ch.ID, ch.ErrorMessage, ch.ConsecutiveErrors, ch.FetchStatus, ch.NextFetchAt); err != nil {
		f.logger.Error("チャンネル状態の更新に失敗",
			slog.String("channel_id", ch.ChannelID),
			slog.String("error", err.Error()),
		)
	}
}

// videoIDFromEntry はフィードエントリから動画IDを抽出する。
// YouTubeのAtomフィードはyt:videoId拡張を持つが、リンクからの抽出でも足りる。
func videoIDFromEntry(item *gofeed.Item) (string, bool) {
	if ext, ok := item.Extensions["yt"]; ok {
		if ids, ok := ext["videoId"]; ok && len(ids) > 0 && ids[0].Value != "" {
			if id, valid := transcript.ExtractVideoID(ids[0].Value); valid {
				return id, true
			}
		}
	}
	return transcript.ExtractVideoID(item.Link)
}
