// Package pipeline は動画取り込みの処理パイプラインを提供する。
// レコードの状態遷移: pending → processing → complete、失敗時は error。
// 自動リトライは行わない。再取り込みは常に新しいレコードを作成する。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marketpod/signalman/internal/extraction"
	"github.com/marketpod/signalman/internal/metadata"
	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/repository"
)

// TranscriptFetcher はトランスクリプト取得カスケードのインターフェース。
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// MetadataFetcher は動画メタデータ取得のインターフェース。
type MetadataFetcher interface {
	Fetch(ctx context.Context, videoID string) (*metadata.VideoMetadata, error)
}

// ArticleSanitizer は生成記事の無害化を行う。
type ArticleSanitizer interface {
	SanitizeArticle(rawHTML string) string
}

// Processor は1本の動画を取り込みから抽出完了まで処理する。
type Processor struct {
	contents   repository.ContentRepository
	transcript TranscriptFetcher
	metadata   MetadataFetcher
	extractor  extraction.Service
	sanitizer  ArticleSanitizer
	logger     *slog.Logger

	// inFlight は処理中の動画IDを保持する。同一動画の同時処理を防ぐ。
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewProcessor はProcessorを作成する。
func NewProcessor(
	contents repository.ContentRepository,
	transcript TranscriptFetcher,
	meta MetadataFetcher,
	extractor extraction.Service,
	sanitizer ArticleSanitizer,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		contents:   contents,
		transcript: transcript,
		metadata:   meta,
		extractor:  extractor,
		sanitizer:  sanitizer,
		logger:     logger,
		inFlight:   make(map[string]struct{}),
	}
}

// Ingest は動画のレコードを作成し、処理を実行する。
// 同一動画IDの処理が進行中の場合はmodel.ErrProcessingInFlightを返す。
// トランスクリプトが取得できない場合はレコードを残さずmodel.ErrTranscriptUnavailableを返す。
func (p *Processor) Ingest(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error) {
	if !p.acquire(videoID) {
		return nil, model.ErrProcessingInFlight
	}
	defer p.release(videoID)

	// トランスクリプトの取得可否を先に確定させる。
	// 取得不能な動画のレコードを作らないため。
	transcript, err := p.transcript.Fetch(ctx, videoID)
	if err != nil {
		return nil, err
	}

	record := &model.ContentRecord{
		VideoID:   videoID,
		SourceURL: sourceURL,
		Status:    model.ContentStatusProcessing,
	}
	if err := p.contents.Create(ctx, record); err != nil {
		return nil, err
	}

	p.logger.Info("動画の取り込みを開始",
		slog.String("content_id", record.ID),
		slog.String("video_id", videoID))

	if err := p.process(ctx, record, transcript); err != nil {
		// 処理失敗はerror状態として記録する。自動リトライは行わない。
		if updateErr := p.contents.UpdateStatus(ctx, record.ID, model.ContentStatusError, err.Error()); updateErr != nil {
			p.logger.Error("エラー状態の記録に失敗",
				slog.String("content_id", record.ID),
				slog.String("error", updateErr.Error()))
		}
		record.Status = model.ContentStatusError
		record.ErrorMessage = err.Error()
		return record, fmt.Errorf("処理に失敗: %w", err)
	}

	record.Status = model.ContentStatusComplete
	p.logger.Info("動画の取り込みが完了",
		slog.String("content_id", record.ID),
		slog.String("video_id", videoID),
		slog.Int("mentions", len(record.ExtractedMentions)))
	return record, nil
}

// process はトランスクリプト保存、メタデータ補完、抽出、生成を実行する。
func (p *Processor) process(ctx context.Context, record *model.ContentRecord, transcript string) error {
	record.TranscriptText = transcript
	if err := p.contents.UpdateTranscript(ctx, record.ID, transcript); err != nil {
		return err
	}

	// メタデータはベストエフォート。失敗しても処理は続行する。
	if meta, err := p.metadata.Fetch(ctx, record.VideoID); err != nil {
		p.logger.Warn("メタデータの取得に失敗",
			slog.String("video_id", record.VideoID),
			slog.String("error", err.Error()))
	} else {
		record.EpisodeTitle = meta.Title
		record.InfluencerName = meta.ChannelName
		record.ChannelID = meta.ChannelID
		record.ChannelSubscribers = meta.Subscribers
		record.PublishedAt = meta.PublishedAt
		if err := p.contents.UpdateMetadata(ctx, record); err != nil {
			return err
		}
	}

	result, err := p.extractor.Extract(ctx, transcript)
	if err != nil {
		return err
	}
	record.ExtractedMentions = result.Mentions
	record.Highlights = result.Highlights

	p.generateDerivatives(ctx, record, transcript)

	if err := p.contents.UpdateExtraction(ctx, record); err != nil {
		return err
	}
	return p.contents.UpdateStatus(ctx, record.ID, model.ContentStatusComplete, "")
}

// generateDerivatives は派生コンテンツを生成する。
// 個々の生成失敗は記録するだけで処理全体は失敗させない。
func (p *Processor) generateDerivatives(ctx context.Context, record *model.ContentRecord, transcript string) {
	if article, err := p.extractor.GenerateArticle(ctx, transcript, record.EpisodeTitle); err != nil {
		p.logger.Warn("記事の生成に失敗",
			slog.String("content_id", record.ID),
			slog.String("error", err.Error()))
	} else {
		record.BlogArticle = p.sanitizer.SanitizeArticle(article)
	}

	if thread, err := p.extractor.GenerateTweetThread(ctx, transcript, record.EpisodeTitle); err != nil {
		p.logger.Warn("ツイートスレッドの生成に失敗",
			slog.String("content_id", record.ID),
			slog.String("error", err.Error()))
	} else {
		record.TweetThread = thread
	}

	if script, err := p.extractor.GenerateVideoScript(ctx, transcript, record.EpisodeTitle); err != nil {
		p.logger.Warn("動画台本の生成に失敗",
			slog.String("content_id", record.ID),
			slog.String("error", err.Error()))
	} else {
		record.VideoScript = script
	}

	if timestamps, err := p.extractor.GenerateNotableTimestamps(ctx, transcript); err != nil {
		p.logger.Warn("注目タイムスタンプの生成に失敗",
			slog.String("content_id", record.ID),
			slog.String("error", err.Error()))
	} else {
		record.NotableTimestamps = timestamps
	}
}

func (p *Processor) acquire(videoID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[videoID]; ok {
		return false
	}
	p.inFlight[videoID] = struct{}{}
	return true
}

func (p *Processor) release(videoID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, videoID)
}
