package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/marketpod/signalman/internal/extraction"
	"github.com/marketpod/signalman/internal/metadata"
	"github.com/marketpod/signalman/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockContentRepo はContentRepositoryのモック。
type mockContentRepo struct {
	mu      sync.Mutex
	records map[string]*model.ContentRecord

	createFunc func(ctx context.Context, record *model.ContentRecord) error
}

func newMockContentRepo() *mockContentRepo {
	return &mockContentRepo{records: map[string]*model.ContentRecord{}}
}

func (m *mockContentRepo) Create(ctx context.Context, record *model.ContentRecord) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID == "" {
		record.ID = "content-" + record.VideoID
	}
	clone := *record
	m.records[record.ID] = &clone
	return nil
}

func (m *mockContentRepo) FindByID(ctx context.Context, id string) (*model.ContentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id], nil
}

func (m *mockContentRepo) ExistsByVideoID(ctx context.Context, videoID string) (bool, error) {
	return false, nil
}

func (m *mockContentRepo) UpdateStatus(ctx context.Context, id string, status model.ContentStatus, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		r.Status = status
		r.ErrorMessage = errorMessage
	}
	return nil
}

func (m *mockContentRepo) UpdateMetadata(ctx context.Context, record *model.ContentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[record.ID]; ok {
		r.EpisodeTitle = record.EpisodeTitle
		r.InfluencerName = record.InfluencerName
		r.ChannelID = record.ChannelID
		r.ChannelSubscribers = record.ChannelSubscribers
		r.PublishedAt = record.PublishedAt
	}
	return nil
}

func (m *mockContentRepo) UpdateTranscript(ctx context.Context, id, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		r.TranscriptText = transcript
	}
	return nil
}

func (m *mockContentRepo) UpdateExtraction(ctx context.Context, record *model.ContentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[record.ID]; ok {
		r.ExtractedMentions = record.ExtractedMentions
		r.Highlights = record.Highlights
		r.BlogArticle = record.BlogArticle
		r.TweetThread = record.TweetThread
		r.VideoScript = record.VideoScript
		r.NotableTimestamps = record.NotableTimestamps
	}
	return nil
}

func (m *mockContentRepo) List(ctx context.Context, limit, offset int) ([]*model.ContentRecord, error) {
	return nil, nil
}

func (m *mockContentRepo) ListCompleteByPublishedRange(ctx context.Context, from, to time.Time) ([]*model.ContentRecord, error) {
	return nil, nil
}

func (m *mockContentRepo) ListCompleteDates(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func (m *mockContentRepo) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

// mockTranscriptFetcher はTranscriptFetcherのモック。
type mockTranscriptFetcher struct {
	fetchFunc func(ctx context.Context, videoID string) (string, error)
}

func (m *mockTranscriptFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	return m.fetchFunc(ctx, videoID)
}

// mockMetadataFetcher はMetadataFetcherのモック。
type mockMetadataFetcher struct {
	fetchFunc func(ctx context.Context, videoID string) (*metadata.VideoMetadata, error)
}

func (m *mockMetadataFetcher) Fetch(ctx context.Context, videoID string) (*metadata.VideoMetadata, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, videoID)
	}
	return &metadata.VideoMetadata{Title: "Episode", ChannelName: "Host"}, nil
}

// mockExtractor はextraction.Serviceのモック。
type mockExtractor struct {
	extractFunc func(ctx context.Context, transcript string) (*extraction.ExtractionResult, error)
}

func (m *mockExtractor) Extract(ctx context.Context, transcript string) (*extraction.ExtractionResult, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, transcript)
	}
	return &extraction.ExtractionResult{}, nil
}

func (m *mockExtractor) GenerateArticle(ctx context.Context, transcript, episodeTitle string) (string, error) {
	return "<h2>Article</h2>", nil
}

func (m *mockExtractor) GenerateTweetThread(ctx context.Context, transcript, episodeTitle string) (string, error) {
	return "1/ thread", nil
}

func (m *mockExtractor) GenerateVideoScript(ctx context.Context, transcript, episodeTitle string) (string, error) {
	return "script", nil
}

func (m *mockExtractor) GenerateNotableTimestamps(ctx context.Context, transcript string) (string, error) {
	return "01:00 - moment", nil
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeArticle(rawHTML string) string { return rawHTML }

func newTestProcessor(repo *mockContentRepo, transcript *mockTranscriptFetcher, extractor *mockExtractor) *Processor {
	return NewProcessor(repo, transcript, &mockMetadataFetcher{}, extractor, passthroughSanitizer{}, testLogger())
}

// TestIngestSuccess 取り込み成功時はcompleteまで遷移すること
func TestIngestSuccess(t *testing.T) {
	repo := newMockContentRepo()
	transcript := &mockTranscriptFetcher{
		fetchFunc: func(ctx context.Context, videoID string) (string, error) {
			return "NVDA is going up", nil
		},
	}
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, transcript string) (*extraction.ExtractionResult, error) {
			return &extraction.ExtractionResult{
				Mentions: []model.Mention{{Ticker: "NVDA", Sentiment: model.SentimentBullish}},
			}, nil
		},
	}
	p := newTestProcessor(repo, transcript, extractor)

	record, err := p.Ingest(context.Background(), "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if record.Status != model.ContentStatusComplete {
		t.Errorf("Status = %q, want complete", record.Status)
	}
	if len(record.ExtractedMentions) != 1 || record.ExtractedMentions[0].Ticker != "NVDA" {
		t.Errorf("mentions = %+v", record.ExtractedMentions)
	}

	saved := repo.records[record.ID]
	if saved == nil {
		t.Fatal("レコードが保存されていない")
	}
	if saved.Status != model.ContentStatusComplete {
		t.Errorf("保存された状態 = %q, want complete", saved.Status)
	}
	if saved.TranscriptText != "NVDA is going up" {
		t.Errorf("TranscriptText = %q", saved.TranscriptText)
	}
	if saved.BlogArticle == "" || saved.TweetThread == "" {
		t.Error("派生コンテンツが保存されるべき")
	}
}

// TestIngestTranscriptUnavailable 取得不能な動画はレコードを作成しないこと
func TestIngestTranscriptUnavailable(t *testing.T) {
	repo := newMockContentRepo()
	transcript := &mockTranscriptFetcher{
		fetchFunc: func(ctx context.Context, videoID string) (string, error) {
			return "", model.ErrTranscriptUnavailable
		},
	}
	p := newTestProcessor(repo, transcript, &mockExtractor{})

	_, err := p.Ingest(context.Background(), "dQw4w9WgXcQ", "")
	if !errors.Is(err, model.ErrTranscriptUnavailable) {
		t.Fatalf("err = %v, want ErrTranscriptUnavailable", err)
	}
	if len(repo.records) != 0 {
		t.Errorf("レコードは作成されないべき: %d件", len(repo.records))
	}
}

// TestIngestExtractionFailure 抽出の失敗はerror状態として記録されること
func TestIngestExtractionFailure(t *testing.T) {
	repo := newMockContentRepo()
	transcript := &mockTranscriptFetcher{
		fetchFunc: func(ctx context.Context, videoID string) (string, error) {
			return "some transcript", nil
		},
	}
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, transcript string) (*extraction.ExtractionResult, error) {
			return nil, errors.New("collaborator down")
		},
	}
	p := newTestProcessor(repo, transcript, extractor)

	record, err := p.Ingest(context.Background(), "dQw4w9WgXcQ", "")
	if err == nil {
		t.Fatal("エラーが返るべき")
	}
	if record == nil {
		t.Fatal("失敗時もレコードは返るべき")
	}

	saved := repo.records[record.ID]
	if saved.Status != model.ContentStatusError {
		t.Errorf("Status = %q, want error", saved.Status)
	}
	if saved.ErrorMessage == "" {
		t.Error("エラーメッセージが記録されるべき")
	}
	// 失敗前に取得したトランスクリプトは保持される
	if saved.TranscriptText != "some transcript" {
		t.Errorf("TranscriptText = %q", saved.TranscriptText)
	}
}

// TestIngestSingleFlight 同一動画IDの同時取り込みは拒否されること
func TestIngestSingleFlight(t *testing.T) {
	repo := newMockContentRepo()
	started := make(chan struct{})
	proceed := make(chan struct{})
	var startOnce sync.Once
	transcript := &mockTranscriptFetcher{
		fetchFunc: func(ctx context.Context, videoID string) (string, error) {
			// 完了後の再取り込みでも呼ばれるため、最初の1回だけ通知する
			startOnce.Do(func() { close(started) })
			<-proceed
			return "transcript", nil
		},
	}
	p := newTestProcessor(repo, transcript, &mockExtractor{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Ingest(context.Background(), "dQw4w9WgXcQ", "")
		done <- err
	}()

	<-started
	// 1本目が進行中の間、同じ動画IDの取り込みは拒否される
	_, err := p.Ingest(context.Background(), "dQw4w9WgXcQ", "")
	if !errors.Is(err, model.ErrProcessingInFlight) {
		t.Errorf("err = %v, want ErrProcessingInFlight", err)
	}

	// 別の動画IDは並行して処理できる（ブロックや拒否をしない）
	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("1本目の取り込みに失敗: %v", err)
	}

	// 完了後は同じ動画IDでも再取り込みできる（新しいレコードが作られる）
	record, err := p.Ingest(context.Background(), "dQw4w9WgXcQ", "")
	if err != nil {
		t.Fatalf("再取り込みに失敗: %v", err)
	}
	if record == nil {
		t.Fatal("レコードが返るべき")
	}
}

// TestIngestMetadataFailureContinues メタデータの失敗は処理を止めないこと
func TestIngestMetadataFailureContinues(t *testing.T) {
	repo := newMockContentRepo()
	transcript := &mockTranscriptFetcher{
		fetchFunc: func(ctx context.Context, videoID string) (string, error) {
			return "transcript", nil
		},
	}
	p := NewProcessor(repo, transcript,
		&mockMetadataFetcher{
			fetchFunc: func(ctx context.Context, videoID string) (*metadata.VideoMetadata, error) {
				return nil, errors.New("oembed down")
			},
		},
		&mockExtractor{}, passthroughSanitizer{}, testLogger())

	record, err := p.Ingest(context.Background(), "dQw4w9WgXcQ", "")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if record.Status != model.ContentStatusComplete {
		t.Errorf("Status = %q, want complete", record.Status)
	}
}
