package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/marketpod/signalman/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockIngestService はIngestServiceInterfaceのモック。
type mockIngestService struct {
	ingestFunc func(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error)
}

func (m *mockIngestService) Ingest(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error) {
	return m.ingestFunc(ctx, videoID, sourceURL)
}

// mockContentReader はContentReaderInterfaceのモック。
type mockContentReader struct {
	findByIDFunc func(ctx context.Context, id string) (*model.ContentRecord, error)
	listFunc     func(ctx context.Context, limit, offset int) ([]*model.ContentRecord, error)
}

func (m *mockContentReader) FindByID(ctx context.Context, id string) (*model.ContentRecord, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockContentReader) List(ctx context.Context, limit, offset int) ([]*model.ContentRecord, error) {
	return m.listFunc(ctx, limit, offset)
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("エラーボディの解析に失敗: %v", err)
	}
	return body
}

// TestIngest_Success 取り込み成功で201とレコードが返ること
func TestIngest_Success(t *testing.T) {
	var gotVideoID string
	ingest := &mockIngestService{
		ingestFunc: func(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error) {
			gotVideoID = videoID
			return &model.ContentRecord{
				ID:      "content-1",
				VideoID: videoID,
				Status:  model.ContentStatusComplete,
				ExtractedMentions: []model.Mention{
					{Ticker: "NVDA", Sentiment: model.SentimentBullish},
				},
			}, nil
		},
	}
	h := NewContentHandler(ingest, &mockContentReader{}, testLogger())

	body := strings.NewReader(`{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/content", body)
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if gotVideoID != "dQw4w9WgXcQ" {
		t.Errorf("videoID = %q, want dQw4w9WgXcQ", gotVideoID)
	}

	var resp contentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.ID != "content-1" || resp.Status != "complete" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Mentions) != 1 || resp.Mentions[0].Ticker != "NVDA" {
		t.Errorf("mentions = %+v", resp.Mentions)
	}
}

// TestIngest_InvalidURL 動画IDが抽出できないURLは400になること
func TestIngest_InvalidURL(t *testing.T) {
	h := NewContentHandler(&mockIngestService{}, &mockContentReader{}, testLogger())

	for _, body := range []string{
		`{"url": "https://example.com/watch?v=dQw4w9WgXcQ"}`,
		`{"url": ""}`,
		`{"url": "not a url"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/content", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Ingest(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body=%s: status = %d, want 400", body, rec.Code)
			continue
		}
		if got := decodeErrorBody(t, rec)["code"]; got != model.ErrCodeInvalidVideoURL {
			t.Errorf("code = %q, want INVALID_VIDEO_URL", got)
		}
	}
}

// TestIngest_TranscriptUnavailable 字幕が存在しない動画は422になること
func TestIngest_TranscriptUnavailable(t *testing.T) {
	ingest := &mockIngestService{
		ingestFunc: func(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error) {
			return nil, model.ErrTranscriptUnavailable
		},
	}
	h := NewContentHandler(ingest, &mockContentReader{}, testLogger())

	body := strings.NewReader(`{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/content", body)
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if got := decodeErrorBody(t, rec)["code"]; got != model.ErrCodeTranscriptUnavailable {
		t.Errorf("code = %q, want TRANSCRIPT_UNAVAILABLE", got)
	}
}

// TestIngest_InFlight 同一動画の処理中は409になること
func TestIngest_InFlight(t *testing.T) {
	ingest := &mockIngestService{
		ingestFunc: func(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error) {
			return nil, model.ErrProcessingInFlight
		},
	}
	h := NewContentHandler(ingest, &mockContentReader{}, testLogger())

	body := strings.NewReader(`{"url": "dQw4w9WgXcQ"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/content", body)
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if got := decodeErrorBody(t, rec)["code"]; got != model.ErrCodeProcessingInFlight {
		t.Errorf("code = %q, want PROCESSING_IN_FLIGHT", got)
	}
}

// TestIngest_ProcessingFailed 処理途中の失敗は500でエラーレコードの内容を返すこと
func TestIngest_ProcessingFailed(t *testing.T) {
	ingest := &mockIngestService{
		ingestFunc: func(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error) {
			return &model.ContentRecord{
				ID:           "content-err",
				VideoID:      videoID,
				Status:       model.ContentStatusError,
				ErrorMessage: "extraction failed",
			}, context.DeadlineExceeded
		},
	}
	h := NewContentHandler(ingest, &mockContentReader{}, testLogger())

	body := strings.NewReader(`{"url": "dQw4w9WgXcQ"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/content", body)
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeErrorBody(t, rec)["code"]; got != model.ErrCodeProcessingFailed {
		t.Errorf("code = %q, want PROCESSING_FAILED", got)
	}
}

func newChiRequest(method, target, paramKey, paramVal string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(paramKey, paramVal)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// TestGet_NotFound 存在しないコンテンツIDは404になること
func TestGet_NotFound(t *testing.T) {
	reader := &mockContentReader{
		findByIDFunc: func(ctx context.Context, id string) (*model.ContentRecord, error) {
			return nil, nil
		},
	}
	h := NewContentHandler(&mockIngestService{}, reader, testLogger())

	req := newChiRequest(http.MethodGet, "/api/content/missing", "id", "missing")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeErrorBody(t, rec)["code"]; got != model.ErrCodeContentNotFound {
		t.Errorf("code = %q, want CONTENT_NOT_FOUND", got)
	}
}

// TestList_DefaultsAndClamp limitの既定値と上限
func TestList_DefaultsAndClamp(t *testing.T) {
	var gotLimit, gotOffset int
	reader := &mockContentReader{
		listFunc: func(ctx context.Context, limit, offset int) ([]*model.ContentRecord, error) {
			gotLimit, gotOffset = limit, offset
			return nil, nil
		},
	}
	h := NewContentHandler(&mockIngestService{}, reader, testLogger())

	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=9999", 50, 0},
		{"?limit=-1&offset=-5", 50, 0},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/content"+tt.query, nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("query=%q: status = %d", tt.query, rec.Code)
		}
		if gotLimit != tt.wantLimit || gotOffset != tt.wantOffset {
			t.Errorf("query=%q: limit=%d offset=%d, want %d/%d",
				tt.query, gotLimit, gotOffset, tt.wantLimit, tt.wantOffset)
		}
	}
}

// TestReprocess_CreatesNewRecord 再処理は既存レコードの動画IDで新規取り込みすること
func TestReprocess_CreatesNewRecord(t *testing.T) {
	reader := &mockContentReader{
		findByIDFunc: func(ctx context.Context, id string) (*model.ContentRecord, error) {
			return &model.ContentRecord{
				ID:        "content-old",
				VideoID:   "dQw4w9WgXcQ",
				SourceURL: "https://youtu.be/dQw4w9WgXcQ",
				Status:    model.ContentStatusError,
			}, nil
		},
	}
	var gotVideoID, gotSourceURL string
	ingest := &mockIngestService{
		ingestFunc: func(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error) {
			gotVideoID, gotSourceURL = videoID, sourceURL
			return &model.ContentRecord{ID: "content-new", VideoID: videoID, Status: model.ContentStatusComplete}, nil
		},
	}
	h := NewContentHandler(ingest, reader, testLogger())

	req := newChiRequest(http.MethodPost, "/api/content/content-old/process", "id", "content-old")
	rec := httptest.NewRecorder()
	h.Reprocess(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotVideoID != "dQw4w9WgXcQ" || gotSourceURL != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("ingest args = %q/%q", gotVideoID, gotSourceURL)
	}

	var resp contentResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.ID != "content-new" {
		t.Errorf("新規レコードが返るべき: %+v", resp)
	}
}
