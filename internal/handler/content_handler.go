// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketpod/signalman/internal/middleware"
	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/transcript"
)

// IngestServiceInterface はコンテンツハンドラーが必要とする取り込みインターフェース。
type IngestServiceInterface interface {
	// Ingest は動画を取り込み、抽出まで実行する。
	Ingest(ctx context.Context, videoID, sourceURL string) (*model.ContentRecord, error)
}

// ContentReaderInterface はコンテンツ読み取りのインターフェース。
type ContentReaderInterface interface {
	FindByID(ctx context.Context, id string) (*model.ContentRecord, error)
	List(ctx context.Context, limit, offset int) ([]*model.ContentRecord, error)
}

// ContentHandler はコンテンツ取り込み・参照のHTTPハンドラー。
type ContentHandler struct {
	ingest   IngestServiceInterface
	contents ContentReaderInterface
	logger   *slog.Logger
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(ingest IngestServiceInterface, contents ContentReaderInterface, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		ingest:   ingest,
		contents: contents,
		logger:   logger,
	}
}

// ingestRequest はコンテンツ取り込みリクエストのボディ。
type ingestRequest struct {
	URL string `json:"url"`
}

// contentResponse はコンテンツのAPIレスポンス。
type contentResponse struct {
	ID                string            `json:"id"`
	VideoID           string            `json:"videoId"`
	SourceURL         string            `json:"sourceUrl,omitempty"`
	Influencer        string            `json:"influencer,omitempty"`
	EpisodeTitle      string            `json:"episodeTitle,omitempty"`
	Status            string            `json:"status"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	Mentions          []model.Mention   `json:"mentions,omitempty"`
	Highlights        []model.Highlight `json:"highlights,omitempty"`
	BlogArticle       string            `json:"blogArticle,omitempty"`
	TweetThread       string            `json:"tweetThread,omitempty"`
	VideoScript       string            `json:"videoScript,omitempty"`
	NotableTimestamps string            `json:"notableTimestamps,omitempty"`
	PublishedAt       *time.Time        `json:"publishedAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Ingest は動画URLからコンテンツを取り込む。
// POST /api/content
func (h *ContentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	videoID, ok := transcript.ExtractVideoID(req.URL)
	if !ok {
		middleware.WriteAPIError(w, model.NewInvalidVideoURLError(req.URL))
		return
	}

	record, err := h.ingest.Ingest(r.Context(), videoID, req.URL)
	if err != nil {
		h.handleIngestError(w, videoID, record, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toContentResponse(record))
}

// Reprocess は既存レコードの動画を再度取り込む。
// 完了済みレコードは読み取り専用のため、新しいレコードが作成される。
// POST /api/content/{id}/process
func (h *ContentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")

	existing, err := h.contents.FindByID(r.Context(), contentID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if existing == nil {
		middleware.WriteAPIError(w, model.NewContentNotFoundError(contentID))
		return
	}

	record, err := h.ingest.Ingest(r.Context(), existing.VideoID, existing.SourceURL)
	if err != nil {
		h.handleIngestError(w, existing.VideoID, record, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toContentResponse(record))
}

// Get はコンテンツ詳細を取得する。
// GET /api/content/{id}
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")

	record, err := h.contents.FindByID(r.Context(), contentID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if record == nil {
		middleware.WriteAPIError(w, model.NewContentNotFoundError(contentID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toContentResponse(record))
}

// List はコンテンツ一覧を公開日の新しい順に返す。
// GET /api/content?limit=&offset=
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset := parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, err := h.contents.List(r.Context(), limit, offset)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	responses := make([]contentResponse, len(records))
	for i, rec := range records {
		responses[i] = toContentResponse(rec)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"contents": responses,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleIngestError は取り込み固有のエラーをHTTPレスポンスに変換する。
// トランスクリプト取得不能（422）はサーバー内部エラー（500）と明確に区別する。
func (h *ContentHandler) handleIngestError(w http.ResponseWriter, videoID string, record *model.ContentRecord, err error) {
	switch {
	case errors.Is(err, model.ErrTranscriptUnavailable):
		middleware.WriteAPIError(w, model.NewTranscriptUnavailableError())
	case errors.Is(err, model.ErrProcessingInFlight):
		middleware.WriteAPIError(w, model.NewProcessingInFlightError(videoID))
	case record != nil:
		// 処理途中で失敗したレコードはerror状態で残っている
		h.logger.Error("コンテンツ処理に失敗",
			slog.String("content_id", record.ID),
			slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewProcessingFailedError(record.ErrorMessage))
	default:
		h.handleServiceError(w, err)
	}
}

// handleServiceError はサービス層のエラーを統一レスポンスに変換する。
func (h *ContentHandler) handleServiceError(w http.ResponseWriter, err error) {
	writeServiceError(w, h.logger, err)
}

// toContentResponse はmodel.ContentRecordからAPIレスポンスに変換する。
// トランスクリプト本文はレスポンスに含めない。
func toContentResponse(rec *model.ContentRecord) contentResponse {
	return contentResponse{
		ID:                rec.ID,
		VideoID:           rec.VideoID,
		SourceURL:         rec.SourceURL,
		Influencer:        rec.InfluencerName,
		EpisodeTitle:      rec.EpisodeTitle,
		Status:            string(rec.Status),
		ErrorMessage:      rec.ErrorMessage,
		Mentions:          rec.ExtractedMentions,
		Highlights:        rec.Highlights,
		BlogArticle:       rec.BlogArticle,
		TweetThread:       rec.TweetThread,
		VideoScript:       rec.VideoScript,
		NotableTimestamps: rec.NotableTimestamps,
		PublishedAt:       rec.PublishedAt,
		CreatedAt:         rec.CreatedAt,
	}
}

// parseIntQuery はクエリパラメータを整数として読み取る。
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// writeInvalidRequestBody はリクエストボディ解析失敗の統一レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// writeServiceError はサービス層から返されたエラーを適切なHTTPレスポンスに変換する。
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	logger.Error("内部エラー", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
