package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketpod/signalman/internal/model"
)

// ChannelServiceInterface はチャンネルハンドラーが必要とするサービスインターフェース。
type ChannelServiceInterface interface {
	Register(ctx context.Context, input, title string) (*model.Channel, error)
	List(ctx context.Context) ([]*model.Channel, error)
	Unregister(ctx context.Context, channelID string) error
}

// ChannelHandler は監視チャンネル管理のHTTPハンドラー。
type ChannelHandler struct {
	service ChannelServiceInterface
	logger  *slog.Logger
}

// NewChannelHandler はChannelHandlerを生成する。
func NewChannelHandler(service ChannelServiceInterface, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{
		service: service,
		logger:  logger,
	}
}

// registerChannelRequest はチャンネル登録リクエストのボディ。
type registerChannelRequest struct {
	Channel string `json:"channel"`
	Title   string `json:"title"`
}

// channelResponse はチャンネル情報のAPIレスポンス。
type channelResponse struct {
	ChannelID   string    `json:"channelId"`
	Title       string    `json:"title,omitempty"`
	FeedURL     string    `json:"feedUrl"`
	FetchStatus string    `json:"fetchStatus"`
	NextFetchAt time.Time `json:"nextFetchAt"`
}

// Register はチャンネルを監視対象に登録する。
// POST /api/channels
func (h *ChannelHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	ch, err := h.service.Register(r.Context(), req.Channel, req.Title)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toChannelResponse(ch))
}

// List は監視チャンネルの一覧を返す。
// GET /api/channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	channels, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	responses := make([]channelResponse, len(channels))
	for i, ch := range channels {
		responses[i] = toChannelResponse(ch)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"channels": responses})
}

// Unregister はチャンネルを監視対象から外す。
// DELETE /api/channels/{channelId}
func (h *ChannelHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unregister(r.Context(), chi.URLParam(r, "channelId")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// toChannelResponse はmodel.ChannelからAPIレスポンスに変換する。
func toChannelResponse(ch *model.Channel) channelResponse {
	return channelResponse{
		ChannelID:   ch.ChannelID,
		Title:       ch.Title,
		FeedURL:     ch.FeedURL,
		FetchStatus: string(ch.FetchStatus),
		NextFetchAt: ch.NextFetchAt,
	}
}
