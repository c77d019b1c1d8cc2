package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marketpod/signalman/internal/dashboard"
	"github.com/marketpod/signalman/internal/middleware"
	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/signal"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
// プランによる閲覧制限はサービス層がサーバー側で解決する。
type DashboardServiceInterface interface {
	ListDays(ctx context.Context, userID string) ([]string, error)
	Day(ctx context.Context, userID, date string, sortMode signal.SortMode) (*dashboard.DayView, error)
	Trending(ctx context.Context, userID string, sortMode signal.SortMode) ([]signal.TickerAggregate, error)
	Ticker(ctx context.Context, userID, ticker string) (*dashboard.TickerView, error)
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
	logger  *slog.Logger
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		logger:  logger,
	}
}

// ListDays はデータが存在する日付の一覧を返す。
// GET /api/dashboard/days
func (h *DashboardHandler) ListDays(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	days, err := h.service.ListDays(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if days == nil {
		days = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"days": days})
}

// Day は指定日のティッカー集計を返す。
// GET /api/dashboard/day?date=YYYY-MM-DD&sort=count|strength
func (h *DashboardHandler) Day(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	date := r.URL.Query().Get("date")
	view, err := h.service.Day(r.Context(), userID, date, sortModeFromQuery(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// Trending は閲覧可能期間内のティッカー集計を返す。
// GET /api/dashboard/trending?sort=count|strength
func (h *DashboardHandler) Trending(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	aggregates, err := h.service.Trending(r.Context(), userID, sortModeFromQuery(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if aggregates == nil {
		aggregates = []signal.TickerAggregate{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"aggregates": aggregates})
}

// Ticker は1ティッカーの詳細集計を返す。
// GET /api/dashboard/ticker/{symbol}
func (h *DashboardHandler) Ticker(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	view, err := h.service.Ticker(r.Context(), userID, chi.URLParam(r, "symbol"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// sortModeFromQuery はsortクエリパラメータをSortModeに変換する。
// 未指定・未知の値はメンション数順にフォールバックする。
func sortModeFromQuery(r *http.Request) signal.SortMode {
	if r.URL.Query().Get("sort") == string(signal.SortByStrength) {
		return signal.SortByStrength
	}
	return signal.SortByCount
}

// writeUnauthorized は認証切れの統一レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}
