package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marketpod/signalman/internal/dashboard"
	"github.com/marketpod/signalman/internal/middleware"
	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/signal"
)

// mockDashboardService はDashboardServiceInterfaceのモック。
type mockDashboardService struct {
	listDaysFunc func(ctx context.Context, userID string) ([]string, error)
	dayFunc      func(ctx context.Context, userID, date string, sortMode signal.SortMode) (*dashboard.DayView, error)
	trendingFunc func(ctx context.Context, userID string, sortMode signal.SortMode) ([]signal.TickerAggregate, error)
	tickerFunc   func(ctx context.Context, userID, ticker string) (*dashboard.TickerView, error)
}

func (m *mockDashboardService) ListDays(ctx context.Context, userID string) ([]string, error) {
	return m.listDaysFunc(ctx, userID)
}

func (m *mockDashboardService) Day(ctx context.Context, userID, date string, sortMode signal.SortMode) (*dashboard.DayView, error) {
	return m.dayFunc(ctx, userID, date, sortMode)
}

func (m *mockDashboardService) Trending(ctx context.Context, userID string, sortMode signal.SortMode) ([]signal.TickerAggregate, error) {
	return m.trendingFunc(ctx, userID, sortMode)
}

func (m *mockDashboardService) Ticker(ctx context.Context, userID, ticker string) (*dashboard.TickerView, error) {
	return m.tickerFunc(ctx, userID, ticker)
}

func authedRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

// TestListDays_RequiresAuth 未認証リクエストは401になること
func TestListDays_RequiresAuth(t *testing.T) {
	h := NewDashboardHandler(&mockDashboardService{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/days", nil)
	rec := httptest.NewRecorder()
	h.ListDays(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// TestListDays_ReturnsDates 日付一覧の取得
func TestListDays_ReturnsDates(t *testing.T) {
	var gotUserID string
	svc := &mockDashboardService{
		listDaysFunc: func(ctx context.Context, userID string) ([]string, error) {
			gotUserID = userID
			return []string{"2026-08-17", "2026-08-16"}, nil
		},
	}
	h := NewDashboardHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ListDays(rec, authedRequest(http.MethodGet, "/api/dashboard/days"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "user-1" {
		t.Errorf("userID = %q, want user-1", gotUserID)
	}

	var body struct {
		Days []string `json:"days"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if len(body.Days) != 2 || body.Days[0] != "2026-08-17" {
		t.Errorf("days = %v", body.Days)
	}
}

// TestDay_PassesQueryParams dateとsortがサービスに渡ること
func TestDay_PassesQueryParams(t *testing.T) {
	var gotDate string
	var gotSort signal.SortMode
	svc := &mockDashboardService{
		dayFunc: func(ctx context.Context, userID, date string, sortMode signal.SortMode) (*dashboard.DayView, error) {
			gotDate, gotSort = date, sortMode
			return &dashboard.DayView{Date: date, Aggregates: []signal.TickerAggregate{}}, nil
		},
	}
	h := NewDashboardHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Day(rec, authedRequest(http.MethodGet, "/api/dashboard/day?date=2026-08-16&sort=strength"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotDate != "2026-08-16" {
		t.Errorf("date = %q", gotDate)
	}
	if gotSort != signal.SortByStrength {
		t.Errorf("sort = %q, want strength", gotSort)
	}

	// 未知のsortはcountにフォールバック
	h.Day(httptest.NewRecorder(), authedRequest(http.MethodGet, "/api/dashboard/day?date=2026-08-16&sort=banana"))
	if gotSort != signal.SortByCount {
		t.Errorf("未知のsort = %q, want count", gotSort)
	}
}

// TestDay_InvalidDateMapsTo400 サービスのINVALID_DATEエラーが400になること
func TestDay_InvalidDateMapsTo400(t *testing.T) {
	svc := &mockDashboardService{
		dayFunc: func(ctx context.Context, userID, date string, sortMode signal.SortMode) (*dashboard.DayView, error) {
			return nil, model.NewInvalidDateError(date)
		},
	}
	h := NewDashboardHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Day(rec, authedRequest(http.MethodGet, "/api/dashboard/day?date=bogus"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeErrorBody(t, rec)["code"]; got != model.ErrCodeInvalidDate {
		t.Errorf("code = %q, want INVALID_DATE", got)
	}
}

// TestTrending_ReturnsAggregates トレンド集計の取得
func TestTrending_ReturnsAggregates(t *testing.T) {
	svc := &mockDashboardService{
		trendingFunc: func(ctx context.Context, userID string, sortMode signal.SortMode) ([]signal.TickerAggregate, error) {
			return []signal.TickerAggregate{
				{Ticker: "NVDA", Count: 5, Label: model.SentimentBullish},
				{Ticker: "TSLA", Count: 2, Label: model.SentimentBearish},
			}, nil
		},
	}
	h := NewDashboardHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Trending(rec, authedRequest(http.MethodGet, "/api/dashboard/trending"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Aggregates []signal.TickerAggregate `json:"aggregates"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if len(body.Aggregates) != 2 || body.Aggregates[0].Ticker != "NVDA" {
		t.Errorf("aggregates = %+v", body.Aggregates)
	}
}

// TestTicker_InvalidSymbolMapsTo400 不正なティッカーが400になること
func TestTicker_InvalidSymbolMapsTo400(t *testing.T) {
	svc := &mockDashboardService{
		tickerFunc: func(ctx context.Context, userID, ticker string) (*dashboard.TickerView, error) {
			return nil, model.NewInvalidTickerError(ticker)
		},
	}
	h := NewDashboardHandler(svc, testLogger())

	req := newChiRequest(http.MethodGet, "/api/dashboard/ticker/bad!", "symbol", "bad!")
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	h.Ticker(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeErrorBody(t, rec)["code"]; got != model.ErrCodeInvalidTicker {
		t.Errorf("code = %q, want INVALID_TICKER", got)
	}
}
