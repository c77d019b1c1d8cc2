// Package dashboard はティッカーメンションのダッシュボードビューを提供する。
// 集計は永続化せず、読み取りのたびにContentRecordから再計算する。
// プランによる閲覧範囲の制限は、常に永続化されたユーザーレコードから
// サーバー側で解決する。クライアントから渡されたフラグは一切信用しない。
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/signal"
)

// 無料プランのトレンド集計ウィンドウに対し、有料プランは直近7日間を見る。
const trendingWindowDays = 7

// 日付一覧で返す最大件数。
const maxDayListEntries = 90

// tickerRE は受理するティッカーシンボルの形式。
// 1〜6文字の英大文字、オプションでクラス接尾辞（例: BRK.B）。
var tickerRE = regexp.MustCompile(`^[A-Z]{1,6}(\.[A-Z]{1,2})?$`)

// ContentReader はダッシュボードが必要とするコンテンツ読み取りインターフェース。
type ContentReader interface {
	ListCompleteByPublishedRange(ctx context.Context, from, to time.Time) ([]*model.ContentRecord, error)
	ListCompleteDates(ctx context.Context, limit int) ([]string, error)
}

// UserFinder は閲覧ユーザーのプラン解決に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Service はダッシュボードの読み取り操作を提供する。
type Service struct {
	contents ContentReader
	users    UserFinder
	logger   *slog.Logger

	// 無料プランが閲覧できるウィンドウ（何日前〜何日前か）
	freeWindowStartDays int
	freeWindowEndDays   int

	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(contents ContentReader, users UserFinder, logger *slog.Logger, freeWindowStartDays, freeWindowEndDays int) *Service {
	return &Service{
		contents:            contents,
		users:               users,
		logger:              logger,
		freeWindowStartDays: freeWindowStartDays,
		freeWindowEndDays:   freeWindowEndDays,
		now:                 time.Now,
	}
}

// DayView は1日分のダッシュボード集計を表す。
// Clampedは無料プランの制限により要求日が差し替えられたことを示す。
type DayView struct {
	Date       string                   `json:"date"`
	Clamped    bool                     `json:"clamped"`
	Aggregates []signal.TickerAggregate `json:"aggregates"`
}

// TickerView は1ティッカーの詳細ビューを表す。
type TickerView struct {
	signal.TickerAggregate
	From string `json:"from"`
	To   string `json:"to"`
}

// ListDays はデータが存在する日付（UTC、新しい順）を返す。
// 無料プランには閲覧可能ウィンドウ内の日付のみを返す。
func (s *Service) ListDays(ctx context.Context, userID string) ([]string, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	dates, err := s.contents.ListCompleteDates(ctx, maxDayListEntries)
	if err != nil {
		return nil, fmt.Errorf("日付一覧の取得に失敗: %w", err)
	}

	if user.IsPro() {
		return dates, nil
	}

	from, to := s.freeWindow()
	fromDate := from.Format("2006-01-02")
	toDate := to.Format("2006-01-02")

	visible := make([]string, 0, len(dates))
	for _, d := range dates {
		if d >= fromDate && d <= toDate {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

// Day は指定日のティッカー集計を返す。
// 無料プランの要求日が閲覧可能ウィンドウ外の場合、最も近いウィンドウ内の
// 日付に差し替えて集計する（レスポンスのClampedで通知する）。
func (s *Service) Day(ctx context.Context, userID, date string, sortMode signal.SortMode) (*DayView, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return nil, model.NewInvalidDateError(date)
	}

	clamped := false
	if !user.IsPro() {
		from, to := s.freeWindow()
		if day.Before(from) {
			day = from
			clamped = true
		} else if day.After(to) {
			day = to
			clamped = true
		}
	}

	records, err := s.contents.ListCompleteByPublishedRange(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗: %w", err)
	}

	return &DayView{
		Date:       day.Format("2006-01-02"),
		Clamped:    clamped,
		Aggregates: signal.Aggregate(records, sortMode),
	}, nil
}

// Trending は閲覧可能期間内のティッカー集計を返す。
// 有料プランは直近7日間のライブデータ、無料プランは閲覧可能ウィンドウを対象とする。
func (s *Service) Trending(ctx context.Context, userID string, sortMode signal.SortMode) ([]signal.TickerAggregate, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	from, to := s.visibleRange(user)
	records, err := s.contents.ListCompleteByPublishedRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗: %w", err)
	}

	return signal.Aggregate(records, sortMode), nil
}

// Ticker は1ティッカーの詳細集計を返す。
// 閲覧可能期間内にメンションが存在しない場合はメンション0件のビューを返す。
func (s *Service) Ticker(ctx context.Context, userID, ticker string) (*TickerView, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerRE.MatchString(normalized) {
		return nil, model.NewInvalidTickerError(ticker)
	}

	from, to := s.visibleRange(user)
	records, err := s.contents.ListCompleteByPublishedRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗: %w", err)
	}

	view := &TickerView{
		TickerAggregate: signal.TickerAggregate{
			Ticker:   normalized,
			Label:    model.SentimentNeutral,
			Mentions: []signal.MentionSummary{},
		},
		From: from.Format("2006-01-02"),
		To:   to.Format("2006-01-02"),
	}

	for _, agg := range signal.Aggregate(records, signal.SortByCount) {
		if agg.Ticker == normalized {
			view.TickerAggregate = agg
			break
		}
	}
	return view, nil
}

// resolveUser は永続化されたユーザーレコードを取得する。
// 存在しないユーザーIDはセッション汚染とみなしUSER_NOT_FOUNDを返す。
func (s *Service) resolveUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// freeWindow は無料プランが閲覧できる期間をUTC日境界で返す。
// 例: start=12, end=14 なら [14日前の0時, 12日前の0時]。
func (s *Service) freeWindow() (from, to time.Time) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	from = today.AddDate(0, 0, -s.freeWindowEndDays)
	to = today.AddDate(0, 0, -s.freeWindowStartDays)
	return from, to
}

// visibleRange はプランに応じた閲覧可能期間を返す。
func (s *Service) visibleRange(user *model.User) (from, to time.Time) {
	if user.IsPro() {
		now := s.now().UTC()
		return now.AddDate(0, 0, -trendingWindowDays), now
	}
	from, to = s.freeWindow()
	// ウィンドウ終端の日も丸ごと含める
	return from, to.AddDate(0, 0, 1)
}
