// Package channel は監視対象YouTubeチャンネルの管理を提供する。
// 登録されたチャンネルはワーカーがAtomフィード経由で定期的に巡回する。
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/repository"
)

// channelIDRE はYouTubeのチャンネルID形式（UC + 22文字）。
var channelIDRE = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)

// feedURLFormat はチャンネルのAtomフィードURL。
const feedURLFormat = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

// URLValidator は登録されたフィードURLのSSRF検証に使うインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はチャンネル管理操作を提供する。
type Service struct {
	channels repository.ChannelRepository
	guard    URLValidator
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(channels repository.ChannelRepository, guard URLValidator, logger *slog.Logger) *Service {
	return &Service{
		channels: channels,
		guard:    guard,
		logger:   logger,
	}
}

// Register はチャンネルを監視対象に登録する。
// inputはチャンネルID（UC…）またはチャンネルURLを受け付ける。
// 登録済みチャンネルの再登録はDUPLICATE_CHANNELエラーになる。
func (s *Service) Register(ctx context.Context, input, title string) (*model.Channel, error) {
	channelID, ok := extractChannelID(input)
	if !ok {
		return nil, model.NewInvalidChannelError(input)
	}

	feedURL := fmt.Sprintf(feedURLFormat, channelID)
	if err := s.guard.ValidateURL(feedURL); err != nil {
		return nil, fmt.Errorf("フィードURLの検証に失敗: %w", err)
	}

	existing, err := s.channels.FindByChannelID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("チャンネルの検索に失敗: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateChannelError()
	}

	ch := &model.Channel{
		ChannelID:   channelID,
		Title:       title,
		FeedURL:     feedURL,
		FetchStatus: model.FetchStatusActive,
		NextFetchAt: time.Now().UTC(),
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("チャンネルの保存に失敗: %w", err)
	}

	s.logger.Info("チャンネルを登録",
		slog.String("channel_id", channelID),
		slog.String("feed_url", feedURL),
	)
	return ch, nil
}

// List は登録済みチャンネルの一覧を返す。
func (s *Service) List(ctx context.Context) ([]*model.Channel, error) {
	channels, err := s.channels.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の取得に失敗: %w", err)
	}
	return channels, nil
}

// Unregister はチャンネルを監視対象から外す。
func (s *Service) Unregister(ctx context.Context, channelID string) error {
	ch, err := s.channels.FindByChannelID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("チャンネルの検索に失敗: %w", err)
	}
	if ch == nil {
		return model.NewChannelNotFoundError(channelID)
	}
	if err := s.channels.Delete(ctx, ch.ID); err != nil {
		return fmt.Errorf("チャンネルの削除に失敗: %w", err)
	}
	return nil
}

// extractChannelID は入力からチャンネルIDを抽出する。
// 素のID、/channel/UC… 形式のURLを受け付ける。
func extractChannelID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if channelIDRE.MatchString(input) {
		return input, true
	}

	u, err := url.Parse(input)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "youtube.com" && !strings.HasSuffix(host, ".youtube.com") {
		return "", false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "channel" && i+1 < len(parts) && channelIDRE.MatchString(parts[i+1]) {
			return parts[i+1], true
		}
	}
	return "", false
}
