// Package metadata はYouTube動画のメタデータ取得を提供する。
// oEmbedエンドポイントからタイトルとチャンネル名を取得し、
// 視聴ページのメタタグから公開日・チャンネルID・登録者数を補完する。
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultOEmbedBaseURL = "https://www.youtube.com"
	defaultWatchBaseURL  = "https://www.youtube.com"

	fetcherUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// subscriberCountRE は視聴ページ内の登録者数表記を抽出する。
// 例: "subscriberCountText":{"simpleText":"1.2M subscribers"}
var subscriberCountRE = regexp.MustCompile(`"subscriberCountText":\{"simpleText":"([\d.,]+[KMB]?) subscribers?"`)

// VideoMetadata は取得した動画メタデータ。
// 取得できなかったフィールドはゼロ値のまま残る。
type VideoMetadata struct {
	Title       string
	ChannelName string
	ChannelID   string
	Subscribers int64
	PublishedAt *time.Time
}

// Sanitizer はスクレイプしたテキストの無害化を行う。
type Sanitizer interface {
	StripTags(raw string) string
}

// Fetcher は動画メタデータの取得クライアント。
type Fetcher struct {
	httpClient    *http.Client
	logger        *slog.Logger
	sanitizer     Sanitizer
	oembedBaseURL string
	watchBaseURL  string
	maxBodySize   int64
}

// NewFetcher はFetcherを作成する。
func NewFetcher(httpClient *http.Client, logger *slog.Logger, sanitizer Sanitizer, maxBodySize int64) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient:    httpClient,
		logger:        logger,
		sanitizer:     sanitizer,
		oembedBaseURL: defaultOEmbedBaseURL,
		watchBaseURL:  defaultWatchBaseURL,
		maxBodySize:   maxBodySize,
	}
}

// SetBaseURLs はテスト用にエンドポイントを差し替える。
func (f *Fetcher) SetBaseURLs(oembedBaseURL, watchBaseURL string) {
	f.oembedBaseURL = oembedBaseURL
	f.watchBaseURL = watchBaseURL
}

// Fetch は動画のメタデータを取得する。
// oEmbedの失敗はエラーを返すが、視聴ページからの補完は
// ベストエフォートで行い、失敗してもエラーにしない。
func (f *Fetcher) Fetch(ctx context.Context, videoID string) (*VideoMetadata, error) {
	meta, err := f.fetchOEmbed(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if err := f.enrichFromWatchPage(ctx, videoID, meta); err != nil {
		f.logger.Warn("視聴ページからのメタデータ補完に失敗",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()))
	}

	return meta, nil
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
}

func (f *Fetcher) fetchOEmbed(ctx context.Context, videoID string) (*VideoMetadata, error) {
	videoURL := "https://www.youtube.com/watch?v=" + videoID
	reqURL := f.oembedBaseURL + "/oembed?url=" + url.QueryEscape(videoURL) + "&format=json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("oEmbedリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", fetcherUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oEmbedの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oEmbedがステータス%dを返却", resp.StatusCode)
	}

	var oe oembedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, f.maxBodySize)).Decode(&oe); err != nil {
		return nil, fmt.Errorf("oEmbed応答の解析に失敗: %w", err)
	}

	return &VideoMetadata{
		Title:       f.sanitizer.StripTags(oe.Title),
		ChannelName: f.sanitizer.StripTags(oe.AuthorName),
	}, nil
}

// enrichFromWatchPage は視聴ページのメタタグから公開日・チャンネルID・登録者数を補完する。
func (f *Fetcher) enrichFromWatchPage(ctx context.Context, videoID string, meta *VideoMetadata) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.watchBaseURL+"/watch?v="+videoID, nil)
	if err != nil {
		return fmt.Errorf("視聴ページリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", fetcherUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("視聴ページの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("視聴ページがステータス%dを返却", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return fmt.Errorf("視聴ページの読み込みに失敗: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("視聴ページの解析に失敗: %w", err)
	}

	if content, ok := doc.Find(`meta[itemprop="datePublished"]`).Attr("content"); ok {
		if published, err := parsePublishedDate(content); err == nil {
			meta.PublishedAt = &published
		}
	}
	if content, ok := doc.Find(`meta[itemprop="channelId"]`).Attr("content"); ok {
		meta.ChannelID = content
	}
	if m := subscriberCountRE.FindSubmatch(body); m != nil {
		if count, err := parseSubscriberCount(string(m[1])); err == nil {
			meta.Subscribers = count
		}
	}

	return nil
}

// parsePublishedDate はメタタグの公開日表記をUTCのtime.Timeに正規化する。
// 取り込み時点で正規化し、下流では文字列の日付判定を行わない。
func parsePublishedDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("公開日の形式が不正: %q", value)
}

// parseSubscriberCount は "1.2M" 形式の登録者数表記を整数に変換する。
func parseSubscriberCount(value string) (int64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" {
		return 0, fmt.Errorf("空の登録者数")
	}

	multiplier := int64(1)
	switch value[len(value)-1] {
	case 'K':
		multiplier = 1_000
		value = value[:len(value)-1]
	case 'M':
		multiplier = 1_000_000
		value = value[:len(value)-1]
	case 'B':
		multiplier = 1_000_000_000
		value = value[:len(value)-1]
	}

	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("登録者数の解析に失敗: %w", err)
	}
	return int64(n * float64(multiplier)), nil
}
