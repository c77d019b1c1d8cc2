package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// 視聴ページスクレイプではブラウザ相当のUser-Agentを使う。
// Innertube経路とは独立の取得経路として振る舞うため。
const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const playerResponseMarker = "ytInitialPlayerResponse = "

// PageScraper は視聴ページに埋め込まれたplayer応答から字幕を取得するクライアント。
// Innertube APIを経由せず、ページ内JSONを直接解析する独立経路。
type PageScraper struct {
	httpClient   *http.Client
	logger       *slog.Logger
	watchBaseURL string
	maxBodySize  int64
}

// NewPageScraper はPageScraperを作成する。
func NewPageScraper(httpClient *http.Client, logger *slog.Logger, maxBodySize int64) *PageScraper {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PageScraper{
		httpClient:   httpClient,
		logger:       logger,
		watchBaseURL: defaultWatchBaseURL,
		maxBodySize:  maxBodySize,
	}
}

// SetBaseURL はテスト用にエンドポイントを差し替える。
func (s *PageScraper) SetBaseURL(watchBaseURL string) {
	s.watchBaseURL = watchBaseURL
}

// FetchTranscript は視聴ページからplayer応答を抽出し、字幕トラックを取得する。
// langが空の場合は最初の利用可能なトラックを使う。指定時は言語コードの完全一致のみ。
func (s *PageScraper) FetchTranscript(ctx context.Context, videoID, lang string) (string, error) {
	tracks, err := s.fetchPageCaptionTracks(ctx, videoID)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", errors.New("視聴ページに字幕トラックがありません")
	}

	trackURL := ""
	if lang == "" {
		trackURL = tracks[0].BaseURL
	} else {
		for _, t := range tracks {
			if t.LanguageCode == lang {
				trackURL = t.BaseURL
				break
			}
		}
	}
	if trackURL == "" {
		return "", fmt.Errorf("言語%qの字幕トラックがありません", lang)
	}

	entries, err := s.fetchTimedText(ctx, fmtParamRE.ReplaceAllString(trackURL, ""))
	if err != nil {
		return "", err
	}
	return joinCaptionText(entries), nil
}

func (s *PageScraper) fetchPageCaptionTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.watchBaseURL+"/watch?v="+videoID, nil)
	if err != nil {
		return nil, fmt.Errorf("視聴ページリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("視聴ページの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("視聴ページがステータス%dを返却", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("視聴ページの読み込みに失敗: %w", err)
	}

	raw, ok := extractBalancedJSON(string(body), playerResponseMarker)
	if !ok {
		return nil, errors.New("ytInitialPlayerResponseが見つかりません")
	}

	var pr playerResponse
	if err := json.Unmarshal([]byte(raw), &pr); err != nil {
		return nil, fmt.Errorf("player応答の解析に失敗: %w", err)
	}
	return pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, nil
}

func (s *PageScraper) fetchTimedText(ctx context.Context, trackURL string) ([]CaptionEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("字幕リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("字幕の取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("字幕エンドポイントがステータス%dを返却", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("字幕の読み込みに失敗: %w", err)
	}
	return parseTimedText(body)
}

// extractBalancedJSON はマーカー直後から始まるJSONオブジェクトを
// 波括弧の対応を数えて切り出す。文字列リテラル内の括弧は無視する。
func extractBalancedJSON(page, marker string) (string, bool) {
	idx := strings.Index(page, marker)
	if idx < 0 {
		return "", false
	}
	rest := page[idx+len(marker):]
	start := strings.IndexByte(rest, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(rest); i++ {
		ch := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return rest[start : i+1], true
			}
		}
	}
	return "", false
}
