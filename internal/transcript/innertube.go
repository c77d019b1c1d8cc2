package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
)

const (
	defaultWatchBaseURL  = "https://www.youtube.com"
	defaultPlayerBaseURL = "https://www.youtube.com"

	// Androidクライアントとして識別する。Webクライアントより字幕トラックの
	// 提供が安定しているため。
	innertubeClientName    = "ANDROID"
	innertubeClientVersion = "20.10.38"
	innertubeUserAgent     = "com.google.android.youtube/20.10.38 (Linux; U; Android 11) gzip"
)

// apiKeyRE は視聴ページHTMLに埋め込まれたInnertube APIキーを抽出する。
var apiKeyRE = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)

// fmtParamRE は字幕トラックURL末尾のフォーマット指定を除去する。
// 指定を外すことでXML形式のタイムドテキストが返る。
var fmtParamRE = regexp.MustCompile(`&fmt=\w+$`)

// errAPIKeyNotFound はAPIキーが視聴ページに見つからなかったことを示す。
// この場合、言語候補ごとの再試行は行わず戦略全体を打ち切る。
var errAPIKeyNotFound = errors.New("innertube APIキーが見つかりません")

// defaultLanguages は字幕トラックの言語候補。この順に照合する。
var defaultLanguages = []string{"en", "en-US", "en-GB", "en-CA"}

// innertubePlayerRequest はplayerエンドポイントへのリクエストボディ。
type innertubePlayerRequest struct {
	Context innertubeContext `json:"context"`
	VideoID string           `json:"videoId"`
}

type innertubeContext struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
}

// playerResponse はplayerエンドポイント応答のうち字幕トラック部分。
type playerResponse struct {
	Captions struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// InnertubeClient はInnertube player APIを経由した字幕取得クライアント。
type InnertubeClient struct {
	httpClient    *http.Client
	logger        *slog.Logger
	watchBaseURL  string
	playerBaseURL string
	maxBodySize   int64
	languages     []string
}

// NewInnertubeClient はInnertubeClientを作成する。
func NewInnertubeClient(httpClient *http.Client, logger *slog.Logger, maxBodySize int64) *InnertubeClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &InnertubeClient{
		httpClient:    httpClient,
		logger:        logger,
		watchBaseURL:  defaultWatchBaseURL,
		playerBaseURL: defaultPlayerBaseURL,
		maxBodySize:   maxBodySize,
		languages:     defaultLanguages,
	}
}

// SetBaseURLs はテスト用にエンドポイントを差し替える。
func (c *InnertubeClient) SetBaseURLs(watchBaseURL, playerBaseURL string) {
	c.watchBaseURL = watchBaseURL
	c.playerBaseURL = playerBaseURL
}

// FetchTranscript は各言語候補を順に試し、最初に得られた非空のトランスクリプトを返す。
// APIキーが視聴ページから抽出できない場合は言語候補の試行を行わず即座に失敗する。
func (c *InnertubeClient) FetchTranscript(ctx context.Context, videoID string) (string, error) {
	apiKey, err := c.fetchAPIKey(ctx, videoID)
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, lang := range c.languages {
		text, err := c.fetchForLanguage(ctx, videoID, apiKey, lang)
		if err != nil {
			c.logger.Debug("innertube言語候補の取得に失敗",
				slog.String("video_id", videoID),
				slog.String("language", lang),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		if text != "" {
			return text, nil
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("全言語候補で字幕取得に失敗: %w", lastErr)
	}
	return "", errors.New("一致する字幕トラックがありません")
}

func (c *InnertubeClient) fetchAPIKey(ctx context.Context, videoID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.watchBaseURL+"/watch?v="+videoID, nil)
	if err != nil {
		return "", fmt.Errorf("視聴ページリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", innertubeUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("視聴ページの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("視聴ページがステータス%dを返却", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return "", fmt.Errorf("視聴ページの読み込みに失敗: %w", err)
	}

	m := apiKeyRE.FindSubmatch(body)
	if m == nil {
		return "", errAPIKeyNotFound
	}
	return string(m[1]), nil
}

func (c *InnertubeClient) fetchForLanguage(ctx context.Context, videoID, apiKey, lang string) (string, error) {
	tracks, err := c.fetchCaptionTracks(ctx, videoID, apiKey)
	if err != nil {
		return "", err
	}

	trackURL := ""
	for _, t := range tracks {
		if t.LanguageCode == lang {
			trackURL = t.BaseURL
			break
		}
	}
	if trackURL == "" {
		return "", fmt.Errorf("言語%qの字幕トラックがありません", lang)
	}

	entries, err := c.fetchTimedText(ctx, fmtParamRE.ReplaceAllString(trackURL, ""))
	if err != nil {
		return "", err
	}
	return joinCaptionText(entries), nil
}

func (c *InnertubeClient) fetchCaptionTracks(ctx context.Context, videoID, apiKey string) ([]captionTrack, error) {
	payload, err := json.Marshal(innertubePlayerRequest{
		Context: innertubeContext{
			Client: innertubeClient{
				ClientName:    innertubeClientName,
				ClientVersion: innertubeClientVersion,
			},
		},
		VideoID: videoID,
	})
	if err != nil {
		return nil, fmt.Errorf("playerリクエストの組み立てに失敗: %w", err)
	}

	url := c.playerBaseURL + "/youtubei/v1/player?key=" + apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("playerリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", innertubeUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("player APIの呼び出しに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player APIがステータス%dを返却", resp.StatusCode)
	}

	var pr playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxBodySize)).Decode(&pr); err != nil {
		return nil, fmt.Errorf("player応答の解析に失敗: %w", err)
	}
	return pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, nil
}

func (c *InnertubeClient) fetchTimedText(ctx context.Context, trackURL string) ([]CaptionEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("字幕リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", innertubeUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("字幕の取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("字幕エンドポイントがステータス%dを返却", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("字幕の読み込みに失敗: %w", err)
	}
	return parseTimedText(body)
}
