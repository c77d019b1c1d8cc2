// Package extraction はトランスクリプトからのティッカーメンション抽出と
// 派生コンテンツ生成を行う。OpenAI互換のchat completionsエンドポイントを
// コラボレーターとして呼び出す。
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/marketpod/signalman/internal/model"
)

// maxTranscriptChars は1回の抽出リクエストに含めるトランスクリプトの上限。
// これを超える分は末尾を切り捨てる。
const maxTranscriptChars = 48000

// ExtractionResult は抽出コラボレーターの構造化出力。
type ExtractionResult struct {
	Mentions   []model.Mention   `json:"mentions"`
	Highlights []model.Highlight `json:"highlights"`
}

// Service は抽出と生成のインターフェース。
type Service interface {
	// Extract はトランスクリプトからメンションとハイライトを抽出する。
	// コラボレーターの応答が不正なJSONの場合は空の結果を返し、エラーにしない。
	Extract(ctx context.Context, transcript string) (*ExtractionResult, error)
	// GenerateArticle はトランスクリプトからブログ記事を生成する。
	GenerateArticle(ctx context.Context, transcript, episodeTitle string) (string, error)
	// GenerateTweetThread はトランスクリプトからツイートスレッドを生成する。
	GenerateTweetThread(ctx context.Context, transcript, episodeTitle string) (string, error)
	// GenerateVideoScript はトランスクリプトからショート動画台本を生成する。
	GenerateVideoScript(ctx context.Context, transcript, episodeTitle string) (string, error)
	// GenerateNotableTimestamps は注目タイムスタンプの一覧を生成する。
	GenerateNotableTimestamps(ctx context.Context, transcript string) (string, error)
}

// Client はOpenAI互換APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
	model      string
}

// NewClient はClientを作成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey, model string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
	}
}

const extractionSystemPrompt = `You are a financial content analyst. Extract every stock ticker mention from the podcast transcript.
Respond with JSON only, no prose, matching exactly this shape:
{"mentions":[{"ticker":"NVDA","sentiment":"bullish","timestamps":[120],"context":"short quote"}],"highlights":[{"startSec":100,"endSec":140,"text":"summary of the moment"}]}
Sentiment must be one of: bullish, bearish, neutral. Use the ticker symbol as spoken. Do not invent tickers.`

// Extract はトランスクリプトからメンションとハイライトを抽出する。
// 応答のJSONが解析できない場合は空の結果を返す。呼び出し自体の失敗のみエラーとする。
func (c *Client) Extract(ctx context.Context, transcript string) (*ExtractionResult, error) {
	reply, err := c.complete(ctx, extractionSystemPrompt, truncate(transcript))
	if err != nil {
		return nil, err
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(extractJSONBlock(reply)), &result); err != nil {
		// 不正な応答は空の抽出結果として扱い、処理自体は完了させる
		c.logger.Warn("抽出応答の解析に失敗、空の結果として続行",
			slog.String("error", err.Error()),
			slog.Int("reply_length", len(reply)))
		return &ExtractionResult{}, nil
	}

	result.Mentions = normalizeMentions(result.Mentions)
	return &result, nil
}

// GenerateArticle はトランスクリプトからブログ記事を生成する。
func (c *Client) GenerateArticle(ctx context.Context, transcript, episodeTitle string) (string, error) {
	prompt := fmt.Sprintf(`Write a blog article in HTML (h2, h3, p, ul, li, strong, em only) summarizing the episode %q for retail investors. Cover each ticker discussed and the host's stance. No inline styles, no scripts.`, episodeTitle)
	return c.complete(ctx, prompt, truncate(transcript))
}

// GenerateTweetThread はトランスクリプトからツイートスレッドを生成する。
func (c *Client) GenerateTweetThread(ctx context.Context, transcript, episodeTitle string) (string, error) {
	prompt := fmt.Sprintf(`Write a tweet thread (5-8 tweets, each under 280 characters, numbered "1/", "2/", ...) summarizing the market takes from the episode %q. Plain text only.`, episodeTitle)
	return c.complete(ctx, prompt, truncate(transcript))
}

// GenerateVideoScript はトランスクリプトからショート動画台本を生成する。
func (c *Client) GenerateVideoScript(ctx context.Context, transcript, episodeTitle string) (string, error) {
	prompt := fmt.Sprintf(`Write a 60-second short-form video script based on the episode %q. Include a hook, the key ticker calls, and a closing line. Plain text only.`, episodeTitle)
	return c.complete(ctx, prompt, truncate(transcript))
}

// GenerateNotableTimestamps は注目タイムスタンプの一覧を生成する。
func (c *Client) GenerateNotableTimestamps(ctx context.Context, transcript string) (string, error) {
	prompt := `List the most notable moments of this transcript as "MM:SS - description" lines, one per line, at most 10 lines. Plain text only.`
	return c.complete(ctx, prompt, truncate(transcript))
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// complete はchat completionsを1回呼び出し、最初の選択肢の本文を返す。
func (c *Client) complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストの組み立てに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("コラボレーターの呼び出しに失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("応答の読み込みに失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("コラボレーターがステータス%dを返却: %s", resp.StatusCode, truncateForLog(body))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("応答の解析に失敗: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("コラボレーターがエラーを返却: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("応答に選択肢がありません")
	}
	return cr.Choices[0].Message.Content, nil
}

// extractJSONBlock はコードフェンスや前置きを除いてJSON本体を切り出す。
func extractJSONBlock(reply string) string {
	reply = strings.TrimSpace(reply)
	if after, ok := strings.CutPrefix(reply, "```json"); ok {
		reply = after
	} else if after, ok := strings.CutPrefix(reply, "```"); ok {
		reply = after
	}
	reply = strings.TrimSuffix(strings.TrimSpace(reply), "```")

	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start >= 0 && end > start {
		return reply[start : end+1]
	}
	return reply
}

// normalizeMentions はティッカーを大文字化し、空のティッカーと
// 未知のセンチメントラベルを整える。
func normalizeMentions(mentions []model.Mention) []model.Mention {
	out := make([]model.Mention, 0, len(mentions))
	for _, m := range mentions {
		m.Ticker = strings.ToUpper(strings.TrimSpace(m.Ticker))
		if m.Ticker == "" {
			continue
		}
		switch m.Sentiment {
		case model.SentimentBullish, model.SentimentBearish, model.SentimentNeutral:
		default:
			m.Sentiment = model.SentimentNeutral
		}
		out = append(out, m)
	}
	return out
}

func truncate(transcript string) string {
	if len(transcript) > maxTranscriptChars {
		return transcript[:maxTranscriptChars]
	}
	return transcript
}

func truncateForLog(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
