// Package model はドメインモデルを定義する。
package model

import "time"

// ContentRecord は処理済みの動画/エピソード1件を表す。
// videoIdは11文字のプラットフォーム固有IDで、作成後は不変。
// transcriptTextは取得成功後に1回だけ設定される（再取得は行わない）。
type ContentRecord struct {
	ID                 string
	VideoID            string
	SourceURL          string
	ChannelID          string
	InfluencerName     string
	EpisodeTitle       string
	Platform           string
	ChannelSubscribers int64
	TranscriptText     string
	Status             ContentStatus
	ErrorMessage       string
	ExtractedMentions  []Mention
	Highlights         []Highlight
	BlogArticle        string
	TweetThread        string
	VideoScript        string
	NotableTimestamps  string
	PublishedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ContentStatus はコンテンツ処理の状態を表す。
// 遷移: pending → processing → complete、失敗時は processing → error。
// completeに達したレコードはパイプラインからは読み取り専用となる。
type ContentStatus string

const (
	// ContentStatusPending はレコード作成直後の状態。
	ContentStatusPending ContentStatus = "pending"
	// ContentStatusProcessing は文字起こし取得・抽出の実行中を表す。
	ContentStatusProcessing ContentStatus = "processing"
	// ContentStatusComplete は抽出が成功し全フィールドが確定した状態。
	ContentStatusComplete ContentStatus = "complete"
	// ContentStatusError は処理中に例外が発生した状態。自動リトライは行わない。
	ContentStatusError ContentStatus = "error"
)

// Sentiment はメンションのセンチメントラベルを表す。
type Sentiment string

const (
	// SentimentBullish は強気のセンチメント。
	SentimentBullish Sentiment = "bullish"
	// SentimentBearish は弱気のセンチメント。
	SentimentBearish Sentiment = "bearish"
	// SentimentNeutral は中立のセンチメント。
	SentimentNeutral Sentiment = "neutral"
)

// Score はセンチメントラベルを数値スコアに変換する。
// bullish=+1, bearish=-1, neutral=0。未知のラベルは0として扱う。
func (s Sentiment) Score() float64 {
	switch s {
	case SentimentBullish:
		return 1
	case SentimentBearish:
		return -1
	default:
		return 0
	}
}

// Mention はトランスクリプト中のティッカーシンボルへの言及1件を表す。
// 抽出コラボレーターの出力をそのまま受け入れ、実在の銘柄リストとの照合は行わない。
// Mentionは常にちょうど1つのContentRecordに属する。
type Mention struct {
	Ticker     string    `json:"ticker"`
	Sentiment  Sentiment `json:"sentiment"`
	Timestamps []int     `json:"timestamps,omitempty"`
	Context    string    `json:"context,omitempty"`
}

// Highlight はエピソード内の注目箇所1件を表す。
type Highlight struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec,omitempty"`
	Text     string  `json:"text"`
}
