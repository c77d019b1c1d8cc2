// Package signal はティッカーメンションの集計ロジックを提供する。
// 永続化されたContentRecordの集合から、ティッカーごとのセンチメントロールアップを
// 決定的に導出する。集計結果は永続化されず、読み取りのたびに再計算される。
package signal

import (
	"math"
	"sort"

	"github.com/marketpod/signalman/internal/model"
)

// SortMode は集計結果の並び順を表す。
type SortMode string

const (
	// SortByCount はメンション数の降順（デフォルトの「最多メンション」順）。
	SortByCount SortMode = "count"
	// SortByStrength は平均センチメントスコアの絶対値の降順（「センチメント最強」順）。
	SortByStrength SortMode = "strength"
)

// センチメントラベル導出の閾値。
// 単発の混在メンションでラベルが反転しないよう、±0.2の不感帯を設ける。
// 境界値（ちょうど0.2 / -0.2）はneutralに倒す。
const labelThreshold = 0.2

// MentionSummary は集計に寄与したメンション1件の要約を表す。
// 所有レコードのメタデータ（インフルエンサー名、エピソード名、公開日）を含む。
type MentionSummary struct {
	Influencer string          `json:"influencer"`
	Episode    string          `json:"episode"`
	Sentiment  model.Sentiment `json:"sentiment"`
	Context    string          `json:"context,omitempty"`
	Date       string          `json:"date"`
}

// TickerAggregate は1ティッカーのメンションロールアップを表す。
// 永続化されない派生ビューであり、常に最新の永続メンションを反映する。
type TickerAggregate struct {
	Ticker            string           `json:"ticker"`
	Count             int              `json:"count"`
	AvgSentimentScore float64          `json:"avgSentimentScore"`
	Label             model.Sentiment  `json:"label"`
	Mentions          []MentionSummary `json:"mentions"`
}

// Label は連続スコアからセンチメントラベルを導出する。
// score > 0.2 → bullish、score < -0.2 → bearish、それ以外 → neutral。
// 境界はbullish側・bearish側ともに排他的で、ちょうど±0.2はneutralになる。
func Label(score float64) model.Sentiment {
	switch {
	case score > labelThreshold:
		return model.SentimentBullish
	case score < -labelThreshold:
		return model.SentimentBearish
	default:
		return model.SentimentNeutral
	}
}

// tickerAccum は集計途中のティッカー別アキュムレータ。
type tickerAccum struct {
	sumScore float64
	count    int
	mentions []MentionSummary
}

// Aggregate はContentRecordの集合からティッカーごとのロールアップを計算する。
// 純粋関数であり、入力を変更せず、同一入力に対して常に同一出力を返す。
// 出力はsortModeに従って安定ソートされ、同値のティッカーは初出順を維持する。
//
// スコアはメンションごとに bullish=+1 / bearish=-1 / neutral=0 を加算し、
// ティッカーごとの平均を取る。メンション0件のティッカーは出力に現れない。
func Aggregate(records []*model.ContentRecord, sortMode SortMode) []TickerAggregate {
	accums := make(map[string]*tickerAccum)
	var order []string // 初出順を保持する

	for _, rec := range records {
		if rec == nil {
			continue
		}
		for _, m := range rec.ExtractedMentions {
			acc, ok := accums[m.Ticker]
			if !ok {
				acc = &tickerAccum{}
				accums[m.Ticker] = acc
				order = append(order, m.Ticker)
			}
			acc.sumScore += m.Sentiment.Score()
			acc.count++
			acc.mentions = append(acc.mentions, newMentionSummary(rec, m))
		}
	}

	aggregates := make([]TickerAggregate, 0, len(order))
	for _, ticker := range order {
		acc := accums[ticker]
		avg := 0.0
		if acc.count > 0 {
			avg = acc.sumScore / float64(acc.count)
		}

		// 寄与メンションは新しい順に並べる
		mentions := make([]MentionSummary, len(acc.mentions))
		copy(mentions, acc.mentions)
		sort.SliceStable(mentions, func(i, j int) bool {
			return mentions[i].Date > mentions[j].Date
		})

		aggregates = append(aggregates, TickerAggregate{
			Ticker:            ticker,
			Count:             acc.count,
			AvgSentimentScore: avg,
			Label:             Label(avg),
			Mentions:          mentions,
		})
	}

	switch sortMode {
	case SortByStrength:
		sort.SliceStable(aggregates, func(i, j int) bool {
			return math.Abs(aggregates[i].AvgSentimentScore) > math.Abs(aggregates[j].AvgSentimentScore)
		})
	default:
		sort.SliceStable(aggregates, func(i, j int) bool {
			return aggregates[i].Count > aggregates[j].Count
		})
	}

	return aggregates
}

// newMentionSummary は所有レコードのメタデータからメンション要約を構築する。
// publishedAtが未設定のレコードはcreatedAtで代用する。
func newMentionSummary(rec *model.ContentRecord, m model.Mention) MentionSummary {
	influencer := rec.InfluencerName
	if influencer == "" {
		influencer = "Unknown"
	}
	episode := rec.EpisodeTitle
	if episode == "" {
		episode = "Untitled"
	}
	date := rec.CreatedAt
	if rec.PublishedAt != nil {
		date = *rec.PublishedAt
	}
	return MentionSummary{
		Influencer: influencer,
		Episode:    episode,
		Sentiment:  m.Sentiment,
		Context:    m.Context,
		Date:       date.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
