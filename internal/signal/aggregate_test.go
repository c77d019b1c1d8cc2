package signal

import (
	"reflect"
	"testing"
	"time"

	"github.com/marketpod/signalman/internal/model"
)

// --- テストヘルパー ---

func recordWithMentions(id string, publishedAt time.Time, mentions ...model.Mention) *model.ContentRecord {
	t := publishedAt
	return &model.ContentRecord{
		ID:                id,
		VideoID:           "dQw4w9WgXcQ",
		InfluencerName:    "Test Influencer",
		EpisodeTitle:      "Episode " + id,
		Status:            model.ContentStatusComplete,
		ExtractedMentions: mentions,
		PublishedAt:       &t,
		CreatedAt:         publishedAt,
		UpdatedAt:         publishedAt,
	}
}

func mention(ticker string, sentiment model.Sentiment) model.Mention {
	return model.Mention{Ticker: ticker, Sentiment: sentiment}
}

// --- 集計の正しさ ---

// 1件のbullishと1件のbearishで平均スコア0、ラベルneutralになることを検証。
// 「50/50は拮抗」ではなく意図的にneutralとして扱う仕様。
func TestAggregate_BullishAndBearish_YieldsNeutralZero(t *testing.T) {
	day := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	records := []*model.ContentRecord{
		recordWithMentions("c1", day, mention("NVDA", model.SentimentBullish)),
		recordWithMentions("c2", day.Add(time.Hour), mention("NVDA", model.SentimentBearish)),
	}

	got := Aggregate(records, SortByCount)

	if len(got) != 1 {
		t.Fatalf("len(aggregates) = %d, want 1", len(got))
	}
	agg := got[0]
	if agg.Ticker != "NVDA" {
		t.Errorf("ticker = %q, want %q", agg.Ticker, "NVDA")
	}
	if agg.Count != 2 {
		t.Errorf("count = %d, want 2", agg.Count)
	}
	if agg.AvgSentimentScore != 0 {
		t.Errorf("avgSentimentScore = %v, want 0", agg.AvgSentimentScore)
	}
	if agg.Label != model.SentimentNeutral {
		t.Errorf("label = %q, want %q", agg.Label, model.SentimentNeutral)
	}
}

func TestAggregate_EmptyInput_ReturnsEmpty(t *testing.T) {
	got := Aggregate(nil, SortByCount)
	if len(got) != 0 {
		t.Errorf("len(aggregates) = %d, want 0", len(got))
	}
}

func TestAggregate_RecordsWithoutMentions_Skipped(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records := []*model.ContentRecord{
		recordWithMentions("c1", day),
		nil,
		recordWithMentions("c2", day, mention("AAPL", model.SentimentBullish)),
	}

	got := Aggregate(records, SortByCount)

	if len(got) != 1 {
		t.Fatalf("len(aggregates) = %d, want 1", len(got))
	}
	if got[0].Ticker != "AAPL" {
		t.Errorf("ticker = %q, want %q", got[0].Ticker, "AAPL")
	}
}

// --- 純粋性 ---

// 同一入力に対して2回呼び出しても完全に同一の出力が得られ、入力が変更されないことを検証。
func TestAggregate_IsPureAndDeterministic(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records := []*model.ContentRecord{
		recordWithMentions("c1", day,
			mention("NVDA", model.SentimentBullish),
			mention("TSLA", model.SentimentBearish),
		),
		recordWithMentions("c2", day.Add(time.Hour),
			mention("NVDA", model.SentimentNeutral),
		),
	}
	mentionsBefore := make([]model.Mention, len(records[0].ExtractedMentions))
	copy(mentionsBefore, records[0].ExtractedMentions)

	first := Aggregate(records, SortByCount)
	second := Aggregate(records, SortByCount)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("aggregate is not deterministic:\nfirst  = %+v\nsecond = %+v", first, second)
	}
	if !reflect.DeepEqual(records[0].ExtractedMentions, mentionsBefore) {
		t.Error("input records were mutated by Aggregate")
	}
}

// --- ソート ---

// 件数同値のティッカーが入力初出順を維持することを検証（安定ソート）。
// 入力順 [B, A, C]、件数 [5, 5, 3] → 出力 [B, A, C]。
func TestAggregate_SortByCount_StableTieBreak(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	var mentionsB, mentionsA []model.Mention
	for i := 0; i < 5; i++ {
		mentionsB = append(mentionsB, mention("BBB", model.SentimentBullish))
		mentionsA = append(mentionsA, mention("AAA", model.SentimentBullish))
	}
	mentions := append(mentionsB, mentionsA...)
	mentions = append(mentions,
		mention("CCC", model.SentimentNeutral),
		mention("CCC", model.SentimentNeutral),
		mention("CCC", model.SentimentNeutral),
	)

	records := []*model.ContentRecord{recordWithMentions("c1", day, mentions...)}

	got := Aggregate(records, SortByCount)

	want := []string{"BBB", "AAA", "CCC"}
	if len(got) != len(want) {
		t.Fatalf("len(aggregates) = %d, want %d", len(got), len(want))
	}
	for i, ticker := range want {
		if got[i].Ticker != ticker {
			t.Errorf("aggregates[%d].Ticker = %q, want %q", i, got[i].Ticker, ticker)
		}
	}
}

func TestAggregate_SortByStrength_OrdersByAbsoluteScore(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records := []*model.ContentRecord{
		recordWithMentions("c1", day,
			// MIXED: +1 -1 → 平均0
			mention("MIX", model.SentimentBullish),
			mention("MIX", model.SentimentBearish),
			// BEAR: -1 -1 → 平均-1
			mention("BEAR", model.SentimentBearish),
			mention("BEAR", model.SentimentBearish),
			// HALF: +1 0 → 平均0.5
			mention("HALF", model.SentimentBullish),
			mention("HALF", model.SentimentNeutral),
		),
	}

	got := Aggregate(records, SortByStrength)

	want := []string{"BEAR", "HALF", "MIX"}
	for i, ticker := range want {
		if got[i].Ticker != ticker {
			t.Errorf("aggregates[%d].Ticker = %q, want %q", i, got[i].Ticker, ticker)
		}
	}
}

// --- ラベル閾値 ---

// ちょうど0.2はbullishではなくneutral、ちょうど-0.2はbearishではなくneutralになることを検証。
func TestLabel_ThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  model.Sentiment
	}{
		{"exactly +0.2 is neutral", 0.2, model.SentimentNeutral},
		{"exactly -0.2 is neutral", -0.2, model.SentimentNeutral},
		{"just above threshold is bullish", 0.2000001, model.SentimentBullish},
		{"just below threshold is bearish", -0.2000001, model.SentimentBearish},
		{"zero is neutral", 0, model.SentimentNeutral},
		{"strong bullish", 1, model.SentimentBullish},
		{"strong bearish", -1, model.SentimentBearish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(tt.score); got != tt.want {
				t.Errorf("Label(%v) = %q, want %q", tt.score, got, tt.want)
			}
		})
	}
}

// --- メンション要約 ---

func TestAggregate_MentionSummaries_NewestFirst(t *testing.T) {
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	records := []*model.ContentRecord{
		recordWithMentions("c1", older, model.Mention{Ticker: "NVDA", Sentiment: model.SentimentBullish, Context: "first"}),
		recordWithMentions("c2", newer, model.Mention{Ticker: "NVDA", Sentiment: model.SentimentBearish, Context: "second"}),
	}

	got := Aggregate(records, SortByCount)

	if len(got) != 1 || len(got[0].Mentions) != 2 {
		t.Fatalf("unexpected aggregate shape: %+v", got)
	}
	if got[0].Mentions[0].Context != "second" {
		t.Errorf("mentions[0].Context = %q, want %q (newest first)", got[0].Mentions[0].Context, "second")
	}
	if got[0].Mentions[1].Context != "first" {
		t.Errorf("mentions[1].Context = %q, want %q", got[0].Mentions[1].Context, "first")
	}
}

func TestAggregate_MentionSummary_DefaultsForMissingMetadata(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rec := recordWithMentions("c1", day, mention("NVDA", model.SentimentBullish))
	rec.InfluencerName = ""
	rec.EpisodeTitle = ""

	got := Aggregate([]*model.ContentRecord{rec}, SortByCount)

	if got[0].Mentions[0].Influencer != "Unknown" {
		t.Errorf("influencer = %q, want %q", got[0].Mentions[0].Influencer, "Unknown")
	}
	if got[0].Mentions[0].Episode != "Untitled" {
		t.Errorf("episode = %q, want %q", got[0].Mentions[0].Episode, "Untitled")
	}
}
