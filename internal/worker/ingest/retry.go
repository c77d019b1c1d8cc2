package ingest

import (
	"fmt"
	"time"

	"github.com/marketpod/signalman/internal/model"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop はフェッチ停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// stopThreshold は連続エラーによるフェッチ停止の閾値。
	stopThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyStop はチャンネルのフェッチを停止する。
func ApplyStop(ch *model.Channel, reason string) {
	ch.FetchStatus = model.FetchStatusStopped
	ch.ErrorMessage = reason
}

// ApplyBackoff はチャンネルにバックオフ戦略を適用する。
// 連続エラー回数をインクリメントし、指数バックオフでNextFetchAtを設定する。
// 連続エラーが閾値に達した場合はフェッチを停止する。
func ApplyBackoff(ch *model.Channel, reason string) {
	ch.ConsecutiveErrors++
	ch.ErrorMessage = reason
	ch.NextFetchAt = time.Now().Add(CalculateBackoff(ch.ConsecutiveErrors - 1))

	if ch.ConsecutiveErrors >= stopThreshold {
		ch.FetchStatus = model.FetchStatusStopped
		ch.ErrorMessage = fmt.Sprintf("エラーが%d回連続したためフェッチを停止しました: %s", ch.ConsecutiveErrors, reason)
	}
}

// ApplySuccess はフェッチ成功時にチャンネルの状態をリセットする。
func ApplySuccess(ch *model.Channel, interval time.Duration) {
	ch.ConsecutiveErrors = 0
	ch.ErrorMessage = ""
	ch.FetchStatus = model.FetchStatusActive
	ch.NextFetchAt = time.Now().Add(interval)
}
