// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrTranscriptUnavailable は全戦略を試してもトランスクリプトが取得できなかったことを表す。
// 一時的な失敗ではなく確定的な失敗として扱い、自動リトライは行わない。
var ErrTranscriptUnavailable = errors.New("transcript unavailable")

// ErrProcessingInFlight は同一動画IDの処理が既に進行中であることを表す。
var ErrProcessingInFlight = errors.New("processing already in flight")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, billing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidVideoURL       = "INVALID_VIDEO_URL"
	ErrCodeTranscriptUnavailable = "TRANSCRIPT_UNAVAILABLE"
	ErrCodeContentNotFound       = "CONTENT_NOT_FOUND"
	ErrCodeProcessingFailed      = "PROCESSING_FAILED"
	ErrCodeProcessingInFlight    = "PROCESSING_IN_FLIGHT"
	ErrCodeInvalidTicker         = "INVALID_TICKER"
	ErrCodeInvalidDate           = "INVALID_DATE"
	ErrCodeInvalidChannel        = "INVALID_CHANNEL"
	ErrCodeChannelNotFound       = "CHANNEL_NOT_FOUND"
	ErrCodeDuplicateChannel      = "DUPLICATE_CHANNEL"
	ErrCodeBillingFailed         = "BILLING_FAILED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodePlanRequired          = "PLAN_REQUIRED"
)

// NewInvalidVideoURLError は無効な動画URLエラーを生成する。
func NewInvalidVideoURLError(input string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVideoURL,
		Message:  fmt.Sprintf("動画IDを抽出できませんでした: %s", input),
		Category: "validation",
		Action:   "YouTubeの動画URL（watch?v=... または youtu.be/...）か11文字の動画IDを入力してください。",
	}
}

// NewTranscriptUnavailableError はトランスクリプト取得不能エラーを生成する。
// 字幕が無効化されているか未生成の場合に発生し、一般の処理失敗とは区別される。
func NewTranscriptUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeTranscriptUnavailable,
		Message:  "この動画のトランスクリプトを取得できませんでした。字幕が無効化されているか、まだ生成されていない可能性があります。",
		Category: "content",
		Action:   "トランスクリプトを手動で貼り付けるか、時間をおいて再投稿してください。",
	}
}

// NewContentNotFoundError はコンテンツ未検出エラーを生成する。
func NewContentNotFoundError(contentID string) *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("指定されたコンテンツが見つかりません: %s", contentID),
		Category: "content",
		Action:   "コンテンツIDを確認してください。",
	}
}

// NewProcessingFailedError は処理失敗エラーを生成する。
func NewProcessingFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProcessingFailed,
		Message:  fmt.Sprintf("コンテンツの処理に失敗しました: %s", reason),
		Category: "content",
		Action:   "しばらく待ってから再投稿してください。",
	}
}

// NewProcessingInFlightError は同一動画の処理が既に実行中であることを表すエラーを生成する。
func NewProcessingInFlightError(videoID string) *APIError {
	return &APIError{
		Code:     ErrCodeProcessingInFlight,
		Message:  fmt.Sprintf("この動画は現在処理中です: %s", videoID),
		Category: "content",
		Action:   "処理の完了を待ってから再度お試しください。",
	}
}

// NewInvalidTickerError は無効なティッカーエラーを生成する。
func NewInvalidTickerError(ticker string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTicker,
		Message:  fmt.Sprintf("無効なティッカーシンボルです: %s", ticker),
		Category: "validation",
		Action:   "1〜6文字の英大文字のティッカーシンボルを指定してください。",
	}
}

// NewInvalidDateError は無効な日付エラーを生成する。
func NewInvalidDateError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", date),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式で指定してください。",
	}
}

// NewInvalidChannelError は無効なチャンネル指定エラーを生成する。
func NewInvalidChannelError(input string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidChannel,
		Message:  fmt.Sprintf("無効なチャンネル指定です: %s", input),
		Category: "validation",
		Action:   "YouTubeのチャンネルID（UC…）またはチャンネルURLを指定してください。",
	}
}

// NewChannelNotFoundError はチャンネル未検出エラーを生成する。
func NewChannelNotFoundError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeChannelNotFound,
		Message:  fmt.Sprintf("指定されたチャンネルが見つかりません: %s", channelID),
		Category: "content",
		Action:   "チャンネルIDを確認してください。",
	}
}

// NewDuplicateChannelError は登録済みチャンネルの重複登録エラーを生成する。
func NewDuplicateChannelError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateChannel,
		Message:  "このチャンネルは既に登録されています。",
		Category: "content",
		Action:   "チャンネル一覧から該当チャンネルを確認してください。",
	}
}

// NewBillingFailedError は課金コラボレーターの呼び出し失敗エラーを生成する。
func NewBillingFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBillingFailed,
		Message:  fmt.Sprintf("決済処理に失敗しました: %s", reason),
		Category: "billing",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewPlanRequiredError は有料プランが必要な操作へのアクセスエラーを生成する。
func NewPlanRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodePlanRequired,
		Message:  "この操作にはProプランの契約が必要です。",
		Category: "billing",
		Action:   "Proプランにアップグレードしてください。",
	}
}
