// Package model はドメインモデルを定義する。
package model

import "time"

// Channel は自動取り込み対象のYouTubeチャンネルを表す。
// ワーカーがチャンネルのAtomフィードを定期フェッチし、新着動画を取り込む。
type Channel struct {
	ID                string
	ChannelID         string // YouTubeのチャンネルID（UC...）
	Title             string
	FeedURL           string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus はチャンネルフィードのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
	// FetchStatusError はエラーによるフェッチ停止状態。
	FetchStatusError FetchStatus = "error"
)
