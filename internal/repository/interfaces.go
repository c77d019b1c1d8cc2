// Package repository はPostgreSQLへの永続化を提供する。
package repository

import (
	"context"
	"time"

	"github.com/marketpod/signalman/internal/model"
)

// ContentRepository はコンテンツレコードの永続化インターフェース。
type ContentRepository interface {
	// Create は新規レコードを保存する。IDが空の場合は生成する。
	Create(ctx context.Context, record *model.ContentRecord) error
	// FindByID はIDでレコードを取得する。存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ContentRecord, error)
	// ExistsByVideoID は動画IDのレコードが既に存在するかを返す。
	ExistsByVideoID(ctx context.Context, videoID string) (bool, error)
	// UpdateStatus は処理状態とエラーメッセージを更新する。
	UpdateStatus(ctx context.Context, id string, status model.ContentStatus, errorMessage string) error
	// UpdateMetadata は動画メタデータを更新する。
	UpdateMetadata(ctx context.Context, record *model.ContentRecord) error
	// UpdateTranscript は取得したトランスクリプトを保存する。
	UpdateTranscript(ctx context.Context, id, transcript string) error
	// UpdateExtraction は抽出結果と生成コンテンツを保存する。
	UpdateExtraction(ctx context.Context, record *model.ContentRecord) error
	// List は公開日の新しい順にレコードを返す。
	List(ctx context.Context, limit, offset int) ([]*model.ContentRecord, error)
	// ListCompleteByPublishedRange は指定期間に公開された処理完了レコードを返す。
	ListCompleteByPublishedRange(ctx context.Context, from, to time.Time) ([]*model.ContentRecord, error)
	// ListCompleteDates はデータが存在する公開日（UTC）の一覧を新しい順に返す。
	ListCompleteDates(ctx context.Context, limit int) ([]string, error)
	// ResetStaleProcessing は一定時間processingのまま停滞したレコードをerrorに遷移させる。
	ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ChannelRepository は監視チャンネルの永続化インターフェース。
type ChannelRepository interface {
	Create(ctx context.Context, channel *model.Channel) error
	FindByChannelID(ctx context.Context, channelID string) (*model.Channel, error)
	List(ctx context.Context) ([]*model.Channel, error)
	// ListDueForFetch はフェッチ予定時刻を過ぎたアクティブなチャンネルを返す。
	ListDueForFetch(ctx context.Context, now time.Time, limit int) ([]*model.Channel, error)
	UpdateFetchSuccess(ctx context.Context, id, etag, lastModified string, nextFetchAt time.Time) error
	UpdateFetchFailure(ctx context.Context, id, errorMessage string, consecutiveErrors int, status model.FetchStatus, nextFetchAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// UserRepository はユーザーの永続化インターフェース。
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdatePlan(ctx context.Context, id string, plan model.Plan) error
	UpdateStripeCustomerID(ctx context.Context, id, customerID string) error
}

// IdentityRepository は外部IdP紐付けの永続化インターフェース。
type IdentityRepository interface {
	Create(ctx context.Context, identity *model.Identity) error
	FindByProvider(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
