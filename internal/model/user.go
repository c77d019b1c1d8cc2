// Package model はドメインモデルを定義する。
package model

import "time"

// Plan はユーザーの課金プランを表す。
// エンタイトルメントは常にサーバー側で永続化されたユーザーレコードから解決する。
// クライアントから渡されたフラグを信用してはならない。
type Plan string

const (
	// PlanFree は無料プラン。ダッシュボードは12〜14日前のウィンドウのみ閲覧可能。
	PlanFree Plan = "free"
	// PlanPro は有料プラン。ライブデータを閲覧可能。
	PlanPro Plan = "pro"
)

// User はサービス利用ユーザーを表す。
type User struct {
	ID               string
	Email            string
	Name             string
	AvatarURL        string
	Plan             Plan
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsPro は有料プランかどうかを返す。
func (u *User) IsPro() bool {
	return u.Plan == PlanPro
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
