package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marketpod/signalman/internal/model"
)

// PostgresUserRepository はUserRepositoryのPostgreSQL実装。
type PostgresUserRepository struct {
	db *sql.DB
}

// NewPostgresUserRepository はPostgresUserRepositoryを作成する。
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, email, name, avatar_url, plan, stripe_customer_id, created_at, updated_at`

// Create は新規ユーザーを保存する。プランが未指定の場合はfreeとして扱う。
func (r *PostgresUserRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Plan == "" {
		user.Plan = model.PlanFree
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.AvatarURL, user.Plan,
		nullableString(user.StripeCustomerID), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return nil
}

// FindByID はIDでユーザーを取得する。存在しない場合はnilを返す。
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.findOne(ctx, query, id)
}

// FindByEmail はメールアドレスでユーザーを取得する。存在しない場合はnilを返す。
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.findOne(ctx, query, email)
}

// FindByStripeCustomerID はStripe顧客IDでユーザーを取得する。存在しない場合はnilを返す。
func (r *PostgresUserRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	return r.findOne(ctx, query, customerID)
}

// UpdatePlan はユーザーのプランを更新する。
func (r *PostgresUserRepository) UpdatePlan(ctx context.Context, id string, plan model.Plan) error {
	query := `UPDATE users SET plan = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, plan); err != nil {
		return fmt.Errorf("プランの更新に失敗: %w", err)
	}
	return nil
}

// UpdateStripeCustomerID はStripe顧客IDを紐付ける。
func (r *PostgresUserRepository) UpdateStripeCustomerID(ctx context.Context, id, customerID string) error {
	query := `UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, customerID); err != nil {
		return fmt.Errorf("Stripe顧客IDの更新に失敗: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var user model.User
	var stripeCustomerID sql.NullString
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.AvatarURL, &user.Plan,
		&stripeCustomerID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	user.StripeCustomerID = stripeCustomerID.String
	return &user, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PostgresIdentityRepository はIdentityRepositoryのPostgreSQL実装。
type PostgresIdentityRepository struct {
	db *sql.DB
}

// NewPostgresIdentityRepository はPostgresIdentityRepositoryを作成する。
func NewPostgresIdentityRepository(db *sql.DB) *PostgresIdentityRepository {
	return &PostgresIdentityRepository{db: db}
}

// Create は外部IdPとの紐付けを保存する。
func (r *PostgresIdentityRepository) Create(ctx context.Context, identity *model.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	identity.CreatedAt = time.Now()

	query := `
		INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		identity.ID, identity.UserID, identity.Provider,
		identity.ProviderUserID, identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("IdP紐付けの保存に失敗: %w", err)
	}
	return nil
}

// FindByProvider はIdPとプロバイダ側ユーザーIDで紐付けを検索する。存在しない場合はnilを返す。
func (r *PostgresIdentityRepository) FindByProvider(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	var identity model.Identity
	query := `
		SELECT id, user_id, provider, provider_user_id, created_at
		FROM identities
		WHERE provider = $1 AND provider_user_id = $2`
	err := r.db.QueryRowContext(ctx, query, provider, providerUserID).Scan(
		&identity.ID, &identity.UserID, &identity.Provider,
		&identity.ProviderUserID, &identity.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("IdP紐付けの取得に失敗: %w", err)
	}
	return &identity, nil
}
