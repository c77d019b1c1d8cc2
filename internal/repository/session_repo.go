package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marketpod/signalman/internal/model"
)

// PostgresSessionRepository はSessionRepositoryのPostgreSQL実装。
type PostgresSessionRepository struct {
	db *sql.DB
}

// NewPostgresSessionRepository はPostgresSessionRepositoryを作成する。
func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// Create はセッションを保存する。IDは呼び出し元が生成したトークン。
func (r *PostgresSessionRepository) Create(ctx context.Context, session *model.Session) error {
	session.CreatedAt = time.Now()
	query := `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return nil
}

// FindByID はセッションを取得する。存在しない場合はnilを返す。
func (r *PostgresSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	query := `SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗: %w", err)
	}
	return &session, nil
}

// Delete はセッションを削除する。
func (r *PostgresSessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("セッションの削除に失敗: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	return result.RowsAffected()
}
