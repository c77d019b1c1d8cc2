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

// PostgresChannelRepository はChannelRepositoryのPostgreSQL実装。
type PostgresChannelRepository struct {
	db *sql.DB
}

// NewPostgresChannelRepository はPostgresChannelRepositoryを作成する。
func NewPostgresChannelRepository(db *sql.DB) *PostgresChannelRepository {
	return &PostgresChannelRepository{db: db}
}

const channelColumns = `id, channel_id, title, feed_url, etag, last_modified,
	fetch_status, consecutive_errors, error_message, next_fetch_at, created_at, updated_at`

// Create は監視チャンネルを登録する。
func (r *PostgresChannelRepository) Create(ctx context.Context, channel *model.Channel) error {
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	now := time.Now()
	channel.CreatedAt = now
	channel.UpdatedAt = now
	if channel.FetchStatus == "" {
		channel.FetchStatus = model.FetchStatusActive
	}
	if channel.NextFetchAt.IsZero() {
		channel.NextFetchAt = now
	}

	query := `
		INSERT INTO channels (` + channelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query,
		channel.ID, channel.ChannelID, channel.Title, channel.FeedURL,
		channel.ETag, channel.LastModified, channel.FetchStatus,
		channel.ConsecutiveErrors, channel.ErrorMessage, channel.NextFetchAt,
		channel.CreatedAt, channel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("チャンネルの登録に失敗: %w", err)
	}
	return nil
}

// FindByChannelID はYouTubeチャンネルIDで検索する。存在しない場合はnilを返す。
func (r *PostgresChannelRepository) FindByChannelID(ctx context.Context, channelID string) (*model.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE channel_id = $1`
	channel, err := scanChannel(r.db.QueryRowContext(ctx, query, channelID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャンネルの取得に失敗: %w", err)
	}
	return channel, nil
}

// List は全チャンネルを登録順に返す。
func (r *PostgresChannelRepository) List(ctx context.Context) ([]*model.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の取得に失敗: %w", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// ListDueForFetch はフェッチ予定時刻を過ぎたアクティブなチャンネルを返す。
func (r *PostgresChannelRepository) ListDueForFetch(ctx context.Context, now time.Time, limit int) ([]*model.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE fetch_status = $1 AND next_fetch_at <= $2
		ORDER BY next_fetch_at ASC
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, model.FetchStatusActive, now, limit)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象の取得に失敗: %w", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// UpdateFetchSuccess はフェッチ成功を記録し、エラーカウントをリセットする。
func (r *PostgresChannelRepository) UpdateFetchSuccess(ctx context.Context, id, etag, lastModified string, nextFetchAt time.Time) error {
	query := `
		UPDATE channels
		SET etag = $2, last_modified = $3, fetch_status = $4,
		    consecutive_errors = 0, error_message = '', next_fetch_at = $5,
		    updated_at = now()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, etag, lastModified, model.FetchStatusActive, nextFetchAt)
	if err != nil {
		return fmt.Errorf("フェッチ成功の記録に失敗: %w", err)
	}
	return nil
}

// UpdateFetchFailure はフェッチ失敗を記録する。
func (r *PostgresChannelRepository) UpdateFetchFailure(ctx context.Context, id, errorMessage string, consecutiveErrors int, status model.FetchStatus, nextFetchAt time.Time) error {
	query := `
		UPDATE channels
		SET error_message = $2, consecutive_errors = $3, fetch_status = $4,
		    next_fetch_at = $5, updated_at = now()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, errorMessage, consecutiveErrors, status, nextFetchAt)
	if err != nil {
		return fmt.Errorf("フェッチ失敗の記録に失敗: %w", err)
	}
	return nil
}

// Delete はチャンネルを削除する。
func (r *PostgresChannelRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id); err != nil {
		return fmt.Errorf("チャンネルの削除に失敗: %w", err)
	}
	return nil
}

func scanChannel(row rowScanner) (*model.Channel, error) {
	var channel model.Channel
	err := row.Scan(
		&channel.ID, &channel.ChannelID, &channel.Title, &channel.FeedURL,
		&channel.ETag, &channel.LastModified, &channel.FetchStatus,
		&channel.ConsecutiveErrors, &channel.ErrorMessage, &channel.NextFetchAt,
		&channel.CreatedAt, &channel.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func scanChannels(rows *sql.Rows) ([]*model.Channel, error) {
	var channels []*model.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("チャンネルの読み取りに失敗: %w", err)
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}
