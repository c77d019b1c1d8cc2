package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marketpod/signalman/internal/model"
)

// PostgresContentRepository はContentRepositoryのPostgreSQL実装。
type PostgresContentRepository struct {
	db *sql.DB
}

// NewPostgresContentRepository はPostgresContentRepositoryを作成する。
func NewPostgresContentRepository(db *sql.DB) *PostgresContentRepository {
	return &PostgresContentRepository{db: db}
}

const contentColumns = `id, video_id, source_url, channel_id, influencer_name, episode_title,
	platform, channel_subscribers, transcript_text, status, error_message,
	extracted_mentions, highlights, blog_article, tweet_thread, video_script,
	notable_timestamps, published_at, created_at, updated_at`

// Create は新規レコードを保存する。IDが空の場合は生成する。
func (r *PostgresContentRepository) Create(ctx context.Context, record *model.ContentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = model.ContentStatusPending
	}
	if record.Platform == "" {
		record.Platform = "youtube"
	}

	mentions, highlights, err := marshalExtraction(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO contents (` + contentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.VideoID, record.SourceURL, record.ChannelID,
		record.InfluencerName, record.EpisodeTitle, record.Platform,
		record.ChannelSubscribers, record.TranscriptText, record.Status,
		record.ErrorMessage, mentions, highlights, record.BlogArticle,
		record.TweetThread, record.VideoScript, record.NotableTimestamps,
		record.PublishedAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("コンテンツの保存に失敗: %w", err)
	}
	return nil
}

// FindByID はIDでレコードを取得する。存在しない場合はnilを返す。
func (r *PostgresContentRepository) FindByID(ctx context.Context, id string) (*model.ContentRecord, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`
	record, err := scanContent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗: %w", err)
	}
	return record, nil
}

// ExistsByVideoID は動画IDのレコードが既に存在するかを返す。
func (r *PostgresContentRepository) ExistsByVideoID(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM contents WHERE video_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, videoID).Scan(&exists); err != nil {
		return false, fmt.Errorf("動画IDの存在確認に失敗: %w", err)
	}
	return exists, nil
}

// UpdateStatus は処理状態とエラーメッセージを更新する。
func (r *PostgresContentRepository) UpdateStatus(ctx context.Context, id string, status model.ContentStatus, errorMessage string) error {
	query := `UPDATE contents SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, errorMessage); err != nil {
		return fmt.Errorf("状態の更新に失敗: %w", err)
	}
	return nil
}

// UpdateMetadata は動画メタデータを更新する。
func (r *PostgresContentRepository) UpdateMetadata(ctx context.Context, record *model.ContentRecord) error {
	query := `
		UPDATE contents
		SET channel_id = $2, influencer_name = $3, episode_title = $4,
		    channel_subscribers = $5, published_at = $6, updated_at = now()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.ChannelID, record.InfluencerName,
		record.EpisodeTitle, record.ChannelSubscribers, record.PublishedAt)
	if err != nil {
		return fmt.Errorf("メタデータの更新に失敗: %w", err)
	}
	return nil
}

// UpdateTranscript は取得したトランスクリプトを保存する。
func (r *PostgresContentRepository) UpdateTranscript(ctx context.Context, id, transcript string) error {
	query := `UPDATE contents SET transcript_text = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, transcript); err != nil {
		return fmt.Errorf("トランスクリプトの保存に失敗: %w", err)
	}
	return nil
}

// UpdateExtraction は抽出結果と生成コンテンツを保存する。
func (r *PostgresContentRepository) UpdateExtraction(ctx context.Context, record *model.ContentRecord) error {
	mentions, highlights, err := marshalExtraction(record)
	if err != nil {
		return err
	}

	query := `
		UPDATE contents
		SET extracted_mentions = $2, highlights = $3, blog_article = $4,
		    tweet_thread = $5, video_script = $6, notable_timestamps = $7,
		    updated_at = now()
		WHERE id = $1`
	_, err = r.db.ExecContext(ctx, query,
		record.ID, mentions, highlights, record.BlogArticle,
		record.TweetThread, record.VideoScript, record.NotableTimestamps)
	if err != nil {
		return fmt.Errorf("抽出結果の保存に失敗: %w", err)
	}
	return nil
}

// List は公開日の新しい順にレコードを返す。公開日が無いものは作成日で並べる。
func (r *PostgresContentRepository) List(ctx context.Context, limit, offset int) ([]*model.ContentRecord, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM contents
		ORDER BY COALESCE(published_at, created_at) DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗: %w", err)
	}
	defer rows.Close()
	return scanContents(rows)
}

// ListCompleteByPublishedRange は指定期間に公開された処理完了レコードを返す。
func (r *PostgresContentRepository) ListCompleteByPublishedRange(ctx context.Context, from, to time.Time) ([]*model.ContentRecord, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM contents
		WHERE status = $1 AND published_at >= $2 AND published_at < $3
		ORDER BY published_at DESC`
	rows, err := r.db.QueryContext(ctx, query, model.ContentStatusComplete, from, to)
	if err != nil {
		return nil, fmt.Errorf("期間指定の取得に失敗: %w", err)
	}
	defer rows.Close()
	return scanContents(rows)
}

// ListCompleteDates はデータが存在する公開日（UTC）の一覧を新しい順に返す。
func (r *PostgresContentRepository) ListCompleteDates(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT to_char(published_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day
		FROM contents
		WHERE status = $1 AND published_at IS NOT NULL
		ORDER BY day DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, model.ContentStatusComplete, limit)
	if err != nil {
		return nil, fmt.Errorf("公開日一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("公開日の読み取りに失敗: %w", err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// ResetStaleProcessing は一定時間processingのまま停滞したレコードをerrorに遷移させる。
func (r *PostgresContentRepository) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE contents
		SET status = $1, error_message = 'processing timed out', updated_at = now()
		WHERE status = $2 AND updated_at < $3`
	result, err := r.db.ExecContext(ctx, query,
		model.ContentStatusError, model.ContentStatusProcessing, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("停滞レコードのリセットに失敗: %w", err)
	}
	return result.RowsAffected()
}

func marshalExtraction(record *model.ContentRecord) (mentions, highlights []byte, err error) {
	if record.ExtractedMentions != nil {
		mentions, err = json.Marshal(record.ExtractedMentions)
		if err != nil {
			return nil, nil, fmt.Errorf("メンションのシリアライズに失敗: %w", err)
		}
	}
	if record.Highlights != nil {
		highlights, err = json.Marshal(record.Highlights)
		if err != nil {
			return nil, nil, fmt.Errorf("ハイライトのシリアライズに失敗: %w", err)
		}
	}
	return mentions, highlights, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*model.ContentRecord, error) {
	var record model.ContentRecord
	var mentions, highlights []byte
	var publishedAt sql.NullTime

	err := row.Scan(
		&record.ID, &record.VideoID, &record.SourceURL, &record.ChannelID,
		&record.InfluencerName, &record.EpisodeTitle, &record.Platform,
		&record.ChannelSubscribers, &record.TranscriptText, &record.Status,
		&record.ErrorMessage, &mentions, &highlights, &record.BlogArticle,
		&record.TweetThread, &record.VideoScript, &record.NotableTimestamps,
		&publishedAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		t := publishedAt.Time
		record.PublishedAt = &t
	}
	if len(mentions) > 0 {
		if err := json.Unmarshal(mentions, &record.ExtractedMentions); err != nil {
			return nil, fmt.Errorf("メンションの復元に失敗: %w", err)
		}
	}
	if len(highlights) > 0 {
		if err := json.Unmarshal(highlights, &record.Highlights); err != nil {
			return nil, fmt.Errorf("ハイライトの復元に失敗: %w", err)
		}
	}
	return &record, nil
}

func scanContents(rows *sql.Rows) ([]*model.ContentRecord, error) {
	var records []*model.ContentRecord
	for rows.Next() {
		record, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("コンテンツの読み取りに失敗: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
