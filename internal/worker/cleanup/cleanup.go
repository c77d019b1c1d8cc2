// Package cleanup はセッションと処理中レコードの定期メンテナンスジョブを提供する。
// 期限切れセッションの削除と、processingのまま停滞したコンテンツの
// エラー遷移を一定間隔で実行する。どちらの処理も冪等。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionCleaner は期限切れセッションの削除を抽象化する。
type SessionCleaner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ContentResetter は停滞したprocessingレコードの復旧を抽象化する。
type ContentResetter interface {
	ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Job は定期メンテナンスジョブ。
// サーバプロセス内のgoroutineとして常駐し、Interval間隔でRunを実行する。
type Job struct {
	sessions SessionCleaner
	contents ContentResetter
	logger   *slog.Logger

	// StaleAfter はprocessingレコードを停滞とみなすまでの経過時間。
	StaleAfter time.Duration
}

// NewJob は新しいJobを生成する。
// デフォルトでは30分間processingのままのレコードを停滞とみなす。
func NewJob(sessions SessionCleaner, contents ContentResetter, logger *slog.Logger) *Job {
	return &Job{
		sessions:   sessions,
		contents:   contents,
		logger:     logger,
		StaleAfter: 30 * time.Minute,
	}
}

// Run は期限切れセッションの削除と停滞レコードの復旧を1回実行する。
// 対象が0件でもエラーにならない。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.sessions.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	staleContents, err := j.contents.ResetStaleProcessing(ctx, j.StaleAfter)
	if err != nil {
		j.logger.Error("停滞レコードの復旧に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("stale_after", j.StaleAfter),
		)
		return fmt.Errorf("停滞レコードの復旧に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("メンテナンスジョブが完了しました",
		slog.Int64("expired_sessions", expiredSessions),
		slog.Int64("stale_contents", staleContents),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はinterval間隔でRunを繰り返す。起動直後にも1回実行する。
// コンテキストのキャンセルで停止する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("メンテナンスジョブの初回実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("メンテナンスジョブを停止します")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("メンテナンスジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
