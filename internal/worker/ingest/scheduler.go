package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/repository"
)

// 1サイクルでフェッチするチャンネル数の上限。
const fetchBatchLimit = 100

// ChannelFetcherService はチャンネルフェッチの実行インターフェース。
type ChannelFetcherService interface {
	// Fetch は指定チャンネルのフィードをフェッチし、結果に応じて状態を更新する。
	Fetch(ctx context.Context, ch *model.Channel) error
}

// Scheduler はチャンネルフェッチのスケジューリングと並列制御を行う。
// ティッカーでフェッチ対象チャンネルを取得し、
// semaphoreパターンで最大並列数を制御しながらフェッチを実行する。
type Scheduler struct {
	channels       repository.ChannelRepository
	fetcher        ChannelFetcherService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	channels repository.ChannelRepository,
	fetcher ChannelFetcherService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		channels:       channels,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("取り込みサイクルの実行に失敗", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("取り込みサイクルの実行に失敗", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce はフェッチ対象チャンネルを1回取得し、並列でフェッチを実行する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	due, err := s.channels.ListDueForFetch(ctx, time.Now().UTC(), fetchBatchLimit)
	if err != nil {
		return fmt.Errorf("フェッチ対象の取得に失敗: %w", err)
	}

	if len(due) == 0 {
		return nil
	}

	s.logger.Info("取り込みサイクルを開始", slog.Int("channel_count", len(due)))

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, ch := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(c *model.Channel) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, c); err != nil {
				s.logger.Error("チャンネルのフェッチに失敗",
					slog.String("channel_id", c.ChannelID),
					slog.String("error", err.Error()),
				)
			}
		}(ch)
	}

	wg.Wait()

	s.logger.Info("取り込みサイクルが完了",
		slog.Int("channel_count", len(due)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
