// Package app はアプリケーションの初期化とサブコマンドごとの起動を担う。
// serve（APIサーバー）、worker（チャンネル取り込み）、migrate、healthcheckの
// 4モードをサポートする。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketpod/signalman/internal/auth"
	"github.com/marketpod/signalman/internal/billing"
	"github.com/marketpod/signalman/internal/channel"
	"github.com/marketpod/signalman/internal/config"
	"github.com/marketpod/signalman/internal/dashboard"
	"github.com/marketpod/signalman/internal/database"
	"github.com/marketpod/signalman/internal/extraction"
	"github.com/marketpod/signalman/internal/handler"
	"github.com/marketpod/signalman/internal/logger"
	"github.com/marketpod/signalman/internal/metadata"
	"github.com/marketpod/signalman/internal/metrics"
	"github.com/marketpod/signalman/internal/middleware"
	"github.com/marketpod/signalman/internal/pipeline"
	"github.com/marketpod/signalman/internal/repository"
	"github.com/marketpod/signalman/internal/security"
	"github.com/marketpod/signalman/internal/transcript"
	"github.com/marketpod/signalman/internal/worker/cleanup"
	"github.com/marketpod/signalman/internal/worker/ingest"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("初期化に失敗: %w", err)
	}

	slog.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("データベース接続のオープンに失敗: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("データベースへの接続に失敗: %w", err)
	}

	slog.Info("データベース接続を確立しました")

	// リポジトリ
	userRepo := repository.NewPostgresUserRepository(db)
	identRepo := repository.NewPostgresIdentityRepository(db)
	sessionRepo := repository.NewPostgresSessionRepository(db)
	contentRepo := repository.NewPostgresContentRepository(db)
	channelRepo := repository.NewPostgresChannelRepository(db)

	// セキュリティ
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// トランスクリプト取得カスケード
	safeClient := ssrfGuard.NewSafeClient(cfg.TranscriptAttemptTimeout)
	innertube := transcript.NewInnertubeClient(safeClient, slog.Default(), cfg.TranscriptMaxBodySize)
	scraper := transcript.NewPageScraper(safeClient, slog.Default(), cfg.TranscriptMaxBodySize)
	cascade := transcript.NewCascade(innertube, scraper, cfg.TranscriptAttemptTimeout, slog.Default(), collector)

	// メタデータとメンション抽出
	metaFetcher := metadata.NewFetcher(safeClient, slog.Default(), sanitizer, cfg.TranscriptMaxBodySize)
	extractor := extraction.NewClient(
		&http.Client{Timeout: cfg.OpenAITimeout},
		slog.Default(), cfg.OpenAIEndpoint, cfg.OpenAIAPIKey, cfg.OpenAIModel,
	)

	// 取り込みパイプライン
	processor := pipeline.NewProcessor(contentRepo, cascade, metaFetcher, extractor, sanitizer, slog.Default())

	// 認証
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, nil)
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		slog.Default(), auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	// ドメインサービス
	dashboardService := dashboard.NewService(
		contentRepo, userRepo, slog.Default(),
		cfg.FreeWindowStartDays, cfg.FreeWindowEndDays,
	)
	channelService := channel.NewService(channelRepo, ssrfGuard, slog.Default())

	stripeClient := billing.NewStripeClient(
		&http.Client{Timeout: 15 * time.Second},
		slog.Default(), cfg.StripeSecretKey,
	)
	billingService := billing.NewService(stripeClient, userRepo, slog.Default(), cfg.StripePriceID, cfg.BaseURL)

	// セッションメンテナンスジョブ（サーバプロセス内で常駐）
	maintenanceJob := cleanup.NewJob(sessionRepo, contentRepo, slog.Default())

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitIngest),
		slog.Default(),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionFinder:     sessionRepo,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:  slog.Default(),
		Metrics: collector,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		IngestService: processor,
		ContentReader: contentRepo,

		DashboardService: dashboardService,
		ChannelService:   channelService,

		BillingService:      billingService,
		StripeWebhookSecret: cfg.StripeWebhookSecret,

		Gatherer: registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 期限切れセッションと停滞レコードの定期メンテナンス
	go maintenanceJob.Start(ctx, time.Hour)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("APIサーバーを起動します", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("サーバーのlistenに失敗しました", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("APIサーバーをシャットダウンします...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	slog.Info("APIサーバーを正常に停止しました")
	return nil
}

// runWorker はチャンネル取り込みワーカーモードで起動する。
// 登録チャンネルのAtomフィードを巡回し、新着動画をパイプラインに投入する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("データベース接続のオープンに失敗: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("データベースへの接続に失敗: %w", err)
	}

	slog.Info("データベース接続を確立しました (worker)")

	contentRepo := repository.NewPostgresContentRepository(db)
	channelRepo := repository.NewPostgresChannelRepository(db)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// ワーカーも取り込みパイプライン一式を持つ
	safeClient := ssrfGuard.NewSafeClient(cfg.TranscriptAttemptTimeout)
	innertube := transcript.NewInnertubeClient(safeClient, slog.Default(), cfg.TranscriptMaxBodySize)
	scraper := transcript.NewPageScraper(safeClient, slog.Default(), cfg.TranscriptMaxBodySize)
	cascade := transcript.NewCascade(innertube, scraper, cfg.TranscriptAttemptTimeout, slog.Default(), collector)

	metaFetcher := metadata.NewFetcher(safeClient, slog.Default(), sanitizer, cfg.TranscriptMaxBodySize)
	extractor := extraction.NewClient(
		&http.Client{Timeout: cfg.OpenAITimeout},
		slog.Default(), cfg.OpenAIEndpoint, cfg.OpenAIAPIKey, cfg.OpenAIModel,
	)
	processor := pipeline.NewProcessor(contentRepo, cascade, metaFetcher, extractor, sanitizer, slog.Default())

	fetcher := ingest.NewFetcher(
		channelRepo, contentRepo, processor, ssrfGuard,
		slog.Default(), collector, cfg.FetchTimeout, cfg.FetchMaxSize, cfg.FetchInterval,
	)
	scheduler := ingest.NewScheduler(channelRepo, fetcher, slog.Default(), cfg.FetchMaxConcurrent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("ワーカーをシャットダウンします...")
		cancel()
	}()

	slog.Info("ワーカーを起動します",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.FetchInterval)

	slog.Info("ワーカーを正常に停止しました")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("データベースマイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	slog.Info("データベースマイグレーションが完了しました")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("ヘルスチェックに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ヘルスチェックがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
