package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketpod/signalman/internal/metrics"
	"github.com/marketpod/signalman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	Metrics           middleware.HTTPMetricsRecorder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// コンテンツ取り込み・参照
	IngestService IngestServiceInterface
	ContentReader ContentReaderInterface

	// ダッシュボード
	DashboardService DashboardServiceInterface

	// チャンネル管理
	ChannelService ChannelServiceInterface

	// 課金
	BillingService      BillingServiceInterface
	StripeWebhookSecret string

	// Prometheusスクレイプ
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → [CSRF → Session → RateLimit]
//
// Stripe Webhook（外部コラボレーターからの呼び出し）はCSRF・セッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Logger)
	contentHandler := NewContentHandler(deps.IngestService, deps.ContentReader, deps.Logger)
	dashboardHandler := NewDashboardHandler(deps.DashboardService, deps.Logger)
	channelHandler := NewChannelHandler(deps.ChannelService, deps.Logger)
	billingHandler := NewBillingHandler(deps.BillingService, deps.StripeWebhookSecret, deps.Logger)

	// --- CSRF・セッションの外のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.Gatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)
	}

	// Stripe Webhook（署名検証で保護される）
	r.Post("/api/billing/webhook", billingHandler.Webhook)

	// --- CSRF保護下のルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig, deps.Logger))

		// CSRFトークン取得
		r.Get("/api/csrf", middleware.NewCSRFTokenHandler(deps.CSRFConfig, deps.Logger).ServeHTTP)

		// 認証ルート（OAuthフロー）
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.Logger))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// コンテンツ取り込み・参照
			r.Route("/api/content", func(r chi.Router) {
				// POST /api/content - 取り込み（取り込み専用レート制限を追加）
				r.With(deps.RateLimiter.IngestMiddleware()).Post("/", contentHandler.Ingest)
				r.Get("/", contentHandler.List)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", contentHandler.Get)
					r.With(deps.RateLimiter.IngestMiddleware()).Post("/process", contentHandler.Reprocess)
				})
			})

			// ダッシュボード
			r.Route("/api/dashboard", func(r chi.Router) {
				r.Get("/days", dashboardHandler.ListDays)
				r.Get("/day", dashboardHandler.Day)
				r.Get("/trending", dashboardHandler.Trending)
				r.Get("/ticker/{symbol}", dashboardHandler.Ticker)
			})

			// チャンネル管理
			r.Route("/api/channels", func(r chi.Router) {
				r.Post("/", channelHandler.Register)
				r.Get("/", channelHandler.List)
				r.Delete("/{channelId}", channelHandler.Unregister)
			})

			// 課金
			r.Route("/api/billing", func(r chi.Router) {
				r.Post("/checkout", billingHandler.Checkout)
				r.Post("/portal", billingHandler.Portal)
			})
		})
	})

	return r
}
