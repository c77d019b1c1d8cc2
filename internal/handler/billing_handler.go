package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/marketpod/signalman/internal/billing"
	"github.com/marketpod/signalman/internal/middleware"
)

// Webhookペイロードの最大サイズ。Stripeのイベントはこれより十分小さい。
const maxWebhookBodySize = 1 << 20

// BillingServiceInterface は課金ハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	StartCheckout(ctx context.Context, userID string) (string, error)
	OpenPortal(ctx context.Context, userID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte) error
}

// BillingHandler はStripe連携のHTTPハンドラー。
type BillingHandler struct {
	service       BillingServiceInterface
	webhookSecret string
	logger        *slog.Logger
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(service BillingServiceInterface, webhookSecret string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		service:       service,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// Checkout はProプランのチェックアウトセッションを開始する。
// POST /api/billing/checkout
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	checkoutURL, err := h.service.StartCheckout(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": checkoutURL})
}

// Portal はカスタマーポータルセッションを開始する。
// POST /api/billing/portal
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	portalURL, err := h.service.OpenPortal(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": portalURL})
}

// Webhook はStripeからのWebhookイベントを処理する。
// 署名検証には生のリクエストボディをそのまま使う。
// POST /api/billing/webhook（セッション・CSRFミドルウェアの外に配置する）
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		h.logger.Error("Webhookボディの読み取りに失敗", slog.String("error", err.Error()))
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if err := billing.VerifySignature(payload, signature, h.webhookSecret, time.Now()); err != nil {
		h.logger.Warn("Webhook署名の検証に失敗", slog.String("error", err.Error()))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload); err != nil {
		h.logger.Error("Webhookの処理に失敗", slog.String("error", err.Error()))
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
