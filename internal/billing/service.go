package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/marketpod/signalman/internal/model"
	"github.com/marketpod/signalman/internal/repository"
)

// Service はチェックアウト開始、ポータル遷移、Webhookイベント処理を提供する。
type Service struct {
	stripe  *StripeClient
	users   repository.UserRepository
	logger  *slog.Logger
	priceID string
	baseURL string
}

// NewService はServiceを作成する。
func NewService(stripe *StripeClient, users repository.UserRepository, logger *slog.Logger, priceID, baseURL string) *Service {
	return &Service{
		stripe:  stripe,
		users:   users,
		logger:  logger,
		priceID: priceID,
		baseURL: baseURL,
	}
}

// StartCheckout はProプラン購入のCheckoutセッションを作成する。
// ユーザーにStripe顧客が未作成の場合は先に作成して永続化する。
func (s *Service) StartCheckout(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", model.NewUserNotFoundError()
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		customerID, err = s.stripe.CreateCustomer(ctx, user.Email, user.ID)
		if err != nil {
			return "", model.NewBillingFailedError(err.Error())
		}
		if err := s.users.UpdateStripeCustomerID(ctx, user.ID, customerID); err != nil {
			return "", err
		}
	}

	checkoutURL, err := s.stripe.CreateCheckoutSession(ctx, customerID, s.priceID,
		s.baseURL+"/billing/success", s.baseURL+"/billing/cancel")
	if err != nil {
		return "", model.NewBillingFailedError(err.Error())
	}
	return checkoutURL, nil
}

// OpenPortal は顧客ポータルのセッションを作成する。
func (s *Service) OpenPortal(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", model.NewUserNotFoundError()
	}
	// 顧客未作成 = 契約したことがないユーザー。管理対象のサブスクリプションがない
	if user.StripeCustomerID == "" {
		return "", model.NewPlanRequiredError()
	}

	portalURL, err := s.stripe.CreatePortalSession(ctx, user.StripeCustomerID, s.baseURL+"/settings")
	if err != nil {
		return "", model.NewBillingFailedError(err.Error())
	}
	return portalURL, nil
}

// webhookEvent はStripe Webhookイベントの必要部分。
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			Customer string `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

// HandleWebhook は検証済みのWebhookペイロードを処理する。
// checkout.session.completed でProへ、customer.subscription.deleted でfreeへ遷移させる。
// 未知のイベントタイプは無視する。
func (s *Service) HandleWebhook(ctx context.Context, payload []byte) error {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("Webhookペイロードの解析に失敗: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.updatePlanByCustomer(ctx, event.Data.Object.Customer, model.PlanPro)
	case "customer.subscription.deleted":
		return s.updatePlanByCustomer(ctx, event.Data.Object.Customer, model.PlanFree)
	default:
		s.logger.Debug("未処理のWebhookイベント", slog.String("type", event.Type))
		return nil
	}
}

func (s *Service) updatePlanByCustomer(ctx context.Context, customerID string, plan model.Plan) error {
	if customerID == "" {
		return fmt.Errorf("イベントに顧客IDがありません")
	}

	user, err := s.users.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	if user == nil {
		// 顧客が見つからないイベントは記録して握りつぶす。
		// Stripeのリトライで解決する種類の問題ではないため。
		s.logger.Warn("Webhookの顧客に対応するユーザーが存在しません",
			slog.String("customer_id", customerID))
		return nil
	}

	if err := s.users.UpdatePlan(ctx, user.ID, plan); err != nil {
		return err
	}
	s.logger.Info("プランを更新",
		slog.String("user_id", user.ID),
		slog.String("plan", string(plan)))
	return nil
}
