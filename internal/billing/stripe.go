// Package billing はStripeを課金コラボレーターとして利用するプラン管理を提供する。
// StripeのREST APIはフォームエンコードされたボディを受け付けるため、
// SDKを使わずHTTPクライアントで直接呼び出す。
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// StripeClient はStripe APIの薄いクライアント。
type StripeClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	secretKey  string
}

// NewStripeClient はStripeClientを作成する。
func NewStripeClient(httpClient *http.Client, logger *slog.Logger, secretKey string) *StripeClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &StripeClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    defaultStripeBaseURL,
		secretKey:  secretKey,
	}
}

// SetBaseURL はテスト用にエンドポイントを差し替える。
func (c *StripeClient) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// CreateCustomer は顧客を作成し、顧客IDを返す。
func (c *StripeClient) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := url.Values{}
	params.Set("email", email)
	params.Set("metadata[user_id]", userID)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/customers", params, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateCheckoutSession はサブスクリプション購入のCheckoutセッションを作成し、
// リダイレクト先URLを返す。
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "subscription")
	params.Set("line_items[0][price]", priceID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("success_url", successURL)
	params.Set("cancel_url", cancelURL)

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/v1/checkout/sessions", params, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// CreatePortalSession は顧客ポータルのセッションを作成し、リダイレクト先URLを返す。
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/v1/billing_portal/sessions", params, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *StripeClient) post(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("Stripeリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Stripe APIの呼び出しに失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("Stripe応答の読み込みに失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var stripeErr struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &stripeErr) == nil && stripeErr.Error.Message != "" {
			return fmt.Errorf("Stripe APIエラー (%d): %s", resp.StatusCode, stripeErr.Error.Message)
		}
		return fmt.Errorf("Stripe APIがステータス%dを返却", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("Stripe応答の解析に失敗: %w", err)
	}
	return nil
}
