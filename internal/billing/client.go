package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loadboard-service/internal/domain/subscription"
	xerrors "loadboard-service/internal/pkg/errors"

	"go.uber.org/zap"
)

const cancelledCode = "purchase_cancelled"

// Config holds billing client configuration.
type Config struct {
	// BaseURL is the billing API root, e.g. "https://api.revenuecat.com"
	BaseURL string

	// APIKey is sent as a bearer token
	APIKey string

	// Platform is reported in the X-Platform header (default: "stripe")
	Platform string

	// Timeout bounds each HTTP request (default: 30s)
	Timeout time.Duration
}

// Client submits purchases to the subscription billing service and reads
// entitlements back.
type Client struct {
	baseURL    string
	apiKey     string
	platform   string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("billing base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid billing base url: %w", err)
	}
	if cfg.Platform == "" {
		cfg.Platform = "stripe"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		platform:   cfg.Platform,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Wire format

type receiptRequest struct {
	AppUserID  string `json:"app_user_id"`
	FetchToken string `json:"fetch_token"`
	ProductID  string `json:"product_id"`
}

type subscriberResponse struct {
	Subscriber struct {
		OriginalAppUserID string                     `json:"original_app_user_id"`
		Entitlements      map[string]entitlementJSON `json:"entitlements"`
	} `json:"subscriber"`
}

type entitlementJSON struct {
	ProductIdentifier string     `json:"product_identifier"`
	PurchaseDate      *time.Time `json:"purchase_date"`
	ExpiresDate       *time.Time `json:"expires_date"`
}

type errorResponse struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// Purchase submits a store receipt for userID and returns the entitlements
// billing now reports for that user.
func (c *Client) Purchase(ctx context.Context, userID, productID, receipt string) (*subscription.PurchaseResult, error) {
	body, err := json.Marshal(receiptRequest{
		AppUserID:  userID,
		FetchToken: receipt,
		ProductID:  productID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/receipts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out subscriberResponse
	if err := c.do(req, &out); err != nil {
		c.logger.Warn("purchase rejected",
			zap.String("user_id", userID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return nil, err
	}

	result := c.toResult(userID, productID, &out)
	c.logger.Info("purchase submitted",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("entitlements", len(result.Entitlements)),
	)
	return result, nil
}

// Subscriber reads the current entitlements of userID without purchasing.
func (c *Client) Subscriber(ctx context.Context, userID string) (*subscription.PurchaseResult, error) {
	endpoint := fmt.Sprintf("%s/v1/subscribers/%s", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out subscriberResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return c.toResult(userID, "", &out), nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Platform", c.platform)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", xerrors.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", xerrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", xerrors.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", xerrors.ErrPurchaseFailed, err)
	}
	return nil
}

func statusError(status int, raw []byte) error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)

	code := strings.Trim(string(body.Code), `"`)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status >= 400 && status < 500 && code == cancelledCode:
		return fmt.Errorf("%w: %s", xerrors.ErrUserCancelled, msg)
	case status >= 500:
		return fmt.Errorf("%w (status %d): %s", xerrors.ErrPurchaseFailed, status, msg)
	default:
		return fmt.Errorf("%w (status %d, code %s): %s", xerrors.ErrPurchaseFailed, status, code, msg)
	}
}

func (c *Client) toResult(userID, productID string, out *subscriberResponse) *subscription.PurchaseResult {
	now := c.now()
	result := &subscription.PurchaseResult{
		UserID:       userID,
		ProductID:    productID,
		Entitlements: make(map[string]subscription.EntitlementInfo, len(out.Subscriber.Entitlements)),
		PurchasedAt:  now,
	}
	for id, e := range out.Subscriber.Entitlements {
		result.Entitlements[id] = subscription.EntitlementInfo{
			Identifier: id,
			ProductID:  e.ProductIdentifier,
			Active:     e.ExpiresDate == nil || e.ExpiresDate.After(now),
			ExpiresAt:  e.ExpiresDate,
		}
	}
	return result
}
