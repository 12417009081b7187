package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrGatewayNotConfigured = errors.New("payment gateway credentials are not configured")

// GatewayOrder is the order opened with the payment gateway before checkout
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// GatewayError carries the gateway's own description of a rejected request
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return fmt.Sprintf("payment gateway returned status %d", e.StatusCode)
}

// Gateway opens payment orders
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error)
}

// Client is a Razorpay REST client
type Client struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client from the gateway configuration
func NewClient(cfg config.RazorpayConfig, logger *zap.Logger) *Client {
	return &Client{
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder opens a gateway order for amountMinor (paise)
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error) {
	if c.keyID == "" || c.keySecret == "" {
		return nil, ErrGatewayNotConfigured
	}

	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach payment gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		gwErr := &GatewayError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			gwErr.Code = envelope.Error.Code
			gwErr.Description = envelope.Error.Description
		}
		c.logger.Error("Payment gateway rejected order",
			zap.Int("status", resp.StatusCode),
			zap.String("receipt", receipt),
			zap.String("code", gwErr.Code),
		)
		return nil, gwErr
	}

	var order GatewayOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("failed to decode gateway order: %w", err)
	}

	c.logger.Info("Payment gateway order created",
		zap.String("gateway_order_id", order.ID),
		zap.String("receipt", receipt),
		zap.Int64("amount", order.Amount),
	)
	return &order, nil
}

// VerifySignature checks the HMAC-SHA256 of "gatewayOrderID|paymentID" against signature
// in constant time.
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the hex signature the gateway issues for a captured payment
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// ToMinorUnits converts rupees to paise, rounding half up
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
