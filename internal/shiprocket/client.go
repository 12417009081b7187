package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/config"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMissingCredentials = errors.New("shiprocket credentials are not configured")
	ErrNoToken            = errors.New("No token received from Shiprocket")
	ErrNoTrackingKey      = errors.New("Either shipment ID, AWB code, or channel order ID is required for tracking")
)

const (
	msgOrderNotCreated = "Failed to create order in Shiprocket"
	loginTimeout       = 30 * time.Second
)

// API is the subset of the provider used by the services
type API interface {
	CreateOrder(ctx context.Context, payload *OrderPayload) (*CreatedOrder, error)
	Track(ctx context.Context, query TrackQuery) (json.RawMessage, error)
	CheckServiceability(ctx context.Context, params ServiceabilityParams) (*Serviceability, error)
	ListOrders(ctx context.Context) (json.RawMessage, error)
}

// Client talks to the Shiprocket external API. The bearer token is cached until it
// expires and concurrent logins share one request.
type Client struct {
	baseURL    string
	email      string
	password   string
	tokenTTL   time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	logins    singleflight.Group
}

// NewClient builds a client from the provider configuration
func NewClient(cfg config.ShiprocketConfig, logger *zap.Logger) *Client {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 216 * time.Hour
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		email:      cfg.Email,
		password:   cfg.Password,
		tokenTTL:   ttl,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 300 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return backoff.WithMaxRetries(b, 2)
		},
		now: time.Now,
	}
}

// authToken returns the cached token or logs in
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	// The shared login outlives any single caller; each caller stops waiting on its own ctx.
	results := c.logins.DoChan("login", func() (any, error) {
		c.mu.Lock()
		if c.token != "" && c.now().Before(c.expiresAt) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()

		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loginTimeout)
		defer cancel()
		return c.login(loginCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) login(ctx context.Context) (string, error) {
	if c.email == "" || c.password == "" {
		return "", ErrMissingCredentials
	}

	body, err := json.Marshal(map[string]string{"email": c.email, "password": c.password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach shiprocket: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		var errBody apiErrorBody
		msg := "Authentication failed"
		if json.Unmarshal(raw, &errBody) == nil && errBody.Message != "" {
			msg = errBody.Message
		}
		c.logger.Error("Shiprocket authentication failed", zap.Int("status", resp.StatusCode))
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var login loginResponse
	if err := json.Unmarshal(raw, &login); err != nil || login.Token == "" {
		return "", ErrNoToken
	}

	expiresAt := c.now().Add(c.tokenTTL)
	c.mu.Lock()
	c.token = login.Token
	c.expiresAt = expiresAt
	c.mu.Unlock()

	c.logger.Info("Shiprocket token refreshed", zap.Time("expires_at", expiresAt))
	return login.Token, nil
}

// invalidate drops token if it is still the cached one
func (c *Client) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}

// do sends an authenticated request and returns the status and raw body. A 401
// invalidates the cached token and the request is retried once with a fresh one.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		token, err := c.authToken(ctx)
		if err != nil {
			return 0, nil, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to reach shiprocket: %w", err)
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return resp.StatusCode, nil, fmt.Errorf("failed to read shiprocket response: %w", readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("Shiprocket token rejected, re-authenticating", zap.String("path", path))
			c.invalidate(token)
			continue
		}
		return resp.StatusCode, raw, nil
	}
}

// getJSON performs an idempotent GET, retrying transport failures and 5xx responses
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values) (json.RawMessage, error) {
	var result json.RawMessage

	operation := func() error {
		status, raw, err := c.do(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) || errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrNoToken) {
				return backoff.Permanent(err)
			}
			return err
		}
		if status >= http.StatusBadRequest {
			apiErr := &APIError{StatusCode: status, Message: errorMessage(raw, op, status)}
			if status >= http.StatusInternalServerError {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		result = raw
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying Shiprocket request", zap.String("path", path), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		c.logger.Error("Shiprocket request failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// CreateOrder submits an adhoc order. It is not retried.
func (c *Client) CreateOrder(ctx context.Context, payload *OrderPayload) (*CreatedOrder, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "/orders/create/adhoc", nil, payload)
	if err != nil {
		return nil, err
	}

	if status >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: status, Message: errorMessage(raw, "create order", status)}
		apiErr.AvailableLocations = pickupLocations(raw)
		if len(apiErr.AvailableLocations) > 0 {
			apiErr.Message = fmt.Sprintf("%s. Available locations: %s", apiErr.Message, strings.Join(apiErr.AvailableLocations, ", "))
		}
		c.logger.Error("Shiprocket order creation failed",
			zap.String("order_id", payload.OrderID),
			zap.Int("status", status),
			zap.String("error", apiErr.Message),
		)
		return nil, apiErr
	}

	var envelope struct {
		CreatedOrder
		Message string        `json:"message"`
		Data    *CreatedOrder `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode shiprocket order: %w", err)
	}

	created := envelope.CreatedOrder
	if created.ShipmentID == 0 && created.OrderID == 0 && envelope.Data != nil {
		created = *envelope.Data
	}
	if created.ShipmentID == 0 && created.OrderID == 0 {
		apiErr := &APIError{StatusCode: status, Message: envelope.Message}
		if envelope.StatusCode != 0 {
			apiErr.StatusCode = envelope.StatusCode
		}
		if apiErr.Message == "" {
			apiErr.Message = msgOrderNotCreated
		}
		c.logger.Error("Shiprocket accepted the request without creating an order",
			zap.String("order_id", payload.OrderID),
			zap.Int("status", apiErr.StatusCode),
			zap.String("error", apiErr.Message),
		)
		return nil, apiErr
	}

	c.logger.Info("Shiprocket order created",
		zap.String("order_id", payload.OrderID),
		zap.Int64("shipment_id", created.ShipmentID),
		zap.String("awb_code", created.AWBCode),
	)
	return &created, nil
}

// Track fetches tracking data by shipment id, AWB code or channel order id, in that order
// of preference.
func (c *Client) Track(ctx context.Context, query TrackQuery) (json.RawMessage, error) {
	switch {
	case query.ShipmentID != 0:
		return c.getJSON(ctx, "track order", "/courier/track/shipment/"+strconv.FormatInt(query.ShipmentID, 10), nil)
	case query.AWBCode != "":
		return c.getJSON(ctx, "track order", "/courier/track/awb/"+url.PathEscape(query.AWBCode), nil)
	case query.ChannelOrderID != "":
		params := url.Values{"order_id": {query.ChannelOrderID}}
		if query.ChannelID != "" {
			params.Set("channel_id", query.ChannelID)
		}
		return c.getJSON(ctx, "track order", "/courier/track", params)
	}
	return nil, ErrNoTrackingKey
}

// CheckServiceability lists couriers able to serve a pickup/delivery pair
func (c *Client) CheckServiceability(ctx context.Context, params ServiceabilityParams) (*Serviceability, error) {
	query := url.Values{
		"pickup_postcode":   {params.PickupPostcode},
		"delivery_postcode": {params.DeliveryPostcode},
	}
	if params.COD {
		query.Set("cod", "1")
	} else {
		query.Set("cod", "0")
	}
	if params.Weight != "" {
		query.Set("weight", params.Weight)
	}
	if params.Length > 0 {
		query.Set("length", strconv.Itoa(params.Length))
	}
	if params.Breadth > 0 {
		query.Set("breadth", strconv.Itoa(params.Breadth))
	}
	if params.Height > 0 {
		query.Set("height", strconv.Itoa(params.Height))
	}
	if params.DeclaredValue > 0 {
		query.Set("declared_value", strconv.FormatFloat(params.DeclaredValue, 'f', -1, 64))
	}
	if params.Mode != "" {
		query.Set("mode", params.Mode)
	}

	raw, err := c.getJSON(ctx, "check serviceability", "/courier/serviceability/", query)
	if err != nil {
		return nil, err
	}

	var envelope serviceabilityEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode serviceability: %w", err)
	}
	return &envelope.Data, nil
}

// ListOrders returns the provider's order listing as-is
func (c *Client) ListOrders(ctx context.Context) (json.RawMessage, error) {
	return c.getJSON(ctx, "get orders", "/orders", nil)
}

// pickupLocations extracts the configured pickup locations the provider lists when an
// order names an unknown one
func pickupLocations(raw []byte) []string {
	var body apiErrorBody
	if json.Unmarshal(raw, &body) != nil || len(body.Data) == 0 {
		return nil
	}
	var data struct {
		Data []struct {
			PickupLocation string `json:"pickup_location"`
		} `json:"data"`
	}
	if json.Unmarshal(body.Data, &data) != nil {
		return nil
	}
	var locations []string
	for _, loc := range data.Data {
		if loc.PickupLocation != "" {
			locations = append(locations, loc.PickupLocation)
		}
	}
	return locations
}

// errorMessage picks the most specific message from an error body
func errorMessage(raw []byte, op string, status int) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text
		}
		return statusError(op, status)
	}
	if body.Message != "" {
		return body.Message
	}

	if len(body.Errors) > 0 {
		var list []fieldError
		if json.Unmarshal(body.Errors, &list) == nil && len(list) > 0 {
			parts := make([]string, len(list))
			for i, e := range list {
				parts[i] = e.Field + ": " + e.Message
			}
			return strings.Join(parts, ", ")
		}

		var byField map[string][]string
		if json.Unmarshal(body.Errors, &byField) == nil && len(byField) > 0 {
			fields := make([]string, 0, len(byField))
			for f := range byField {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			parts := make([]string, 0, len(fields))
			for _, f := range fields {
				parts = append(parts, f+": "+strings.Join(byField[f], " "))
			}
			return strings.Join(parts, ", ")
		}
	}

	return statusError(op, status)
}
