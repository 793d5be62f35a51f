package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/beneflow/beneflow/internal/config"
	"github.com/beneflow/beneflow/internal/gateway/domain"
	obsmetrics "github.com/beneflow/beneflow/internal/observability/metrics"
	"go.uber.org/zap"
)

// Client talks to the payment provider's REST API. It is tenant-agnostic;
// callers pass the tenant's API key per call. An empty key means the
// integration is disabled for that tenant and every call returns
// ErrGatewayDisabled.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	retryBase   time.Duration
	log         *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.GatewayTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	maxAttempts := cfg.GatewayMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryBase := time.Duration(cfg.GatewayRetryBaseMS) * time.Millisecond
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}

	return &Client{
		baseURL:     cfg.GatewayBaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		log:         log.Named("gateway.client"),
	}
}

func (c *Client) CreateCustomer(ctx context.Context, apiKey string, req domain.CreateCustomerRequest) (*domain.Customer, error) {
	var out domain.Customer
	if err := c.doWithRetry(ctx, apiKey, http.MethodPost, "/customers", req, &out, "create_customer"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePayment(ctx context.Context, apiKey string, req domain.CreatePaymentRequest) (*domain.Payment, error) {
	var out domain.Payment
	if err := c.doWithRetry(ctx, apiKey, http.MethodPost, "/payments", req, &out, "create_payment"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePayment(ctx context.Context, apiKey string, id string, patch domain.UpdatePaymentRequest) (*domain.Payment, error) {
	var out domain.Payment
	if err := c.doWithRetry(ctx, apiKey, http.MethodPut, "/payments/"+url.PathEscape(id), patch, &out, "update_payment"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePayment(ctx context.Context, apiKey string, id string) error {
	return c.doWithRetry(ctx, apiKey, http.MethodDelete, "/payments/"+url.PathEscape(id), nil, nil, "delete_payment")
}

func (c *Client) GetPayment(ctx context.Context, apiKey string, id string) (*domain.Payment, error) {
	var out domain.Payment
	if err := c.doWithRetry(ctx, apiKey, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &out, "get_payment"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPayments(ctx context.Context, apiKey string, filter domain.ListPaymentsFilter) (*domain.ListPaymentsResponse, error) {
	values := url.Values{}
	if filter.Customer != "" {
		values.Set("customer", filter.Customer)
	}
	if filter.Subscription != "" {
		values.Set("subscription", filter.Subscription)
	}
	if filter.ExternalReference != "" {
		values.Set("externalReference", filter.ExternalReference)
	}
	if filter.Status != "" {
		values.Set("status", filter.Status)
	}
	if filter.Limit > 0 {
		values.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/payments"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out domain.ListPaymentsResponse
	if err := c.doWithRetry(ctx, apiKey, http.MethodGet, path, nil, &out, "list_payments"); err != nil {
		return nil, err
	}
	return &out, nil
}

// doWithRetry wraps every call in exponential backoff. Retries apply
// uniformly to all failed outcomes, including non-2xx responses; the last
// error wins.
func (c *Client) doWithRetry(ctx context.Context, apiKey, method, path string, body any, out any, operation string) error {
	if apiKey == "" {
		return domain.ErrGatewayDisabled
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		start := time.Now()
		err := c.do(ctx, apiKey, method, path, body, out)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		obsmetrics.Default().ObserveGatewayRequest(operation, outcome, time.Since(start))
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}
		c.log.Warn("gateway call failed",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, apiKey, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("access_token", apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.RequestError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
