// Package stripe is a thin REST client for the card-billing gateway. It covers
// only the surface the billing service needs: customer reuse, subscription
// checkout sessions and cancellation.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/config"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

const (
	maxAttempts  = 3
	retryBackoff = 250 * time.Millisecond
)

// APIError is a non-2xx gateway reply.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        config.StripeConfig
}

func NewClient(cfg config.StripeConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		cfg:        cfg,
	}
}

// do sends a form-encoded request with bounded retries on transport errors,
// 429 and 5xx. Anything else is returned as-is.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * retryBackoff):
			}
		}

		var body io.Reader
		if method != http.MethodGet && form != nil {
			body = strings.NewReader(form.Encode())
		}
		endpoint := c.cfg.APIBase + path
		if method == http.MethodGet && form != nil {
			endpoint += "?" + form.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return fmt.Errorf("stripe: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("stripe: %s %s: %w", method, path, err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("stripe: read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: apiErrMessage(data)}
			c.logger.WarnContext(ctx, "stripe transient failure, retrying",
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt))
			continue
		}
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErrMessage(data)}
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("stripe: decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func apiErrMessage(data []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return string(data)
}

type customer struct {
	ID string `json:"id"`
}

type customerList struct {
	Data []customer `json:"data"`
}

// EnsureCustomer finds the customer for an email or creates one. Reuse keeps
// one gateway identity per user across repeated checkouts.
func (c *Client) EnsureCustomer(ctx context.Context, profile types.BillingProfile) (string, error) {
	q := url.Values{}
	q.Set("email", profile.Email)
	q.Set("limit", "1")

	var list customerList
	if err := c.do(ctx, http.MethodGet, "/customers", q, &list); err != nil {
		return "", fmt.Errorf("customer lookup failed: %w", err)
	}
	if len(list.Data) > 0 {
		return list.Data[0].ID, nil
	}

	form := url.Values{}
	form.Set("email", profile.Email)
	form.Set("name", profile.Name)

	var created customer
	if err := c.do(ctx, http.MethodPost, "/customers", form, &created); err != nil {
		return "", fmt.Errorf("customer creation failed: %w", err)
	}
	return created.ID, nil
}

type checkoutSession struct {
	ID string `json:"id"`
}

// CreateCheckoutSession opens a subscription checkout. The user id travels as
// client_reference_id and the plan id as metadata, so webhook events can be
// mapped back without parsing display text.
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID string, userID uuid.UUID, plan types.Plan, priceID string) (string, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", customerID)
	form.Set("client_reference_id", userID.String())
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	form.Set("metadata[plan_id]", string(plan))
	form.Set("subscription_data[metadata][plan_id]", string(plan))
	form.Set("subscription_data[metadata][user_id]", userID.String())

	var session checkoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return "", fmt.Errorf("checkout session creation failed: %w", err)
	}
	return session.ID, nil
}

// CancelSubscription cancels the gateway subscription immediately. A 404 is
// treated as already canceled.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	err := c.do(ctx, http.MethodDelete, "/subscriptions/"+subscriptionID, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("subscription cancel failed: %w", err)
	}
	return nil
}
