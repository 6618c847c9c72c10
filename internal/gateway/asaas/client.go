// Package asaas is a thin REST client for the PIX/boleto gateway. It speaks
// JSON with the access_token header and covers customers, subscriptions,
// single charges and pending-charge cleanup.
package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ultraorca/ultraorca-api/config"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

const (
	maxAttempts  = 3
	retryBackoff = 250 * time.Millisecond
)

// APIError is a non-2xx gateway reply with the first error description.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("asaas: status %d: %s", e.StatusCode, e.Message)
}

// Payment is a gateway charge, subscription-linked or standalone.
type Payment struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	InvoiceURL string `json:"invoiceUrl"`
}

// Subscription is the created recurring charge plus the first invoice URL the
// client is redirected to.
type Subscription struct {
	ID         string
	InvoiceURL string
}

type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        config.AsaasConfig
	now        func() time.Time
}

func NewClient(cfg config.AsaasConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("asaas: encode payload: %w", err)
		}
	}

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
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, body)
		if err != nil {
			return fmt.Errorf("asaas: build request: %w", err)
		}
		req.Header.Set("access_token", c.cfg.APIKey)
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("asaas: %s %s: %w", method, path, err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("asaas: read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: apiErrMessage(data)}
			c.logger.WarnContext(ctx, "asaas transient failure, retrying",
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt))
			continue
		}
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErrMessage(data)}
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("asaas: decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func apiErrMessage(data []byte) string {
	var e struct {
		Errors []struct {
			Description string `json:"description"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &e); err == nil && len(e.Errors) > 0 {
		return e.Errors[0].Description
	}
	return string(data)
}

type customerList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// EnsureCustomer finds a customer by tax id (falling back to email) or
// creates one. The PIX gateway requires a CPF/CNPJ on the customer record.
func (c *Client) EnsureCustomer(ctx context.Context, profile types.BillingProfile) (string, error) {
	if profile.TaxID == "" {
		return "", fmt.Errorf("cpf/cnpj is required for PIX billing: %w", types.ErrValidation)
	}

	q := url.Values{}
	q.Set("cpfCnpj", profile.TaxID)
	var list customerList
	if err := c.do(ctx, http.MethodGet, "/customers?"+q.Encode(), nil, &list); err != nil {
		return "", fmt.Errorf("customer lookup failed: %w", err)
	}
	if len(list.Data) > 0 {
		return list.Data[0].ID, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/customers", map[string]string{
		"name":    profile.Name,
		"email":   profile.Email,
		"cpfCnpj": profile.TaxID,
	}, &created)
	if err != nil {
		return "", fmt.Errorf("customer creation failed: %w", err)
	}
	return created.ID, nil
}

// CreateSubscription creates the recurring charge and returns its id plus the
// first invoice URL. The plan id rides in externalReference so webhook events
// can be mapped back verbatim.
func (c *Client) CreateSubscription(ctx context.Context, customerID string, plan types.Plan, externalReference, description string) (*Subscription, error) {
	price, ok := types.PriceFor(plan)
	if !ok {
		return nil, fmt.Errorf("plan %q has no price: %w", plan, types.ErrValidation)
	}

	var created struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/subscriptions", map[string]any{
		"customer":          customerID,
		"billingType":       "PIX",
		"value":             price.Amount,
		"nextDueDate":       c.dueDate(),
		"cycle":             price.Cycle,
		"description":       description,
		"externalReference": externalReference,
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("subscription creation failed: %w", err)
	}

	// The invoice the user pays belongs to the first generated charge.
	var payments struct {
		Data []Payment `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+created.ID+"/payments", nil, &payments); err != nil {
		return nil, fmt.Errorf("subscription payment lookup failed: %w", err)
	}
	sub := &Subscription{ID: created.ID}
	if len(payments.Data) > 0 {
		sub.InvoiceURL = payments.Data[0].InvoiceURL
	}
	return sub, nil
}

// CreatePayment creates a standalone PIX charge.
func (c *Client) CreatePayment(ctx context.Context, customerID string, value float64, externalReference, description string) (*Payment, error) {
	var created Payment
	err := c.do(ctx, http.MethodPost, "/payments", map[string]any{
		"customer":          customerID,
		"billingType":       "PIX",
		"value":             value,
		"dueDate":           c.dueDate(),
		"description":       description,
		"externalReference": externalReference,
		"callback": map[string]any{
			"successUrl":   c.cfg.CallbackURL,
			"autoRedirect": true,
		},
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("payment creation failed: %w", err)
	}
	return &created, nil
}

// ListPendingPayments returns the customer's unpaid charges.
func (c *Client) ListPendingPayments(ctx context.Context, customerID string) ([]Payment, error) {
	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("status", "PENDING")

	var list struct {
		Data []Payment `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments?"+q.Encode(), nil, &list); err != nil {
		return nil, fmt.Errorf("pending payment lookup failed: %w", err)
	}
	return list.Data, nil
}

// DeletePayment removes a charge. 404 means someone got there first.
func (c *Client) DeletePayment(ctx context.Context, paymentID string) error {
	err := c.do(ctx, http.MethodDelete, "/payments/"+paymentID, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("payment deletion failed: %w", err)
	}
	return nil
}

// DeleteSubscription stops the recurring charge.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	err := c.do(ctx, http.MethodDelete, "/subscriptions/"+subscriptionID, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("subscription deletion failed: %w", err)
	}
	return nil
}

func (c *Client) dueDate() string {
	days := c.cfg.PaymentDueDays
	if days <= 0 {
		days = 3
	}
	return c.now().AddDate(0, 0, days).Format("2006-01-02")
}
