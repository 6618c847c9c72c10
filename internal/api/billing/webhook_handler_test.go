package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultraorca/ultraorca-api/config"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

const (
	testStripeSecret = "whsec_test"
	testAsaasToken   = "tok_asaas"
)

func newWebhookFixture(t *testing.T) (*WebhookHandler, *memBillingRepo, *BillingServiceImpl) {
	t.Helper()
	repo := newMemBillingRepo()
	svc := newTestService(repo, &fakeStripeGateway{}, &fakeAsaasGateway{})
	h := NewWebhookHandler(svc,
		config.StripeConfig{WebhookSecret: testStripeSecret},
		config.AsaasConfig{WebhookToken: testAsaasToken},
		slog.Default())
	return h, repo, svc
}

func stripeSignature(payload []byte, at time.Time, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhook(t *testing.T) {
	userID := uuid.New()
	checkoutPayload := fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": %d,
		"data": {"object": {
			"client_reference_id": %q,
			"customer": "cus_stripe",
			"subscription": "sub_stripe",
			"metadata": {"plan_id": "pro"}
		}}
	}`, time.Now().Unix(), userID)

	t.Run("BadSignatureRejectedWithoutProcessing", func(t *testing.T) {
		h, repo, _ := newWebhookFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(checkoutPayload))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
		rec := httptest.NewRecorder()

		h.StripeWebhook(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, repo.rows)
	})

	t.Run("MissingSignatureRejected", func(t *testing.T) {
		h, repo, _ := newWebhookFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(checkoutPayload))
		rec := httptest.NewRecorder()

		h.StripeWebhook(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, repo.rows)
	})

	t.Run("CheckoutThenWebhookActivatesSubscription", func(t *testing.T) {
		h, repo, svc := newWebhookFixture(t)

		_, err := svc.StartStripeCheckout(t.Context(), userID, types.PlanPro,
			types.BillingProfile{Name: "Maria", Email: "maria@example.com"})
		require.NoError(t, err)
		row, _ := repo.GetSubscription(t.Context(), userID)
		require.Equal(t, types.StatusPending, row.Status)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(checkoutPayload))
		req.Header.Set("Stripe-Signature", stripeSignature([]byte(checkoutPayload), time.Now(), testStripeSecret))
		rec := httptest.NewRecorder()

		h.StripeWebhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		row, err = repo.GetSubscription(t.Context(), userID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusActive, row.Status)
		assert.Equal(t, types.PlanPro, row.PlanType)
		assert.Equal(t, "sub_stripe", row.ProviderSubscriptionID)
	})
}

func TestAsaasWebhook(t *testing.T) {
	userID := uuid.New()

	asaasEvent := func(eventID, event string) string {
		return fmt.Sprintf(`{
			"id": %q,
			"event": %q,
			"payment": {
				"id": "pay_1",
				"customer": "cus_asaas",
				"subscription": "sub_asaas",
				"externalReference": "%s|starter"
			}
		}`, eventID, event, userID)
	}

	post := func(h *WebhookHandler, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("asaas-access-token", token)
		}
		rec := httptest.NewRecorder()
		h.AsaasWebhook(rec, req)
		return rec
	}

	t.Run("WrongTokenRejected", func(t *testing.T) {
		h, repo, _ := newWebhookFixture(t)

		rec := post(h, "/webhooks/asaas", "tok_wrong", asaasEvent("evt_1", "PAYMENT_CONFIRMED"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, repo.rows)
	})

	t.Run("MissingTokenRejected", func(t *testing.T) {
		h, repo, _ := newWebhookFixture(t)

		rec := post(h, "/webhooks/asaas", "", asaasEvent("evt_1", "PAYMENT_CONFIRMED"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, repo.rows)
	})

	t.Run("ConfirmedActivates", func(t *testing.T) {
		h, repo, _ := newWebhookFixture(t)

		rec := post(h, "/webhooks/asaas", testAsaasToken, asaasEvent("evt_2", "PAYMENT_CONFIRMED"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		row, err := repo.GetSubscription(t.Context(), userID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusActive, row.Status)
		assert.Equal(t, types.PlanStarter, row.PlanType)
	})

	t.Run("OverdueNormalizesToPastDue", func(t *testing.T) {
		h, repo, _ := newWebhookFixture(t)
		repo.rows[userID] = types.Subscription{
			UserID: userID, Status: types.StatusActive, Provider: types.ProviderAsaas,
			ProviderCustomerID: "cus_asaas", PlanType: types.PlanStarter,
			UpdatedAt: time.Now().Add(-time.Hour),
		}

		rec := post(h, "/webhooks/asaas", testAsaasToken, asaasEvent("evt_3", "PAYMENT_OVERDUE"))

		assert.Equal(t, http.StatusOK, rec.Code)
		row, _ := repo.GetSubscription(t.Context(), userID)
		assert.Equal(t, types.StatusPastDue, row.Status)
	})

	t.Run("UnrelatedEventAnswers200AndLeavesStatus", func(t *testing.T) {
		h, repo, _ := newWebhookFixture(t)
		repo.rows[userID] = types.Subscription{
			UserID: userID, Status: types.StatusActive, Provider: types.ProviderAsaas,
			ProviderCustomerID: "cus_asaas", PlanType: types.PlanStarter, UpdatedAt: time.Now(),
		}

		rec := post(h, "/webhooks/asaas", testAsaasToken, asaasEvent("evt_4", "PAYMENT_CREATED"))

		assert.Equal(t, http.StatusOK, rec.Code)
		row, _ := repo.GetSubscription(t.Context(), userID)
		assert.Equal(t, types.StatusActive, row.Status)
	})
}
