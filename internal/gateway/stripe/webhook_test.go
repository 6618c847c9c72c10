package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload []byte, at time.Time, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	t.Run("Valid", func(t *testing.T) {
		header := sign(t, payload, now, testSecret)
		assert.NoError(t, VerifySignature(payload, header, testSecret, DefaultTolerance, now))
	})

	t.Run("WrongSecret", func(t *testing.T) {
		header := sign(t, payload, now, "whsec_other")
		assert.ErrorIs(t, VerifySignature(payload, header, testSecret, DefaultTolerance, now), ErrInvalidSignature)
	})

	t.Run("TamperedPayload", func(t *testing.T) {
		header := sign(t, payload, now, testSecret)
		err := VerifySignature([]byte(`{"id":"evt_2"}`), header, testSecret, DefaultTolerance, now)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("ExpiredTimestamp", func(t *testing.T) {
		header := sign(t, payload, now.Add(-10*time.Minute), testSecret)
		err := VerifySignature(payload, header, testSecret, DefaultTolerance, now)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("GarbageHeader", func(t *testing.T) {
		assert.ErrorIs(t, VerifySignature(payload, "nonsense", testSecret, DefaultTolerance, now), ErrInvalidSignature)
	})
}

func TestParseEvent(t *testing.T) {
	userID := uuid.New()

	t.Run("CheckoutCompleted", func(t *testing.T) {
		payload := fmt.Sprintf(`{
			"id": "evt_chk",
			"type": "checkout.session.completed",
			"created": 1700000000,
			"data": {"object": {
				"client_reference_id": %q,
				"customer": "cus_123",
				"subscription": "sub_456",
				"metadata": {"plan_id": "pro"}
			}}
		}`, userID)

		ev, err := ParseEvent([]byte(payload))

		require.NoError(t, err)
		assert.Equal(t, types.EventPaymentConfirmed, ev.Kind)
		assert.Equal(t, userID, ev.UserID)
		assert.Equal(t, types.PlanPro, ev.PlanType)
		assert.Equal(t, "cus_123", ev.ProviderCustomerID)
		assert.Equal(t, "sub_456", ev.ProviderSubscriptionID)
		assert.Equal(t, time.Unix(1700000000, 0), ev.OccurredAt)
	})

	t.Run("InvoicePaymentFailed", func(t *testing.T) {
		payload := fmt.Sprintf(`{
			"id": "evt_inv",
			"type": "invoice.payment_failed",
			"created": 1700000100,
			"data": {"object": {
				"customer": "cus_123",
				"subscription": "sub_456",
				"subscription_details": {"metadata": {"plan_id": "starter", "user_id": %q}}
			}}
		}`, userID)

		ev, err := ParseEvent([]byte(payload))

		require.NoError(t, err)
		assert.Equal(t, types.EventPaymentOverdue, ev.Kind)
		assert.Equal(t, userID, ev.UserID)
		assert.Equal(t, types.PlanStarter, ev.PlanType)
	})

	t.Run("UnrecognizedTypeIsIgnoredNotError", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"id":"evt_x","type":"customer.updated","created":1,"data":{"object":{}}}`))

		require.NoError(t, err)
		assert.Equal(t, types.EventIgnored, ev.Kind)
		assert.Equal(t, "evt_x", ev.EventID)
	})
}
