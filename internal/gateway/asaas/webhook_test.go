package asaas

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

func TestParseEvent(t *testing.T) {
	userID := uuid.New()

	t.Run("ConfirmedWithExternalReference", func(t *testing.T) {
		payload := fmt.Sprintf(`{
			"id": "evt_1",
			"event": "PAYMENT_CONFIRMED",
			"payment": {
				"id": "pay_1",
				"customer": "cus_1",
				"subscription": "sub_1",
				"externalReference": "%s|annual",
				"paymentDate": "2026-03-10"
			}
		}`, userID)

		ev, err := ParseEvent([]byte(payload))

		require.NoError(t, err)
		assert.Equal(t, types.EventPaymentConfirmed, ev.Kind)
		assert.Equal(t, userID, ev.UserID)
		assert.Equal(t, types.PlanAnnual, ev.PlanType)
		assert.Equal(t, "sub_1", ev.ProviderSubscriptionID)
	})

	t.Run("OverdueMapsToPastDueKind", func(t *testing.T) {
		payload := fmt.Sprintf(`{
			"id": "evt_2",
			"event": "PAYMENT_OVERDUE",
			"payment": {"id": "pay_2", "customer": "cus_1", "externalReference": "%s|starter"}
		}`, userID)

		ev, err := ParseEvent([]byte(payload))

		require.NoError(t, err)
		assert.Equal(t, types.EventPaymentOverdue, ev.Kind)
		assert.Equal(t, types.PlanStarter, ev.PlanType)
	})

	t.Run("DescriptionFallbackForLegacyCharges", func(t *testing.T) {
		payload := fmt.Sprintf(`{
			"id": "evt_3",
			"event": "PAYMENT_RECEIVED",
			"payment": {
				"id": "pay_3",
				"customer": "cus_1",
				"externalReference": "%s",
				"description": "Assinatura UltraOrça Pro"
			}
		}`, userID)

		ev, err := ParseEvent([]byte(payload))

		require.NoError(t, err)
		assert.Equal(t, types.EventPaymentConfirmed, ev.Kind)
		assert.Equal(t, userID, ev.UserID)
		assert.Equal(t, types.PlanPro, ev.PlanType)
	})

	t.Run("UnrecognizedEventIgnored", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"id":"evt_4","event":"PAYMENT_CREATED","payment":{"id":"pay_4"}}`))

		require.NoError(t, err)
		assert.Equal(t, types.EventIgnored, ev.Kind)
	})

	t.Run("MissingEventIDFallsBackToChargeID", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"event":"PAYMENT_CONFIRMED","payment":{"id":"pay_5"}}`))

		require.NoError(t, err)
		assert.Equal(t, "pay_5:PAYMENT_CONFIRMED", ev.EventID)
	})
}
