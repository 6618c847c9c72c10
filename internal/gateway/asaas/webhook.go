package asaas

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

type webhookEvent struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment struct {
		ID                string `json:"id"`
		Customer          string `json:"customer"`
		Subscription      string `json:"subscription"`
		ExternalReference string `json:"externalReference"`
		Description       string `json:"description"`
		PaymentDate       string `json:"paymentDate"`
		DateCreated       string `json:"dateCreated"`
	} `json:"payment"`
}

// ParseEvent normalizes a gateway notification. Events outside the vocabulary
// the reconciler acts on come back as EventIgnored, never as an error.
func ParseEvent(payload []byte) (types.PaymentEvent, error) {
	var ev webhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return types.PaymentEvent{}, fmt.Errorf("asaas: decode event: %w", err)
	}

	out := types.PaymentEvent{
		Provider:               types.ProviderAsaas,
		EventID:                ev.ID,
		Kind:                   types.EventIgnored,
		ProviderSubscriptionID: ev.Payment.Subscription,
		ProviderCustomerID:     ev.Payment.Customer,
		OccurredAt:             eventTime(ev),
	}
	if out.EventID == "" {
		// Older notification format has no event id. Fall back to the charge
		// id plus event name so the dedup window still works.
		out.EventID = ev.Payment.ID + ":" + ev.Event
	}

	switch ev.Event {
	case "PAYMENT_CONFIRMED", "PAYMENT_RECEIVED":
		out.Kind = types.EventPaymentConfirmed
	case "PAYMENT_OVERDUE":
		out.Kind = types.EventPaymentOverdue
	default:
		return out, nil
	}

	userID, plan := parseExternalReference(ev.Payment.ExternalReference)
	if plan == "" {
		plan = planFromDescription(ev.Payment.Description)
	}
	out.UserID = userID
	out.PlanType = plan
	return out, nil
}

// parseExternalReference splits the "<userID>|<planID>" reference attached at
// checkout.
func parseExternalReference(ref string) (uuid.UUID, types.Plan) {
	userPart, planPart, found := strings.Cut(ref, "|")
	if !found {
		userPart = ref
	}
	userID, err := uuid.Parse(strings.TrimSpace(userPart))
	if err != nil {
		userID = uuid.Nil
	}
	return userID, types.Plan(strings.TrimSpace(planPart))
}

// planFromDescription is the legacy fallback for charges created before plan
// ids were carried in externalReference.
func planFromDescription(description string) types.Plan {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "anual") || strings.Contains(d, "annual"):
		return types.PlanAnnual
	case strings.Contains(d, "pro"):
		return types.PlanPro
	case strings.Contains(d, "starter"):
		return types.PlanStarter
	default:
		return ""
	}
}

func eventTime(ev webhookEvent) time.Time {
	for _, candidate := range []string{ev.Payment.PaymentDate, ev.Payment.DateCreated} {
		if candidate == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, candidate); err == nil {
				return ts
			}
		}
	}
	return time.Now()
}
