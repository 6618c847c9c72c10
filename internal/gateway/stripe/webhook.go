package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

// ErrInvalidSignature is returned for any malformed, forged or expired
// signature header. Callers must answer 400 and skip processing.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// DefaultTolerance bounds the age of a signed payload.
const DefaultTolerance = 5 * time.Minute

// VerifySignature checks the Stripe-Signature header (t=<unix>,v1=<hmac>)
// against an HMAC-SHA256 of "<t>.<payload>" with the endpoint secret.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("bad timestamp %q: %w", v, ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("missing t or v1 component: %w", ErrInvalidSignature)
	}

	signedAt := time.Unix(timestamp, 0)
	if now.Sub(signedAt) > tolerance || signedAt.Sub(now) > tolerance {
		return fmt.Errorf("timestamp outside tolerance: %w", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

type event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type sessionObject struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

type invoiceObject struct {
	Customer            string `json:"customer"`
	Subscription        string `json:"subscription"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

// ParseEvent normalizes a verified payload. Events outside the vocabulary the
// reconciler acts on come back as EventIgnored, never as an error.
func ParseEvent(payload []byte) (types.PaymentEvent, error) {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return types.PaymentEvent{}, fmt.Errorf("stripe: decode event: %w", err)
	}

	out := types.PaymentEvent{
		Provider:   types.ProviderStripe,
		EventID:    ev.ID,
		Kind:       types.EventIgnored,
		OccurredAt: time.Unix(ev.Created, 0),
	}

	switch ev.Type {
	case "checkout.session.completed":
		var obj sessionObject
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return types.PaymentEvent{}, fmt.Errorf("stripe: decode session object: %w", err)
		}
		out.Kind = types.EventPaymentConfirmed
		out.ProviderCustomerID = obj.Customer
		out.ProviderSubscriptionID = obj.Subscription
		out.PlanType = types.Plan(obj.Metadata["plan_id"])
		if id, err := uuid.Parse(obj.ClientReferenceID); err == nil {
			out.UserID = id
		}

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var obj invoiceObject
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return types.PaymentEvent{}, fmt.Errorf("stripe: decode invoice object: %w", err)
		}
		if ev.Type == "invoice.payment_succeeded" {
			out.Kind = types.EventPaymentConfirmed
		} else {
			out.Kind = types.EventPaymentOverdue
		}
		out.ProviderCustomerID = obj.Customer
		out.ProviderSubscriptionID = obj.Subscription
		out.PlanType = types.Plan(obj.SubscriptionDetails.Metadata["plan_id"])
		if id, err := uuid.Parse(obj.SubscriptionDetails.Metadata["user_id"]); err == nil {
			out.UserID = id
		}
	}

	return out, nil
}
