package billing

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ultraorca/ultraorca-api/config"
	"github.com/ultraorca/ultraorca-api/internal/api"
	"github.com/ultraorca/ultraorca-api/internal/gateway/asaas"
	"github.com/ultraorca/ultraorca-api/internal/gateway/stripe"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler terminates gateway notifications. It sits outside the
// authenticated router group; each endpoint authenticates its own provider's
// way (HMAC signature for cards, shared token for PIX).
type WebhookHandler struct {
	billingService BillingService
	logger         *slog.Logger
	stripeSecret   string
	asaasToken     string
}

func NewWebhookHandler(billingService BillingService, stripeCfg config.StripeConfig, asaasCfg config.AsaasConfig, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billingService: billingService,
		logger:         logger,
		stripeSecret:   stripeCfg.WebhookSecret,
		asaasToken:     asaasCfg.WebhookToken,
	}
}

func (h *WebhookHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "unreadable payload")
		return nil, false
	}
	return payload, true
}

// webhookAck is the acknowledgement body deployed gateway configurations
// already expect from these endpoints.
type webhookAck struct {
	Received bool `json:"received"`
}

// apply runs the reconciler. Gateway delivery semantics: any 2xx stops the
// redelivery loop, so recognized-but-unactionable events still answer 200.
// Only a store failure answers 500 to request a retry.
func (h *WebhookHandler) apply(w http.ResponseWriter, r *http.Request, l *slog.Logger, event types.PaymentEvent) {
	changed, err := h.billingService.ApplyEvent(r.Context(), event)
	if err != nil {
		if errors.Is(err, types.ErrValidation) || errors.Is(err, types.ErrNotFound) {
			l.WarnContext(r.Context(), "unactionable event acknowledged", slog.Any("error", err))
			api.WriteJSONResponse(w, r, http.StatusOK, webhookAck{Received: true})
			return
		}
		l.ErrorContext(r.Context(), "event reconciliation failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "event processing failed")
		return
	}

	l.InfoContext(r.Context(), "event acknowledged", slog.Bool("changed", changed))
	api.WriteJSONResponse(w, r, http.StatusOK, webhookAck{Received: true})
}

// StripeWebhook godoc
// @Summary      Card gateway event sink
// @Description  Rejects any payload whose HMAC signature does not verify.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200 {object} webhookAck
// @Failure      400 {object} types.Response
// @Router       /webhooks/stripe [post]
func (h *WebhookHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "StripeWebhook"))

	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := stripe.VerifySignature(payload, sigHeader, h.stripeSecret, stripe.DefaultTolerance, time.Now()); err != nil {
		l.WarnContext(r.Context(), "signature verification failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid signature")
		return
	}

	event, err := stripe.ParseEvent(payload)
	if err != nil {
		l.WarnContext(r.Context(), "undecodable event", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	h.apply(w, r, l, event)
}

// AsaasWebhook godoc
// @Summary      PIX gateway event sink
// @Description  Requires the shared asaas-access-token header. Also mounted at the legacy /webhook path.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200 {object} webhookAck
// @Failure      401 {object} types.Response
// @Router       /webhooks/asaas [post]
func (h *WebhookHandler) AsaasWebhook(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "AsaasWebhook"))

	token := r.Header.Get("asaas-access-token")
	if h.asaasToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.asaasToken)) != 1 {
		l.WarnContext(r.Context(), "webhook token mismatch")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}

	event, err := asaas.ParseEvent(payload)
	if err != nil {
		l.WarnContext(r.Context(), "undecodable event", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	h.apply(w, r, l, event)
}
