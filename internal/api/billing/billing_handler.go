package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/internal/api"
	"github.com/ultraorca/ultraorca-api/internal/api/auth"
	"github.com/ultraorca/ultraorca-api/internal/api/entitlement"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

// CheckoutRequest starts a paid-plan signup. The plan id selects the
// server-side price; any amount sent by the client is ignored.
type CheckoutRequest struct {
	PlanID types.Plan `json:"plan_id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	TaxID  string     `json:"tax_id,omitempty"`
}

func (r CheckoutRequest) profile() types.BillingProfile {
	return types.BillingProfile{Name: r.Name, Email: r.Email, TaxID: r.TaxID}
}

type BillingHandler struct {
	billingService     BillingService
	entitlementService entitlement.EntitlementService
	logger             *slog.Logger
}

func NewBillingHandler(billingService BillingService, entitlementService entitlement.EntitlementService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billingService:     billingService,
		entitlementService: entitlementService,
		logger:             logger,
	}
}

func (h *BillingHandler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userIDStr == "" {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid user id in token")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *BillingHandler) decodeCheckout(w http.ResponseWriter, r *http.Request) (CheckoutRequest, bool) {
	var req CheckoutRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func (h *BillingHandler) writeBillingError(w http.ResponseWriter, r *http.Request, l *slog.Logger, err error) {
	switch {
	case errors.Is(err, types.ErrValidation):
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		api.ErrorResponse(w, r, http.StatusNotFound, "no subscription found")
	default:
		l.ErrorContext(r.Context(), "billing operation failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadGateway, "payment gateway unavailable")
	}
}

// StripeCheckout godoc
// @Summary      Start a card checkout
// @Description  Creates a gateway checkout session for the chosen plan and returns its id.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body CheckoutRequest true "Plan and payer identity"
// @Success      200 {object} map[string]string
// @Router       /billing/checkout/stripe [post]
func (h *BillingHandler) StripeCheckout(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "StripeCheckout"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeCheckout(w, r)
	if !ok {
		return
	}

	sessionID, err := h.billingService.StartStripeCheckout(r.Context(), userID, req.PlanID, req.profile())
	if err != nil {
		h.writeBillingError(w, r, l, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"sessionId": sessionID})
}

// AsaasCheckout godoc
// @Summary      Start a PIX subscription checkout
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body CheckoutRequest true "Plan and payer identity (tax_id required)"
// @Success      200 {object} AsaasCheckout
// @Router       /billing/checkout/asaas [post]
func (h *BillingHandler) AsaasCheckout(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "AsaasCheckout"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeCheckout(w, r)
	if !ok {
		return
	}

	checkout, err := h.billingService.StartAsaasCheckout(r.Context(), userID, req.PlanID, req.profile())
	if err != nil {
		h.writeBillingError(w, r, l, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, checkout)
}

// CreatePayment godoc
// @Summary      Create a single PIX charge for a plan
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body CheckoutRequest true "Plan and payer identity (tax_id required)"
// @Success      200 {object} AsaasCheckout
// @Router       /billing/payment [post]
func (h *BillingHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "CreatePayment"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeCheckout(w, r)
	if !ok {
		return
	}

	payment, err := h.billingService.CreatePayment(r.Context(), userID, req.PlanID, req.profile())
	if err != nil {
		h.writeBillingError(w, r, l, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, payment)
}

// CancelSubscription godoc
// @Summary      Cancel the current subscription
// @Description  Removes pending gateway charges best-effort; the local subscription always ends canceled.
// @Tags         billing
// @Produce      json
// @Success      200 {object} types.Response
// @Router       /billing/cancel [post]
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "CancelSubscription"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.billingService.CancelSubscription(r.Context(), userID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "no subscription to cancel")
			return
		}
		l.ErrorContext(r.Context(), "cancel failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to cancel subscription")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{Success: true, Message: "subscription canceled"})
}

// GetSubscription godoc
// @Summary      Current subscription state
// @Tags         billing
// @Produce      json
// @Success      200 {object} types.Subscription
// @Failure      404 {object} types.Response
// @Router       /billing/subscription [get]
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "GetSubscription"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	sub, err := h.billingService.GetSubscription(r.Context(), userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "no subscription found")
			return
		}
		l.ErrorContext(r.Context(), "subscription lookup failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to read subscription")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, sub)
}

// AdminGetSubscription godoc
// @Summary      Subscription state of any user (admin)
// @Tags         admin
// @Produce      json
// @Param        userID path string true "User ID"
// @Success      200 {object} types.Subscription
// @Router       /admin/subscriptions/{userID} [get]
func (h *BillingHandler) AdminGetSubscription(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "AdminGetSubscription"))

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid user id")
		return
	}

	sub, err := h.billingService.GetSubscription(r.Context(), userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "no subscription found")
			return
		}
		l.ErrorContext(r.Context(), "subscription lookup failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to read subscription")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, sub)
}

// GetEntitlement godoc
// @Summary      Advisory quote-quota check
// @Description  Read-only hint for the client. Quote creation re-checks authoritatively.
// @Tags         billing
// @Produce      json
// @Success      200 {object} types.EntitlementResult
// @Router       /billing/entitlement [get]
func (h *BillingHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, h.entitlementService.CheckPlanLimit(r.Context(), userID))
}
