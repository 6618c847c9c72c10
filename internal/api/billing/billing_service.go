package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ultraorca/ultraorca-api/app/observability/metrics"
	"github.com/ultraorca/ultraorca-api/config"
	"github.com/ultraorca/ultraorca-api/internal/gateway/asaas"
	"github.com/ultraorca/ultraorca-api/internal/gateway/stripe"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

const (
	// Provider event ids are remembered this long to absorb webhook replays.
	eventDedupWindow  = 30 * time.Minute
	cancelConcurrency = 4
)

// StripeGateway is the card-billing surface the service needs. Satisfied by
// *stripe.Client and by fakes in tests.
type StripeGateway interface {
	EnsureCustomer(ctx context.Context, profile types.BillingProfile) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID string, userID uuid.UUID, plan types.Plan, priceID string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// AsaasGateway is the PIX/boleto surface the service needs.
type AsaasGateway interface {
	EnsureCustomer(ctx context.Context, profile types.BillingProfile) (string, error)
	CreateSubscription(ctx context.Context, customerID string, plan types.Plan, externalReference, description string) (*asaas.Subscription, error)
	CreatePayment(ctx context.Context, customerID string, value float64, externalReference, description string) (*asaas.Payment, error)
	ListPendingPayments(ctx context.Context, customerID string) ([]asaas.Payment, error)
	DeletePayment(ctx context.Context, paymentID string) error
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

var (
	_ StripeGateway = (*stripe.Client)(nil)
	_ AsaasGateway  = (*asaas.Client)(nil)
)

// AsaasCheckout is what the client needs to finish a PIX signup.
type AsaasCheckout struct {
	ID         string `json:"id"`
	InvoiceURL string `json:"invoiceUrl"`
}

var _ BillingService = (*BillingServiceImpl)(nil)

type BillingService interface {
	StartStripeCheckout(ctx context.Context, userID uuid.UUID, plan types.Plan, profile types.BillingProfile) (string, error)
	StartAsaasCheckout(ctx context.Context, userID uuid.UUID, plan types.Plan, profile types.BillingProfile) (*AsaasCheckout, error)
	CreatePayment(ctx context.Context, userID uuid.UUID, plan types.Plan, profile types.BillingProfile) (*AsaasCheckout, error)
	CancelSubscription(ctx context.Context, userID uuid.UUID) error
	GetSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error)
	// ApplyEvent reconciles a verified gateway event into the local
	// subscription row. The bool reports whether the row changed.
	ApplyEvent(ctx context.Context, event types.PaymentEvent) (bool, error)
}

type BillingServiceImpl struct {
	logger     *slog.Logger
	repo       BillingRepo
	stripeGW   StripeGateway
	asaasGW    AsaasGateway
	cfg        config.StripeConfig
	seenEvents *gocache.Cache
}

func NewBillingService(repo BillingRepo, stripeGW StripeGateway, asaasGW AsaasGateway, cfg config.StripeConfig, logger *slog.Logger) *BillingServiceImpl {
	return &BillingServiceImpl{
		logger:     logger,
		repo:       repo,
		stripeGW:   stripeGW,
		asaasGW:    asaasGW,
		cfg:        cfg,
		seenEvents: gocache.New(eventDedupWindow, 10*time.Minute),
	}
}

func (s *BillingServiceImpl) priceIDFor(plan types.Plan) (string, error) {
	var id string
	switch plan {
	case types.PlanStarter:
		id = s.cfg.PriceStarter
	case types.PlanPro:
		id = s.cfg.PricePro
	case types.PlanAnnual:
		id = s.cfg.PriceAnnual
	}
	if id == "" {
		return "", fmt.Errorf("unknown plan %q: %w", plan, types.ErrValidation)
	}
	return id, nil
}

func validateProfile(profile types.BillingProfile) error {
	if profile.Email == "" || profile.Name == "" {
		return fmt.Errorf("name and email are required: %w", types.ErrValidation)
	}
	return nil
}

func (s *BillingServiceImpl) StartStripeCheckout(ctx context.Context, userID uuid.UUID, plan types.Plan, profile types.BillingProfile) (string, error) {
	l := s.logger.With(slog.String("service", "StartStripeCheckout"), slog.String("userID", userID.String()))

	// Plan and price are resolved server-side before any gateway call.
	priceID, err := s.priceIDFor(plan)
	if err != nil {
		return "", err
	}
	if err := validateProfile(profile); err != nil {
		return "", err
	}

	customerID, err := s.stripeGW.EnsureCustomer(ctx, profile)
	if err != nil {
		s.countCheckout(ctx, types.ProviderStripe, "gateway_error")
		return "", fmt.Errorf("stripe checkout: %w", err)
	}

	sessionID, err := s.stripeGW.CreateCheckoutSession(ctx, customerID, userID, plan, priceID)
	if err != nil {
		s.countCheckout(ctx, types.ProviderStripe, "gateway_error")
		return "", fmt.Errorf("stripe checkout: %w", err)
	}

	// The pending row is written only after the gateway object exists, so a
	// failed checkout leaves no partial state behind.
	err = s.repo.UpsertSubscription(ctx, types.Subscription{
		UserID:             userID,
		Status:             types.StatusPending,
		Provider:           types.ProviderStripe,
		ProviderCustomerID: customerID,
		PlanType:           plan,
	})
	if err != nil {
		l.ErrorContext(ctx, "failed to record pending subscription", slog.Any("error", err))
		return "", err
	}

	s.countCheckout(ctx, types.ProviderStripe, "ok")
	return sessionID, nil
}

func (s *BillingServiceImpl) StartAsaasCheckout(ctx context.Context, userID uuid.UUID, plan types.Plan, profile types.BillingProfile) (*AsaasCheckout, error) {
	l := s.logger.With(slog.String("service", "StartAsaasCheckout"), slog.String("userID", userID.String()))

	if _, ok := types.PriceFor(plan); !ok {
		return nil, fmt.Errorf("unknown plan %q: %w", plan, types.ErrValidation)
	}
	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	customerID, err := s.asaasGW.EnsureCustomer(ctx, profile)
	if err != nil {
		s.countCheckout(ctx, types.ProviderAsaas, "gateway_error")
		return nil, fmt.Errorf("asaas checkout: %w", err)
	}

	sub, err := s.asaasGW.CreateSubscription(ctx, customerID, plan,
		externalReference(userID, plan), planDescription(plan))
	if err != nil {
		s.countCheckout(ctx, types.ProviderAsaas, "gateway_error")
		return nil, fmt.Errorf("asaas checkout: %w", err)
	}

	err = s.repo.UpsertSubscription(ctx, types.Subscription{
		UserID:                 userID,
		Status:                 types.StatusPending,
		Provider:               types.ProviderAsaas,
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     customerID,
		PlanType:               plan,
	})
	if err != nil {
		l.ErrorContext(ctx, "failed to record pending subscription", slog.Any("error", err))
		return nil, err
	}

	s.countCheckout(ctx, types.ProviderAsaas, "ok")
	return &AsaasCheckout{ID: sub.ID, InvoiceURL: sub.InvoiceURL}, nil
}

func (s *BillingServiceImpl) CreatePayment(ctx context.Context, userID uuid.UUID, plan types.Plan, profile types.BillingProfile) (*AsaasCheckout, error) {
	l := s.logger.With(slog.String("service", "CreatePayment"), slog.String("userID", userID.String()))

	price, ok := types.PriceFor(plan)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q: %w", plan, types.ErrValidation)
	}
	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	customerID, err := s.asaasGW.EnsureCustomer(ctx, profile)
	if err != nil {
		s.countCheckout(ctx, types.ProviderAsaas, "gateway_error")
		return nil, fmt.Errorf("asaas payment: %w", err)
	}

	payment, err := s.asaasGW.CreatePayment(ctx, customerID, price.Amount,
		externalReference(userID, plan), planDescription(plan))
	if err != nil {
		s.countCheckout(ctx, types.ProviderAsaas, "gateway_error")
		return nil, fmt.Errorf("asaas payment: %w", err)
	}

	err = s.repo.UpsertSubscription(ctx, types.Subscription{
		UserID:             userID,
		Status:             types.StatusPending,
		Provider:           types.ProviderAsaas,
		ProviderCustomerID: customerID,
		PlanType:           plan,
	})
	if err != nil {
		l.ErrorContext(ctx, "failed to record pending subscription", slog.Any("error", err))
		return nil, err
	}

	s.countCheckout(ctx, types.ProviderAsaas, "ok")
	return &AsaasCheckout{ID: payment.ID, InvoiceURL: payment.InvoiceURL}, nil
}

// CancelSubscription tears down the gateway side best-effort and always ends
// with the local row canceled. A charge that cannot be deleted expires at the
// gateway on its own; it must never keep the user subscribed here.
func (s *BillingServiceImpl) CancelSubscription(ctx context.Context, userID uuid.UUID) error {
	l := s.logger.With(slog.String("service", "CancelSubscription"), slog.String("userID", userID.String()))

	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	switch sub.Provider {
	case types.ProviderStripe:
		if sub.ProviderSubscriptionID != "" {
			if err := s.stripeGW.CancelSubscription(ctx, sub.ProviderSubscriptionID); err != nil {
				l.WarnContext(ctx, "stripe-side cancel failed, proceeding", slog.Any("error", err))
			}
		}
	case types.ProviderAsaas:
		s.cancelAsaasSide(ctx, l, sub)
	}

	if err := s.repo.UpdateStatus(ctx, userID, types.StatusCanceled); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

func (s *BillingServiceImpl) cancelAsaasSide(ctx context.Context, l *slog.Logger, sub *types.Subscription) {
	if sub.ProviderSubscriptionID != "" {
		if err := s.asaasGW.DeleteSubscription(ctx, sub.ProviderSubscriptionID); err != nil {
			l.WarnContext(ctx, "asaas subscription delete failed, proceeding", slog.Any("error", err))
		}
	}
	if sub.ProviderCustomerID == "" {
		return
	}

	pending, err := s.asaasGW.ListPendingPayments(ctx, sub.ProviderCustomerID)
	if err != nil {
		l.WarnContext(ctx, "pending payment listing failed, proceeding", slog.Any("error", err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cancelConcurrency)
	for _, p := range pending {
		g.Go(func() error {
			if err := s.asaasGW.DeletePayment(gctx, p.ID); err != nil {
				l.WarnContext(gctx, "pending payment delete failed",
					slog.String("paymentID", p.ID), slog.Any("error", err))
			}
			return nil
		})
	}
	g.Wait()
}

func (s *BillingServiceImpl) GetSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error) {
	return s.repo.GetSubscription(ctx, userID)
}

func (s *BillingServiceImpl) ApplyEvent(ctx context.Context, event types.PaymentEvent) (bool, error) {
	l := s.logger.With(slog.String("service", "ApplyEvent"),
		slog.String("provider", string(event.Provider)), slog.String("eventID", event.EventID))

	s.countWebhook(ctx, event)

	if event.Kind == types.EventIgnored {
		return false, nil
	}

	// Replay absorption: providers redeliver events on slow responses. The
	// claim is released on failure, so a redelivery after a transient store
	// error is processed instead of deduped.
	dedupKey := string(event.Provider) + "|" + event.EventID
	if err := s.seenEvents.Add(dedupKey, struct{}{}, gocache.DefaultExpiration); err != nil {
		l.InfoContext(ctx, "duplicate event ignored")
		return false, nil
	}

	existing, err := s.resolveSubscription(ctx, &event)
	if err != nil {
		s.seenEvents.Delete(dedupKey)
		return false, err
	}

	if stale(existing, event) {
		l.InfoContext(ctx, "stale event ignored",
			slog.Time("occurredAt", event.OccurredAt), slog.Time("rowUpdatedAt", existing.UpdatedAt))
		return false, nil
	}

	status := types.StatusActive
	if event.Kind == types.EventPaymentOverdue {
		status = types.StatusPastDue
	}

	plan := event.PlanType
	if _, ok := types.PriceFor(plan); !ok {
		if existing == nil {
			l.WarnContext(ctx, "event has no resolvable plan, ignoring")
			return false, nil
		}
		plan = existing.PlanType
	}

	sub := types.Subscription{
		UserID:                 event.UserID,
		Status:                 status,
		Provider:               event.Provider,
		ProviderSubscriptionID: event.ProviderSubscriptionID,
		ProviderCustomerID:     event.ProviderCustomerID,
		PlanType:               plan,
	}
	if existing != nil {
		if sub.ProviderSubscriptionID == "" {
			sub.ProviderSubscriptionID = existing.ProviderSubscriptionID
		}
		if sub.ProviderCustomerID == "" {
			sub.ProviderCustomerID = existing.ProviderCustomerID
		}
	}

	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		s.seenEvents.Delete(dedupKey)
		return false, fmt.Errorf("apply event: %w", err)
	}
	l.InfoContext(ctx, "subscription reconciled", slog.String("status", string(status)), slog.String("plan", string(plan)))
	return true, nil
}

// resolveSubscription loads the current row and, when the event payload has
// no user reference, falls back to the gateway customer id recorded at
// checkout. Unresolvable events are dropped, not errored, so the gateway
// stops redelivering them.
func (s *BillingServiceImpl) resolveSubscription(ctx context.Context, event *types.PaymentEvent) (*types.Subscription, error) {
	if event.UserID != uuid.Nil {
		existing, err := s.repo.GetSubscription(ctx, event.UserID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("apply event: %w", err)
		}
		return existing, nil
	}

	if event.ProviderCustomerID == "" {
		return nil, fmt.Errorf("event carries no user reference: %w", types.ErrValidation)
	}
	existing, err := s.repo.FindByProviderCustomerID(ctx, event.Provider, event.ProviderCustomerID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("no subscription for customer %s: %w", event.ProviderCustomerID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("apply event: %w", err)
	}
	event.UserID = existing.UserID
	return existing, nil
}

// stale guards against redelivered history rewinding the row: an overdue
// notice older than the last write must not demote an active subscription,
// and nothing may resurrect a canceled one.
func stale(existing *types.Subscription, event types.PaymentEvent) bool {
	if existing == nil || !event.OccurredAt.Before(existing.UpdatedAt) {
		return false
	}
	if existing.Status == types.StatusCanceled {
		return true
	}
	return existing.Status == types.StatusActive && event.Kind == types.EventPaymentOverdue
}

func (s *BillingServiceImpl) countCheckout(ctx context.Context, provider types.Provider, outcome string) {
	metrics.Get().CheckoutRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("outcome", outcome),
	))
}

func (s *BillingServiceImpl) countWebhook(ctx context.Context, event types.PaymentEvent) {
	metrics.Get().WebhookEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(event.Provider)),
		attribute.String("kind", string(event.Kind)),
	))
}

func externalReference(userID uuid.UUID, plan types.Plan) string {
	return userID.String() + "|" + string(plan)
}

func planDescription(plan types.Plan) string {
	switch plan {
	case types.PlanStarter:
		return "Assinatura UltraOrça Starter"
	case types.PlanPro:
		return "Assinatura UltraOrça Pro"
	case types.PlanAnnual:
		return "Assinatura UltraOrça Anual"
	default:
		return "Assinatura UltraOrça"
	}
}
