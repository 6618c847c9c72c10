package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors shared across services. Handlers translate these to HTTP
// statuses with errors.Is.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthenticated = errors.New("authentication failed")
	ErrConflict        = errors.New("resource already exists")
	ErrValidation      = errors.New("validation failed")
	ErrLimitReached    = errors.New("plan limit reached")
)

// Response is the generic envelope for success/error messages.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Plan tiers. "free" is implicit: it is the effective plan of any user without
// an active subscription row.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
	PlanAnnual  Plan = "annual"
)

// QuotaWindow is the counting window a plan's quote limit applies to.
type QuotaWindow string

const (
	WindowLifetime QuotaWindow = "lifetime"
	WindowMonthly  QuotaWindow = "month"
	WindowNone     QuotaWindow = "none"
)

// PlanPolicy describes the quote-creation quota of a plan.
type PlanPolicy struct {
	Limit     int // ignored when Unlimited
	Window    QuotaWindow
	Unlimited bool
}

// PolicyFor returns the quota policy for a plan. Unknown plans fall back to
// the free-tier policy so a corrupted row can never grant unlimited quotes.
func PolicyFor(plan Plan) PlanPolicy {
	switch plan {
	case PlanPro, PlanAnnual:
		return PlanPolicy{Window: WindowNone, Unlimited: true}
	case PlanStarter:
		return PlanPolicy{Limit: 30, Window: WindowMonthly}
	default:
		return PlanPolicy{Limit: 3, Window: WindowLifetime}
	}
}

// PlanPrice is the server-side authoritative price table. Client-supplied
// prices are never trusted.
type PlanPrice struct {
	Amount float64
	Cycle  string // MONTHLY or YEARLY
}

var planPrices = map[Plan]PlanPrice{
	PlanStarter: {Amount: 19.99, Cycle: "MONTHLY"},
	PlanPro:     {Amount: 29.99, Cycle: "MONTHLY"},
	PlanAnnual:  {Amount: 299.00, Cycle: "YEARLY"},
}

// PriceFor returns the price for a paid plan, or ok=false for anything else.
func PriceFor(plan Plan) (PlanPrice, bool) {
	p, ok := planPrices[plan]
	return p, ok
}

// Subscription status vocabulary. "overdue" from the legacy webhook endpoint
// is normalized to StatusPastDue on write.
type SubscriptionStatus string

const (
	StatusPending  SubscriptionStatus = "pending"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Billing providers.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderAsaas  Provider = "asaas"
)

// Subscription is the single logical billing row per user (upsert key user_id).
type Subscription struct {
	UserID                 uuid.UUID          `json:"user_id"`
	Status                 SubscriptionStatus `json:"status"`
	Provider               Provider           `json:"provider"`
	ProviderSubscriptionID string             `json:"provider_subscription_id,omitempty"`
	ProviderCustomerID     string             `json:"provider_customer_id,omitempty"`
	PlanType               Plan               `json:"plan_type"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// EntitlementResult is the outcome of the quote-creation quota check.
type EntitlementResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"` // "limit_reached" or "error"
	Plan    Plan   `json:"plan,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Current int    `json:"current,omitempty"`
}

// Profile is the issuer's one-to-one business profile, created lazily on
// first save.
type Profile struct {
	UserID      uuid.UUID `json:"user_id"`
	CompanyName string    `json:"company_name"`
	TaxID       string    `json:"tax_id"` // CPF or CNPJ
	Phone       string    `json:"phone"`
	Street      string    `json:"street"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	PostalCode  string    `json:"postal_code"`
	LogoURL     string    `json:"logo_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateProfileParams carries partial profile updates; nil fields are left
// untouched.
type UpdateProfileParams struct {
	CompanyName *string `json:"company_name,omitempty"`
	TaxID       *string `json:"tax_id,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Street      *string `json:"street,omitempty"`
	City        *string `json:"city,omitempty"`
	State       *string `json:"state,omitempty"`
	PostalCode  *string `json:"postal_code,omitempty"`
	LogoURL     *string `json:"logo_url,omitempty"`
}

// Product category tags.
type ProductCategory string

const (
	CategoryService ProductCategory = "service"
	CategoryProduct ProductCategory = "product"
)

// Product is a catalog item owned by one user.
type Product struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Name      string          `json:"name"`
	UnitPrice float64         `json:"unit_price"`
	Category  ProductCategory `json:"category"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateProductParams is the payload for creating or replacing a catalog item.
type CreateProductParams struct {
	Name      string          `json:"name"`
	UnitPrice float64         `json:"unit_price"`
	Category  ProductCategory `json:"category"`
}

// BudgetItem is a single line of a quote.
type BudgetItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Budget is a saved quote. Total is always recomputed as the sum of
// quantity*unit_price over Items and is never taken from the client.
type Budget struct {
	ID            uuid.UUID    `json:"id"`
	UserID        uuid.UUID    `json:"user_id"`
	DisplayNumber int          `json:"display_number"`
	ClientName    string       `json:"client_name"`
	ClientAddress string       `json:"client_address,omitempty"`
	Items         []BudgetItem `json:"items"`
	Total         float64      `json:"total"`
	Layout        string       `json:"layout"`
	AccentColor   string       `json:"accent_color"`
	ValidityDays  int          `json:"validity_days"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// CreateBudgetParams is the payload for saving a quote.
type CreateBudgetParams struct {
	ClientName    string       `json:"client_name"`
	ClientAddress string       `json:"client_address,omitempty"`
	Items         []BudgetItem `json:"items"`
	Layout        string       `json:"layout,omitempty"`
	AccentColor   string       `json:"accent_color,omitempty"`
	ValidityDays  int          `json:"validity_days,omitempty"`
}

// Total computes the authoritative quote total.
func (p CreateBudgetParams) Total() float64 {
	var sum float64
	for _, it := range p.Items {
		sum += it.Quantity * it.UnitPrice
	}
	return sum
}

// BillingProfile carries the identity a gateway needs to create a customer.
// Only presence is validated here; format errors come back from the gateway.
type BillingProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"tax_id,omitempty"` // required by the PIX gateway
}

// PaymentEvent is the normalized form of an asynchronous gateway event after
// provider-specific decoding. OccurredAt drives the stale-replay guard.
type PaymentEvent struct {
	Provider               Provider
	EventID                string
	Kind                   PaymentEventKind
	UserID                 uuid.UUID
	PlanType               Plan
	ProviderSubscriptionID string
	ProviderCustomerID     string
	OccurredAt             time.Time
}

// PaymentEventKind classifies gateway events into the transitions the
// reconciler cares about.
type PaymentEventKind string

const (
	EventPaymentConfirmed PaymentEventKind = "payment_confirmed"
	EventPaymentOverdue   PaymentEventKind = "payment_overdue"
	EventIgnored          PaymentEventKind = "ignored"
)
