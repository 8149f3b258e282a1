package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"restjam/internal/config"
	"restjam/internal/models"
	"restjam/internal/validation"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const (
	checkoutCurrency = "cad"
	defaultDonorName = "Anonymous Donor"
)

// CheckoutClient creates Stripe checkout sessions.
type CheckoutClient interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeCheckout struct {
	api *client.API
}

func (s *stripeCheckout) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.api.CheckoutSessions.New(params)
}

// NewStripeCheckout returns a client for secretKey.
func NewStripeCheckout(secretKey string) CheckoutClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeCheckout{api: api}
}

// CheckoutInput is a donation request. Amount is in dollars.
type CheckoutInput struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Name   string  `json:"name" validate:"max=200"`
	Email  string  `json:"email" validate:"omitempty,email"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type PaymentService struct {
	checkout    CheckoutClient
	secretSet   bool
	frontendURL string
	breaker     *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

// NewPaymentService builds the service from config. checkout may be nil, in
// which case a Stripe client is created when a secret key is configured.
func NewPaymentService(cfg *config.Config, checkout CheckoutClient) *PaymentService {
	secretSet := cfg.StripeSecretKey != ""
	if checkout == nil && secretSet {
		checkout = NewStripeCheckout(cfg.StripeSecretKey)
	}
	return &PaymentService{
		checkout:    checkout,
		secretSet:   secretSet,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		breaker:     newBreaker[*stripe.CheckoutSession]("stripe"),
	}
}

// CreateCheckoutSession opens a one-item CAD checkout for in.Amount.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	if !s.secretSet || s.checkout == nil {
		return nil, models.NewConfigError("Payment service is not configured", "STRIPE_SECRET_KEY is not set")
	}
	if s.frontendURL == "" {
		return nil, models.NewConfigError("Payment service is not configured", "FRONTEND_URL is not set")
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) {
		return nil, models.NewValidationError("amount must be a positive number")
	}
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}
	unitAmount := int64(math.Round(in.Amount * 100))
	if unitAmount < 1 {
		return nil, models.NewValidationError("amount must be at least 0.01")
	}

	name := in.Name
	if name == "" {
		name = defaultDonorName
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(checkoutCurrency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
				UnitAmount: stripe.Int64(unitAmount),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(s.frontendURL + "/success"),
		CancelURL:  stripe.String(s.frontendURL + "/cancel"),
	}
	if in.Email != "" {
		params.CustomerEmail = stripe.String(in.Email)
	}
	params.Context = ctx

	session, err := s.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		sess, err := s.checkout.NewCheckoutSession(params)
		if err != nil {
			return nil, mapStripeError(err)
		}
		return sess, nil
	})
	if err != nil {
		if breakerOpen(err) {
			return nil, models.NewConfigError("Payment provider is temporarily unavailable", "circuit open")
		}
		return nil, err
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// mapStripeError keeps the provider message for request-level failures and
// hides it for everything else.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return models.NewUpstreamError(stripeErr.Msg, err)
		}
	}
	return &models.AppError{
		Code:    models.CodeInternal,
		Message: "Stripe session creation failed",
		Err:     err,
	}
}
