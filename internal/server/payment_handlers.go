package server

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"restjam/internal/featureflags"
	"restjam/internal/models"
	"restjam/internal/service"

	"github.com/gofiber/fiber/v2"
)

type checkoutRequest struct {
	// Amount is dollars, as a JSON number or numeric string.
	Amount json.RawMessage `json:"amount"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
}

// amount returns NaN for missing or non-numeric input so the payment
// service rejects it after its configuration checks.
func (r checkoutRequest) amount() float64 {
	raw := strings.TrimSpace(string(r.Amount))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// CreateCheckoutSession handles POST /api/payment/create-checkout-session
//
//	@Summary	Open a Stripe checkout for a donation
//	@Tags		payments
//	@Success	200	{object}	service.CheckoutSession
//	@Failure	400	{object}	models.ErrorResponse
//	@Failure	502	{object}	models.ErrorResponse
//	@Failure	503	{object}	models.ErrorResponse
//	@Router		/payment/create-checkout-session [post]
func (s *Server) CreateCheckoutSession(c *fiber.Ctx) error {
	if !s.featureFlags.EnabledByDefault(featureflags.Payments, c.IP()) {
		return models.RespondWithAppError(c, models.NewConfigError("Payments are disabled", "payments feature flag is off"))
	}

	var req checkoutRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	session, err := s.paymentService.CreateCheckoutSession(c.UserContext(), service.CheckoutInput{
		Amount: req.amount(),
		Name:   req.Name,
		Email:  req.Email,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(session)
}
