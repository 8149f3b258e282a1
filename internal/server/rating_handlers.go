package server

import (
	"restjam/internal/models"
	"restjam/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetRatings handles GET /api/ratings
//
//	@Summary	List ratings by ascending score
//	@Tags		ratings
//	@Success	200	{array}	models.Rating
//	@Router		/ratings [get]
func (s *Server) GetRatings(c *fiber.Ctx) error {
	ratings, err := s.ratingService.List(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(ratings)
}

// CreateRating handles POST /api/ratings
//
//	@Summary	Create a rating
//	@Tags		ratings
//	@Security	BearerAuth
//	@Success	201	{object}	models.Rating
//	@Failure	400	{object}	models.ErrorResponse
//	@Router		/ratings [post]
func (s *Server) CreateRating(c *fiber.Ctx) error {
	var req service.CreateRatingInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	rating, err := s.ratingService.Create(c.UserContext(), req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rating)
}
