package server

import (
	"errors"

	"restjam/internal/aggregate"
	"restjam/internal/middleware"
	"restjam/internal/models"
	"restjam/internal/service"

	"github.com/gofiber/fiber/v2"
)

type aiSearchRequest struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// aiSearchError is the failure body of the AI search endpoint.
type aiSearchError struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Success    bool   `json:"success"`
	AIDisabled bool   `json:"aiDisabled,omitempty"`
}

// AISearch handles POST /api/ai-search
//
//	@Summary	Search posts with AI-extracted keywords
//	@Tags		search
//	@Success	200	{object}	service.AISearchResult
//	@Failure	400	{object}	aiSearchError
//	@Failure	503	{object}	aiSearchError
//	@Router		/ai-search [post]
func (s *Server) AISearch(c *fiber.Ctx) error {
	var req aiSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(aiSearchError{
			Error: "Invalid request body",
			Code:  models.CodeValidation,
		})
	}

	page := aggregate.Page{Limit: req.Limit, Offset: req.Offset}.Normalize()
	result, err := s.aiSearchService.Search(c.UserContext(), req.Query, page, viewerOf(c))
	if err != nil {
		return respondAISearchError(c, err)
	}
	return c.JSON(result)
}

func respondAISearchError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrAIDisabled) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(aiSearchError{
			Error:      service.ErrAIDisabled.Message,
			Code:       service.ErrAIDisabled.Code,
			AIDisabled: true,
		})
	}

	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewInternalError(err)
	}
	if appErr.Code == models.CodeInternal {
		middleware.Logger.ErrorContext(c.UserContext(), "ai search failed", "error", err)
	}
	return c.Status(models.StatusFor(appErr)).JSON(aiSearchError{
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}
