package server

import (
	"fmt"
	"io"

	"restjam/internal/models"
	"restjam/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadImage handles POST /api/upload-image
//
//	@Summary	Upload a post image
//	@Tags		images
//	@Security	BearerAuth
//	@Accept		mpfd
//	@Param		image	formData	file	true	"jpeg, png or webp"
//	@Success	200		{object}	service.UploadedImage
//	@Failure	400		{object}	models.ErrorResponse
//	@Router		/upload-image [post]
func (s *Server) UploadImage(c *fiber.Ctx) error {
	viewer := viewerOf(c)
	file, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}
	if file.Size > s.imageService.MaxUploadSizeBytes() {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(
			fmt.Sprintf("File too large (max %dMB)", s.imageService.MaxUploadSizeBytes()/(1024*1024))))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	uploaded, err := s.imageService.Upload(c.UserContext(), service.UploadImageInput{
		UserID:      viewer.UserID,
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(uploaded)
}
