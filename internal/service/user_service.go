package service

import (
	"context"
	"strings"

	"restjam/internal/auth"
	"restjam/internal/cache"
	"restjam/internal/models"
	"restjam/internal/repository"
	"restjam/internal/validation"
)

type UserService struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

type UpdateProfileInput struct {
	DisplayName string `json:"displayName" validate:"max=100"`
	PhotoURL    string `json:"photoURL" validate:"omitempty,url"`
	FirstName   string `json:"firstName" validate:"max=100"`
	LastName    string `json:"lastName" validate:"max=100"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// Me returns the viewer's own user record with the email decrypted.
func (s *UserService) Me(ctx context.Context, viewer *auth.Viewer) (*models.User, error) {
	if viewer == nil {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	user, err := s.repo.GetByID(ctx, viewer.UserID)
	if err != nil {
		return nil, notFoundOr(err, "User", viewer.UserID.Hex())
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, viewer *auth.Viewer, in UpdateProfileInput) (*models.User, error) {
	if viewer == nil {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.PhotoURL = strings.TrimSpace(in.PhotoURL)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.repo.UpdateProfile(ctx, viewer.UserID, models.UserProfile{
		DisplayName: in.DisplayName,
		PhotoURL:    in.PhotoURL,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
	})
	if err != nil {
		return nil, notFoundOr(err, "User", viewer.UserID.Hex())
	}
	if viewer.FirebaseUID != "" {
		cache.Invalidate(ctx, cache.FirebaseUserKey(viewer.FirebaseUID))
	}
	return user, nil
}
