package service

import (
	"context"
	"strings"

	"restjam/internal/cache"
	"restjam/internal/models"
	"restjam/internal/repository"
	"restjam/internal/validation"
)

// DefaultRatings are ensured at startup.
var DefaultRatings = []models.Rating{
	{Score: 1, Type: "Terrible", Description: "Would not recommend"},
	{Score: 2, Type: "Poor", Description: "Below expectations"},
	{Score: 3, Type: "Average", Description: "It was okay"},
	{Score: 4, Type: "Good", Description: "Would come back"},
	{Score: 5, Type: "Excellent", Description: "A must-visit"},
}

type RatingService struct {
	repo repository.RatingRepository
}

func NewRatingService(repo repository.RatingRepository) *RatingService {
	return &RatingService{repo: repo}
}

type CreateRatingInput struct {
	Score       int    `json:"score" validate:"gte=1,lte=5"`
	Type        string `json:"type" validate:"notblank,max=50"`
	Description string `json:"description" validate:"max=500"`
}

// List returns all ratings by ascending score.
func (s *RatingService) List(ctx context.Context) ([]models.Rating, error) {
	var ratings []models.Rating
	err := cache.Aside(ctx, cache.RatingsKey, &ratings, cache.RatingsTTL, func() error {
		var err error
		ratings, err = s.repo.List(ctx)
		return err
	})
	if err != nil {
		return nil, internal(err)
	}
	return ratings, nil
}

func (s *RatingService) Create(ctx context.Context, in CreateRatingInput) (*models.Rating, error) {
	in.Type = strings.TrimSpace(in.Type)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	rating := &models.Rating{Score: in.Score, Type: in.Type, Description: in.Description}
	if err := s.repo.Create(ctx, rating); err != nil {
		return nil, internal(err)
	}
	cache.Invalidate(ctx, cache.RatingsKey)
	return rating, nil
}

// EnsureDefaults upserts DefaultRatings by type. Running it again changes nothing.
func (s *RatingService) EnsureDefaults(ctx context.Context) error {
	for _, r := range DefaultRatings {
		if err := s.repo.UpsertByType(ctx, r); err != nil {
			return err
		}
	}
	cache.Invalidate(ctx, cache.RatingsKey)
	return nil
}
