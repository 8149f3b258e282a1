// Package service holds the business rules behind the GraphQL and REST surfaces.
package service

import (
	"context"
	"errors"
	"time"

	"restjam/internal/encryption"
	"restjam/internal/middleware"
	"restjam/internal/models"
	"restjam/internal/observability"
	"restjam/internal/repository"

	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ParseID converts a hex object id, reporting a validation error for bad input.
func ParseID(raw, field string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(raw)
	if err != nil {
		return bson.ObjectID{}, models.NewValidationError("Invalid " + field)
	}
	return id, nil
}

// notFoundOr maps repository.ErrNotFound to a NOT_FOUND AppError and wraps
// everything else as internal.
func notFoundOr(err error, resource string, id interface{}) error {
	if errors.Is(err, repository.ErrNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

func internal(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

func requireViewer(viewer *bson.ObjectID) (bson.ObjectID, error) {
	if viewer == nil || viewer.IsZero() {
		return bson.ObjectID{}, models.NewUnauthorizedError("Authentication required")
	}
	return *viewer, nil
}

// revealUsers decrypts the author's email and blanks every other email on
// v. The author email is blanked too when it cannot be decrypted.
func revealUsers(cipher *encryption.Cipher, v *models.PostView) {
	if v.AuthorUser != nil {
		email := ""
		if cipher != nil {
			if plain, err := cipher.Decrypt(v.AuthorUser.Email); err == nil {
				email = plain
			}
		}
		v.AuthorUser.Email = email
	}
	for i := range v.LikedBy {
		v.LikedBy[i].Email = ""
	}
	for i := range v.AttendeeUsers {
		v.AttendeeUsers[i].Email = ""
	}
}

// isClientError reports errors that should not trip a circuit breaker:
// rejected input and upstream refusals of a well-formed call.
func isClientError(err error) bool {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == models.CodeValidation || appErr.Code == models.CodeUpstream
	}
	return false
}

func newBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	observability.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			middleware.Logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func logWarn(ctx context.Context, msg string, args ...any) {
	middleware.Logger.WarnContext(ctx, msg, args...)
}
