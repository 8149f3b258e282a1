package service

import (
	"context"
	"testing"

	"restjam/internal/auth"
	"restjam/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestUserService_Me(t *testing.T) {
	t.Parallel()
	repo := newUserRepoStub()
	u, err := repo.UpsertByFirebaseUID(context.Background(), models.UserProfile{FirebaseUID: "fb-1", Email: "a@example.com"})
	require.NoError(t, err)
	svc := NewUserService(repo)

	_, err = svc.Me(context.Background(), nil)
	requireCode(t, err, models.CodeUnauthenticated)

	got, err := svc.Me(context.Background(), &auth.Viewer{UserID: u.ID, FirebaseUID: "fb-1"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)

	_, err = svc.Me(context.Background(), &auth.Viewer{UserID: bson.NewObjectID()})
	requireCode(t, err, models.CodeNotFound)
}

func TestUserService_UpdateProfile(t *testing.T) {
	t.Parallel()
	repo := newUserRepoStub()
	u, err := repo.UpsertByFirebaseUID(context.Background(), models.UserProfile{FirebaseUID: "fb-2"})
	require.NoError(t, err)
	svc := NewUserService(repo)
	viewer := &auth.Viewer{UserID: u.ID, FirebaseUID: "fb-2"}

	_, err = svc.UpdateProfile(context.Background(), viewer, UpdateProfileInput{Email: "not-an-email"})
	requireCode(t, err, models.CodeValidation)

	_, err = svc.UpdateProfile(context.Background(), viewer, UpdateProfileInput{PhotoURL: "nope"})
	requireCode(t, err, models.CodeValidation)

	got, err := svc.UpdateProfile(context.Background(), viewer, UpdateProfileInput{DisplayName: "  Sam  "})
	require.NoError(t, err)
	assert.Equal(t, "Sam", got.DisplayName)
}
