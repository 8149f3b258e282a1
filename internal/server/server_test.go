package server

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"restjam/internal/auth"
	"restjam/internal/config"
	"restjam/internal/encryption"
	"restjam/internal/models"
	"restjam/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	testProject = "restjam-test"
	testKeyID   = "test-key"
)

var signingKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
})

type fixture struct {
	s   *Server
	db  *testutil.MemoryDB
	app *fiber.App
}

// newFixture builds a server over in-memory repositories with every route
// mounted. rdb may be nil.
func newFixture(t *testing.T, cfg *config.Config, rdb *redis.Client) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.FirebaseProjectID = testProject
	if cfg.ImageStore == "" {
		cfg.ImageStore = "local"
	}
	cfg.ImageUploadDir = t.TempDir()
	if cfg.ImagePublicURL == "" {
		cfg.ImagePublicURL = "/media"
	}
	if cfg.ImageMaxUploadSizeMB == 0 {
		cfg.ImageMaxUploadSizeMB = 5
	}

	db := testutil.NewMemoryDB()
	repos := Repositories{
		Posts:    db.Posts(),
		Tags:     db.Tags(),
		PostTags: db.PostTags(),
		Ratings:  db.Ratings(),
		Users:    db.Users(),
	}
	s, err := newServer(cfg, repos, encryption.New("", encryption.PassThrough), rdb)
	require.NoError(t, err)

	verifier := auth.NewVerifier(testProject, auth.StaticKeys{testKeyID: &signingKey().PublicKey})
	s.authenticator = auth.NewAuthenticator(verifier, repos.Users)

	app := fiber.New()
	s.SetupRoutes(app)
	return &fixture{s: s, db: db, app: app}
}

// token signs a Firebase-shaped ID token for uid.
func token(t *testing.T, uid, email string) string {
	t.Helper()
	now := time.Now()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://securetoken.google.com/" + testProject,
			Audience:  jwt.ClaimStrings{testProject},
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email: email,
		Name:  "Ada Lovelace",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(signingKey())
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, target string, body any, bearer string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthChecks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	resp := f.do(t, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", decode[map[string]any](t, resp)["status"])

	resp = f.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unavailable", checks["database"])
	assert.Equal(t, "unavailable", checks["redis"])
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)
	rating := map[string]any{"score": 4, "type": "Great"}

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{name: "no token", want: http.StatusUnauthorized},
		{name: "garbage token", bearer: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "valid token", bearer: token(t, "firebase-ada", "ada@example.com"), want: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/ratings", rating, tt.bearer)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, models.CodeUnauthenticated, decode[models.ErrorResponse](t, resp).Code)
			}
		})
	}

	user, err := f.db.Users().GetByFirebaseUID(t.Context(), "firebase-ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Equal(t, "Lovelace", user.LastName)
}

func TestOptionalAuth_InvalidTokenStaysAnonymous(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	resp := f.do(t, http.MethodGet, "/api/posts", nil, "expired-or-forged")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.PostView](t, resp))
}

func TestGraphQLRoute(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)
	f.db.AddRating(models.Rating{Score: 5, Type: "Excellent"})

	resp := f.do(t, http.MethodPost, "/graphql", map[string]any{
		"query": "{ ratings { score type } }",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Ratings []struct {
				Score int32  `json:"score"`
				Type  string `json:"type"`
			} `json:"ratings"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data.Ratings, 1)
	assert.Equal(t, "Excellent", body.Data.Ratings[0].Type)

	resp = f.do(t, http.MethodPost, "/graphql", map[string]any{
		"query": `mutation { toggleLike(postId: "000000000000000000000000") { id } }`,
	}, token(t, "firebase-gql", "gql@example.com"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var failed struct {
		Errors []struct {
			Extensions map[string]any `json:"extensions"`
		} `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	require.NotEmpty(t, failed.Errors)
	assert.Equal(t, models.CodeNotFound, failed.Errors[0].Extensions["code"])
}

func TestBootstrap(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)
	ctx := t.Context()

	require.NoError(t, f.db.Posts().Create(ctx, &models.Post{Title: "Orphan", Author: bson.NewObjectID()}))
	require.NoError(t, f.s.Bootstrap(ctx))
	require.NoError(t, f.s.Bootstrap(ctx))

	assert.Zero(t, f.db.PostCount())
	resp := f.do(t, http.MethodGet, "/api/ratings", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Rating](t, resp), 5)
}
