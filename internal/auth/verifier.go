package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restjam/internal/cache"
	"restjam/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var ErrNoToken = errors.New("no bearer token")

// Claims are the Firebase ID token claims the API reads.
type Claims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Verifier validates Firebase ID tokens for one project.
type Verifier struct {
	projectID string
	keys      KeySource
}

func NewVerifier(projectID string, keys KeySource) *Verifier {
	return &Verifier{projectID: projectID, keys: keys}
}

// Verify checks signature, issuer, audience, expiry and subject.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if v == nil || v.projectID == "" {
		return nil, errors.New("token verification is not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, ErrUnknownKey
			}
			return v.keys.Key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// UserResolver maps a verified identity to a stored user, creating it on first sight.
type UserResolver interface {
	UpsertByFirebaseUID(ctx context.Context, profile models.UserProfile) (*models.User, error)
}

// Authenticator turns bearer tokens into viewers.
type Authenticator struct {
	verifier *Verifier
	users    UserResolver
}

func NewAuthenticator(verifier *Verifier, users UserResolver) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

type cachedViewer struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Authenticate verifies raw and resolves the viewer. The firebase uid to
// user id mapping is cached in Redis.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*Viewer, error) {
	if raw == "" {
		return nil, ErrNoToken
	}
	claims, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}

	var cached cachedViewer
	err = cache.Aside(ctx, cache.FirebaseUserKey(claims.Subject), &cached, cache.UserTTL, func() error {
		first, last := splitName(claims.Name)
		user, err := a.users.UpsertByFirebaseUID(ctx, models.UserProfile{
			FirebaseUID: claims.Subject,
			DisplayName: claims.Name,
			PhotoURL:    claims.Picture,
			FirstName:   first,
			LastName:    last,
			Email:       claims.Email,
		})
		if err != nil {
			return err
		}
		cached = cachedViewer{UserID: user.ID.Hex(), Email: user.Email}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	id, err := bson.ObjectIDFromHex(cached.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return &Viewer{UserID: id, FirebaseUID: claims.Subject, Email: cached.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}
