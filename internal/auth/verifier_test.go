package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"restjam/internal/cache"
	"restjam/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const testProject = "restjam-test"

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, mutate func(c *Claims)) string {
	t.Helper()
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://securetoken.google.com/" + testProject,
			Audience:  jwt.ClaimStrings{testProject},
			Subject:   "firebase-uid-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email: "diner@example.com",
		Name:  "Dana Diner",
	}
	if mutate != nil {
		mutate(claims)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifier_Verify(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	v := NewVerifier(testProject, StaticKeys{"k1": &key.PublicKey})

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", signToken(t, key, "k1", nil), false},
		{"unknown kid", signToken(t, key, "k2", nil), true},
		{"wrong key", signToken(t, other, "k1", nil), true},
		{"wrong issuer", signToken(t, key, "k1", func(c *Claims) { c.Issuer = "https://evil.example" }), true},
		{"wrong audience", signToken(t, key, "k1", func(c *Claims) { c.Audience = jwt.ClaimStrings{"other"} }), true},
		{"expired", signToken(t, key, "k1", func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour)) }), true},
		{"no expiry", signToken(t, key, "k1", func(c *Claims) { c.ExpiresAt = nil }), true},
		{"no subject", signToken(t, key, "k1", func(c *Claims) { c.Subject = "" }), true},
		{"garbage", "not-a-token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "firebase-uid-1", claims.Subject)
			assert.Equal(t, "diner@example.com", claims.Email)
		})
	}
}

func TestVerifier_RejectsHMAC(t *testing.T) {
	v := NewVerifier(testProject, StaticKeys{})
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"})
	tok.Header["kid"] = "k1"
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), s)
	assert.Error(t, err)
}

type resolverStub struct {
	calls int
	id    bson.ObjectID
}

func (r *resolverStub) UpsertByFirebaseUID(_ context.Context, p models.UserProfile) (*models.User, error) {
	r.calls++
	return &models.User{ID: r.id, FirebaseUID: p.FirebaseUID, Email: p.Email, FirstName: p.FirstName}, nil
}

func TestAuthenticator_CachesUserLookup(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	prev := cache.GetClient()
	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(prev); _ = rdb.Close() })

	key := newKey(t)
	users := &resolverStub{id: bson.NewObjectID()}
	a := NewAuthenticator(NewVerifier(testProject, StaticKeys{"k1": &key.PublicKey}), users)
	token := signToken(t, key, "k1", nil)

	for i := 0; i < 3; i++ {
		viewer, err := a.Authenticate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, users.id, viewer.UserID)
		assert.Equal(t, "firebase-uid-1", viewer.FirebaseUID)
		assert.Equal(t, "diner@example.com", viewer.Email)
	}
	assert.Equal(t, 1, users.calls)
	assert.True(t, mr.Exists(cache.FirebaseUserKey("firebase-uid-1")))
}

func TestAuthenticator_Errors(t *testing.T) {
	key := newKey(t)
	a := NewAuthenticator(NewVerifier(testProject, StaticKeys{"k1": &key.PublicKey}), &resolverStub{})

	_, err := a.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = a.Authenticate(context.Background(), "bogus")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeUnauthenticated, appErr.Code)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestViewer_NilSafe(t *testing.T) {
	t.Parallel()
	var v *Viewer
	assert.Nil(t, v.ID())
	assert.Equal(t, "", v.Key())
	assert.Nil(t, ViewerFrom(context.Background()))

	id := bson.NewObjectID()
	ctx := WithViewer(context.Background(), &Viewer{UserID: id})
	require.NotNil(t, ViewerFrom(ctx))
	assert.Equal(t, id, *ViewerFrom(ctx).ID())
	assert.Equal(t, id.Hex(), ViewerFrom(ctx).Key())
}

func selfSignedPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestCertSource_FetchesAndCaches(t *testing.T) {
	key := newKey(t)
	certs := map[string]string{"k1": selfSignedPEM(t, key)}

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(certs)
	}))
	defer srv.Close()

	src := NewCertSource(srv.URL, srv.Client())
	got, err := src.Key(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(got))

	_, err = src.Key(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	_, err = src.Key(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestMaxAge(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 600*time.Second, maxAge("public, max-age=600, must-revalidate"))
	assert.Equal(t, time.Hour, maxAge(""))
}
