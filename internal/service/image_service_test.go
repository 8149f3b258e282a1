package service

import (
	"context"
	"strings"
	"testing"

	"restjam/internal/config"
	"restjam/internal/models"
	"restjam/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestImageUpload_Validation(t *testing.T) {
	t.Parallel()
	user := bson.NewObjectID()
	svc := NewImageService(newMemoryStore(), &config.Config{ImageMaxUploadSizeMB: 1})

	tests := []struct {
		name string
		in   UploadImageInput
		code string
	}{
		{"anonymous", UploadImageInput{Content: testutil.TinyPNG(t, 10, 10)}, models.CodeUnauthenticated},
		{"empty", UploadImageInput{UserID: user}, models.CodeValidation},
		{"too large", UploadImageInput{UserID: user, Content: make([]byte, 1024*1024+1)}, models.CodeValidation},
		{"not an image", UploadImageInput{UserID: user, Content: []byte("plain text body")}, models.CodeValidation},
		{"gif", UploadImageInput{UserID: user, Content: []byte("GIF89a\x01\x00\x01\x00")}, models.CodeValidation},
		{"truncated png", UploadImageInput{UserID: user, Content: testutil.TinyPNG(t, 10, 10)[:20]}, models.CodeValidation},
		{"declared gif", UploadImageInput{UserID: user, ContentType: "image/gif", Content: testutil.TinyPNG(t, 10, 10)}, models.CodeValidation},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Upload(context.Background(), tt.in)
			requireCode(t, err, tt.code)
		})
	}
}

func TestImageUpload_WritesVariantsUpToSourceWidth(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := NewImageService(store, nil)
	user := bson.NewObjectID()
	content := testutil.TinyPNG(t, 700, 350)

	out, err := svc.Upload(context.Background(), UploadImageInput{UserID: user, ContentType: "image/png", Content: content})
	require.NoError(t, err)

	assert.Len(t, out.Hash, 32)
	assert.Equal(t, 700, out.Width)
	assert.Equal(t, 350, out.Height)
	require.Len(t, out.Variants, 4)
	assert.Equal(t, 256, out.Variants[0].Width)
	assert.Equal(t, 128, out.Variants[0].Height)
	assert.Equal(t, "webp", out.Variants[1].Format)
	assert.Equal(t, 640, out.Variants[2].Width)
	assert.True(t, strings.HasSuffix(out.URL, out.Hash+"/640.jpg"))

	assert.Len(t, store.objects, 4)
	assert.Contains(t, store.objects, out.Hash+"/256.webp")

	again, err := svc.Upload(context.Background(), UploadImageInput{UserID: user, Content: content})
	require.NoError(t, err)
	assert.Equal(t, out.Hash, again.Hash)
}

func TestImageUpload_SmallImageKeepsOneRung(t *testing.T) {
	t.Parallel()
	svc := NewImageService(newMemoryStore(), nil)

	out, err := svc.Upload(context.Background(), UploadImageInput{UserID: bson.NewObjectID(), Content: testutil.TinyPNG(t, 40, 20)})
	require.NoError(t, err)
	require.Len(t, out.Variants, 2)
	assert.Equal(t, 40, out.Variants[0].Width)
}

func TestImageHash_DependsOnUser(t *testing.T) {
	t.Parallel()
	content := []byte("same bytes")
	a := buildDeterministicImageHash(bson.NewObjectID(), content)
	b := buildDeterministicImageHash(bson.NewObjectID(), content)
	assert.NotEqual(t, a, b)
}
