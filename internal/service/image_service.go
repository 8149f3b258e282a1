package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"net/http"
	"strings"

	"restjam/internal/config"
	"restjam/internal/models"
	"restjam/internal/observability"
	"restjam/internal/storage"

	"github.com/chai2010/webp"
	"go.mongodb.org/mongo-driver/v2/bson"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultImageMaxUploadSizeMB = 5
	JPEGQuality                 = 82
	WebPQuality                 = 70
)

// Responsive widths produced for every upload.
var sizeLadder = []int{256, 640, 1080}

type UploadImageInput struct {
	UserID      bson.ObjectID
	Filename    string
	ContentType string
	Content     []byte
}

type ImageVariant struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	URL    string `json:"url"`
}

type UploadedImage struct {
	URL      string         `json:"url"`
	Hash     string         `json:"hash"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Variants []ImageVariant `json:"variants"`
}

type ImageService struct {
	store              storage.ObjectStore
	maxUploadSizeBytes int64
}

func NewImageService(store storage.ObjectStore, cfg *config.Config) *ImageService {
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB
	if cfg != nil && cfg.ImageMaxUploadSizeMB > 0 {
		maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
	}
	return &ImageService{
		store:              store,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// MaxUploadSizeBytes is the largest accepted upload.
func (s *ImageService) MaxUploadSizeBytes() int64 { return s.maxUploadSizeBytes }

// Upload validates an image, writes JPEG and WebP variants for each ladder
// width not larger than the source, and returns their URLs. The largest JPEG
// is the canonical URL.
func (s *ImageService) Upload(ctx context.Context, in UploadImageInput) (*UploadedImage, error) {
	if in.UserID.IsZero() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detected := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detected) {
		return nil, models.NewValidationError("Only JPEG, PNG and WebP images are allowed")
	}

	decoded, _, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isAllowedImageMIME(provided) {
		return nil, models.NewValidationError("Only JPEG, PNG and WebP images are allowed")
	}

	b := decoded.Bounds()
	hash := buildDeterministicImageHash(in.UserID, in.Content)
	out := &UploadedImage{Hash: hash, Width: b.Dx(), Height: b.Dy()}

	for i, width := range sizeLadder {
		// Always keep the smallest rung so tiny images still get a variant.
		if width > b.Dx() && i > 0 {
			break
		}
		img := resizeToWidth(decoded, width)
		ib := img.Bounds()

		jpg, err := encodeJPEG(img, JPEGQuality)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		wp, err := encodeWebP(img, WebPQuality)
		if err != nil {
			return nil, models.NewInternalError(err)
		}

		jpgURL, err := s.store.Put(ctx, fmt.Sprintf("%s/%d.jpg", hash, width), "image/jpeg", jpg)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		webpURL, err := s.store.Put(ctx, fmt.Sprintf("%s/%d.webp", hash, width), "image/webp", wp)
		if err != nil {
			return nil, models.NewInternalError(err)
		}

		out.Variants = append(out.Variants,
			ImageVariant{Width: ib.Dx(), Height: ib.Dy(), Format: "jpeg", URL: jpgURL},
			ImageVariant{Width: ib.Dx(), Height: ib.Dy(), Format: "webp", URL: webpURL},
		)
		out.URL = jpgURL
	}

	observability.ImageUploads.WithLabelValues(s.store.Name()).Inc()
	return out, nil
}

// resizeToWidth scales src down to width keeping its aspect ratio. Images
// already narrower are returned as is.
func resizeToWidth(src image.Image, width int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || w <= width {
		return src
	}
	newH := int(float64(h) * float64(width) / float64(w))
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

func buildDeterministicImageHash(userID bson.ObjectID, content []byte) string {
	h := sha256.New()
	_, _ = h.Write([]byte(userID.Hex()))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
