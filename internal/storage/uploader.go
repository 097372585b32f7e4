package storage

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"propvid/internal/domain"
)

// MaxUploadBytes is the upload size ceiling (5 MiB).
const MaxUploadBytes = 5 << 20

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Upload is a user-supplied file pending validation.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// StoredImage is the result of a successful upload.
type StoredImage struct {
	Path string
	URL  string
}

// ImageUploader validates user images and writes them to the object store.
// It performs no retries; retry policy belongs to the caller.
type ImageUploader struct {
	store ObjectStore
}

func NewImageUploader(store ObjectStore) *ImageUploader {
	return &ImageUploader{store: store}
}

// UploadImage validates the upload, writes exactly one object under the
// owner's namespace and returns its path and public URL. Validation failures
// short-circuit before any store call.
func (u *ImageUploader) UploadImage(ctx context.Context, up Upload, ownerID string) (*StoredImage, error) {
	contentType, err := validateUpload(up, ownerID)
	if err != nil {
		return nil, err
	}

	key := imageKey(up.Name, contentType, ownerID)
	err = u.store.Put(ctx, key, up.Data, PutOptions{ContentType: contentType, NoOverwrite: true})
	if err != nil {
		return nil, domain.E(domain.KindStorage, "failed to upload image", err)
	}

	url := u.store.PublicURL(key)
	if url == "" {
		return nil, domain.E(domain.KindStorage, "failed to resolve public url", nil)
	}
	return &StoredImage{Path: key, URL: url}, nil
}

// Cleanup removes a previously uploaded image. Used as a compensating action
// when a later pipeline stage fails.
func (u *ImageUploader) Cleanup(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	return u.store.Remove(ctx, path)
}

func validateUpload(up Upload, ownerID string) (string, error) {
	if len(up.Data) == 0 {
		return "", domain.E(domain.KindValidation, "no file provided", nil)
	}
	if strings.TrimSpace(ownerID) == "" {
		return "", domain.E(domain.KindValidation, "owner id is required", nil)
	}
	contentType := normalizeContentType(up.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = normalizeContentType(http.DetectContentType(up.Data))
	}
	if _, ok := allowedImageTypes[contentType]; !ok {
		return "", domain.E(domain.KindValidation, "invalid file type, only JPEG, PNG and WebP images are allowed", nil)
	}
	if len(up.Data) > MaxUploadBytes {
		return "", domain.E(domain.KindValidation, "file size must be less than 5MB", nil)
	}
	return contentType, nil
}

// imageKey namespaces the object under the owner and combines a timestamp
// with a random suffix so concurrent uploads from the same caller never
// collide.
func imageKey(name, contentType, ownerID string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = allowedImageTypes[contentType]
	}
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s/%d-%s%s", ownerID, time.Now().UnixMilli(), suffix, ext)
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return ct
}
