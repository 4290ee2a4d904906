package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var validImageExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

func ProductImagePath(productID string) string {
	return fmt.Sprintf("products/%s/image.jpg", productID)
}

func ProfilePicturePath(userID, filename string) string {
	return fmt.Sprintf("profile_pictures/%s/%s", userID, filename)
}

// Extension returns what follows the last dot of uri, without any query string.
func Extension(uri string) string {
	ext := uri
	if i := strings.LastIndex(uri, "."); i >= 0 {
		ext = uri[i+1:]
	}
	if i := strings.Index(ext, "?"); i >= 0 {
		ext = ext[:i]
	}
	return ext
}

func IsValidImageType(uri string) bool {
	_, ok := validImageExtensions[strings.ToLower(Extension(uri))]
	return ok
}

// ContentType maps an image uri to its MIME type, or application/octet-stream.
func ContentType(uri string) string {
	if ct, ok := validImageExtensions[strings.ToLower(Extension(uri))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// UniqueFilename builds "[{userID}_]{base}_{unixMillis}_{random}.{ext}" from
// the original file name.
func UniqueFilename(original, userID string, now time.Time) string {
	ext := Extension(original)
	base := strings.TrimSuffix(original, path.Ext(original))
	if ext == original || strings.Contains(ext, "/") {
		base = original
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]

	name := fmt.Sprintf("%s_%d_%s.%s", base, now.UnixMilli(), random, ext)
	if userID != "" {
		name = userID + "_" + name
	}
	return name
}
