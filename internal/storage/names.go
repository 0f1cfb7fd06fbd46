package storage

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// allowedTypes maps accepted image content types to the extension used for
// stored objects.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// NewObjectName builds "<uuid>-<slug of base name><ext>".  The uuid keeps
// names unique; the slug keeps them readable and URL safe.
func NewObjectName(original, contentType string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	s := slug.Make(base)
	if s == "" {
		s = "image"
	}
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	return uuid.NewString() + "-" + s + allowedTypes[contentType]
}

// ThumbnailName derives the thumbnail object name from the image's name.
func ThumbnailName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + "_thumb.jpg"
}

// SniffContentType looks at the file bytes instead of trusting the client's
// header and rejects anything that is not an accepted image type.
func SniffContentType(data []byte) (string, error) {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if _, ok := allowedTypes[ct]; !ok {
		return ct, ErrUnsupportedType
	}
	return ct, nil
}
