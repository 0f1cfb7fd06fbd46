package storage

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

// ThumbnailWidth is the width of generated thumbnails; height keeps the
// aspect ratio.
const ThumbnailWidth = 320

// Dimensions reads the pixel size from the image header.  Formats the
// decoder does not know (webp) report 0x0.
func Dimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// MakeThumbnail decodes data, honours EXIF orientation and re-encodes a JPEG
// no wider than ThumbnailWidth.
func MakeThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() > ThumbnailWidth {
		img = imaging.Resize(img, ThumbnailWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
