package services

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// thumbnailEdge is the bounding box for gallery thumbnails.
const thumbnailEdge = 512

// Thumbnailer produces downscaled JPEG previews. Failures are never fatal to
// a generation; the caller logs and leaves the thumbnail URL empty.
type Thumbnailer struct{}

// Make decodes data, fits it into a 512x512 box and re-encodes as JPEG.
func (Thumbnailer) Make(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, thumbnailEdge, thumbnailEdge, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
