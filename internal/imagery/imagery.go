// Package imagery decodes overlay images, downsizes them and encodes them as
// PNG data URIs for embedding in the rendered page.
package imagery

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"

	// Registered decoders
	_ "image/gif"
	_ "image/jpeg"

	"github.com/disintegration/gift"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrFormat is returned for data that is not a supported image.
var ErrFormat = errors.New("imagery: unsupported or corrupt image")

// Formats lists the decodable formats.
var Formats = []string{"png", "jpeg", "gif", "bmp", "tiff", "webp"}

// Image is a decoded overlay image.
type Image struct {
	image.Image
	Format string // source format as reported by image.Decode
}

// Decode decodes PNG, JPEG, GIF, BMP, TIFF or WebP data.
func Decode(data []byte) (*Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return &Image{Image: img, Format: format}, nil
}

// Fit downsizes img so neither side exceeds maxSize pixels, keeping the
// aspect ratio. Images already small enough, or maxSize <= 0, are returned as is.
func Fit(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	if maxSize <= 0 || (b.Dx() <= maxSize && b.Dy() <= maxSize) {
		return img
	}

	w, h := maxSize, 0
	if b.Dy() > b.Dx() {
		w, h = 0, maxSize
	}

	g := gift.New(gift.Resize(w, h, gift.LanczosResampling))
	dst := image.NewNRGBA(g.Bounds(b))
	g.Draw(dst, img)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI returns img as a base64 PNG data URI.
func DataURI(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
