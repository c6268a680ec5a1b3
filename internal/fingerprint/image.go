package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the decoded size of an image (about 80 megapixels).
const MaxPixels = 80_000_000

// ErrDecode wraps every failure to turn raw bytes into a pixel buffer.
var ErrDecode = errors.New("failed to decode image")

// PrepareImage decodes raw image bytes (JPEG, PNG, GIF, BMP, TIFF, WebP),
// downscales so neither side exceeds maxSize, and returns JPEG bytes that
// every detector backend accepts. JPEG input that is already small enough is
// returned unchanged. maxSize <= 0 disables scaling.
func PrepareImage(data []byte, maxSize int) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrDecode, cfg.Width, cfg.Height)
	}

	fits := maxSize <= 0 || (cfg.Width <= maxSize && cfg.Height <= maxSize)
	if format == "jpeg" && fits {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if !fits {
		img = fitWithin(img, maxSize)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin scales img so that its longer side equals maxSize.
func fitWithin(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(int(float64(height)*float64(maxSize)/float64(width)), 1)
	} else {
		newHeight = maxSize
		newWidth = max(int(float64(width)*float64(maxSize)/float64(height)), 1)
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}
