package imageanalyzer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// maxDimension is the largest edge sent to the vision model. Larger
// images are scaled down to cut upload size and API cost.
const maxDimension = 1024

// jpegQuality for re-encoded uploads.
const jpegQuality = 85

// ErrEmptyImage is returned for zero-length image data.
var ErrEmptyImage = errors.New("empty image data")

// EncodeImageForVision loads an image file, scales it to at most
// maxDimension on the long edge, re-encodes it as JPEG, and returns a
// base64 data URL suitable for the vision API.
func EncodeImageForVision(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return EncodeImageBytes(data)
}

// EncodeImageBytes is EncodeImageForVision over in-memory data.
// Accepts JPEG, PNG, GIF, and BMP input.
func EncodeImageBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	img = scaleDown(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("failed to encode JPEG: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return "data:image/jpeg;base64," + encoded, nil
}

// scaleDown resizes img so its longer edge is at most maxDimension,
// preserving aspect ratio with CatmullRom resampling. Images already
// within bounds are returned unchanged.
func scaleDown(img image.Image) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxDimension {
		return img
	}

	scale := float64(maxDimension) / float64(longest)
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
