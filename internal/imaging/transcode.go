// Package imaging re-encodes uploaded photos to bound the size of relayed payloads.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	disimaging "github.com/disintegration/imaging"
	gerrors "github.com/goliatone/go-errors"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultQuality      = 80
	DefaultMaxDimension = 2048
	DefaultMaxPixels    = 50_000_000
)

// Transcoder turns an uploaded payload into the bytes that get stored.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, contentType string) ([]byte, string, error)
}

// Passthrough stores uploads untouched.
type Passthrough struct{}

func (Passthrough) Transcode(_ context.Context, data []byte, contentType string) ([]byte, string, error) {
	return data, contentType, nil
}

// Reencoder re-encodes JPEG, PNG and WEBP uploads, applies the EXIF orientation and
// downsizes anything larger than MaxDimension on its long edge. Images declaring more than
// MaxPixels are refused before any pixel buffer is allocated. Other types are passed through.
type Reencoder struct {
	Quality      int
	MaxDimension int
	MaxPixels    int
}

func NewReencoder(quality, maxDimension, maxPixels int) *Reencoder {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Reencoder{Quality: quality, MaxDimension: maxDimension, MaxPixels: maxPixels}
}

// ErrTooManyPixels builds the client error returned for images over the pixel budget.
func ErrTooManyPixels(width, height, limit int) error {
	return gerrors.New(
		fmt.Sprintf("Image is %dx%d pixels; the limit is %d pixels.", width, height, limit),
		gerrors.CategoryBadInput,
	).WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode("IMAGE_TOO_MANY_PIXELS").
		WithMetadata(map[string]any{"width": width, "height": height, "max_pixels": limit})
}

func (r *Reencoder) Transcode(ctx context.Context, data []byte, contentType string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	kind := classify(contentType)
	if kind == "" {
		return data, contentType, nil
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("transcode: source is empty")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("transcode: decode %s header: %w", kind, err)
	}
	if limit := r.maxPixels(); int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return nil, "", ErrTooManyPixels(cfg.Width, cfg.Height, limit)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("transcode: decode %s: %w", kind, err)
	}

	orientation := 1
	if kind == "jpeg" {
		orientation = exifOrientation(data)
		img = applyOrientation(img, orientation)
	}

	target, resized := r.bound(img)

	buf := &bytes.Buffer{}
	outType := "image/jpeg"
	switch kind {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(buf, target); err != nil {
			return nil, "", fmt.Errorf("transcode: encode png: %w", err)
		}
		outType = "image/png"
	default:
		// webp has no encoder in x/image, so it is stored as jpeg.
		if err := jpeg.Encode(buf, target, &jpeg.Options{Quality: r.quality()}); err != nil {
			return nil, "", fmt.Errorf("transcode: encode jpeg: %w", err)
		}
	}

	// The original bytes still carry their EXIF tag, so only an unrotated image may fall back.
	if !resized && kind != "webp" && orientation == 1 && buf.Len() >= len(data) {
		return data, outType, nil
	}
	return buf.Bytes(), outType, nil
}

func (r *Reencoder) quality() int {
	if r.Quality <= 0 || r.Quality > 100 {
		return DefaultQuality
	}
	return r.Quality
}

func (r *Reencoder) maxPixels() int {
	if r.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return r.MaxPixels
}

// exifOrientation returns the EXIF Orientation tag (1..8), or 1 when absent or unreadable.
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation turns stored pixels upright for the given EXIF orientation.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return disimaging.FlipH(img)
	case 3:
		return disimaging.Rotate180(img)
	case 4:
		return disimaging.FlipV(img)
	case 5:
		return disimaging.Transpose(img)
	case 6:
		return disimaging.Rotate270(img)
	case 7:
		return disimaging.Transverse(img)
	case 8:
		return disimaging.Rotate90(img)
	default:
		return img
	}
}

func (r *Reencoder) bound(src image.Image) (image.Image, bool) {
	limit := r.MaxDimension
	if limit <= 0 {
		limit = DefaultMaxDimension
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return src, false
	}

	var nw, nh int
	if w >= h {
		nw = limit
		nh = h * limit / w
	} else {
		nh = limit
		nw = w * limit / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst, true
}

func classify(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return "jpeg"
	case strings.Contains(ct, "png"):
		return "png"
	case strings.Contains(ct, "webp"):
		return "webp"
	default:
		return ""
	}
}
