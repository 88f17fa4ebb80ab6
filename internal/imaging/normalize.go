package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"

	"product-catalog-backend/internal/models"
)

const (
	DefaultMaxDimension = 1600
	DefaultQuality      = 85
)

// Normalizer prepares photos for the vision model: it applies the EXIF
// orientation and bounds the long edge. Stored originals are never touched.
type Normalizer struct {
	MaxDimension int
	Quality      int
}

func NewNormalizer() *Normalizer {
	return &Normalizer{MaxDimension: DefaultMaxDimension, Quality: DefaultQuality}
}

// Normalize returns img re-encoded as an upright, downscaled JPEG. Anything
// that is not a decodable JPEG is returned unchanged.
func (n *Normalizer) Normalize(img models.UploadedImage) models.UploadedImage {
	if !isJPEG(img.ContentType) {
		return img
	}

	decoded, err := jpeg.Decode(bytes.NewReader(img.Data))
	if err != nil {
		log.WithFields(log.Fields{"component": "imaging", "filename": img.Filename}).
			WithError(err).Debug("passing undecodable image through")
		return img
	}

	orientation := Orientation(img.Data)
	bounds := decoded.Bounds()
	if orientation == 1 && bounds.Dx() <= n.MaxDimension && bounds.Dy() <= n.MaxDimension {
		return img
	}

	out := Scale(Orient(decoded, orientation), n.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: n.Quality}); err != nil {
		log.WithField("component", "imaging").WithError(err).Warn("failed to encode normalized image")
		return img
	}

	log.WithFields(log.Fields{
		"component":   "imaging",
		"filename":    img.Filename,
		"orientation": orientation,
		"original":    len(img.Data),
		"normalized":  buf.Len(),
	}).Debugf("normalized %dx%d -> %dx%d", bounds.Dx(), bounds.Dy(), out.Bounds().Dx(), out.Bounds().Dy())

	img.Data = buf.Bytes()
	img.Size = int64(buf.Len())
	img.ContentType = "image/jpeg"
	return img
}

// TakenAt reads EXIF DateTimeOriginal. It returns nil when the image carries
// no usable timestamp.
func (n *Normalizer) TakenAt(data []byte) *time.Time {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

// Orientation returns the EXIF orientation tag of data, or 1 when absent.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
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

// Orient applies an EXIF orientation to img so the result displays upright.
func Orient(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dstW, dstH := w, h
	if orientation >= 5 {
		dstW, dstH = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	return dst
}

// Scale fits img within maxDim on both edges, keeping the aspect ratio.
func Scale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	var newW, newH int
	if w >= h {
		newW = maxDim
		newH = max(1, h*maxDim/w)
	} else {
		newH = maxDim
		newW = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func isJPEG(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "image/jpeg") || strings.HasPrefix(ct, "image/jpg")
}
