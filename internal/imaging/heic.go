package imaging

import (
	"bytes"
	"encoding/binary"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/jdeng/goheif"

	"product-catalog-backend/internal/models"
)

// HEICQuality is the JPEG quality used for converted HEIC photos.
const HEICQuality = 90

var exifHeader = []byte("Exif\x00\x00")

// IsHEIC reports whether an upload is a HEIC/HEIF photo, judged by its media
// type or, failing that, its file extension.
func IsHEIC(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "image/heic") || strings.HasPrefix(ct, "image/heif") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".heic", ".heif":
		return true
	}
	return false
}

// Convert turns a HEIC/HEIF upload into a JPEG so it can be stored and shown
// by any client. The EXIF block is carried over, which keeps the capture time
// and orientation readable. Other images, and HEIC data that cannot be
// decoded, are returned unchanged.
func (n *Normalizer) Convert(img models.UploadedImage) models.UploadedImage {
	if !IsHEIC(img.ContentType, img.Filename) {
		return img
	}
	logger := log.WithFields(log.Fields{"component": "imaging", "filename": img.Filename})

	decoded, err := goheif.Decode(bytes.NewReader(img.Data))
	if err != nil {
		logger.WithError(err).Warn("keeping HEIC image that could not be decoded")
		return img
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, decoded, &jpeg.Options{Quality: HEICQuality}); err != nil {
		logger.WithError(err).Warn("failed to encode converted HEIC image")
		return img
	}

	out := buf.Bytes()
	if raw, err := goheif.ExtractExif(bytes.NewReader(img.Data)); err == nil {
		out = WithExif(out, raw)
	}

	logger.WithFields(log.Fields{
		"original":  len(img.Data),
		"converted": len(out),
	}).Debug("converted HEIC to JPEG")

	img.Data = out
	img.Size = int64(len(out))
	img.ContentType = "image/jpeg"
	img.Filename = strings.TrimSuffix(img.Filename, filepath.Ext(img.Filename)) + ".jpg"
	return img
}

// WithExif inserts an EXIF block as an APP1 segment right after the JPEG start
// marker. Blocks too large for one segment, and data that is not a JPEG, are
// left alone.
func WithExif(jpegData, raw []byte) []byte {
	if len(jpegData) < 2 || jpegData[0] != 0xFF || jpegData[1] != 0xD8 || len(raw) == 0 {
		return jpegData
	}

	if i := bytes.Index(raw, exifHeader); i >= 0 && i < 16 {
		raw = raw[i:]
	} else {
		raw = append(append([]byte{}, exifHeader...), raw...)
	}
	if len(raw)+2 > 0xFFFF {
		return jpegData
	}

	out := make([]byte, 0, len(jpegData)+len(raw)+4)
	out = append(out, 0xFF, 0xD8, 0xFF, 0xE1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(raw)+2))
	out = append(out, raw...)
	return append(out, jpegData[2:]...)
}
