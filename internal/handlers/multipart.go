package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"product-catalog-backend/internal/models"
)

// maxMultipartMemory is the part of a form kept in memory; the rest spills to disk.
const maxMultipartMemory = 32 << 20

// imageFieldNames are tried in order; the first one carrying files wins.
var imageFieldNames = []string{"images", "image", "files", "file", "photos", "photo"}

type formError struct {
	message  string
	tooLarge bool
}

func (e *formError) Error() string { return e.message }

// readImages loads the uploaded files of a multipart request in form order.
// The body is cut off after maxBody bytes when maxBody is positive. Files that
// cannot be read are reported and skipped. Per-file size and media type are
// left to pipeline validation.
func readImages(c *gin.Context, maxBody int64) ([]models.UploadedImage, []models.UploadErrorInfo, error) {
	if maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	}
	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, nil, &formError{
			message:  fmt.Sprintf("failed to parse multipart form: %v", err),
			tooLarge: bodyTooLarge(err),
		}
	}
	form := c.Request.MultipartForm
	if form == nil {
		return nil, nil, &formError{message: "multipart form is nil"}
	}

	var files []*multipart.FileHeader
	for _, name := range imageFieldNames {
		if f := form.File[name]; len(f) > 0 {
			files = f
			break
		}
	}
	if len(files) == 0 {
		available := make([]string, 0, len(form.File))
		for name := range form.File {
			available = append(available, name)
		}
		return nil, nil, &formError{
			message: fmt.Sprintf("please provide files with one of these field names: %v. Available fields in request: %v", imageFieldNames, available),
		}
	}

	images := make([]models.UploadedImage, 0, len(files))
	var dropped []models.UploadErrorInfo
	for _, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			dropped = append(dropped, models.UploadErrorInfo{
				Filename: fh.Filename,
				Error:    err.Error(),
				Stage:    "file_read",
			})
			continue
		}
		images = append(images, models.UploadedImage{
			Data:        data,
			ContentType: contentTypeOf(fh, data),
			Size:        fh.Size,
			Filename:    fh.Filename,
			Position:    len(images),
		})
	}

	return images, dropped, nil
}

// bodyTooLarge reports whether err came from the MaxBytesReader limit. Some
// multipart read paths drop the wrapped error, so the message is checked too.
func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

// writeFormError answers a request whose multipart form could not be used.
func writeFormError(c *gin.Context, err error) {
	var ferr *formError
	if errors.As(err, &ferr) && ferr.tooLarge {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Error:   "request too large",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "no files uploaded",
		Message: err.Error(),
	})
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	return data, nil
}

// heifTypes covers extensions many mime tables do not know.
var heifTypes = map[string]string{".heic": "image/heic", ".heif": "image/heif"}

// contentTypeOf trusts the part header unless it is missing or generic, then
// falls back to the file extension and finally to content sniffing.
func contentTypeOf(fh *multipart.FileHeader, data []byte) string {
	ct := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if heif, ok := heifTypes[ext]; ok {
		return heif
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}
