package images

import (
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/johnrirwin/skinlens/internal/models"
)

// FromFile reads a photo from disk. The declared type comes from the file extension and
// falls back to content sniffing when the extension is unknown.
func FromFile(path string) (models.SelectedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SelectedImage{}, fmt.Errorf("read image: %w", err)
	}

	declared := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return FromBytes(filepath.Base(path), declared, data), nil
}

// FromUpload stages a multipart upload whose body has already been read into data.
func FromUpload(header *multipart.FileHeader, data []byte) models.SelectedImage {
	if header == nil {
		return FromBytes("", "", data)
	}
	return FromBytes(header.Filename, header.Header.Get("Content-Type"), data)
}

// FromBytes wraps raw bytes as a staged image. An empty or generic declared type is
// replaced by the sniffed one.
func FromBytes(filename, declaredType string, data []byte) models.SelectedImage {
	contentType := normalizeContentType(declaredType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = DetectContentType(data)
	}

	return models.SelectedImage{
		Filename: filename,
		MIMEType: contentType,
		Size:     int64(len(data)),
		Data:     data,
	}
}

// Validate enforces the staging rules: size cap first, then an image/* declared type.
func Validate(img models.SelectedImage, maxBytes int64) error {
	if maxBytes > 0 && img.Size > maxBytes {
		return models.FileTooLargeError(maxBytes)
	}
	if !IsImageType(img.MIMEType) {
		return models.NewAnalysisError(models.ErrorInvalidType, models.ErrInvalidType.Message, nil)
	}
	return nil
}

// IsImageType reports whether a declared MIME type is an image type.
func IsImageType(contentType string) bool {
	return strings.HasPrefix(normalizeContentType(contentType), "image/")
}

// PreviewDataURL renders the staged image as a data URL a browser can display directly.
func PreviewDataURL(img models.SelectedImage) string {
	if len(img.Data) == 0 {
		return ""
	}
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// DetectContentType sniffs the content type of raw bytes.
func DetectContentType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return normalizeContentType(http.DetectContentType(data))
}

func normalizeContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	return contentType
}
