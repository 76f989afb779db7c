package storage

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType returns providedType when set, otherwise the type for
// the key's extension, otherwise a sniff of head. Falls back to
// application/octet-stream.
func DetectContentType(providedType, key string, head []byte) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(key))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if len(head) > 0 {
		return http.DetectContentType(head)
	}

	return "application/octet-stream"
}

// chartImageTypes are the upload formats the analyzer accepts.
var chartImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// IsChartImageType reports whether contentType is an accepted chart format.
// Parameters such as charset are ignored.
func IsChartImageType(contentType string) bool {
	return chartImageTypes[baseType(contentType)]
}

func baseType(contentType string) string {
	t, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(t))
}
