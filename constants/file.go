package constants

import (
	"net/http"
	"strings"
)

// SourceTypes holds the supported source types for pipeline input.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// SupportedMIMETypes maps accepted MIME types to their source type.
var SupportedMIMETypes = map[string]string{
	"application/pdf": PDF,
	"image/png":       IMAGE,
	"image/jpeg":      IMAGE,
	"image/tiff":      IMAGE,
}

// AllowedExtensions holds the file extensions accepted for directory ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// MapMIMEToSourceType returns PDF or IMAGE for a supported MIME type,
// or "" when the encoding is not supported.
func MapMIMEToSourceType(mime string) string {
	// strip parameters like "; charset=..."
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return SupportedMIMETypes[strings.ToLower(strings.TrimSpace(mime))]
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// DetectMIME sniffs the content type from the payload, falling back to the
// normalized file extension for formats the sniffer does not know (TIFF in
// particular).
func DetectMIME(raw []byte, ext string) string {
	ct := http.DetectContentType(raw)
	if ct != "application/octet-stream" {
		return ct
	}
	switch NormalizeExt(ext) {
	case "tif", "tiff":
		return "image/tiff"
	case "pdf":
		return "application/pdf"
	default:
		return ct
	}
}
