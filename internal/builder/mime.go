package builder

import (
	"mime"
	"strings"

	"github.com/docshelf/docshelf/pkg/manifest"
)

// officeTypes pins the types that vary between system mime tables.
var officeTypes = map[string]string{
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"odt":  "application/vnd.oasis.opendocument.text",
	"ods":  "application/vnd.oasis.opendocument.spreadsheet",
	"rtf":  "application/rtf",
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"txt":  "text/plain",
	"log":  "text/plain",
	"md":   "text/markdown",
	"csv":  "text/csv",
	"json": "application/json",
	"xml":  "application/xml",
	"html": "text/html",
	"htm":  "text/html",
	"yml":  "text/yaml",
	"yaml": "text/yaml",
	"zip":  "application/zip",
}

// readableExtensions are flagged as plain-text-like in the manifest.
var readableExtensions = map[string]bool{
	"txt": true, "md": true, "json": true, "log": true, "csv": true,
	"xml": true, "ini": true, "yml": true, "yaml": true,
}

// DetectMIME returns the MIME type for a lower-cased extension, without
// parameters. Unknown extensions get manifest.DefaultMIME.
func DetectMIME(ext string) string {
	if ext == "" {
		return manifest.DefaultMIME
	}
	if t, ok := officeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension("." + ext); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
		return strings.TrimSpace(strings.SplitN(t, ";", 2)[0])
	}
	return manifest.DefaultMIME
}

// IsReadable reports whether ext is in the plain-text allow-list.
func IsReadable(ext string) bool {
	return readableExtensions[ext]
}
