package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for statement ingestion.
// The remote analyzer only handles scanned PDF statements.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
