package blob

import (
	"regexp"
	"unicode/utf8"
)

// S3 caps keys at 1024 bytes
const maxKeyLength = 1024

// leading slashes, backslashes or ".." anywhere
var forbiddenKeyPattern = regexp.MustCompile(`^/+|\\+|\.\.`)

// ValidateKey reports whether key is safe on every backend, both as an S3 key
// and as a path below the fs backend's root. Keys the upload service writes
// look like "session:<session id>:<chunk index>" for staged chunks and
// "objects/<bucket>/<digest prefix>/<object id>" for assembled objects.
func ValidateKey(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLength {
		return false
	}
	if key == "." || key == ".." || forbiddenKeyPattern.MatchString(key) {
		return false
	}
	return utf8.ValidString(key)
}
