package metadata

import (
	"fmt"
	"regexp"
)

const maxNameLength = 255

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	dotRuns     = regexp.MustCompile(`\.{2,}`)
)

// SanitizeFileName maps a user supplied name to a single safe path segment.
func SanitizeFileName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = dotRuns.ReplaceAllString(s, ".")
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	return s
}

// StorageKey is the blob path of a file inside its owner's namespace.
func StorageKey(ownerID, fileID, fileName string) string {
	return fmt.Sprintf("owners/%s/uploads/%s-%s", SanitizeFileName(ownerID), fileID, SanitizeFileName(fileName))
}
