// Package util provides small cross-cutting helpers.
package util

import "strings"

// NormalizePath converts a path to forward slashes and strips trailing
// slashes, so paths from git and from the filesystem compare equal.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.TrimRight(path, "/")
}

// IsRootPath reports whether path means the current/root directory.
func IsRootPath(path string) bool {
	normalized := NormalizePath(path)
	return normalized == "" || normalized == "."
}

// maxTaskIDLen caps sanitized task identifiers used as filesystem segments.
const maxTaskIDLen = 64

// SanitizeTaskID restricts a task identifier to a filesystem-safe segment:
// ASCII letters, digits, '.', '_' and '-', capped at 64 bytes. Anything
// else maps to '-'. Empty input yields "task".
func SanitizeTaskID(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id) && len(out) < maxTaskIDLen; i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		case c == '.' || c == '_' || c == '-':
			out = append(out, c)
		default:
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "task"
	}
	return string(out)
}
