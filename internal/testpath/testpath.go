// Package testpath decides which changed paths belong to test code.
package testpath

import (
	"path"
	"strings"
)

// Classifier partitions candidate paths, returning the test-like ones in
// their original order. It must be a pure function of its input.
type Classifier func(paths []string) []string

// testDirSegments are directory names that mark everything below them as
// test code.
var testDirSegments = map[string]bool{
	"test":      true,
	"tests":     true,
	"__tests__": true,
	"spec":      true,
	"specs":     true,
	"testing":   true,
}

// Classify is the default policy. A path is test-like when its file name
// carries a recognized test naming convention or any directory segment is a
// conventional test directory.
func Classify(paths []string) []string {
	var out []string
	for _, p := range paths {
		if IsTestPath(p) {
			out = append(out, p)
		}
	}
	return out
}

// IsTestPath reports whether a single path looks like test code.
func IsTestPath(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	segments := strings.Split(p, "/")
	for _, seg := range segments[:max(len(segments)-1, 0)] {
		if testDirSegments[strings.ToLower(seg)] {
			return true
		}
	}

	base := strings.ToLower(path.Base(p))
	switch {
	case strings.Contains(base, ".test."), strings.Contains(base, ".spec."):
		return true
	case strings.HasSuffix(base, "_test.go"):
		return true
	case strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"):
		return true
	case strings.HasSuffix(base, "_test.py"), strings.HasSuffix(base, "_spec.rb"):
		return true
	}
	return false
}

// New builds a classifier that extends the default policy with configured
// include and exclude globs. Globs match against the full slash-separated
// path and against the base name. Excludes win over everything else.
func New(include, exclude []string) Classifier {
	return func(paths []string) []string {
		var out []string
		for _, p := range paths {
			norm := strings.ReplaceAll(p, "\\", "/")
			if matchAny(exclude, norm) {
				continue
			}
			if IsTestPath(norm) || matchAny(include, norm) {
				out = append(out, p)
			}
		}
		return out
	}
}

func matchAny(globs []string, p string) bool {
	for _, g := range globs {
		if ok, err := path.Match(g, p); err == nil && ok {
			return true
		}
		if ok, err := path.Match(g, path.Base(p)); err == nil && ok {
			return true
		}
	}
	return false
}
