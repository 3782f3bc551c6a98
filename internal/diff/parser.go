// Package diff parses unified diffs the way git prints them and repairs
// hunk headers whose declared line counts do not match their bodies.
package diff

import (
	"strings"
	"unicode/utf8"
)

// ChangeType classifies how a file is affected by a diff.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// ChangedFile is one file touched by a diff. Path is relative and
// forward-slash separated. OldPath is set only for renames.
type ChangedFile struct {
	Path    string
	Type    ChangeType
	OldPath string
}

// Analysis is the deduplicated set of files a diff touches.
type Analysis struct {
	Files []ChangedFile
}

// Paths returns the final paths of all changed files, in diff order.
func (a *Analysis) Paths() []string {
	paths := make([]string, 0, len(a.Files))
	for _, f := range a.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// fileRecord accumulates state for the file section currently being parsed.
type fileRecord struct {
	oldPath string // pre-image path from the header's first token
	newPath string // post-image path from the header's second token
	typ     ChangeType
	renFrom string
}

// ParseChangedFiles extracts the changed-file list from unified diff text.
//
// Header lines (`diff --git a/x b/x`) open a new file section and flush the
// previous one. Headers whose remainder does not tokenize into two a/-, b/-
// prefixed paths are skipped rather than treated as errors, since agent
// output routinely interleaves prose with diff text.
func ParseChangedFiles(text string) Analysis {
	var records []fileRecord
	var cur *fileRecord

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if rest, ok := strings.CutPrefix(line, "diff --git "); ok {
			if cur != nil {
				records = append(records, *cur)
				cur = nil
			}
			oldPath, newPath, ok := parseHeaderPaths(rest)
			if !ok {
				continue
			}
			cur = &fileRecord{oldPath: oldPath, newPath: newPath, typ: ChangeModified}
			continue
		}

		if cur == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "new file mode"):
			cur.typ = ChangeAdded
		case strings.HasPrefix(line, "deleted file mode"):
			cur.typ = ChangeDeleted
		case strings.HasPrefix(line, "rename from "):
			cur.typ = ChangeRenamed
			cur.renFrom = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			// The post-image path still comes from the header's second
			// token; this marker only confirms the rename.
			cur.typ = ChangeRenamed
		}
	}
	if cur != nil {
		records = append(records, *cur)
	}

	return dedupe(records)
}

// dedupe finalizes records and collapses duplicates by final path.
// A renamed record wins over a non-renamed one and supplies OldPath.
func dedupe(records []fileRecord) Analysis {
	var files []ChangedFile
	index := make(map[string]int)

	for _, rec := range records {
		cf := finalize(rec)
		if i, seen := index[cf.Path]; seen {
			if cf.Type == ChangeRenamed && files[i].Type != ChangeRenamed {
				files[i] = cf
			}
			continue
		}
		index[cf.Path] = len(files)
		files = append(files, cf)
	}

	return Analysis{Files: files}
}

// finalize resolves a record's reported path: the pre-image path for
// deletions, the post-image path otherwise.
func finalize(rec fileRecord) ChangedFile {
	cf := ChangedFile{Type: rec.typ}
	if rec.typ == ChangeDeleted {
		cf.Path = rec.oldPath
	} else {
		cf.Path = rec.newPath
	}
	if rec.typ == ChangeRenamed {
		cf.OldPath = rec.renFrom
		if cf.OldPath == "" {
			cf.OldPath = rec.oldPath
		}
	}
	return cf
}

// parseHeaderPaths tokenizes the remainder of a `diff --git ` line into the
// pre- and post-image paths, stripped of their a/ and b/ prefixes.
func parseHeaderPaths(rest string) (oldPath, newPath string, ok bool) {
	tokens := tokenizePaths(rest)
	if len(tokens) < 2 {
		return "", "", false
	}
	a, okA := strings.CutPrefix(tokens[0], "a/")
	b, okB := strings.CutPrefix(tokens[1], "b/")
	if !okA || !okB {
		return "", "", false
	}
	return a, b, true
}

// tokenizePaths splits a header remainder into path tokens. Unquoted tokens
// split on spaces; quoted tokens follow git's core.quotepath escaping and
// are decoded byte-by-byte.
func tokenizePaths(rest string) []string {
	var tokens []string
	i := 0
	for i < len(rest) {
		if rest[i] == ' ' {
			i++
			continue
		}
		if rest[i] == '"' {
			end := findClosingQuote(rest, i+1)
			if end < 0 {
				// Unterminated quote; treat the remainder as one token.
				tokens = append(tokens, unquoteGitPath(rest[i+1:]))
				break
			}
			tokens = append(tokens, unquoteGitPath(rest[i+1:end]))
			i = end + 1
			continue
		}
		next := strings.IndexByte(rest[i:], ' ')
		if next < 0 {
			tokens = append(tokens, rest[i:])
			break
		}
		tokens = append(tokens, rest[i:i+next])
		i += next
	}
	return tokens
}

// findClosingQuote returns the index of the closing double quote at or after
// start, skipping backslash-escaped characters. Returns -1 if none.
func findClosingQuote(s string, start int) int {
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

// unquoteGitPath decodes the interior of a git-quoted path. Octal escapes
// (\NNN, 1-3 digits) decode to one byte; the usual single-character escapes
// decode to their control byte; any other escaped character stands for
// itself. The accumulated bytes are interpreted as UTF-8.
func unquoteGitPath(quoted string) string {
	buf := make([]byte, 0, len(quoted))
	runes := []rune(quoted)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' || i+1 >= len(runes) {
			buf = utf8.AppendRune(buf, r)
			continue
		}
		i++
		next := runes[i]
		if next >= '0' && next <= '7' {
			val := int(next - '0')
			for digits := 1; digits < 3 && i+1 < len(runes); digits++ {
				d := runes[i+1]
				if d < '0' || d > '7' {
					break
				}
				i++
				val = val*8 + int(d-'0')
			}
			buf = append(buf, byte(val))
			continue
		}
		switch next {
		case 'n':
			buf = append(buf, '\n')
		case 't':
			buf = append(buf, '\t')
		case 'r':
			buf = append(buf, '\r')
		case 'b':
			buf = append(buf, '\b')
		case 'f':
			buf = append(buf, '\f')
		case 'v':
			buf = append(buf, '\v')
		case '\\':
			buf = append(buf, '\\')
		case '"':
			buf = append(buf, '"')
		default:
			buf = utf8.AppendRune(buf, next)
		}
	}
	return string(buf)
}
