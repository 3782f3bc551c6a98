package diff

import (
	"fmt"
	"regexp"
	"strings"
)

// hunkHeaderRe matches `@@ -oldStart[,oldCount] +newStart[,newCount] @@`.
// An omitted count means 1.
var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// NormalizeHunkCounts recomputes the declared old/new line counts of every
// hunk header from the hunk's actual body and rewrites the ones that
// disagree. Start offsets and the trailing section heading are left alone.
//
// Agent-generated patches frequently carry correct bodies under hallucinated
// counts, which makes `git apply` reject an otherwise valid patch.
func NormalizeHunkCounts(patch string) (string, bool) {
	lines := strings.Split(patch, "\n")
	changed := false

	for i := 0; i < len(lines); i++ {
		m := hunkHeaderRe.FindStringSubmatch(strings.TrimSuffix(lines[i], "\r"))
		if m == nil {
			continue
		}

		oldCount, newCount := tallyHunkBody(lines, i+1)

		if parseCount(m[2]) == oldCount && parseCount(m[4]) == newCount {
			continue
		}

		// Only the differing side is rewritten; a correct count keeps its
		// original spelling, including an implicit count of one.
		oldSpec := m[1]
		if m[2] != "" {
			oldSpec += "," + m[2]
		}
		if parseCount(m[2]) != oldCount {
			oldSpec = fmt.Sprintf("%s,%d", m[1], oldCount)
		}
		newSpec := m[3]
		if m[4] != "" {
			newSpec += "," + m[4]
		}
		if parseCount(m[4]) != newCount {
			newSpec = fmt.Sprintf("%s,%d", m[3], newCount)
		}

		cr := ""
		if strings.HasSuffix(lines[i], "\r") {
			cr = "\r"
		}
		lines[i] = fmt.Sprintf("@@ -%s +%s @@%s%s", oldSpec, newSpec, m[5], cr)
		changed = true
	}

	return strings.Join(lines, "\n"), changed
}

// tallyHunkBody counts the actual old and new lines of the hunk body that
// starts at index start, stopping at the next hunk header, file header, or
// end of text. Only prefixed body lines are counted; anything else (blank
// lines, "\ No newline" markers, stray prose) belongs to neither side.
func tallyHunkBody(lines []string, start int) (oldCount, newCount int) {
	for i := start; i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")
		if isHunkBoundary(lines, i) {
			break
		}
		switch {
		case strings.HasPrefix(line, " "):
			oldCount++
			newCount++
		case strings.HasPrefix(line, "+"):
			newCount++
		case strings.HasPrefix(line, "-"):
			oldCount++
		}
	}
	return oldCount, newCount
}

// isHunkBoundary reports whether lines[i] terminates the current hunk body:
// another hunk header, a `diff` file header, or an old-file header
// immediately followed by a new-file header.
func isHunkBoundary(lines []string, i int) bool {
	line := strings.TrimSuffix(lines[i], "\r")
	if strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "diff ") {
		return true
	}
	if strings.HasPrefix(line, "--- ") && i+1 < len(lines) {
		return strings.HasPrefix(strings.TrimSuffix(lines[i+1], "\r"), "+++ ")
	}
	return false
}

func parseCount(s string) int {
	if s == "" {
		return 1
	}
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

// CanonicalTrailingNewline collapses any number of trailing newlines (or
// none) to exactly one. Persisted patches always end this way.
func CanonicalTrailingNewline(text string) string {
	return strings.TrimRight(text, "\n") + "\n"
}
