package diff

import "strings"

// AdditionsByFile returns the added lines of a patch grouped by the
// post-image path they are meant to land in. Deleted post-images
// (`+++ /dev/null`) are skipped.
func AdditionsByFile(text string) map[string][]string {
	adds := make(map[string][]string)
	cur := ""

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if strings.HasPrefix(line, "diff --git ") {
			cur = ""
			continue
		}
		if rest, ok := strings.CutPrefix(line, "+++ "); ok {
			cur = ""
			rest = strings.TrimSpace(rest)
			if rest == "/dev/null" {
				continue
			}
			tokens := tokenizePaths(rest)
			if len(tokens) == 0 {
				continue
			}
			cur = strings.TrimPrefix(tokens[0], "b/")
			continue
		}
		if cur == "" || !strings.HasPrefix(line, "+") {
			continue
		}
		adds[cur] = append(adds[cur], line[1:])
	}
	return adds
}
