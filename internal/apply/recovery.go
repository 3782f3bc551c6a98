package apply

import (
	"fmt"
	"strings"
	"time"
)

// recoveryDocument renders the human-readable instructions persisted next
// to a patch that could not be applied automatically. It embeds the raw
// diagnostics of every failed attempt so nothing is lost for a manual
// merge.
func recoveryDocument(taskID, patchPath string, testPaths []string, attempts []attempt) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Recovery instructions for task %s\n\n", taskID)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("The generated test patch could not be applied automatically.\n")
	fmt.Fprintf(&b, "The patch was saved to:\n\n    %s\n\n", patchPath)

	b.WriteString("## Test files in this patch\n\n")
	for _, p := range testPaths {
		fmt.Fprintf(&b, "- %s\n", p)
	}

	b.WriteString("\n## How to apply manually\n\n")
	fmt.Fprintf(&b, "    git apply --ignore-whitespace %q\n\n", patchPath)
	b.WriteString("If that fails, open the patch and merge the hunks by hand;\n")
	b.WriteString("the diagnostics below show why each automatic attempt failed.\n")

	b.WriteString("\n## Apply diagnostics\n")
	for _, a := range attempts {
		fmt.Fprintf(&b, "\n### %s\n\n", a.name)
		out := strings.TrimSpace(a.output)
		if out == "" {
			out = "(no output)"
		}
		b.WriteString("```\n")
		b.WriteString(out)
		b.WriteString("\n```\n")
	}

	return b.String()
}
