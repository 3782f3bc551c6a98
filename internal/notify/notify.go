// Package notify is the user-facing notification surface for warnings and
// progress information.
package notify

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Notifier prints user-facing messages. Output is styled only when writing
// to a terminal and NO_COLOR is unset.
type Notifier struct {
	out    io.Writer
	styled bool
}

// New returns a Notifier writing to stderr.
func New() *Notifier {
	styled := term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == ""
	return &Notifier{out: os.Stderr, styled: styled}
}

// NewWriter returns a Notifier writing unstyled output to w. Used in tests
// and when output is redirected.
func NewWriter(w io.Writer) *Notifier {
	return &Notifier{out: w}
}

// Warnf prints a warning.
func (n *Notifier) Warnf(format string, args ...any) {
	n.print(warnStyle, "⚠", format, args...)
}

// Errorf prints an error message.
func (n *Notifier) Errorf(format string, args ...any) {
	n.print(errStyle, "✗", format, args...)
}

// Infof prints an informational message.
func (n *Notifier) Infof(format string, args ...any) {
	n.print(okStyle, "•", format, args...)
}

func (n *Notifier) print(style lipgloss.Style, mark, format string, args ...any) {
	if n == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if n.styled {
		fmt.Fprintf(n.out, "%s %s\n", style.Render(mark), msg)
		return
	}
	fmt.Fprintf(n.out, "%s %s\n", mark, msg)
}
