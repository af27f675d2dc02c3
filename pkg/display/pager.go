package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/AliciaSchep/pginspect/pkg/db"
)

// Pager hands long output to an external viewer, falling back to writing
// it straight to Out when the viewer is missing.
type Pager struct {
	// Command and Args start the viewer; content is fed on stdin.
	Command string
	Args    []string
	Out     io.Writer
	ErrOut  io.Writer
}

// NewLessPager returns a pager that runs `less -S -R` on the terminal.
func NewLessPager() *Pager {
	return &Pager{
		Command: "less",
		Args:    []string{"-S", "-R"},
		Out:     os.Stdout,
		ErrOut:  os.Stderr,
	}
}

// Available reports whether the viewer command can be found.
func (p *Pager) Available() bool {
	_, err := exec.LookPath(p.Command)
	return err == nil
}

// Page shows content in the viewer. Cancelling ctx kills the viewer and
// returns ctx.Err().
func (p *Pager) Page(ctx context.Context, title, content string) error {
	if !p.Available() {
		fmt.Fprintf(p.Out, "⚠️  '%s' command not found, displaying all content:\n", p.Command)
		fmt.Fprint(p.Out, content)
		return nil
	}

	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = p.Out
	cmd.Stderr = p.ErrOut

	fmt.Fprintf(p.Out, "📖 Opening %s in %s (press 'q' to exit)...\n", title, p.Command)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error running %s: %w", p.Command, err)
	}
	return nil
}

// PageResult renders result at the given width and pages it.
func (p *Pager) PageResult(ctx context.Context, result *db.QueryResult, title string, width int) error {
	if result.Len() == 0 {
		fmt.Fprintln(p.Out, "No data to browse.")
		return nil
	}
	return p.Page(ctx, title, GenerateFullTableContent(result, title, width))
}

// GenerateFullTableContent creates complete formatted table content for paging
func GenerateFullTableContent(result *db.QueryResult, title string, width int) string {
	var content strings.Builder

	fmt.Fprintf(&content, "📊 %s\n", title)
	content.WriteString(strings.Repeat("=", textWidth(title)+4) + "\n\n")

	if result.Len() == 0 {
		content.WriteString("No data to display.\n")
		return content.String()
	}

	RenderResult(&content, result, width)

	fmt.Fprintf(&content, "\nTotal rows: %d\n", result.Len())
	return content.String()
}

// ShouldPage reports whether lines of output overflow a screen of height
// rows, leaving room for the prompt and status line.
func ShouldPage(lines, height int) bool {
	return lines > height-3
}
