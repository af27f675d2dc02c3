package errors

import (
	"fmt"
	"io"
)

// UserError formats user-facing error messages consistently
func UserError(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "❌ %s\n", fmt.Sprintf(format, args...))
}

// UserWarning formats user-facing warning messages consistently
func UserWarning(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "⚠️  %s\n", fmt.Sprintf(format, args...))
}

// UserInfo formats user-facing info messages consistently
func UserInfo(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "ℹ️  %s\n", fmt.Sprintf(format, args...))
}

// ActionFailed prints the status line for a failed action. Read-only
// rejections and statement errors are inline notices; connection problems
// get a hint that the action can be re-issued.
func ActionFailed(w io.Writer, err error) {
	switch {
	case Is(err, ErrConnection):
		UserError(w, "%s (re-run the command to retry)", Status(err))
	case Is(err, ErrNotInitialized):
		UserError(w, "internal error: %s", Message(err))
	default:
		_, _ = fmt.Fprintln(w, Status(err))
	}
}
