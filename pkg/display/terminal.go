package display

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Fallback dimensions used when the output is not a terminal.
const (
	DefaultWidth  = 80
	DefaultHeight = 24
)

// TerminalSize returns the width and height of w when it is a terminal,
// and (80, 24) otherwise.
func TerminalSize(w io.Writer) (width, height int) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return DefaultWidth, DefaultHeight
	}
	width, height, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 || height <= 0 {
		return DefaultWidth, DefaultHeight
	}
	return width, height
}

// IsInteractive reports whether both stdin and w are terminals, which is
// when handing output to less makes sense.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}
