package output

import (
	"io"

	"github.com/mattn/go-isatty"
)

// redrawable reports whether w is a terminal whose lines the live view may
// rewrite in place.
func redrawable(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// colorEnv decides on color from the environment. NO_COLOR beats
// FORCE_COLOR, and a dumb or unset TERM disables color.
func colorEnv(getenv func(string) string) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case getenv("FORCE_COLOR") != "":
		return true
	}
	term := getenv("TERM")
	return term != "" && term != "dumb"
}
