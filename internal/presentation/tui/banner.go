package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Parley ASCII banner, colored when the terminal supports it.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	lines := []struct{ text, color string }{
		{"  ____            _            ", "#818cf8"},
		{" |  _ \\ __ _ _ __| | ___ _   _ ", "#a78bfa"},
		{" | |_) / _` | '__| |/ _ \\ | | |", "#c084fc"},
		{" |  __/ (_| | |  | |  __/ |_| |", "#e879f9"},
		{" |_|   \\__,_|_|  |_|\\___|\\__, |", "#f472b6"},
		{"                         |___/ ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
