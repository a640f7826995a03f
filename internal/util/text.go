package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "…"

// PadRight fits str to exactly width terminal cells, truncating with an
// ellipsis when it is too wide.
func PadRight(str string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(str) > width {
		str = runewidth.Truncate(str, width, ellipsis)
	}
	return runewidth.FillRight(str, width)
}

// FitLine is PadRight without the ellipsis, for lines redrawn in place.
func FitLine(str string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.FillRight(runewidth.Truncate(str, width, ""), width)
}

// ShortenPath keeps the tail of a slash separated path within width cells,
// dropping leading segments first.
func ShortenPath(p string, width int) string {
	if width <= 0 || runewidth.StringWidth(p) <= width {
		return p
	}
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		tail := ellipsis + "/" + strings.Join(parts[i:], "/")
		if runewidth.StringWidth(tail) <= width {
			return tail
		}
	}
	// last segment alone is too wide; keep its end
	name := []rune(parts[len(parts)-1])
	for len(name) > 0 && runewidth.StringWidth(ellipsis+string(name)) > width {
		name = name[1:]
	}
	return ellipsis + string(name)
}
