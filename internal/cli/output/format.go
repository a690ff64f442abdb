package output

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	printer    = message.NewPrinter(language.English)
	titleCaser = cases.Title(language.English)
)

// FormatHeader returns a markdown heading.
func FormatHeader(level int, text string) string {
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a markdown key/value bullet.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s:** %s", key, value)
}

// FormatCodeBlock returns a fenced markdown code block.
func FormatCodeBlock(lang, code string) string {
	return "```" + lang + "\n" + strings.TrimRight(code, "\n") + "\n```"
}

// FormatNumber formats v with six significant digits and digit grouping.
// Very small and very large magnitudes use exponent notation.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return strconv.FormatFloat(v, 'g', -1, 64)
	case v == 0:
		return "0"
	}
	if a := math.Abs(v); a < 1e-3 || a >= 1e9 {
		return strconv.FormatFloat(v, 'g', 6, 64)
	}
	return printer.Sprint(number.Decimal(v, number.Precision(6)))
}

// Title capitalizes each word, as in "Derived" or "Bound Midpoint".
func Title(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}
