package schema

import (
	"regexp"
	"strconv"

	"golang.org/x/text/width"
)

// NumericSuffix is appended to a source field name to form its companion
// column name.
const NumericSuffix = "_numeric"

var firstIntRe = regexp.MustCompile(`[0-9]+`)

// ExtractInt returns the first integer token found in s, e.g.
// "300Mbps" -> 300 and "¥15/月" -> 15.
//
// The capture corpus is zh-CN text, so full-width digits ("３００") are
// folded to ASCII before matching. ExtractInt is total: any input yields
// either a value or ok=false, never an error, and the companion column
// degrades to null when ok=false.
func ExtractInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	folded := width.Narrow.String(s)
	tok := firstIntRe.FindString(folded)
	if tok == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		// Digit run longer than int64; treat as not extractable.
		return 0, false
	}
	return n, true
}
