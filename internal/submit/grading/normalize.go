package grading

import "strings"

// Comparison modes.
const (
	ComparisonLenient = "lenient"
	ComparisonStrict  = "strict"
)

var lenientReplacer = strings.NewReplacer(
	"[", "",
	"]", "",
	`"`, "",
	"'", "",
	",", " ",
)

// Normalize canonicalizes program output for lenient comparison: brackets
// and quotes are dropped, commas count as whitespace, whitespace runs
// collapse to one space, and the result is trimmed and lower-cased.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = lenientReplacer.Replace(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NormalizeStrict only removes trailing whitespace on each line and trailing
// blank lines, and unifies CRLF line endings.
func NormalizeStrict(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// NormalizerFor returns the normalizer for a comparison mode; unknown modes are lenient.
func NormalizerFor(mode string) func(string) string {
	if strings.EqualFold(strings.TrimSpace(mode), ComparisonStrict) {
		return NormalizeStrict
	}
	return Normalize
}
