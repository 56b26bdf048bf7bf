package numbering

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder tokens recognized in sequence format patterns.
// Both conventions exist in stored tenant data: the master-data series
// (customers, suppliers, partners, prospects) historically use the bare
// %NUMBER token, document series use the braced {number} form.
const (
	bareToken   = "%NUMBER"
	bracedToken = "{number}"
)

// paddedTokenWidths maps the known bare-token patterns to their fixed
// zero-padding width. These are the master-data series defaults; any other
// pattern carrying %NUMBER renders the raw integer.
var paddedTokenWidths = map[string]int{
	"KD-%NUMBER": 3,
	"LF-%NUMBER": 3,
	"PN-%NUMBER": 3,
	"IN-%NUMBER": 3,
}

// bracedWidthRe matches a braced placeholder with an explicit width,
// e.g. {number:5}
var bracedWidthRe = regexp.MustCompile(`\{number:(\d+)\}`)

// trailingDigitsRe is the extraction fallback for unrecognized patterns
var trailingDigitsRe = regexp.MustCompile(`(\d+)$`)

// FormatNumber renders a raw sequence number under a tenant-configured
// pattern. It is total: an unrecognized pattern falls back to plain
// concatenation instead of failing, so no stored format can break rendering.
func FormatNumber(number int64, pattern string) string {
	if width, ok := paddedTokenWidths[pattern]; ok {
		return strings.Replace(pattern, bareToken, fmt.Sprintf("%0*d", width, number), 1)
	}
	if strings.Contains(pattern, bareToken) {
		return strings.Replace(pattern, bareToken, strconv.FormatInt(number, 10), 1)
	}
	if m := bracedWidthRe.FindStringSubmatch(pattern); m != nil {
		width, _ := strconv.Atoi(m[1])
		return strings.Replace(pattern, m[0], fmt.Sprintf("%0*d", width, number), 1)
	}
	if strings.Contains(pattern, bracedToken) {
		return strings.Replace(pattern, bracedToken, strconv.FormatInt(number, 10), 1)
	}
	// Last resort for patterns without any recognized placeholder
	return pattern + strconv.FormatInt(number, 10)
}

// ExtractNumber recovers the raw sequence number from an already formatted
// document number. It is the inverse of FormatNumber and is used when
// reconciling counters against numbers embedded in persisted documents.
// The second return value is false when the display string does not match
// the pattern and carries no trailing digits.
func ExtractNumber(display, pattern string) (int64, bool) {
	if re, ok := patternRegexp(pattern); ok {
		if m := re.FindStringSubmatch(display); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return n, true
			}
		}
	}
	// Patterns drift over time; numbers issued under an older format still
	// count for reconciliation, so fall back to the trailing digit run.
	if m := trailingDigitsRe.FindStringSubmatch(display); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// patternRegexp builds a full-match expression with a capture group in
// place of the pattern's placeholder token
func patternRegexp(pattern string) (*regexp.Regexp, bool) {
	token := ""
	switch {
	case strings.Contains(pattern, bareToken):
		token = bareToken
	case bracedWidthRe.MatchString(pattern):
		token = bracedWidthRe.FindString(pattern)
	case strings.Contains(pattern, bracedToken):
		token = bracedToken
	default:
		return nil, false
	}

	prefix, suffix, _ := strings.Cut(pattern, token)
	re, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + `(\d+)` + regexp.QuoteMeta(suffix) + "$")
	if err != nil {
		return nil, false
	}
	return re, true
}
