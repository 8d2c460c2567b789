package amazon

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minBulletLength      = 15
	maxBulletLength      = 1000
	minDescriptionLength = 20
	// maxPriceLength matches the listings.price column.
	maxPriceLength = 50
)

var (
	// cssBlockRegexp matches an innermost {...} block with its selector or
	// at-rule prelude, e.g. ".aplus-module{color:red}" or "@media (...) { }".
	cssBlockRegexp = regexp.MustCompile(`(?:@[\w-]+[^{}]*|[^\s{}]*)\s*\{[^{}]*\}`)
	// tagRegexp matches markup that survived as literal text.
	tagRegexp = regexp.MustCompile(`<[^>]*>`)
	// priceDigitRegexp requires at least one digit in a price string.
	priceDigitRegexp = regexp.MustCompile(`\d`)
)

// bulletDenylist holds lower-cased fragments of page chrome that sit inside
// the bullet containers but are not product features.
var bulletDenylist = []string{
	"enhance your purchase",
	"see more product details",
	"make sure this fits",
	"by entering your model number",
	"report an issue with this product",
	"report incorrect product information",
	"about this item",
	"frequently bought together",
	"click here to",
}

var codeMarkers = []string{
	"{", "}", "</", "/>", "=>", "function(", "function (", "var ", "document.", "window.", "@media", "!important",
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

// cleanBullet normalises a candidate bullet and reports whether it is a
// genuine feature line.
func cleanBullet(raw string) (string, bool) {
	s := normaliseText(raw)
	s = strings.TrimLeft(s, "›•·*- ")
	if s == "" {
		return "", false
	}
	n := utf8.RuneCountInString(s)
	if n < minBulletLength || n > maxBulletLength {
		return "", false
	}
	lower := strings.ToLower(s)
	for _, deny := range bulletDenylist {
		if strings.Contains(lower, deny) {
			return "", false
		}
	}
	return s, true
}

// stripCodeFragments removes inline CSS blocks and literal tags, repeating
// until nested blocks are gone.
func stripCodeFragments(s string) string {
	s = tagRegexp.ReplaceAllString(s, " ")
	for {
		next := cssBlockRegexp.ReplaceAllString(s, " ")
		if next == s {
			break
		}
		s = next
	}
	return normaliseText(s)
}

// looksLikeCode reports whether text still reads as script or style residue
// rather than prose.
func looksLikeCode(s string) bool {
	if s == "" {
		return false
	}
	for _, m := range codeMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	var punct, total int
	for _, r := range s {
		total++
		switch r {
		case ';', '=', '(', ')':
			punct++
		}
	}
	return total > 0 && float64(punct)/float64(total) > 0.08
}

// cleanPrice keeps the displayed price string as-is, minus whitespace noise.
// Strings without a digit ("Currently unavailable") and availability
// sentences longer than maxPriceLength are discarded.
func cleanPrice(raw string) string {
	s := normaliseText(raw)
	if !priceDigitRegexp.MatchString(s) || utf8.RuneCountInString(s) > maxPriceLength {
		return ""
	}
	return s
}
