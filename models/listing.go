package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxDescriptionLength bounds stored descriptions and, through them, prompt size.
const MaxDescriptionLength = 5000

var asinRegexp = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// Listing is one immutable snapshot of a marketplace product page.
// Several snapshots may share an ASIN; the newest one wins.
type Listing struct {
	ID           int64     `json:"id"`
	ASIN         string    `json:"asin"`
	Marketplace  string    `json:"marketplace"`
	Title        string    `json:"title"`
	BulletPoints []string  `json:"bulletPoints"`
	Description  string    `json:"description"`
	Price        *string   `json:"price,omitempty"`
	ImageURL     *string   `json:"imageUrl,omitempty"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// OptimizedListing is the rewritten copy returned by the generative model.
type OptimizedListing struct {
	Title        string   `json:"title"`
	BulletPoints []string `json:"bulletPoints"`
	Description  string   `json:"description"`
	Keywords     []string `json:"keywords"`
}

// Rewrite is an OptimizedListing plus the provider metadata that produced it.
type Rewrite struct {
	Optimized        OptimizedListing
	ModelUsed        string
	PromptTokens     *int
	CompletionTokens *int
}

// NormalizeASIN trims and upper-cases a raw identifier.
func NormalizeASIN(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// IsValidASIN reports whether s is exactly 10 uppercase alphanumeric characters.
func IsValidASIN(s string) bool {
	return asinRegexp.MatchString(s)
}

// TruncateDescription cuts s to MaxDescriptionLength characters.
func TruncateDescription(s string) string {
	return TruncateRunes(s, MaxDescriptionLength)
}

// TruncateRunes cuts s to at most max characters without splitting a rune.
func TruncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// StringPtr returns nil for empty strings so optional columns stay NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NonNil guarantees a non-nil slice so JSON renders [] rather than null.
func NonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
