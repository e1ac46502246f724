package search

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	minVariantLength  = 2
	minFallbackToken  = 3
	maxFallbackTokens = 3
)

var (
	yearMarkerPattern = regexp.MustCompile(`\(\s*\d{4}\s*\)`)
	bracketPattern    = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}`)
	qualityPattern    = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])(480p|720p|1080p|2160p|4k|fhd|uhd|hd|sd|bluray|brrip|hdrip|web-dl|webrip|dual\s+audio)([^\p{L}\p{N}]|$)`)
	nonAlnumPattern   = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	apostrophePattern = regexp.MustCompile(`['’]`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

// Variants rewrites a free-text title into progressively relaxed search queries,
// most specific first. Callers try them in order and stop at the first hit.
//
//  1. the trimmed input
//  2. without "(YYYY)" markers
//  3. without quality/encoding tags
//  4. accents folded, every non-alphanumeric run collapsed to one space
//
// Duplicates and variants shorter than two characters are dropped.
func Variants(raw string) []string {
	exact := strings.TrimSpace(raw)
	noYear := collapseSpaces(yearMarkerPattern.ReplaceAllString(exact, " "))
	noQuality := stripQuality(noYear)
	plain := strings.TrimSpace(nonAlnumPattern.ReplaceAllString(foldAccents(noQuality), " "))

	var out []string
	seen := make(map[string]bool, 4)
	for _, v := range []string{exact, noYear, noQuality, plain} {
		if utf8.RuneCountInString(v) < minVariantLength || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// FallbackTokens returns up to three whitespace tokens of at least three
// characters, tried one at a time when no variant matched.
func FallbackTokens(raw string) []string {
	var out []string
	for _, tok := range strings.Fields(raw) {
		if utf8.RuneCountInString(tok) < minFallbackToken {
			continue
		}
		out = append(out, tok)
		if len(out) == maxFallbackTokens {
			break
		}
	}
	return out
}

// CleanBaseName derives a canonical title from a display title by removing
// "(year)" markers, bracketed tags, quality tags and punctuation.
func CleanBaseName(title string) string {
	s := yearMarkerPattern.ReplaceAllString(title, " ")
	s = bracketPattern.ReplaceAllString(s, " ")
	s = stripQuality(s)
	s = apostrophePattern.ReplaceAllString(s, "")
	s = nonAlnumPattern.ReplaceAllString(s, " ")
	return collapseSpaces(s)
}

// NormalizeKey is the cross-source key for "same movie": lower-cased, trimmed,
// single-spaced base name.
func NormalizeKey(baseName string) string {
	return strings.ToLower(collapseSpaces(baseName))
}

// Tokenize lower-cases s and splits it on whitespace.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(s)))
}

func stripQuality(s string) string {
	// The pattern consumes its surrounding separators, so adjacent tags need
	// more than one pass.
	for {
		next := qualityPattern.ReplaceAllString(s, "$1 $3")
		if next == s {
			break
		}
		s = next
	}
	return collapseSpaces(s)
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// foldAccents removes combining marks after canonical decomposition.
func foldAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}
