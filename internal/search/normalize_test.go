package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "year and quality",
			in:   "  Iron Man (2008) 1080p ",
			want: []string{"Iron Man (2008) 1080p", "Iron Man 1080p", "Iron Man"},
		},
		{
			name: "already plain",
			in:   "iron man",
			want: []string{"iron man"},
		},
		{
			name: "punctuation and accents",
			in:   "Amélie: Le Fabuleux",
			want: []string{"Amélie: Le Fabuleux", "Amelie Le Fabuleux"},
		},
		{
			name: "adjacent quality tags",
			in:   "Dune BluRay 720p",
			want: []string{"Dune BluRay 720p", "Dune"},
		},
		{
			name: "too short",
			in:   "x",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Variants(tt.in))
		})
	}
}

func TestVariantsIdempotentOnLastVariant(t *testing.T) {
	for _, in := range []string{"The Matrix (1999) HDRip", "Spider-Man: No Way Home", "Léon"} {
		variants := Variants(in)
		last := variants[len(variants)-1]
		assert.Equal(t, []string{last}, Variants(last), in)
	}
}

func TestFallbackTokens(t *testing.T) {
	assert.Equal(t, []string{"The", "Lord", "the"}, FallbackTokens("The Lord of the Rings"))
	assert.Equal(t, []string{"Matrix"}, FallbackTokens("Matrix"))
	assert.Empty(t, FallbackTokens("a of to"))
}

func TestCleanBaseName(t *testing.T) {
	tests := map[string]string{
		"Iron Man (2008) 1080p":           "Iron Man",
		"Ocean's Eleven [Extended] {HD}":  "Oceans Eleven",
		"Mission: Impossible - Fallout":   "Mission Impossible Fallout",
		"  The   Matrix  ":                "The Matrix",
		"Blade Runner 2049 (2017) WEB-DL": "Blade Runner 2049",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanBaseName(in), in)
	}
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "iron man", NormalizeKey("  Iron   Man "))
	assert.Equal(t, NormalizeKey("IRON MAN"), NormalizeKey("iron man"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"iron", "man", "2"}, Tokenize(" Iron  Man 2 "))
	assert.Empty(t, Tokenize("   "))
}
