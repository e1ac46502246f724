package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTitles(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"json array", `["Iron Man", "The Avengers"]`, []string{"Iron Man", "The Avengers"}},
		{"fenced", "```json\n[\"Heat\", \"Ronin\"]\n```", []string{"Heat", "Ronin"}},
		{"fence without tag", "```\n[\"Heat\"]\n```", []string{"Heat"}},
		{"objects", `[{"title":"Heat","year":1995},{"name":"Ronin"},{"rating":5}]`, []string{"Heat", "Ronin"}},
		{"wrapped", `{"recommendations":["Heat","Ronin"]}`, []string{"Heat", "Ronin"}},
		{"wrapped objects", `{"movies":[{"title":"Heat"}]}`, []string{"Heat"}},
		{"json string", `"Heat, Ronin"`, []string{"Heat", "Ronin"}},
		{"numbered list", "1. Heat\n2) Ronin\n- Collateral\n* Thief", []string{"Heat", "Ronin", "Collateral", "Thief"}},
		{"comma line", "Heat, Ronin, Collateral", []string{"Heat", "Ronin", "Collateral"}},
		{"truncated json", `["Heat", "Ronin", "Colla`, []string{"Heat", "Ronin", "Colla"}},
		{"duplicates", `["Heat", "heat", " ", "Ronin"]`, []string{"Heat", "Ronin"}},
		{"empty", "  ", nil},
		{"empty array", "[]", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractTitles(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTitlesKeepsTitleNumbers(t *testing.T) {
	got := ExtractTitles("2001: A Space Odyssey\n12 Angry Men\n3. 1917")
	assert.Equal(t, []string{"2001: A Space Odyssey", "12 Angry Men", "1917"}, got)
}
