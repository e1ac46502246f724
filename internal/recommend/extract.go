package recommend

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

var (
	listMarkerPattern = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|#+)\s*`)

	// Object keys that may hold the title list, in order of preference.
	listKeys = []string{"titles", "movies", "recommendations", "items", "results", "data"}

	// Object keys that may hold a single title.
	titleKeys = []string{"title", "name", "movie", "Title", "Name"}
)

// ExtractTitles turns a model response into a flat list of titles. It accepts
// a JSON array of strings or objects, an object wrapping such an array, or
// plain text with one title per line (or comma separated on a single line),
// optionally inside a Markdown code fence. Duplicates and blanks are dropped.
func ExtractTitles(text string) []string {
	cleaned := stripFence(strings.TrimSpace(text))
	if cleaned == "" {
		return nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		if titles, ok := fromJSON(parsed); ok {
			return dedupe(titles)
		}
	}
	return dedupe(fromText(cleaned))
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "[{\"") {
		s = s[i+1:] // language tag
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func fromJSON(v any) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]any:
				if s, ok := titleOf(it); ok {
					out = append(out, s)
				}
			}
		}
		return out, true
	case map[string]any:
		for _, key := range listKeys {
			if inner, ok := t[key]; ok {
				return fromJSON(inner)
			}
		}
		if s, ok := titleOf(t); ok {
			return []string{s}, true
		}
		return nil, false
	case string:
		return fromText(t), true
	default:
		return nil, false
	}
}

func titleOf(obj map[string]any) (string, bool) {
	for _, key := range titleKeys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func fromText(s string) []string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var nonBlank []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonBlank = append(nonBlank, l)
		}
	}
	if len(nonBlank) == 1 {
		nonBlank = strings.Split(nonBlank[0], ",")
	}

	out := make([]string, 0, len(nonBlank))
	for _, l := range nonBlank {
		l = listMarkerPattern.ReplaceAllString(l, "")
		l = strings.Trim(strings.TrimSpace(l), `[]"'“”,`)
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func dedupe(titles []string) []string {
	seen := make(map[string]bool, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
