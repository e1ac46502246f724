package recommend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/mmcdole/reel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func TestGeminiRecommend(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))

		body, _ := io.ReadAll(r.Body)
		var req geminiRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, 0.6, req.GenerationConfig.Temperature)
		assert.Equal(t, 800, req.GenerationConfig.MaxOutputTokens)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		prompt = req.Contents[0].Parts[0].Text

		_, _ = w.Write([]byte(geminiReply("```json\n[\"Heat\",\"Ronin\"]\n```")))
	}))
	defer srv.Close()

	c := NewGeminiClient("k", "gemini-test", srv.URL+"/", time.Second, nil)
	got, err := c.Recommend(context.Background(), []string{"Collateral", "Thief"}, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"Heat", "Ronin"}, got)
	assert.Contains(t, prompt, "- Collateral\n- Thief\n")
	assert.Contains(t, prompt, "Recommend 60 movie titles")
}

func TestGeminiCapsPromptTitles(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		prompt = req.Contents[0].Parts[0].Text
		_, _ = w.Write([]byte(geminiReply(`[]`)))
	}))
	defer srv.Close()

	titles := make([]string, 30)
	for i := range titles {
		titles[i] = "Movie"
	}
	_, err := NewGeminiClient("k", "m", srv.URL, time.Second, nil).Recommend(context.Background(), titles, 50)
	require.NoError(t, err)
	assert.Equal(t, MaxPromptTitles, strings.Count(prompt, "- Movie"))
}

func TestGeminiEmptyHistoryAndMissingKey(t *testing.T) {
	got, err := NewGeminiClient("k", "m", "http://unused", time.Second, nil).Recommend(context.Background(), nil, 20)
	assert.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewGeminiClient(" ", "m", "http://unused", time.Second, nil).Recommend(context.Background(), []string{"Heat"}, 20)
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
}

func TestGeminiFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("key") {
		case "quota":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("quota\nexceeded"))
		case "garbage":
			_, _ = w.Write([]byte("<html>"))
		case "error":
			_, _ = w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
		}
	}))
	defer srv.Close()

	_, err := NewGeminiClient("quota", "m", srv.URL, time.Second, nil).Recommend(context.Background(), []string{"Heat"}, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429: quota exceeded")

	_, err = NewGeminiClient("garbage", "m", srv.URL, time.Second, nil).Recommend(context.Background(), []string{"Heat"}, 20)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)

	_, err = NewGeminiClient("error", "m", srv.URL, time.Second, nil).Recommend(context.Background(), []string{"Heat"}, 20)
	assert.ErrorContains(t, err, "model overloaded")
}

func TestSnippetKeepsWholeRunes(t *testing.T) {
	body := []byte("x" + strings.Repeat("é", 300) + "\nrest")
	got := snippet(body)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxSnippetRunes, utf8.RuneCountInString(got))

	assert.Equal(t, "quota exceeded", snippet([]byte("  quota\nexceeded ")))
}
