// Package recommend turns watch history into catalog-backed movie picks: it
// asks an AI model for titles, reconciles the free-text answers against the
// catalog, and caches the result with a staleness window.
package recommend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mmcdole/reel/internal/domain"
)

const (
	// MaxPromptTitles caps the history titles sent to the model.
	MaxPromptTitles = 20

	requestedTitles = 60
	temperature     = 0.6
	maxOutputTokens = 800
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		MaxOutputTokens  int     `json:"maxOutputTokens"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GeminiClient asks a Gemini model for movie recommendations.
type GeminiClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewGeminiClient creates a client for model at endpoint
// (e.g. https://generativelanguage.googleapis.com/v1beta).
func NewGeminiClient(apiKey, model, endpoint string, timeout time.Duration, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiClient{
		apiKey:   strings.TrimSpace(apiKey),
		model:    model,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Recommend implements domain.Recommender. An empty history is an empty
// success and does not call the model.
func (c *GeminiClient) Recommend(ctx context.Context, historyTitles []string, maxCount int) ([]string, error) {
	if c.apiKey == "" {
		return nil, domain.ErrMissingAPIKey
	}
	if len(historyTitles) == 0 {
		return nil, nil
	}
	if maxCount <= 0 || maxCount > MaxPromptTitles {
		maxCount = MaxPromptTitles
	}
	if len(historyTitles) > maxCount {
		historyTitles = historyTitles[:maxCount]
	}

	var body geminiRequest
	body.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: buildPrompt(historyTitles)}}}}
	body.GenerationConfig.Temperature = temperature
	body.GenerationConfig.MaxOutputTokens = maxOutputTokens
	body.GenerationConfig.ResponseMimeType = "application/json"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(raw))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini: %s", parsed.Error.Message)
	}

	var text strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, p := range parsed.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}

	titles := ExtractTitles(text.String())
	c.logger.Debug("gemini recommendations",
		"history", len(historyTitles),
		"titles", len(titles),
		"duration", time.Since(start))
	return titles, nil
}

func buildPrompt(titles []string) string {
	var b strings.Builder
	b.WriteString("User watched these movies:\n")
	for _, t := range titles {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nRecommend %d movie titles based on this history.\n", requestedTitles)
	b.WriteString("Return ONLY a JSON array of movie name strings, no extra text.\n")
	b.WriteString(`Example: ["iron man", "the avengers"]`)
	b.WriteString("\n")
	return b.String()
}

const maxSnippetRunes = 200

// snippet shortens an error body for logs and error messages.
func snippet(b []byte) string {
	s := strings.TrimSpace(strings.ReplaceAll(string(b), "\n", " "))
	if r := []rune(s); len(r) > maxSnippetRunes {
		s = string(r[:maxSnippetRunes])
	}
	return s
}
