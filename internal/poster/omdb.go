package poster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mmcdole/reel/internal/domain"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	omdbTimeout = 10 * time.Second

	// notAvailable is OMDb's marker for a missing field.
	notAvailable = "N/A"
)

type omdbSearchResponse struct {
	Response string `json:"Response"`
	Search   []struct {
		Title  string `json:"Title"`
		Poster string `json:"Poster"`
	} `json:"Search"`
}

type omdbTitleResponse struct {
	Response string `json:"Response"`
	Poster   string `json:"Poster"`
}

// OMDbClient looks up posters on the OMDb API: a fuzzy search first, then an
// exact title lookup. Calls are rate limited and guarded by a circuit breaker
// so an unhealthy provider quickly degrades to "no poster".
type OMDbClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[string]
	logger   *slog.Logger
}

// NewOMDbClient creates a client. ratePerSecond <= 0 disables rate limiting.
func NewOMDbClient(apiKey, endpoint string, ratePerSecond float64, logger *slog.Logger) *OMDbClient {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	c := &OMDbClient{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: endpoint,
		client:   &http.Client{Timeout: omdbTimeout},
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "omdb",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("poster api circuit changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// SearchPoster implements domain.PosterSearcher.
func (c *OMDbClient) SearchPoster(ctx context.Context, title string) (string, error) {
	if c.apiKey == "" {
		return "", domain.ErrMissingAPIKey
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	return c.breaker.Execute(func() (string, error) {
		poster, err := c.search(ctx, title)
		if err != nil || poster != "" {
			return poster, err
		}
		return c.exact(ctx, title)
	})
}

func (c *OMDbClient) search(ctx context.Context, title string) (string, error) {
	var resp omdbSearchResponse
	if err := c.get(ctx, url.Values{"s": {title}, "type": {"movie"}}, &resp); err != nil {
		return "", err
	}
	if !strings.EqualFold(resp.Response, "True") {
		return "", nil
	}
	for _, item := range resp.Search {
		if p := cleanPoster(item.Poster); p != "" {
			return p, nil
		}
	}
	return "", nil
}

func (c *OMDbClient) exact(ctx context.Context, title string) (string, error) {
	var resp omdbTitleResponse
	if err := c.get(ctx, url.Values{"t": {title}}, &resp); err != nil {
		return "", err
	}
	if !strings.EqualFold(resp.Response, "True") {
		return "", nil
	}
	return cleanPoster(resp.Poster), nil
}

func (c *OMDbClient) get(ctx context.Context, params url.Values, dest any) error {
	params.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrMissingAPIKey
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("omdb: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

func cleanPoster(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.EqualFold(p, notAvailable) {
		return ""
	}
	return p
}

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
