package poster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func omdbServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

func TestOMDbSearchFirst(t *testing.T) {
	srv := omdbServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		assert.Equal(t, "Iron Man", r.URL.Query().Get("s"))
		assert.Equal(t, "movie", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`{"Search":[{"Title":"Iron Man","Poster":"N/A"},{"Title":"Iron Man 2","Poster":"https://m.media-amazon.com/im2.jpg"}],"Response":"True"}`))
	})

	c := NewOMDbClient("secret", srv.URL, 0, nil)
	p, err := c.SearchPoster(context.Background(), "Iron Man")
	require.NoError(t, err)
	assert.Equal(t, "https://m.media-amazon.com/im2.jpg", p)
}

func TestOMDbFallsBackToExactTitle(t *testing.T) {
	var exactCalls atomic.Int32
	srv := omdbServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("s") != "" {
			_, _ = w.Write([]byte(`{"Response":"False","Error":"Movie not found!"}`))
			return
		}
		exactCalls.Add(1)
		assert.Equal(t, "Heat", r.URL.Query().Get("t"))
		_, _ = w.Write([]byte(`{"Title":"Heat","Poster":"https://m.media-amazon.com/heat.jpg","Response":"True"}`))
	})

	c := NewOMDbClient("secret", srv.URL, 100, nil)
	p, err := c.SearchPoster(context.Background(), "Heat")
	require.NoError(t, err)
	assert.Equal(t, "https://m.media-amazon.com/heat.jpg", p)
	assert.Equal(t, int32(1), exactCalls.Load())
}

func TestOMDbNotAvailableIsNoPoster(t *testing.T) {
	srv := omdbServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("s") != "" {
			_, _ = w.Write([]byte(`{"Response":"False"}`))
			return
		}
		_, _ = w.Write([]byte(`{"Poster":"N/A","Response":"True"}`))
	})

	p, err := NewOMDbClient("secret", srv.URL, 0, nil).SearchPoster(context.Background(), "Obscure")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestOMDbErrors(t *testing.T) {
	_, err := NewOMDbClient("", "http://unused", 0, nil).SearchPoster(context.Background(), "Heat")
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)

	srv := omdbServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err = NewOMDbClient("secret", srv.URL, 0, nil).SearchPoster(context.Background(), "Heat")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestOMDbCircuitOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := omdbServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := NewOMDbClient("secret", srv.URL, 0, nil)
	for i := 0; i < 5; i++ {
		_, err := c.SearchPoster(context.Background(), "Heat")
		require.Error(t, err)
		assert.False(t, IsCircuitOpen(err))
	}
	_, err := c.SearchPoster(context.Background(), "Heat")
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, int32(5), hits.Load())
}
