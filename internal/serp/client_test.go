package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serpwatch/rankscan/internal/rank"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		EngineID: "test-cx",
		Depth:    100,
	}, nil)
}

func resultsPage(links ...string) map[string]any {
	items := make([]map[string]string, 0, len(links))
	for _, l := range links {
		items = append(items, map[string]string{"link": l})
	}
	return map[string]any{"items": items}
}

func writePage(t *testing.T, w http.ResponseWriter, page map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(page))
}

func TestLookup_FindsRankOnFirstPage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.Equal(t, "test-cx", r.URL.Query().Get("cx"))
		require.Equal(t, "best coffee maker", r.URL.Query().Get("q"))
		require.Equal(t, "us", r.URL.Query().Get("gl"))
		writePage(t, w, resultsPage(
			"https://reviews.example.org/top10",
			"https://shop.test/coffee",
			"https://blog.other.net/post",
			"https://www.example.com/coffee",
			"https://another.site/page",
		))
	})

	res, err := client.Lookup(context.Background(), "best coffee maker", "example.com", "USA")
	require.NoError(t, err)
	require.NotNil(t, res.Position)
	require.Equal(t, 4, *res.Position)
	require.NotEmpty(t, res.Raw)
}

func TestLookup_PagesUntilMatch(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		switch start {
		case "1":
			links := make([]string, 10)
			for i := range links {
				links[i] = fmt.Sprintf("https://filler%d.net/", i)
			}
			writePage(t, w, resultsPage(links...))
		case "11":
			writePage(t, w, resultsPage(
				"https://filler10.net/",
				"https://example.com/landing",
			))
		default:
			t.Fatalf("unexpected start %q", start)
		}
	})

	res, err := client.Lookup(context.Background(), "term", "example.com", "UK")
	require.NoError(t, err)
	require.NotNil(t, res.Position)
	require.Equal(t, 12, *res.Position)
}

func TestLookup_NoMatchWithinDepthIsNotRanked(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writePage(t, w, resultsPage("https://unrelated.dev/a", "https://unrelated.dev/b"))
	})

	res, err := client.Lookup(context.Background(), "term", "example.com", "USA")
	require.NoError(t, err)
	require.Nil(t, res.Position)
}

func TestLookup_ZeroResultsIsNotRanked(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writePage(t, w, map[string]any{})
	})

	res, err := client.Lookup(context.Background(), "obscure term", "example.com", "USA")
	require.NoError(t, err)
	require.Nil(t, res.Position)
}

func TestLookup_SubstringMatchFalsePositive(t *testing.T) {
	t.Parallel()

	// Deliberate legacy behavior: notexample.com contains example.com.
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writePage(t, w, resultsPage("https://notexample.com/page"))
	})

	res, err := client.Lookup(context.Background(), "term", "example.com", "USA")
	require.NoError(t, err)
	require.NotNil(t, res.Position)
	require.Equal(t, 1, *res.Position)
}

func TestLookup_ProviderErrorBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writePage(t, w, map[string]any{
			"error": map[string]any{"code": 429, "message": "rate limited"},
		})
	})

	_, err := client.Lookup(context.Background(), "term", "example.com", "USA")
	require.Error(t, err)
	require.NotErrorIs(t, err, rank.ErrMissingCredentials)
	require.Contains(t, err.Error(), "rate limited")
}

func TestLookup_RejectedCredentialsAreFatal(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writePage(t, w, map[string]any{
			"error": map[string]any{"code": 403, "message": "invalid key"},
		})
	})

	_, err := client.Lookup(context.Background(), "term", "example.com", "USA")
	require.ErrorIs(t, err, rank.ErrMissingCredentials)
}

func TestLookup_MissingCredentials(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{}, nil)
	_, err := client.Lookup(context.Background(), "term", "example.com", "USA")
	require.ErrorIs(t, err, rank.ErrMissingCredentials)
	require.ErrorIs(t, client.Ready(), rank.ErrMissingCredentials)
}

func TestLookup_EmptyInputsRejected(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{APIKey: "k", EngineID: "cx"}, nil)

	_, err := client.Lookup(context.Background(), "", "example.com", "USA")
	require.Error(t, err)
	_, err = client.Lookup(context.Background(), "term", "", "USA")
	require.Error(t, err)
}
