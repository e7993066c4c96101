package giphy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrew-dorrycott/giphy-manager/internal/config"
)

const searchBody = `{
	"data": [
		{"type": "gif", "id": "g1", "url": "https://giphy.com/gifs/g1", "title": "Cat", "images": {"original": {"url": "u"}}},
		{"type": "gif", "id": "g2", "url": "https://giphy.com/gifs/g2", "title": "Dog"}
	],
	"pagination": {"total_count": 1234, "count": 2, "offset": 5}
}`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Config{GiphyBaseURL: srv.URL, GiphyAPIKey: "test-key"}
	return NewClient(&cfg, zap.NewNop().Sugar())
}

func TestSearch(t *testing.T) {
	var gotQuery map[string]string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	})

	got, err := c.Search(context.Background(), "cat", 2, 5)
	require.NoError(t, err)

	require.Len(t, got.Data, 2)
	assert.Equal(t, "g1", got.Data[0].ID)
	assert.Equal(t, "Cat", got.Data[0].Title)
	assert.NotEmpty(t, got.Data[0].Images)
	// missing images stay absent; the reconciler deals with that
	assert.Empty(t, got.Data[1].Images)

	assert.Equal(t, Pagination{Offset: 5, Count: 2, TotalCount: 1234}, got.Pagination)

	assert.Equal(t, "cat", gotQuery["q"])
	assert.Equal(t, "2", gotQuery["limit"])
	assert.Equal(t, "5", gotQuery["offset"])
	assert.Equal(t, "test-key", gotQuery["api_key"])
	assert.Equal(t, "g", gotQuery["rating"])
}

func TestGet(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/g1", r.URL.Path)
		assert.Equal(t, "g", r.URL.Query().Get("rating"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"type": "gif", "id": "g1", "url": "https://giphy.com/gifs/g1", "title": "Cat"}}`))
	})

	got, err := c.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.ID)
	assert.Equal(t, "Cat", got.Title)
}

func TestProviderErrorStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Search(context.Background(), "cat", 25, 0)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = c.Get(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cfg := config.Config{GiphyBaseURL: srv.URL, GiphyAPIKey: "test-key"}
	c := NewClient(&cfg, zap.NewNop().Sugar())
	srv.Close()

	_, err := c.Search(context.Background(), "cat", 25, 0)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
