package giphy

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/andrew-dorrycott/giphy-manager/internal/config"
)

var ErrProviderUnavailable = errors.New("search provider unavailable")

type (
	// Item is one gif as the provider returns it. Fields may be
	// missing; the provider's data is untrusted and consumers deal
	// with absent values themselves.
	Item struct {
		Type   string                 `json:"type"`
		ID     string                 `json:"id"`
		URL    string                 `json:"url"`
		Title  string                 `json:"title"`
		Images map[string]interface{} `json:"images"`
	}

	Pagination struct {
		Offset     int `json:"offset"`
		Count      int `json:"count"`
		TotalCount int `json:"total_count"`
	}

	SearchResult struct {
		Data       []Item     `json:"data"`
		Pagination Pagination `json:"pagination"`
	}

	getResult struct {
		Data Item `json:"data"`
	}

	Client struct {
		http   *resty.Client
		apiKey string
		logger *zap.SugaredLogger
	}
)

func NewClient(cfg *config.Config, l *zap.SugaredLogger) *Client {
	return &Client{
		http:   resty.New().SetBaseURL(cfg.GiphyBaseURL),
		apiKey: cfg.GiphyAPIKey,
		logger: l,
	}
}

// Search queries the provider for a page of gifs. The rating is forced
// to G.
func (c *Client) Search(ctx context.Context, query string, limit, offset int) (*SearchResult, error) {
	result := SearchResult{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key": c.apiKey,
			"q":       query,
			"limit":   strconv.Itoa(limit),
			"offset":  strconv.Itoa(offset),
			"lang":    "en",
			"rating":  "g",
		}).
		SetResult(&result).
		Get("/search")
	if err != nil {
		c.logger.Errorw("giphy search failed", "query", query, "error", err)
		return nil, errors.Wrap(ErrProviderUnavailable, err.Error())
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Errorw("giphy search failed", "query", query, "status", resp.StatusCode())
		return nil, errors.Wrapf(ErrProviderUnavailable, "status %d", resp.StatusCode())
	}
	return &result, nil
}

// Get fetches a single gif by its provider id.
func (c *Client) Get(ctx context.Context, gifID string) (*Item, error) {
	result := getResult{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key": c.apiKey,
			"rating":  "g",
		}).
		SetResult(&result).
		Get("/" + gifID)
	if err != nil {
		c.logger.Errorw("giphy get failed", "gif_id", gifID, "error", err)
		return nil, errors.Wrap(ErrProviderUnavailable, err.Error())
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Errorw("giphy get failed", "gif_id", gifID, "status", resp.StatusCode())
		return nil, errors.Wrapf(ErrProviderUnavailable, "status %d", resp.StatusCode())
	}
	return &result.Data, nil
}
