package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/stratamedia/strata/pkg/errors"
	"github.com/stratamedia/strata/pkg/retry"
)

// Options configures a provider client.
type Options struct {
	// Name identifies the provider and becomes the Source of every record it
	// produces.
	Name string

	// BaseURL is the provider API root.
	BaseURL string

	// APIKey, when set, is sent as the X-Api-Key header.
	APIKey string

	// UserAgent is sent on every request.
	UserAgent string

	// Timeout bounds each HTTP request. Defaults to 15 seconds.
	Timeout time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client is an HTTP metadata client for one upstream provider. Requests that
// fail transiently (timeouts, 429s, 5xx responses) are retried with backoff.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	retryer    *retry.Retryer
	logger     *slog.Logger
}

// TitleRequest identifies one title at a provider.
type TitleRequest struct {
	ID     string `json:"id"`
	Region string `json:"region,omitempty"`
}

// ArtistQuery is an artist search request.
type ArtistQuery struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}

// NewClient creates a provider client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:       opts.Name,
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
		retryer:    retry.New(retry.DefaultConfig()),
		logger:     logger.With("component", "provider", "provider", opts.Name),
	}
}

// FetchTitle retrieves one title and normalizes it into the unified schema.
func (c *Client) FetchTitle(ctx context.Context, req TitleRequest) (Record, error) {
	query := url.Values{}
	if req.Region != "" {
		query.Set("region", req.Region)
	}

	var payload titlePayload
	if err := c.getJSON(ctx, "/v1/titles/"+url.PathEscape(req.ID), query, &payload); err != nil {
		return Record{}, err
	}
	return normalizeTitle(c.name, payload), nil
}

// SearchArtist searches for artists by name and normalizes every hit.
func (c *Client) SearchArtist(ctx context.Context, q ArtistQuery) ([]Record, error) {
	query := url.Values{}
	query.Set("q", q.Name)
	if q.Limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", q.Limit))
	}

	var payload struct {
		Artists []artistPayload `json:"artists"`
	}
	if err := c.getJSON(ctx, "/v1/artists/search", query, &payload); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(payload.Artists))
	for _, a := range payload.Artists {
		records = append(records, normalizeArtist(c.name, a))
	}
	return records, nil
}

// getJSON performs a GET with retry on transient failures and decodes the
// response body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return c.retryer.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return errors.Wrap(errors.ErrCodeProviderResponse, "failed to build request", err).
				WithComponent("provider", c.name)
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(errors.ErrCodeProviderUnavailable, "request failed", err).
				WithComponent("provider", c.name)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return errors.New(errors.ErrCodeObjectNotFound,
				fmt.Sprintf("provider returned 404 for %s", path)).
				WithComponent("provider", c.name)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return errors.New(errors.ErrCodeProviderUnavailable,
				fmt.Sprintf("provider returned status %d", resp.StatusCode)).
				WithComponent("provider", c.name)
		default:
			return errors.New(errors.ErrCodeProviderResponse,
				fmt.Sprintf("provider returned status %d", resp.StatusCode)).
				WithComponent("provider", c.name)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return errors.Wrap(errors.ErrCodeProviderUnavailable, "failed to read response", err).
				WithComponent("provider", c.name)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(errors.ErrCodeProviderResponse, "failed to decode response", err).
				WithComponent("provider", c.name)
		}
		return nil
	})
}
