package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"curator/internal/catalog"
	"curator/internal/providers"
)

const providerName = "tmdb"

// DefaultBaseURL is the production TMDB API endpoint.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// steadyRequestsPerSecond is a conservative floor well under TMDB's published
// limits; the orchestrator's sliding-window limiter handles the rest.
const steadyRequestsPerSecond = 4

// Client fetches artwork candidates from TMDB.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ providers.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a TMDB artwork client.
func New(apiKey, baseURL, language string, timeout time.Duration, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   strings.TrimSpace(language),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(steadyRequestsPerSecond), steadyRequestsPerSecond),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name identifies this provider in catalog rows and limiter state.
func (c *Client) Name() string {
	return providerName
}

type searchResult struct {
	ID int64 `json:"id"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// ResolveID searches TMDB for the entity and returns the best match's TMDB
// identifier. Fanart.tv keys its movie artwork by TMDB id, so this doubles as
// the resolver for that provider.
func (c *Client) ResolveID(ctx context.Context, entity *catalog.Entity) (int64, error) {
	path := "/search/movie"
	yearParam := "primary_release_year"
	if entity.Type == catalog.EntitySeries {
		path = "/search/tv"
		yearParam = "first_air_date_year"
	}

	params := url.Values{}
	params.Set("query", entity.Title)
	if entity.Year > 0 {
		params.Set(yearParam, strconv.Itoa(entity.Year))
	}

	var payload searchResponse
	if err := c.get(ctx, path, params, &payload); err != nil {
		return 0, err
	}
	if len(payload.Results) == 0 {
		return 0, fmt.Errorf("tmdb: no match for %q (%d)", entity.Title, entity.Year)
	}
	return payload.Results[0].ID, nil
}

type imageEntry struct {
	FilePath    string  `json:"file_path"`
	Language    string  `json:"iso_639_1"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}

type imagesResponse struct {
	Posters   []imageEntry `json:"posters"`
	Backdrops []imageEntry `json:"backdrops"`
	Logos     []imageEntry `json:"logos"`
}

// imageBaseURL serves original-resolution artwork referenced by file path.
const imageBaseURL = "https://image.tmdb.org/t/p/original"

// FetchArtwork resolves the entity and returns every poster, backdrop, and
// logo TMDB lists for it.
func (c *Client) FetchArtwork(ctx context.Context, entity *catalog.Entity) ([]providers.Artwork, error) {
	id, err := c.ResolveID(ctx, entity)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/movie/%d/images", id)
	if entity.Type == catalog.EntitySeries {
		path = fmt.Sprintf("/tv/%d/images", id)
	}

	// No language filter: selection wants the full candidate pool and scoring
	// handles language preference.
	var payload imagesResponse
	if err := c.get(ctx, path, url.Values{}, &payload); err != nil {
		return nil, err
	}

	var artwork []providers.Artwork
	appendEntries := func(assetType catalog.AssetType, entries []imageEntry) {
		for _, entry := range entries {
			if entry.FilePath == "" {
				continue
			}
			artwork = append(artwork, providers.Artwork{
				AssetType: assetType,
				SourceURL: imageBaseURL + entry.FilePath,
				Language:  entry.Language,
				Votes:     entry.VoteCount,
				Rating:    entry.VoteAverage,
			})
		}
	}
	appendEntries(catalog.AssetPoster, payload.Posters)
	appendEntries(catalog.AssetBackdrop, payload.Backdrops)
	appendEntries(catalog.AssetLogo, payload.Logos)
	return artwork, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" && params.Get("query") != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &providers.ThrottleError{Provider: providerName, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb returned %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
