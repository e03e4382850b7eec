package fanart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"curator/internal/catalog"
	"curator/internal/providers"
)

const providerName = "fanart"

// DefaultBaseURL is the production fanart.tv API endpoint.
const DefaultBaseURL = "https://webservice.fanart.tv/v3"

const steadyRequestsPerSecond = 2

// Resolver maps an entity to the TMDB identifier fanart.tv keys its artwork
// by. In production this is the TMDB client's ResolveID.
type Resolver func(ctx context.Context, entity *catalog.Entity) (int64, error)

// Client fetches artwork candidates from fanart.tv.
type Client struct {
	apiKey     string
	baseURL    string
	resolve    Resolver
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

// New creates a fanart.tv artwork client.
func New(apiKey, baseURL string, resolve Resolver, timeout time.Duration, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("fanart api key required")
	}
	if resolve == nil {
		return nil, errors.New("fanart resolver required")
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
		resolve:    resolve,
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

type imageEntry struct {
	URL   string `json:"url"`
	Lang  string `json:"lang"`
	Likes string `json:"likes"`
}

type movieResponse struct {
	Posters     []imageEntry `json:"movieposter"`
	Backgrounds []imageEntry `json:"moviebackground"`
	HDLogos     []imageEntry `json:"hdmovielogo"`
}

type showResponse struct {
	Posters     []imageEntry `json:"tvposter"`
	Backgrounds []imageEntry `json:"showbackground"`
	HDLogos     []imageEntry `json:"hdtvlogo"`
}

// FetchArtwork resolves the entity to a TMDB id and returns the posters,
// backgrounds, and logos fanart.tv carries for it. Fanart has no vote
// averages; likes map onto the vote count with a neutral rating.
func (c *Client) FetchArtwork(ctx context.Context, entity *catalog.Entity) ([]providers.Artwork, error) {
	id, err := c.resolve(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("resolve entity for fanart: %w", err)
	}

	var (
		posters     []imageEntry
		backgrounds []imageEntry
		logos       []imageEntry
	)
	if entity.Type == catalog.EntitySeries {
		var payload showResponse
		if err := c.get(ctx, fmt.Sprintf("/tv/%d", id), &payload); err != nil {
			return nil, err
		}
		posters, backgrounds, logos = payload.Posters, payload.Backgrounds, payload.HDLogos
	} else {
		var payload movieResponse
		if err := c.get(ctx, fmt.Sprintf("/movies/%d", id), &payload); err != nil {
			return nil, err
		}
		posters, backgrounds, logos = payload.Posters, payload.Backgrounds, payload.HDLogos
	}

	var artwork []providers.Artwork
	appendEntries := func(assetType catalog.AssetType, entries []imageEntry) {
		for _, entry := range entries {
			if entry.URL == "" {
				continue
			}
			likes, _ := strconv.Atoi(entry.Likes)
			artwork = append(artwork, providers.Artwork{
				AssetType: assetType,
				SourceURL: entry.URL,
				Language:  normalizeLang(entry.Lang),
				Votes:     likes,
			})
		}
	}
	appendEntries(catalog.AssetPoster, posters)
	appendEntries(catalog.AssetBackdrop, backgrounds)
	appendEntries(catalog.AssetLogo, logos)
	return artwork, nil
}

// Fanart uses "00" for language-neutral artwork.
func normalizeLang(lang string) string {
	if lang == "00" {
		return ""
	}
	return lang
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &providers.ThrottleError{Provider: providerName, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fanart returned %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode fanart response: %w", err)
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
