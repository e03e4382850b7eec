package syncer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"curator/internal/catalog"
)

// JellyfinClient triggers a library refresh against a Jellyfin server.
// Jellyfin has no partial-refresh endpoint, so every sync requests a full
// library scan; the server dedupes concurrent refreshes itself.
type JellyfinClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewJellyfinClient builds a client for the given server.
func NewJellyfinClient(baseURL, apiKey string, timeout time.Duration) *JellyfinClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JellyfinClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

func (j *JellyfinClient) Name() string { return "jellyfin" }

// Refresh asks Jellyfin to rescan its libraries.
func (j *JellyfinClient) Refresh(ctx context.Context, _ *catalog.Entity) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/Library/Refresh", nil)
	if err != nil {
		return fmt.Errorf("build jellyfin refresh request: %w", err)
	}
	req.Header.Set("X-Emby-Token", j.apiKey)

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh jellyfin library: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("jellyfin refresh returned %d", resp.StatusCode)
	}
	return nil
}
