package syncer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"curator/internal/catalog"
)

const plexUserAgent = "Curator/0.1.0"

type plexSection struct {
	key       string
	title     string
	locations []string
}

// PlexClient triggers partial section refreshes against a Plex Media Server.
// Sections and their filesystem locations are fetched once and cached for the
// life of the client; a refresh targets only the entity's directory so Plex
// picks up new artwork without rescanning the whole library.
type PlexClient struct {
	baseURL string
	token   string
	client  *http.Client

	mu       sync.Mutex
	sections []plexSection
}

// NewPlexClient builds a client for the given server. The base URL is used
// as-is apart from trailing-slash trimming.
func NewPlexClient(baseURL, token string, timeout time.Duration) *PlexClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PlexClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *PlexClient) Name() string { return "plex" }

// Refresh asks Plex to rescan the directory holding the entity. The section
// is resolved by location prefix; an entity outside every known section is an
// error so misconfigured roots surface instead of silently doing nothing.
func (p *PlexClient) Refresh(ctx context.Context, entity *catalog.Entity) error {
	sections, err := p.ensureSections(ctx)
	if err != nil {
		return err
	}

	section, ok := sectionFor(sections, entity.LibraryPath)
	if !ok {
		return fmt.Errorf("no plex section contains %s", entity.LibraryPath)
	}

	refreshURL := fmt.Sprintf("%s/library/sections/%s/refresh?path=%s",
		p.baseURL, section.key, url.QueryEscape(entity.LibraryPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, refreshURL, nil)
	if err != nil {
		return fmt.Errorf("build plex refresh request: %w", err)
	}
	p.decorate(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh plex section: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("plex refresh returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p *PlexClient) ensureSections(ctx context.Context) ([]plexSection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sections != nil {
		return p.sections, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/library/sections", nil)
	if err != nil {
		return nil, fmt.Errorf("build plex sections request: %w", err)
	}
	p.decorate(req)
	req.Header.Set("Accept", "application/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch plex sections: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("plex sections returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	type location struct {
		Path string `xml:"path,attr"`
	}
	type directory struct {
		Key       string     `xml:"key,attr"`
		Title     string     `xml:"title,attr"`
		Locations []location `xml:"Location"`
	}
	type mediaContainer struct {
		Directories []directory `xml:"Directory"`
	}

	var container mediaContainer
	if err := xml.NewDecoder(resp.Body).Decode(&container); err != nil {
		return nil, fmt.Errorf("decode plex sections: %w", err)
	}

	sections := make([]plexSection, 0, len(container.Directories))
	for _, dir := range container.Directories {
		section := plexSection{key: dir.Key, title: dir.Title}
		for _, loc := range dir.Locations {
			if loc.Path != "" {
				section.locations = append(section.locations, strings.TrimRight(loc.Path, "/"))
			}
		}
		sections = append(sections, section)
	}
	p.sections = sections
	return sections, nil
}

func (p *PlexClient) decorate(req *http.Request) {
	req.Header.Set("X-Plex-Token", p.token)
	req.Header.Set("User-Agent", plexUserAgent)
}

// sectionFor picks the section whose location is the longest prefix of the
// library path.
func sectionFor(sections []plexSection, libraryPath string) (plexSection, bool) {
	var best plexSection
	bestLen := -1
	for _, section := range sections {
		for _, loc := range section.locations {
			if strings.HasPrefix(libraryPath, loc+"/") || libraryPath == loc {
				if len(loc) > bestLen {
					best = section
					bestLen = len(loc)
				}
			}
		}
	}
	return best, bestLen >= 0
}
