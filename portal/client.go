package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mod-update-notifier/config"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxPages guards against a portal that keeps handing out "next" links.
const maxPages = 10000

// FetchErrorKind separates transport failures from payload failures.
type FetchErrorKind int

const (
	Network FetchErrorKind = iota
	Decode
)

func (k FetchErrorKind) String() string {
	switch k {
	case Network:
		return "network"
	case Decode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is returned when the catalog or a mod page could not be read.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("portal %s error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err carries a FetchError of the given kind.
func IsFetchError(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// Client handles communication with the mod portal API.
type Client struct {
	BaseURL    string
	AssetsURL  string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client

	changelogs *lru.Cache[string, string]
}

// NewClient creates a new portal API client using the provided configuration.
func NewClient(cfg config.Config) (*Client, error) {
	if cfg.UserAgent == "" {
		// Should be handled by LoadConfig default, but double-check
		return nil, fmt.Errorf("USERAGENT is not configured")
	}
	if cfg.ChangelogCacheSize <= 0 {
		return nil, fmt.Errorf("CHANGELOG_CACHE_SIZE must be positive")
	}
	cache, err := lru.New[string, string](cfg.ChangelogCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating changelog cache: %w", err)
	}

	return &Client{
		BaseURL:   strings.TrimRight(cfg.PortalURL, "/"),
		AssetsURL: strings.TrimRight(cfg.PortalAssetsURL, "/"),
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.FetchTimeout,
		// The per-call deadline comes from the context; this is a backstop.
		HTTPClient: &http.Client{Timeout: cfg.FetchTimeout},
		changelogs: cache,
	}, nil
}

func (c *Client) makeRequest(ctx context.Context, fullURL string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return &FetchError{Kind: Network, URL: fullURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &FetchError{Kind: Network, URL: fullURL, Err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Try to read body for more error info, but don't fail if it's unreadable
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &FetchError{Kind: Network, URL: fullURL, Err: fmt.Errorf("api request failed: status %d, body: %s", resp.StatusCode, string(bodyBytes))}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		// A body cut short by the deadline is a transport failure, not a bad payload.
		if ctx.Err() != nil {
			return &FetchError{Kind: Network, URL: fullURL, Err: ctx.Err()}
		}
		return &FetchError{Kind: Decode, URL: fullURL, Err: fmt.Errorf("failed to decode json response: %w", err)}
	}
	return nil
}

// FetchCatalog returns the full catalog. When the portal paginates, every page
// is read before returning; a failure on any page fails the whole fetch so a
// partial catalog is never handed to the caller.
func (c *Client) FetchCatalog(ctx context.Context) ([]Entry, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	params := url.Values{}
	params.Set("page_size", "max")
	next := c.BaseURL + "/api/mods?" + params.Encode()

	var entries []Entry
	seen := make(map[string]struct{})
	for page := 0; next != ""; page++ {
		if page >= maxPages {
			return nil, &FetchError{Kind: Decode, URL: next, Err: fmt.Errorf("pagination exceeded %d pages", maxPages)}
		}
		var resp CatalogResponse
		if err := c.makeRequest(ctx, next, &resp); err != nil {
			return nil, err
		}
		for _, m := range resp.Results {
			entry, err := m.entry()
			if err != nil {
				return nil, &FetchError{Kind: Decode, URL: next, Err: err}
			}
			entries = append(entries, entry)
		}

		next = ""
		if resp.Pagination != nil && resp.Pagination.Links.Next != nil {
			link := *resp.Pagination.Links.Next
			if _, dup := seen[link]; dup {
				return nil, &FetchError{Kind: Decode, URL: link, Err: fmt.Errorf("pagination loops back to %s", link)}
			}
			seen[link] = struct{}{}
			next = c.resolve(link)
		}
	}
	return entries, nil
}

// resolve turns a relative pagination link into an absolute URL.
func (c *Client) resolve(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return c.BaseURL + "/" + strings.TrimLeft(link, "/")
}

// Changelog returns the raw changelog of a mod. Results are cached per
// (name, version) so redelivered events do not refetch the mod page.
func (c *Client) Changelog(ctx context.Context, name, version string) (string, error) {
	key := name + "@" + version
	if text, ok := c.changelogs.Get(key); ok {
		return text, nil
	}

	var full FullMod
	if err := c.makeRequest(ctx, c.BaseURL+"/api/mods/"+url.PathEscape(name)+"/full", &full); err != nil {
		return "", fmt.Errorf("failed to get changelog for '%s': %w", name, err)
	}
	text := ""
	if full.Changelog != nil {
		text = *full.Changelog
	}
	c.changelogs.Add(key, text)
	return text, nil
}

// ThumbnailURL returns the absolute URL of a thumbnail path, or the portal's
// placeholder when the mod has none.
func (c *Client) ThumbnailURL(path string) string {
	if path == "" {
		path = "/assets/.thumb.png"
	}
	return c.AssetsURL + path
}

// ModURL returns the portal page of a mod.
func (c *Client) ModURL(name string) string {
	return c.BaseURL + "/mod/" + strings.ReplaceAll(name, " ", "%20")
}

// UserURL returns the portal profile of a user.
func (c *Client) UserURL(name string) string {
	return c.BaseURL + "/user/" + strings.ReplaceAll(name, " ", "%20")
}
