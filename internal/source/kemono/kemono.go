// Package kemono implements the provider for kemono creator feeds using the
// site's JSON API. A work maps to a creator page and each post becomes one
// episode.
package kemono

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"serialarr/internal/fetch"
	"serialarr/internal/source"
)

const (
	defaultBaseURL = "https://kemono.su"
	pageSize       = 50
	maxPages       = 400
)

var knownHosts = []string{"kemono.su", "kemono.party", "kemono.cr"}

// Kemono is the kemono.su provider
type Kemono struct {
	client  *fetch.Client
	baseURL string
}

// Builder returns the registry builder for this provider
func Builder() source.Builder {
	return source.Builder{
		Key: "kemono",
		New: func(client *fetch.Client) source.Source {
			return &Kemono{client: client, baseURL: defaultBaseURL}
		},
	}
}

// Key returns the provider identifier
func (k *Kemono) Key() string { return "kemono" }

// DefaultEnabled reports that the provider starts enabled
func (k *Kemono) DefaultEnabled() bool { return true }

// SetConfig applies persisted configuration. The mirrors rotate, so the base
// URL is overridable via the "base_url" key.
func (k *Kemono) SetConfig(config map[string]string) error {
	if base, ok := config["base_url"]; ok && base != "" {
		if _, err := url.Parse(base); err != nil {
			return fmt.Errorf("invalid base_url %q: %w", base, err)
		}
		k.baseURL = strings.TrimRight(base, "/")
	}
	return nil
}

// Identify reports whether the URL is a kemono creator page
func (k *Kemono) Identify(rawURL string) bool {
	_, _, err := parseCreatorURL(rawURL)
	return err == nil
}

type profile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Service string `json:"service"`
}

type post struct {
	ID        string   `json:"id"`
	User      string   `json:"user"`
	Service   string   `json:"service"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Published string   `json:"published"`
	Tags      []string `json:"tags"`
}

// Metadata fetches the creator profile
func (k *Kemono) Metadata(ctx context.Context, rawURL string) (*source.Metadata, error) {
	service, user, err := parseCreatorURL(rawURL)
	if err != nil {
		return nil, err
	}

	body, err := k.client.Get(ctx, fmt.Sprintf("%s/api/v1/%s/user/%s/profile", k.baseURL, service, user))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch creator profile: %w", err)
	}

	var p profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse creator profile: %w", err)
	}

	return &source.Metadata{
		Title:             p.Name,
		Author:            p.Name,
		CoverURL:          fmt.Sprintf("%s/icons/%s/%s", k.baseURL, service, user),
		Tags:              []string{p.Service},
		PublicationStatus: "ongoing",
	}, nil
}

// Episodes walks the creator's post feed, newest first, and returns it as an
// oldest-first listing. When the hint's post shows up the walk stops and only
// posts newer than it are returned, numbered after the hint's sequence.
func (k *Kemono) Episodes(ctx context.Context, rawURL string, last *source.ListingHint) ([]source.ListingItem, error) {
	service, user, err := parseCreatorURL(rawURL)
	if err != nil {
		return nil, err
	}

	var newest []post
	hintIndex := -1
	for page := 0; page < maxPages; page++ {
		body, err := k.client.Get(ctx, fmt.Sprintf("%s/api/v1/%s/user/%s?o=%d", k.baseURL, service, user, page*pageSize))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch post listing: %w", err)
		}

		var posts []post
		if err := json.Unmarshal(body, &posts); err != nil {
			return nil, fmt.Errorf("failed to parse post listing: %w", err)
		}

		for _, p := range posts {
			if last != nil && k.postURL(service, user, p.ID) == last.URL {
				hintIndex = len(newest)
			}
			newest = append(newest, p)
		}

		if hintIndex >= 0 || len(posts) < pageSize {
			break
		}
	}

	if hintIndex >= 0 {
		// Only posts strictly newer than the hint, continuing its numbering.
		newest = newest[:hintIndex]
		items := make([]source.ListingItem, 0, len(newest))
		for i := len(newest) - 1; i >= 0; i-- {
			item := k.listingItem(service, user, newest[i])
			item.Index = last.Sequence + len(items) + 1
			items = append(items, item)
		}
		return items, nil
	}

	items := make([]source.ListingItem, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		item := k.listingItem(service, user, newest[i])
		item.Index = len(items) + 1
		items = append(items, item)
	}
	return items, nil
}

// EpisodeContent fetches one post and returns its markup
func (k *Kemono) EpisodeContent(ctx context.Context, rawURL string) (string, error) {
	service, user, postID, err := parsePostURL(rawURL)
	if err != nil {
		return "", err
	}

	body, err := k.client.Get(ctx, fmt.Sprintf("%s/api/v1/%s/user/%s/post/%s", k.baseURL, service, user, postID))
	if err != nil {
		return "", fmt.Errorf("failed to fetch post: %w", err)
	}

	// The API has shipped both a bare post object and a {"post": ...} wrapper.
	var wrapped struct {
		Post *post `json:"post"`
	}
	p := &post{}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Post != nil {
		p = wrapped.Post
	} else if err := json.Unmarshal(body, p); err != nil {
		return "", fmt.Errorf("failed to parse post: %w", err)
	}

	if p.Content == "" {
		return "", fmt.Errorf("post %s has no content", postID)
	}
	return p.Content, nil
}

// Search is not available; the creators index is too large to filter client
// side and the API has no query endpoint
func (k *Kemono) Search(ctx context.Context, query string) ([]source.SearchResult, error) {
	return nil, source.ErrSearchUnsupported
}

func (k *Kemono) listingItem(service, user string, p post) source.ListingItem {
	return source.ListingItem{
		Title:       p.Title,
		URL:         k.postURL(service, user, p.ID),
		PublishedAt: parsePublished(p.Published),
		Tags:        p.Tags,
	}
}

// postURL builds the canonical post URL. It always uses the primary host so
// stored episode URLs stay stable when the configured mirror changes.
func (k *Kemono) postURL(service, user, postID string) string {
	return fmt.Sprintf("%s/%s/user/%s/post/%s", defaultBaseURL, service, user, postID)
}

var publishedLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parsePublished(value string) *time.Time {
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func parseCreatorURL(rawURL string) (service, user string, err error) {
	parts, err := pathParts(rawURL)
	if err != nil {
		return "", "", err
	}
	if len(parts) < 3 || parts[1] != "user" {
		return "", "", fmt.Errorf("not a kemono creator url: %s", rawURL)
	}
	return parts[0], parts[2], nil
}

func parsePostURL(rawURL string) (service, user, postID string, err error) {
	parts, err := pathParts(rawURL)
	if err != nil {
		return "", "", "", err
	}
	if len(parts) < 5 || parts[1] != "user" || parts[3] != "post" {
		return "", "", "", fmt.Errorf("not a kemono post url: %s", rawURL)
	}
	return parts[0], parts[2], parts[4], nil
}

func pathParts(rawURL string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	known := false
	for _, h := range knownHosts {
		if host == h {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown host %q", host)
	}

	return strings.Split(strings.Trim(u.Path, "/"), "/"), nil
}
