package firmstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// FirmwareListing is one downloadable file discovered on a vendor page
type FirmwareListing struct {
	FileName string
	URL      string
	Label    string
}

// firmwareExtensions are the archive suffixes treated as firmware downloads
var firmwareExtensions = []string{".zip", ".rar", ".7z", ".tar", ".tar.gz", ".tar.md5", ".ftf", ".kdz"}

// PageFetcher scrapes firmware download links from vendor listing pages.
// Used by the scrape command to bootstrap the catalog; discovered listings
// still go through the normal catalog write path.
type PageFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewPageFetcher creates a fetcher with sane timeouts
func NewPageFetcher() *PageFetcher {
	return &PageFetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "firmstore-scraper/1.0",
		maxBody:   4 << 20, // 4 MiB of HTML is plenty for a listing page
	}
}

// FetchListings downloads pageURL and extracts firmware download links:
// every anchor whose href ends in a known firmware archive extension, with
// the anchor text as label and the URL resolved against the page.
func (f *PageFetcher) FetchListings(ctx context.Context, pageURL string) ([]FirmwareListing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, pageURL)
	}

	doc, err := html.Parse(http.MaxBytesReader(nil, resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	var listings []FirmwareListing
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := attrValue(n, "href"); ok && isFirmwareLink(href) {
				resolved := base.ResolveReference(mustParseRef(href))
				if resolved != nil && !seen[resolved.String()] {
					seen[resolved.String()] = true
					listings = append(listings, FirmwareListing{
						FileName: path.Base(resolved.Path),
						URL:      resolved.String(),
						Label:    strings.TrimSpace(nodeText(n)),
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return listings, nil
}

func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func isFirmwareLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, ext := range firmwareExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func mustParseRef(href string) *url.URL {
	u, err := url.Parse(href)
	if err != nil {
		return nil
	}
	return u
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}
