package citation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/net/html"
)

// TitleFetcher looks up the title of a web page. Results, including misses,
// are cached so a source is fetched at most once per TTL.
type TitleFetcher struct {
	httpClient *http.Client
	cache      *cache.Cache
}

// NewTitleFetcher creates a fetcher with the given request timeout and cache TTL.
func NewTitleFetcher(timeout, ttl time.Duration) *TitleFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TitleFetcher{
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache.New(ttl, 2*ttl),
	}
}

// Title returns the page title of pageURL, or "" when none could be found.
func (f *TitleFetcher) Title(ctx context.Context, pageURL string) (string, error) {
	if v, ok := f.cache.Get(pageURL); ok {
		return v.(string), nil
	}

	title, err := f.fetch(ctx, pageURL)
	if err != nil {
		if ctx.Err() == nil {
			f.cache.Set(pageURL, "", cache.DefaultExpiration)
		}
		return "", err
	}
	f.cache.Set(pageURL, title, cache.DefaultExpiration)
	return title, nil
}

func (f *TitleFetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; labdesk/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	// Titles live in <head>; the rest of large pages is not needed.
	doc, err := html.Parse(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return "", err
	}
	return pageTitle(doc), nil
}

// pageTitle prefers og:title over <title>.
func pageTitle(doc *html.Node) string {
	var title, ogTitle string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = n.FirstChild.Data
				}
			case "meta":
				if attr(n, "property") == "og:title" && ogTitle == "" {
					ogTitle = attr(n, "content")
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if t := strings.Join(strings.Fields(ogTitle), " "); t != "" {
		return t
	}
	return strings.Join(strings.Fields(title), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
