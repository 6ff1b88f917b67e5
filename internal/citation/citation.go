// Package citation formats bibliography entries for the sources the
// collaborator relied on.
package citation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/factchecker/labdesk/internal/config"
	"github.com/factchecker/labdesk/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Supported styles.
const (
	StyleAPA     = "apa"
	StyleMLA     = "mla"
	StyleHarvard = "harvard"
)

// ValidStyle reports whether style is supported.
func ValidStyle(style string) bool {
	switch style {
	case StyleAPA, StyleMLA, StyleHarvard:
		return true
	}
	return false
}

// Generator builds Citations, optionally looking up page titles.
type Generator struct {
	style   string
	fetcher *TitleFetcher
	now     func() time.Time
}

// NewGenerator creates a generator from the citation configuration. Title
// lookups are disabled when FetchMetadata is false.
func NewGenerator(cfg *config.CitationConfig) *Generator {
	g := &Generator{style: cfg.Style, now: time.Now}
	if !ValidStyle(g.style) {
		g.style = StyleAPA
	}
	if cfg.FetchMetadata {
		g.fetcher = NewTitleFetcher(cfg.FetchTimeout, cfg.CacheTTL)
	}
	return g
}

// Generate creates a citation for source in the given style; an empty style
// uses the configured default.
func (g *Generator) Generate(ctx context.Context, source, title, style string) (models.Citation, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return models.Citation{}, fmt.Errorf("citation source is required")
	}
	if style == "" {
		style = g.style
	}
	if !ValidStyle(style) {
		return models.Citation{}, fmt.Errorf("unsupported citation style: %s", style)
	}

	title = strings.TrimSpace(title)
	u := webURL(source)
	if title == "" && u != nil && g.fetcher != nil {
		fetched, err := g.fetcher.Title(ctx, source)
		if err != nil {
			log.Debug().Err(err).Str("source", source).Msg("Page title lookup failed")
		}
		title = fetched
	}

	now := g.now()
	c := models.Citation{
		ID:        uuid.New().String(),
		Source:    source,
		Title:     title,
		Style:     style,
		CreatedAt: now,
	}
	c.Formatted, c.InText = format(source, title, u, style, now)
	return c, nil
}

func format(source, title string, u *url.URL, style string, accessed time.Time) (string, string) {
	if u == nil {
		// Free-text references are kept as written.
		entry := source
		if !strings.HasSuffix(entry, ".") {
			entry += "."
		}
		return entry, "(" + shortLabel(source) + ")"
	}

	site := strings.TrimPrefix(u.Hostname(), "www.")
	if title == "" {
		title = site
	}

	title = strings.TrimSuffix(title, ".")
	switch style {
	case StyleMLA:
		entry := fmt.Sprintf("\"%s.\" %s, %s. Accessed %s.", title, site, source, accessed.Format("2 Jan. 2006"))
		return entry, fmt.Sprintf("(\"%s\")", shortLabel(title))
	case StyleHarvard:
		entry := fmt.Sprintf("%s (n.d.) %s. Available at: %s (Accessed: %s).", site, title, source, accessed.Format("2 January 2006"))
		return entry, fmt.Sprintf("(%s, n.d.)", site)
	default:
		entry := fmt.Sprintf("%s. (n.d.). %s. Retrieved %s, from %s", title, site, accessed.Format("January 2, 2006"), source)
		return entry, fmt.Sprintf("(%s, n.d.)", site)
	}
}

// shortLabel returns the first few words of s for in-text markers.
func shortLabel(s string) string {
	words := strings.Fields(s)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.TrimRight(strings.Join(words, " "), ".,;:")
}

// webURL returns the parsed URL when source is an absolute http(s) link.
func webURL(source string) *url.URL {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	return u
}

// Key normalises a source for de-duplication.
func Key(source string) string {
	key := strings.ToLower(strings.TrimSpace(source))
	return strings.TrimSuffix(key, "/")
}

// Dedup drops citations whose source repeats an earlier one, keeping order.
func Dedup(citations []models.Citation) []models.Citation {
	seen := make(map[string]bool, len(citations))
	out := make([]models.Citation, 0, len(citations))
	for _, c := range citations {
		k := Key(c.Source)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}
