package citation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/factchecker/labdesk/internal/config"
	"github.com/factchecker/labdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func fixedGenerator(cfg config.CitationConfig) *Generator {
	g := NewGenerator(&cfg)
	g.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }
	return g
}

func TestGenerate_Styles(t *testing.T) {
	g := fixedGenerator(config.CitationConfig{Style: "apa"})
	src := "https://www.example.org/water"

	tests := []struct {
		style     string
		formatted string
		inText    string
	}{
		{"apa", "Water Properties. (n.d.). example.org. Retrieved March 4, 2026, from https://www.example.org/water", "(example.org, n.d.)"},
		{"mla", "\"Water Properties.\" example.org, https://www.example.org/water. Accessed 4 Mar. 2026.", "(\"Water Properties\")"},
		{"harvard", "example.org (n.d.) Water Properties. Available at: https://www.example.org/water (Accessed: 4 March 2026).", "(example.org, n.d.)"},
	}

	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			c, err := g.Generate(context.Background(), src, "Water Properties.", tt.style)
			require.NoError(t, err)
			assert.Equal(t, tt.formatted, c.Formatted)
			assert.Equal(t, tt.inText, c.InText)
			assert.Equal(t, tt.style, c.Style)
			assert.Equal(t, src, c.Source)
			assert.NotEmpty(t, c.ID)
		})
	}
}

func TestGenerate_DefaultsAndErrors(t *testing.T) {
	g := fixedGenerator(config.CitationConfig{Style: "chicago"})

	c, err := g.Generate(context.Background(), "https://example.org", "", "")
	require.NoError(t, err)
	assert.Equal(t, StyleAPA, c.Style)
	assert.True(t, strings.HasPrefix(c.Formatted, "example.org. (n.d.)"))

	_, err = g.Generate(context.Background(), "  ", "", "")
	assert.Error(t, err)

	_, err = g.Generate(context.Background(), "https://example.org", "", "vancouver")
	assert.Error(t, err)
}

func TestGenerate_FreeTextSource(t *testing.T) {
	g := fixedGenerator(config.CitationConfig{Style: "apa"})

	c, err := g.Generate(context.Background(), "Atkins, P. Physical Chemistry, 11th ed", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Atkins, P. Physical Chemistry, 11th ed.", c.Formatted)
	assert.Equal(t, "(Atkins, P. Physical Chemistry)", c.InText)
}

func TestGenerate_FetchesAndCachesTitle(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		io.WriteString(w, `<html><head><title>
			Boiling   Point of Water
		</title></head><body><h1>Ignored</h1></body></html>`)
	}))
	defer srv.Close()

	g := fixedGenerator(config.CitationConfig{Style: "apa", FetchMetadata: true, FetchTimeout: time.Second, CacheTTL: time.Minute})

	first, err := g.Generate(context.Background(), srv.URL+"/water", "", "")
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), srv.URL+"/water", "", "mla")
	require.NoError(t, err)

	assert.Equal(t, "Boiling Point of Water", first.Title)
	assert.Equal(t, "Boiling Point of Water", second.Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGenerate_FetchFailureFallsBackToSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	g := fixedGenerator(config.CitationConfig{Style: "apa", FetchMetadata: true})

	c, err := g.Generate(context.Background(), srv.URL, "", "")
	require.NoError(t, err)
	assert.Empty(t, c.Title)
	assert.Contains(t, c.Formatted, "127.0.0.1")
}

func TestPageTitle_PrefersOpenGraph(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head>
		<title>Site | Page</title>
		<meta property="og:title" content="Page">
	</head><body></body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "Page", pageTitle(doc))
}

func TestDedup(t *testing.T) {
	in := []models.Citation{
		{ID: "1", Source: "https://example.org/a"},
		{ID: "2", Source: "https://EXAMPLE.org/a/ "},
		{ID: "3", Source: "https://example.org/b"},
	}

	out := Dedup(in)

	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "3", out[1].ID)
	assert.Equal(t, Key(in[0].Source), Key(in[1].Source))
}
