// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/poster-to-markdown/internal/httputil"
	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivBackend queries the arXiv API.
type ArxivBackend struct {
	Client *http.Client
}

// Name returns the backend identifier.
func (b *ArxivBackend) Name() string { return "arxiv" }

// Search queries the arXiv API sorted by relevance.
func (b *ArxivBackend) Search(ctx context.Context, query Query, cfg types.SearchConfig) ([]types.PaperCitation, error) {
	q := buildArxivQuery(query, cfg.Categories)
	if q == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	reqURL := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=relevance&sortOrder=descending",
		arxivAPIBase, q, maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	total := len(feed.Entries)
	var results []types.PaperCitation
	for i, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		c := types.PaperCitation{
			Identifier:     arxivID,
			Title:          strings.Join(strings.Fields(entry.Title), " "),
			Link:           "https://arxiv.org/abs/" + arxivID,
			DOI:            strings.TrimSpace(entry.DOI),
			Source:         "arxiv",
			RelevanceScore: positionScore(i, total),
		}
		for _, a := range entry.Authors {
			c.Authors = append(c.Authors, strings.TrimSpace(a.Name))
		}
		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			c.Date = t
		}

		results = append(results, c)
	}
	return results, nil
}

// buildArxivQuery constructs the search_query parameter. Terms are
// punctuation-stripped and escaped. Author surnames are OR-ed onto the
// term query; categories are OR-ed and AND-ed onto the result.
func buildArxivQuery(q Query, categories []string) string {
	var parts []string

	if terms := arxivTerms(q.FreeText); len(terms) > 0 {
		parts = append(parts, "all:"+strings.Join(terms, "+"))
	}
	for _, kw := range q.Keywords {
		if terms := arxivTerms(kw); len(terms) > 0 {
			parts = append(parts, "all:"+strings.Join(terms, "+"))
		}
	}
	query := strings.Join(parts, "+AND+")

	var authors []string
	for _, a := range q.Authors {
		if name := surname(a); name != "" {
			authors = append(authors, "au:"+url.QueryEscape(name))
		}
	}
	switch {
	case query == "" && len(authors) == 0:
		return ""
	case query == "":
		query = strings.Join(authors, "+OR+")
	case len(authors) > 0:
		query = "%28" + query + "%29+OR+" + strings.Join(authors, "+OR+")
	}

	var cats []string
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, "cat:"+url.QueryEscape(c))
		}
	}
	if len(cats) > 0 {
		query = "%28" + query + "%29+AND+%28" + strings.Join(cats, "+OR+") + "%29"
	}
	return query
}

// arxivTerms splits text into escaped search words.
func arxivTerms(text string) []string {
	var terms []string
	for _, w := range strings.Fields(normalizeTitle(text)) {
		terms = append(terms, url.QueryEscape(w))
	}
	return terms
}

// surname returns the last word of a display name, punctuation-stripped.
func surname(name string) string {
	words := strings.Fields(normalizeTitle(name))
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	DOI       string        `xml:"doi"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
