// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/poster-to-markdown/internal/httputil"
	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,authors,externalIds,year,publicationDate,url"

// SemanticScholarBackend queries the Semantic Scholar API.
type SemanticScholarBackend struct {
	Client *http.Client
	APIKey string
}

// Name returns the backend identifier.
func (b *SemanticScholarBackend) Name() string { return "semantic_scholar" }

// Search queries the Semantic Scholar API.
func (b *SemanticScholarBackend) Search(ctx context.Context, query Query, cfg types.SearchConfig) ([]types.PaperCitation, error) {
	q := joinTerms(query)
	if q == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	params := url.Values{
		"query":  {q},
		"limit":  {fmt.Sprintf("%d", maxResults)},
		"fields": {semanticFields},
	}
	if yr := buildYearRange(cfg.DateFrom, cfg.DateTo); yr != "" {
		params.Set("year", yr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	if b.APIKey != "" {
		req.Header.Set("x-api-key", b.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	total := len(sr.Data)
	var results []types.PaperCitation
	for i, paper := range sr.Data {
		c := types.PaperCitation{
			Title:          paper.Title,
			DOI:            paper.ExternalIDs.DOI,
			Source:         "semantic_scholar",
			RelevanceScore: positionScore(i, total),
		}
		for _, a := range paper.Authors {
			c.Authors = append(c.Authors, a.Name)
		}

		if paper.PublicationDate != "" {
			if t, parseErr := time.Parse(dateFmt, paper.PublicationDate); parseErr == nil {
				c.Date = t
			}
		} else if paper.Year > 0 {
			c.Date = time.Date(paper.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		}

		// Prefer arXiv ID, then DOI, then the Semantic Scholar paper ID.
		switch {
		case paper.ExternalIDs.ArXiv != "":
			c.Identifier = paper.ExternalIDs.ArXiv
			c.Link = "https://arxiv.org/abs/" + paper.ExternalIDs.ArXiv
		case paper.ExternalIDs.DOI != "":
			c.Identifier = paper.ExternalIDs.DOI
			c.Link = "https://doi.org/" + paper.ExternalIDs.DOI
		default:
			c.Identifier = paper.PaperID
			c.Link = paper.URL
		}

		results = append(results, c)
	}
	return results, nil
}

// joinTerms combines query fields into one free-text string.
func joinTerms(q Query) string {
	parts := []string{strings.TrimSpace(q.FreeText)}
	parts = append(parts, q.Keywords...)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// buildYearRange returns a Semantic Scholar year filter (e.g. "2020-2023")
// from YYYY-MM-DD bounds.
func buildYearRange(from, to string) string {
	fy, ty := yearOf(from), yearOf(to)
	switch {
	case fy != "" && ty != "":
		return fy + "-" + ty
	case fy != "":
		return fy + "-"
	case ty != "":
		return "-" + ty
	default:
		return ""
	}
}

func yearOf(date string) string {
	t, err := time.Parse(dateFmt, strings.TrimSpace(date))
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d", t.Year())
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	URL             string              `json:"url"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	Name string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}
