// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search finds papers related to a poster by querying bibliographic
// APIs, then deduplicates, ranks, and truncates the candidates.
package search

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/apex/log"

	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

const (
	defaultMaxResults = 10
	dateFmt           = "2006-01-02"
)

// Backend searches a single bibliographic API.
type Backend interface {
	Name() string
	Search(ctx context.Context, query Query, cfg types.SearchConfig) ([]types.PaperCitation, error)
}

// Query holds the search terms for one poster.
type Query struct {
	// FreeText is usually the poster title.
	FreeText string
	Keywords []string

	// Authors holds author names to widen the search to the authors' other
	// work. Only backends with an author field use it.
	Authors []string
}

// IsEmpty reports whether the query contains no searchable terms.
func (q Query) IsEmpty() bool {
	if strings.TrimSpace(q.FreeText) != "" {
		return false
	}
	for _, kw := range append(append([]string{}, q.Keywords...), q.Authors...) {
		if strings.TrimSpace(kw) != "" {
			return false
		}
	}
	return true
}

// String renders the query for log lines.
func (q Query) String() string {
	s := strings.TrimSpace(q.FreeText + " " + strings.Join(q.Keywords, " "))
	if len(q.Authors) > 0 {
		s += " [" + strings.Join(q.Authors, ", ") + "]"
	}
	return strings.TrimSpace(s)
}

// SearchError reports that no backend could produce results.
type SearchError struct {
	// Reason summarizes why the search failed.
	Reason string

	// BackendErrors holds one message per failed backend.
	BackendErrors []string
}

func (e *SearchError) Error() string {
	if len(e.BackendErrors) == 0 {
		return "search unavailable: " + e.Reason
	}
	return fmt.Sprintf("search unavailable: %s (%s)", e.Reason, strings.Join(e.BackendErrors, "; "))
}

// Searcher queries its backends in order and merges their results.
type Searcher struct {
	Backends []Backend
	Config   types.SearchConfig

	dateFrom time.Time
	dateTo   time.Time
}

// New builds a Searcher with the backends named in cfg.Backends (default:
// arxiv only). It fails on an unknown backend name or a malformed date bound.
func New(cfg types.SearchConfig, client *http.Client) (*Searcher, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	names := cfg.Backends
	if len(names) == 0 {
		names = []string{"arxiv"}
	}

	var backends []Backend
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "arxiv":
			backends = append(backends, &ArxivBackend{Client: client})
		case "semantic_scholar", "semanticscholar", "s2":
			backends = append(backends, &SemanticScholarBackend{Client: client, APIKey: cfg.SemanticScholarAPIKey})
		case "openalex":
			backends = append(backends, &OpenAlexBackend{Client: client, Email: cfg.OpenAlexEmail})
		default:
			return nil, fmt.Errorf("unknown search backend %q: use arxiv, semantic_scholar, or openalex", name)
		}
	}
	return NewWithBackends(cfg, backends...)
}

// NewWithBackends builds a Searcher over explicit backends.
func NewWithBackends(cfg types.SearchConfig, backends ...Backend) (*Searcher, error) {
	s := &Searcher{Backends: backends, Config: cfg}
	var err error
	if s.dateFrom, err = parseDate(cfg.DateFrom); err != nil {
		return nil, fmt.Errorf("search date_from: %w", err)
	}
	if s.dateTo, err = parseDate(cfg.DateTo); err != nil {
		return nil, fmt.Errorf("search date_to: %w", err)
	}
	if !s.dateFrom.IsZero() && !s.dateTo.IsZero() && s.dateTo.Before(s.dateFrom) {
		return nil, fmt.Errorf("search date_to %s is before date_from %s", cfg.DateTo, cfg.DateFrom)
	}
	return s, nil
}

func parseDate(v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateFmt, strings.TrimSpace(v))
}

// Related runs the search and folds any failure into a degraded result.
// It never returns an error: a failed search only removes the related-work
// section from the summary.
func (s *Searcher) Related(ctx context.Context, q Query) types.RelatedWork {
	citations, err := s.Search(ctx, q)
	if err != nil {
		log.WithError(err).WithField("query", q.String()).Warn("related-paper search degraded")
		return types.RelatedWork{Unavailable: err.Error(), Err: err}
	}
	return types.RelatedWork{Citations: citations}
}

// Search queries each backend sequentially, deduplicates results, filters
// them to the configured date window, ranks them by relevance, and keeps the
// top MaxResults. It fails with *SearchError when the query is empty or
// every backend fails; a partial backend failure only logs a warning.
func (s *Searcher) Search(ctx context.Context, q Query) ([]types.PaperCitation, error) {
	if q.IsEmpty() {
		return nil, &SearchError{Reason: "no search terms could be derived from the summary"}
	}
	if len(s.Backends) == 0 {
		return nil, &SearchError{Reason: "no search backends configured"}
	}

	maxResults := s.Config.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	var all []types.PaperCitation
	var backendErrors []string
	for i, b := range s.Backends {
		if i > 0 && s.Config.InterBackendDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, &SearchError{Reason: "cancelled", BackendErrors: []string{ctx.Err().Error()}}
			case <-time.After(s.Config.InterBackendDelay):
			}
		}

		results, err := b.Search(ctx, q, s.Config)
		if err != nil {
			backendErrors = append(backendErrors, fmt.Sprintf("%s: %v", b.Name(), err))
			log.WithError(err).WithField("backend", b.Name()).Warn("search backend failed")
			continue
		}
		log.WithFields(log.Fields{"backend": b.Name(), "results": len(results)}).Debug("search backend returned")
		all = append(all, results...)
	}
	if len(backendErrors) == len(s.Backends) {
		return nil, &SearchError{Reason: "all backends failed", BackendErrors: backendErrors}
	}

	deduped, _ := deduplicate(all)
	deduped = filterDates(deduped, s.dateFrom, s.dateTo)

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].RelevanceScore > deduped[j].RelevanceScore
	})
	if len(deduped) > maxResults {
		deduped = deduped[:maxResults]
	}
	return deduped, nil
}

// positionScore turns a provider's rank into a score in [0.1, 1.0].
func positionScore(i, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 1.0 - float64(i)/float64(total-1)*0.9
}

// deduplicate merges citations that share an identifier or normalized title.
func deduplicate(citations []types.PaperCitation) ([]types.PaperCitation, int) {
	seen := make(map[string]int) // dedup key → index in deduped
	var deduped []types.PaperCitation
	removed := 0

	for _, c := range citations {
		idKey := ""
		if c.Identifier != "" {
			idKey = "id:" + strings.ToLower(c.Identifier)
		}
		titleKey := ""
		if t := normalizeTitle(c.Title); t != "" {
			titleKey = "title:" + t
		}

		if idx, ok := seen[idKey]; ok && idKey != "" {
			mergeInto(&deduped[idx], c)
			removed++
			continue
		}
		if idx, ok := seen[titleKey]; ok && titleKey != "" {
			mergeInto(&deduped[idx], c)
			removed++
			continue
		}

		idx := len(deduped)
		deduped = append(deduped, c)
		if idKey != "" {
			seen[idKey] = idx
		}
		if titleKey != "" {
			seen[titleKey] = idx
		}
	}
	return deduped, removed
}

// mergeInto fills empty fields of dst from src and keeps the higher score.
func mergeInto(dst *types.PaperCitation, src types.PaperCitation) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}
	if dst.DOI == "" {
		dst.DOI = src.DOI
	}
	if dst.Date.IsZero() {
		dst.Date = src.Date
	}
	if src.RelevanceScore > dst.RelevanceScore {
		dst.RelevanceScore = src.RelevanceScore
	}
	// An arXiv identifier gives the most useful link.
	if isArxivID(src.Identifier) && !isArxivID(dst.Identifier) {
		dst.Identifier = src.Identifier
		dst.Link = src.Link
	}
	if dst.Link == "" {
		dst.Link = src.Link
	}
	if src.Source != "" && !strings.Contains(dst.Source, src.Source) {
		dst.Source = dst.Source + "," + src.Source
	}
}

// filterDates drops citations dated outside [from, to]. Undated citations are kept.
func filterDates(citations []types.PaperCitation, from, to time.Time) []types.PaperCitation {
	if from.IsZero() && to.IsZero() {
		return citations
	}
	kept := citations[:0]
	for _, c := range citations {
		if !c.Date.IsZero() {
			if !from.IsZero() && c.Date.Before(from) {
				continue
			}
			// to is inclusive of the whole day.
			if !to.IsZero() && !c.Date.Before(to.AddDate(0, 0, 1)) {
				continue
			}
		}
		kept = append(kept, c)
	}
	return kept
}

// isArxivID reports whether s looks like a new-style arXiv ID (e.g. "2301.07041").
func isArxivID(s string) bool {
	if len(s) < 9 {
		return false
	}
	return s[4] == '.' && s[0] >= '0' && s[0] <= '9'
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
