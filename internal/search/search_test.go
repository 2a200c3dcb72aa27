package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// --- mock backend ---

type mockBackend struct {
	name    string
	results []types.PaperCitation
	err     error
	calls   int
	query   Query
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Search(_ context.Context, q Query, _ types.SearchConfig) ([]types.PaperCitation, error) {
	m.calls++
	m.query = q
	return m.results, m.err
}

func testCfg() types.SearchConfig {
	return types.SearchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "test/0.1",
		},
		Enabled:    true,
		MaxResults: 10,
		MaxRetries: -1,
	}
}

func mustSearcher(t *testing.T, cfg types.SearchConfig, backends ...Backend) *Searcher {
	t.Helper()
	s, err := NewWithBackends(cfg, backends...)
	if err != nil {
		t.Fatalf("NewWithBackends: %v", err)
	}
	return s
}

// --- Query ---

func TestQueryIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"empty", Query{}, true},
		{"whitespace", Query{FreeText: "  ", Keywords: []string{" "}}, true},
		{"free text", Query{FreeText: "soft robots"}, false},
		{"keywords only", Query{Keywords: []string{"snn"}}, false},
		{"authors only", Query{Authors: []string{"Ada Lovelace"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- Searcher ---

func TestSearchMergesAndRanks(t *testing.T) {
	arxiv := &mockBackend{name: "arxiv", results: []types.PaperCitation{
		{Identifier: "2301.07041", Title: "Paper A", Source: "arxiv", RelevanceScore: 0.6},
		{Identifier: "2301.99999", Title: "Paper B", Source: "arxiv", RelevanceScore: 0.4},
	}}
	s2 := &mockBackend{name: "semantic_scholar", results: []types.PaperCitation{
		{Identifier: "10.1/b", Title: "paper b!", DOI: "10.1/b", Source: "semantic_scholar", RelevanceScore: 0.9},
		{Identifier: "10.1/c", Title: "Paper C", Source: "semantic_scholar", RelevanceScore: 0.5},
	}}

	s := mustSearcher(t, testCfg(), arxiv, s2)
	got, err := s.Search(context.Background(), Query{FreeText: "soft robots"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d citations, want 3", len(got))
	}
	// Paper B merged with the S2 duplicate: keeps the arXiv ID, the DOI and the higher score.
	if got[0].Identifier != "2301.99999" || got[0].DOI != "10.1/b" || got[0].RelevanceScore != 0.9 {
		t.Errorf("first = %+v, want merged Paper B", got[0])
	}
	if got[0].Source != "arxiv,semantic_scholar" {
		t.Errorf("Source = %q", got[0].Source)
	}
	if got[1].Title != "Paper A" || got[2].Title != "Paper C" {
		t.Errorf("order = %q, %q", got[1].Title, got[2].Title)
	}
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	var many []types.PaperCitation
	for i := 0; i < 25; i++ {
		many = append(many, types.PaperCitation{
			Identifier:     fmt.Sprintf("id-%d", i),
			Title:          fmt.Sprintf("Paper %d", i),
			RelevanceScore: positionScore(i, 25),
		})
	}

	cfg := testCfg()
	cfg.MaxResults = 0 // default of 10
	s := mustSearcher(t, cfg, &mockBackend{name: "arxiv", results: many})

	got, err := s.Search(context.Background(), Query{FreeText: "x"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d, want 10", len(got))
	}
	if got[0].Title != "Paper 0" || got[9].Title != "Paper 9" {
		t.Errorf("kept %q..%q, want the top ten", got[0].Title, got[9].Title)
	}
}

func TestSearchPartialFailureIsNotDegraded(t *testing.T) {
	failing := &mockBackend{name: "openalex", err: errors.New("HTTP 503")}
	ok := &mockBackend{name: "arxiv", results: []types.PaperCitation{{Identifier: "2301.07041", Title: "A"}}}

	s := mustSearcher(t, testCfg(), failing, ok)
	rw := s.Related(context.Background(), Query{FreeText: "x"})

	if rw.Degraded() {
		t.Fatalf("Degraded() = true, reason %q", rw.Unavailable)
	}
	if !rw.Available() || len(rw.Citations) != 1 {
		t.Errorf("Citations = %+v", rw.Citations)
	}
}

func TestSearchAllBackendsFail(t *testing.T) {
	a := &mockBackend{name: "arxiv", err: errors.New("timeout")}
	b := &mockBackend{name: "openalex", err: errors.New("HTTP 500")}

	s := mustSearcher(t, testCfg(), a, b)
	_, err := s.Search(context.Background(), Query{FreeText: "x"})

	var se *SearchError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SearchError", err)
	}
	if len(se.BackendErrors) != 2 {
		t.Errorf("BackendErrors = %v", se.BackendErrors)
	}
	if !strings.Contains(err.Error(), "arxiv: timeout") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRelatedDegradesOnFailure(t *testing.T) {
	s := mustSearcher(t, testCfg(), &mockBackend{name: "arxiv", err: errors.New("down")})
	rw := s.Related(context.Background(), Query{FreeText: "x"})

	if !rw.Degraded() || rw.Available() {
		t.Fatalf("rw = %+v, want degraded", rw)
	}
	var se *SearchError
	if !errors.As(rw.Err, &se) {
		t.Errorf("Err = %v, want *SearchError", rw.Err)
	}
}

func TestRelatedEmptyQueryDegradesWithoutCalls(t *testing.T) {
	mb := &mockBackend{name: "arxiv"}
	s := mustSearcher(t, testCfg(), mb)

	rw := s.Related(context.Background(), Query{})
	if !rw.Degraded() {
		t.Error("want degraded result for empty query")
	}
	if mb.calls != 0 {
		t.Errorf("backend called %d times", mb.calls)
	}
}

func TestSearchNoBackends(t *testing.T) {
	s := mustSearcher(t, testCfg())
	if _, err := s.Search(context.Background(), Query{FreeText: "x"}); err == nil {
		t.Error("want error with no backends")
	}
}

func TestSearchCancelledDuringDelay(t *testing.T) {
	cfg := testCfg()
	cfg.InterBackendDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	first := &mockBackend{name: "arxiv", results: []types.PaperCitation{{Title: "A"}}}
	s := mustSearcher(t, cfg, first, &mockBackend{name: "openalex"})

	cancel()
	_, err := s.Search(ctx, Query{FreeText: "x"})
	var se *SearchError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SearchError", err)
	}
}

func TestSearchDateFilter(t *testing.T) {
	cfg := testCfg()
	cfg.DateFrom = "2020-01-01"
	cfg.DateTo = "2022-12-31"

	mb := &mockBackend{name: "arxiv", results: []types.PaperCitation{
		{Identifier: "old", Title: "Old", Date: time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Identifier: "in", Title: "In", Date: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Identifier: "edge", Title: "Edge", Date: time.Date(2022, 12, 31, 15, 0, 0, 0, time.UTC)},
		{Identifier: "new", Title: "New", Date: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Identifier: "undated", Title: "Undated"},
	}}
	s := mustSearcher(t, cfg, mb)

	got, err := s.Search(context.Background(), Query{FreeText: "x"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var ids []string
	for _, c := range got {
		ids = append(ids, c.Identifier)
	}
	if strings.Join(ids, ",") != "in,edge,undated" {
		t.Errorf("ids = %v", ids)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*types.SearchConfig)
	}{
		{"unknown backend", func(c *types.SearchConfig) { c.Backends = []string{"google"} }},
		{"bad date", func(c *types.SearchConfig) { c.DateFrom = "2020/01/01" }},
		{"inverted window", func(c *types.SearchConfig) { c.DateFrom, c.DateTo = "2023-01-01", "2020-01-01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCfg()
			tt.modify(&cfg)
			if _, err := New(cfg, nil); err == nil {
				t.Error("want error")
			}
		})
	}
}

func TestNewBuildsBackends(t *testing.T) {
	cfg := testCfg()
	cfg.Backends = []string{"arxiv", "S2", "openalex"}
	cfg.SemanticScholarAPIKey = "key"
	cfg.OpenAlexEmail = "me@example.org"

	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var names []string
	for _, b := range s.Backends {
		names = append(names, b.Name())
	}
	if strings.Join(names, ",") != "arxiv,semantic_scholar,openalex" {
		t.Errorf("backends = %v", names)
	}
	if sb := s.Backends[1].(*SemanticScholarBackend); sb.APIKey != "key" {
		t.Errorf("APIKey = %q", sb.APIKey)
	}

	s, err = New(testCfg(), nil)
	if err != nil || len(s.Backends) != 1 || s.Backends[0].Name() != "arxiv" {
		t.Errorf("default backends = %v, %v", s, err)
	}
}

// --- helpers ---

func TestPositionScore(t *testing.T) {
	tests := []struct {
		i, total int
		want     float64
	}{
		{0, 1, 1.0},
		{0, 10, 1.0},
		{9, 10, 0.1},
		{1, 3, 0.55},
	}
	for _, tt := range tests {
		if got := positionScore(tt.i, tt.total); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("positionScore(%d, %d) = %v, want %v", tt.i, tt.total, got, tt.want)
		}
	}
}

func TestDeduplicateByTitle(t *testing.T) {
	results := []types.PaperCitation{
		{Identifier: "10.1/x", Title: "Attention Is All You Need", Source: "openalex"},
		{Identifier: "1706.03762", Title: "Attention is all you need.", Source: "arxiv", Link: "https://arxiv.org/abs/1706.03762"},
	}
	deduped, removed := deduplicate(results)
	if removed != 1 || len(deduped) != 1 {
		t.Fatalf("removed = %d, len = %d", removed, len(deduped))
	}
	if deduped[0].Identifier != "1706.03762" || deduped[0].Link != "https://arxiv.org/abs/1706.03762" {
		t.Errorf("merged = %+v, want arXiv identifier preferred", deduped[0])
	}
}

func TestSearchErrorMessage(t *testing.T) {
	err := &SearchError{Reason: "no terms"}
	if err.Error() != "search unavailable: no terms" {
		t.Errorf("Error() = %q", err.Error())
	}
}

// --- backends over HTTP ---

func TestArxivBackendParsesFeed(t *testing.T) {
	var captured *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/2301.07041v2</id>
    <published>2023-01-17T18:00:00Z</published>
    <title>Soft
      Continuum Robots</title>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <arxiv:doi>10.1000/soft</arxiv:doi>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2302.00001v1</id>
    <published>2023-02-01T00:00:00Z</published>
    <title>Second</title>
  </entry>
</feed>`)
	}))
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	cfg := testCfg()
	cfg.Categories = []string{"cs.RO"}
	b := &ArxivBackend{Client: ts.Client()}
	got, err := b.Search(context.Background(), Query{FreeText: "Soft robots", Authors: []string{"Ada Lovelace"}}, cfg)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	c := got[0]
	if c.Identifier != "2301.07041" || c.Title != "Soft Continuum Robots" || c.DOI != "10.1000/soft" {
		t.Errorf("first = %+v", c)
	}
	if c.Link != "https://arxiv.org/abs/2301.07041" || len(c.Authors) != 2 || c.Date.Year() != 2023 {
		t.Errorf("first = %+v", c)
	}
	if c.RelevanceScore != 1.0 || math.Abs(got[1].RelevanceScore-0.1) > 1e-9 {
		t.Errorf("scores = %v, %v", c.RelevanceScore, got[1].RelevanceScore)
	}

	sq := captured.URL.Query().Get("search_query")
	for _, want := range []string{"all:soft robots", "au:lovelace", "cat:cs.RO"} {
		if !strings.Contains(sq, want) {
			t.Errorf("search_query %q missing %q", sq, want)
		}
	}
	if captured.Header.Get("User-Agent") != "test/0.1" {
		t.Errorf("User-Agent = %q", captured.Header.Get("User-Agent"))
	}
}

func TestArxivBackendHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	b := &ArxivBackend{Client: ts.Client()}
	if _, err := b.Search(context.Background(), Query{FreeText: "x"}, testCfg()); err == nil {
		t.Error("want error on HTTP 503")
	}
}

func TestBuildArxivQuery(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		cats []string
		want string
	}{
		{"empty", Query{}, nil, ""},
		{"free text", Query{FreeText: "Soft, robots!"}, nil, "all:soft+robots"},
		{"keywords", Query{FreeText: "a", Keywords: []string{"b c"}}, nil, "all:a+AND+all:b+c"},
		{"authors only", Query{Authors: []string{"Ada Lovelace", "Alan Turing"}}, nil, "au:lovelace+OR+au:turing"},
		{"title and author", Query{FreeText: "a", Authors: []string{"Ada Lovelace"}}, nil, "%28all:a%29+OR+au:lovelace"},
		{"categories", Query{FreeText: "a"}, []string{"cs.RO", "cs.LG"}, "%28all:a%29+AND+%28cat:cs.RO+OR+cat:cs.LG%29"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildArxivQuery(tt.q, tt.cats); got != tt.want {
				t.Errorf("buildArxivQuery = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractArxivID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://arxiv.org/abs/2301.07041v1", "2301.07041"},
		{"http://arxiv.org/abs/2301.07041", "2301.07041"},
		{"http://arxiv.org/abs/hep-th/9901001v3", "hep-th/9901001"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := extractArxivID(tt.in); got != tt.want {
			t.Errorf("extractArxivID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSemanticScholarBackend(t *testing.T) {
	var captured *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total":3,"data":[
			{"paperId":"abc","title":"With arXiv","year":2021,"authors":[{"name":"A"}],"externalIds":{"ArXiv":"2101.00001","DOI":"10.1/a"}},
			{"paperId":"def","title":"With DOI","publicationDate":"2022-03-04","externalIds":{"DOI":"10.1/b"}},
			{"paperId":"ghi","title":"Bare","url":"https://www.semanticscholar.org/paper/ghi","externalIds":{}}
		]}`)
	}))
	defer ts.Close()

	old := semanticAPIBase
	semanticAPIBase = ts.URL
	defer func() { semanticAPIBase = old }()

	cfg := testCfg()
	cfg.DateFrom = "2020-01-01"
	cfg.DateTo = "2023-06-30"
	b := &SemanticScholarBackend{Client: ts.Client(), APIKey: "s2-key"}
	got, err := b.Search(context.Background(), Query{FreeText: "soft robots", Keywords: []string{"snn"}}, cfg)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	q := captured.URL.Query()
	if q.Get("query") != "soft robots snn" || q.Get("year") != "2020-2023" || q.Get("limit") != "10" {
		t.Errorf("query params = %v", q)
	}
	if captured.Header.Get("x-api-key") != "s2-key" {
		t.Error("missing API key header")
	}

	if len(got) != 3 {
		t.Fatalf("got %d", len(got))
	}
	if got[0].Identifier != "2101.00001" || got[0].Link != "https://arxiv.org/abs/2101.00001" || got[0].DOI != "10.1/a" {
		t.Errorf("arXiv paper = %+v", got[0])
	}
	if got[0].Date.Year() != 2021 {
		t.Errorf("year fallback date = %v", got[0].Date)
	}
	if got[1].Identifier != "10.1/b" || got[1].Link != "https://doi.org/10.1/b" || got[1].Date.Month() != time.March {
		t.Errorf("DOI paper = %+v", got[1])
	}
	if got[2].Identifier != "ghi" || got[2].Link != "https://www.semanticscholar.org/paper/ghi" {
		t.Errorf("bare paper = %+v", got[2])
	}
}

func TestSemanticScholarRejectsAuthorOnlyQuery(t *testing.T) {
	b := &SemanticScholarBackend{Client: http.DefaultClient}
	if _, err := b.Search(context.Background(), Query{Authors: []string{"A"}}, testCfg()); err == nil {
		t.Error("want error for a query without free text")
	}
}

func TestBuildYearRange(t *testing.T) {
	tests := []struct{ from, to, want string }{
		{"", "", ""},
		{"2020-01-01", "", "2020-"},
		{"", "2021-05-05", "-2021"},
		{"2019-01-01", "2020-01-01", "2019-2020"},
		{"garbage", "", ""},
	}
	for _, tt := range tests {
		if got := buildYearRange(tt.from, tt.to); got != tt.want {
			t.Errorf("buildYearRange(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestOpenAlexBackend(t *testing.T) {
	var captured *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[
			{"id":"https://openalex.org/W1","title":"Work One","doi":"https://doi.org/10.1/one","publication_date":"2020-05-01",
			 "authorships":[{"author":{"display_name":"Ada Lovelace"}},{"author":{"display_name":""}}]},
			{"id":"https://openalex.org/W2","title":"Work Two","publication_year":2018}
		]}`)
	}))
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	cfg := testCfg()
	cfg.MaxResults = 500
	cfg.DateFrom = "2018-01-01"
	b := &OpenAlexBackend{Client: ts.Client(), Email: "me@example.org"}
	got, err := b.Search(context.Background(), Query{FreeText: "soft robots"}, cfg)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	q := captured.URL.Query()
	if q.Get("search") != "soft robots" || q.Get("per_page") != "200" || q.Get("mailto") != "me@example.org" {
		t.Errorf("query params = %v", q)
	}
	if q.Get("filter") != "from_publication_date:2018-01-01" {
		t.Errorf("filter = %q", q.Get("filter"))
	}

	if len(got) != 2 {
		t.Fatalf("got %d", len(got))
	}
	if got[0].Identifier != "10.1/one" || got[0].DOI != "10.1/one" || got[0].Link != "https://doi.org/10.1/one" {
		t.Errorf("first = %+v", got[0])
	}
	if len(got[0].Authors) != 1 {
		t.Errorf("authors = %v", got[0].Authors)
	}
	if got[1].Identifier != "https://openalex.org/W2" || got[1].Date.Year() != 2018 {
		t.Errorf("second = %+v", got[1])
	}
}

func TestOpenAlexBackendBadJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	b := &OpenAlexBackend{Client: ts.Client()}
	if _, err := b.Search(context.Background(), Query{FreeText: "x"}, testCfg()); err == nil {
		t.Error("want parse error")
	}
}
