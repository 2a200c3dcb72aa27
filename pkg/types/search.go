// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PaperCitation is a candidate related paper returned by a bibliographic
// search backend. Citations are consumed only while assembling one job's markdown.
type PaperCitation struct {
	// Identifier is the canonical ID from the source (arXiv ID or DOI).
	Identifier string `json:"identifier" yaml:"identifier"`

	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Link is a browsable URL for the paper (arXiv abstract page or DOI resolver).
	Link string `json:"link" yaml:"link"`

	// DOI is set when the source reports one, independent of Identifier.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Date is the publication or preprint date.
	Date time.Time `json:"date" yaml:"date"`

	// Source identifies which backend found this citation (e.g. "arxiv", "openalex").
	Source string `json:"source" yaml:"source"`

	// RelevanceScore is a value between 0.0 and 1.0 derived from the provider's ranking.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`
}

// RelatedWork is the outcome of the search stage. Exactly one of the two
// shapes is meaningful: Citations when the search succeeded, Unavailable
// when it degraded. An empty citation list with no reason means the search
// ran and found nothing.
type RelatedWork struct {
	Citations []PaperCitation

	// Unavailable is the reason no related work could be retrieved.
	Unavailable string

	// Err is the underlying search failure, kept for logging.
	Err error
}

// Available reports whether the search stage produced citations.
func (r RelatedWork) Available() bool {
	return r.Unavailable == "" && len(r.Citations) > 0
}

// Degraded reports whether the search stage failed and was skipped.
func (r RelatedWork) Degraded() bool {
	return r.Unavailable != ""
}
