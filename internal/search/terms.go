// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"regexp"
	"strings"

	"github.com/pdiddy/poster-to-markdown/internal/assemble"
	"github.com/pdiddy/poster-to-markdown/internal/prompt"
)

var (
	// bracketRe matches one parenthesized or bracketed affiliation such as
	// "(MIT)" anywhere in an author name.
	bracketRe = regexp.MustCompile(`\s*(?:\([^()]*\)|\[[^\[\]]*\])`)

	// affiliationRe matches trailing superscript digits or footnote symbols.
	affiliationRe = regexp.MustCompile(`\s*[\d¹²³⁴⁵⁶⁷⁸⁹⁰*†‡,]+\s*$`)

	// authorSepRe separates names on one line.
	authorSepRe = regexp.MustCompile(`\s*(?:,|;|&|\band\b)\s*`)

	// placeholderRe matches template placeholders the model left unfilled.
	placeholderRe = regexp.MustCompile(`^<.*>$`)
)

// maxFallbackWords bounds the free text taken from the summary when the
// poster has no title.
const maxFallbackWords = 20

// TermsFromSummary derives a search query from a model summary: the title
// as free text and the first and last authors. When the title is missing,
// the first sentence of the Summary section stands in for it.
func TermsFromSummary(markdown string) Query {
	p := assemble.Parse(markdown)

	var q Query
	q.FreeText = cleanText(p.Title)
	if placeholderRe.MatchString(q.FreeText) {
		q.FreeText = ""
	}
	if q.FreeText == "" {
		if s, ok := p.Section(prompt.HeadingSummary); ok {
			q.FreeText = firstSentence(s.Body)
		}
	}

	if s, ok := p.Section(prompt.HeadingAuthors); ok {
		authors := parseAuthors(s.Body)
		switch {
		case len(authors) == 1:
			q.Authors = authors
		case len(authors) > 1:
			q.Authors = []string{authors[0], authors[len(authors)-1]}
		}
	}
	return q
}

// parseAuthors reads one author per list item, or a comma-separated line.
func parseAuthors(body string) []string {
	var authors []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		isItem := false
		for _, marker := range []string{"- ", "* ", "+ "} {
			if strings.HasPrefix(line, marker) {
				line = strings.TrimSpace(line[len(marker):])
				isItem = true
				break
			}
		}

		names := []string{line}
		if !isItem {
			names = authorSepRe.Split(line, -1)
		}
		for _, n := range names {
			if n = cleanAuthor(n); n != "" {
				authors = append(authors, n)
			}
		}
	}
	return authors
}

func cleanAuthor(name string) string {
	name = cleanText(bracketRe.ReplaceAllString(name, " "))
	for {
		stripped := affiliationRe.ReplaceAllString(name, "")
		if stripped == name {
			break
		}
		name = stripped
	}
	if name == "" || placeholderRe.MatchString(name) {
		return ""
	}
	return name
}

// cleanText removes emphasis markers and collapses whitespace.
func cleanText(s string) string {
	s = strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// firstSentence returns the text up to the first sentence terminator,
// capped at maxFallbackWords words.
func firstSentence(body string) string {
	text := cleanText(body)
	for i, r := range text {
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(text) || text[i+1] == ' ') {
			text = text[:i]
			break
		}
	}
	words := strings.Fields(text)
	if len(words) > maxFallbackWords {
		words = words[:maxFallbackWords]
	}
	return strings.Join(words, " ")
}
