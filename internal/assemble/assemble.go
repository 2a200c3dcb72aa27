// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assemble turns a model summary and the related-paper search result
// into the final markdown document.
package assemble

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/apex/log"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/poster-to-markdown/internal/prompt"
	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// leadingSections are emitted first, in this order. Any other section
// follows in the order the model produced it.
var leadingSections = []string{
	prompt.HeadingAuthors,
	prompt.HeadingSummary,
	prompt.HeadingFindings,
	prompt.HeadingMethodology,
	prompt.HeadingTechnical,
}

// relatedHeadings are model-produced sections replaced by the searched
// related work. The model cannot verify citations, so its own list is dropped.
var relatedHeadings = map[string]bool{
	"related work":   true,
	"related works":  true,
	"related papers": true,
}

// Options controls document assembly.
type Options struct {
	// Tags are merged into the front matter tag list.
	Tags []string

	// Source is recorded in the front matter as the poster file name.
	Source string

	// FallbackTitle is used when the model produced no title.
	FallbackTitle string
}

// Document rebuilds summary in canonical section order and appends a
// Related Work section when rw carries citations. A degraded search leaves
// the section out entirely.
func Document(summary string, rw types.RelatedWork, opts Options) string {
	p := Parse(summary)

	var b strings.Builder

	fm, err := mergeFrontMatter(p.FrontMatter, opts.Tags, opts.Source)
	if err != nil {
		log.WithError(err).Debug("front matter kept verbatim")
	}
	if strings.TrimSpace(fm) != "" {
		fmt.Fprintf(&b, "---\n%s\n---\n\n", fm)
	}

	title := p.Title
	if title == "" {
		title = opts.FallbackTitle
	}
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	if p.Preamble != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Preamble)
	}

	for _, s := range orderSections(p.Sections) {
		writeSection(&b, s.Heading, s.Body)
	}

	if rw.Available() {
		writeSection(&b, prompt.HeadingRelated, FormatRelatedWork(rw.Citations))
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSection(b *strings.Builder, heading, body string) {
	if body == "" {
		fmt.Fprintf(b, "## %s\n\n", heading)
		return
	}
	fmt.Fprintf(b, "## %s\n\n%s\n\n", heading, body)
}

// orderSections puts the leading sections first and drops model-produced
// related work. Repeated headings keep their relative order.
func orderSections(sections []Section) []Section {
	used := make([]bool, len(sections))
	var ordered []Section

	for _, want := range leadingSections {
		for i, s := range sections {
			if !used[i] && headingKey(s.Heading) == headingKey(want) {
				ordered = append(ordered, s)
				used[i] = true
			}
		}
	}
	for i, s := range sections {
		if used[i] || relatedHeadings[headingKey(s.Heading)] {
			continue
		}
		ordered = append(ordered, s)
	}
	return ordered
}

// FormatRelatedWork renders citations as a numbered markdown list.
func FormatRelatedWork(citations []types.PaperCitation) string {
	lines := make([]string, 0, len(citations))
	for i, c := range citations {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, FormatCitation(c)))
	}
	return strings.Join(lines, "\n")
}

// FormatCitation renders one citation as a single markdown line:
// linked title, up to three authors, year, and identifiers.
func FormatCitation(c types.PaperCitation) string {
	var b strings.Builder

	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = c.Identifier
	}
	if c.Link != "" {
		fmt.Fprintf(&b, "[%s](%s)", title, c.Link)
	} else {
		b.WriteString(title)
	}

	if authors := formatAuthors(c.Authors); authors != "" {
		b.WriteString(" - " + authors)
	}
	if !c.Date.IsZero() {
		fmt.Fprintf(&b, " (%d)", c.Date.Year())
	}
	if looksLikeArxiv(c.Identifier) {
		fmt.Fprintf(&b, ". arXiv:%s", c.Identifier)
	}
	if c.DOI != "" {
		fmt.Fprintf(&b, ". DOI: [%s](https://doi.org/%s)", c.DOI, c.DOI)
	}
	return b.String()
}

func formatAuthors(authors []string) string {
	var names []string
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			names = append(names, a)
		}
	}
	switch {
	case len(names) == 0:
		return ""
	case len(names) > 3:
		return strings.Join(names[:3], ", ") + " et al."
	default:
		return strings.Join(names, ", ")
	}
}

// looksLikeArxiv reports whether id is a new-style arXiv identifier.
func looksLikeArxiv(id string) bool {
	return len(id) >= 9 && id[4] == '.' && id[0] >= '0' && id[0] <= '9'
}

// mergeFrontMatter adds tags and a source key to the YAML front matter.
// Existing keys and their order are preserved. When there is nothing to add
// the input is returned unchanged; when it cannot be parsed it is returned
// unchanged with the error.
func mergeFrontMatter(fm string, tags []string, source string) (string, error) {
	if len(tags) == 0 && source == "" {
		return fm, nil
	}

	var doc yaml.Node
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &doc); err != nil {
			return fm, fmt.Errorf("parsing front matter: %w", err)
		}
	}

	var root *yaml.Node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = doc.Content[0]
	} else {
		root = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	}
	if root.Kind != yaml.MappingNode {
		return fm, fmt.Errorf("front matter is not a mapping")
	}

	if len(tags) > 0 {
		seq := mappingValue(root, "tags")
		if seq == nil {
			seq = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			root.Content = append(root.Content, scalar("tags"), seq)
		}
		if seq.Kind == yaml.ScalarNode {
			existing := *seq
			*seq = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			if strings.TrimSpace(existing.Value) != "" {
				seq.Content = []*yaml.Node{&existing}
			}
		}
		if seq.Kind != yaml.SequenceNode {
			return fm, fmt.Errorf("front matter tags is not a list")
		}
		have := make(map[string]bool, len(seq.Content))
		for _, n := range seq.Content {
			have[n.Value] = true
		}
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" && !have[t] {
				seq.Content = append(seq.Content, scalar(t))
				have[t] = true
			}
		}
	}

	if source != "" && mappingValue(root, "source") == nil {
		root.Content = append(root.Content, scalar("source"), scalar(source))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fm, fmt.Errorf("encoding front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fm, fmt.Errorf("encoding front matter: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// SourceOf returns the source image name recorded in a document's front
// matter, or "" when there is none.
func SourceOf(doc string) string {
	fm := Parse(doc).FrontMatter
	if strings.TrimSpace(fm) == "" {
		return ""
	}
	var meta struct {
		Source string `yaml:"source"`
	}
	if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
		return ""
	}
	return strings.TrimSpace(meta.Source)
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
