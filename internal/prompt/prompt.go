// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt assembles the instruction text sent with each poster image.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// Section headings the summary is requested in, in order. The assembler
// relies on the same names to restore this order.
const (
	HeadingAuthors     = "Authors"
	HeadingSummary     = "Summary"
	HeadingFindings    = "Key Findings"
	HeadingMethodology = "Methodology"
	HeadingTechnical   = "Technical Details"
	HeadingImpact      = "Impact and Applications"
	HeadingRemarks     = "Few Remarks"
	HeadingRelated     = "Related Work"
)

// DefaultTags is the topic vocabulary offered when no override is configured.
var DefaultTags = []string{
	"topic/soft-robot",
	"topic/multi-agent",
	"topic/reinforcement-learning",
	"topic/imitation-learning",
	"topic/manipulation",
	"topic/HRI",
	"topic/EMG-EEG-MEG",
	"topic/unknown",
}

// DefaultAlwaysTags are added to every summary when no override is configured.
var DefaultAlwaysTags = []string{"poster"}

// FilenamePrompt asks for a short filename once the summary exists.
const FilenamePrompt = `Based on the poster summary above, what would be an appropriate filename, in snake_case, for this markdown summary? Provide just the filename without extension. The filename must be in English, 3-5 words max.`

var posterPromptTmpl = template.Must(template.New("poster").Parse(`This is a research poster. Provide a formal markdown summary of its content.

Tag the summary with up to three topic tags chosen from:
{{- range .Tags}}
    {{.}}
{{- end}}
{{- if .AlwaysTags}}
Always add:{{range .AlwaysTags}} {{.}}{{end}}
{{- end}}

Follow this template structure exactly, keeping the sections in this order (do not wrap the output in a code fence):

---
tags:
  - <tag1>
  - <tag2>
---

# <Poster Title>

> Generated from {{if .Source}}{{.Source}}{{else}}a poster photo{{end}}; the poster may have been misread, double check against the image.

## {{.H.Authors}}
- <Author 1> (<affiliation>)
- <Author 2> (<affiliation>)

## {{.H.Summary}}
<Abstract or one-paragraph summary of the poster>

## {{.H.Findings}}
<Key findings as bullet points>

## {{.H.Methodology}}
<Methodology, with **key terms** highlighted>

## {{.H.Technical}}
- Implementation: <frameworks, tools, hardware>
- Evaluation: <how the work was evaluated, metrics used>
- Limitations: <limitations mentioned or apparent>
- Future Work: <future work mentioned on the poster>

## {{.H.Impact}}
- Potential Applications: <only if stated on the poster>
- Industry Relevance: <only if stated on the poster>
{{- if .Interests}}

## {{.H.Remarks}}
<How this poster relates to the reader's research: {{.Interests}}>
{{- end}}

Rules:
- Do not add content that is not on the poster.
- Do not add a related work section; it is added separately.
- Provide a formal, non-conversational response without offers of further assistance.
{{- if .Extra}}

{{.Extra}}
{{- end}}
`))

// Options customizes the instruction. Zero values fall back to defaults.
type Options struct {
	types.PromptConfig

	// Source is the poster file name cited in the double-check note.
	Source string
}

type headings struct {
	Authors, Summary, Findings, Methodology, Technical, Impact, Remarks string
}

type templateData struct {
	Tags       []string
	AlwaysTags []string
	Interests  string
	Extra      string
	Source     string
	H          headings
}

// Build returns the instruction text for one poster. It is deterministic:
// the same options always produce the same string.
func Build(opts Options) (string, error) {
	data := templateData{
		Tags:       opts.Tags,
		AlwaysTags: opts.AlwaysTags,
		Interests:  strings.TrimSpace(opts.Interests),
		Extra:      strings.TrimSpace(opts.Extra),
		Source:     opts.Source,
		H: headings{
			Authors:     HeadingAuthors,
			Summary:     HeadingSummary,
			Findings:    HeadingFindings,
			Methodology: HeadingMethodology,
			Technical:   HeadingTechnical,
			Impact:      HeadingImpact,
			Remarks:     HeadingRemarks,
		},
	}
	if len(data.Tags) == 0 {
		data.Tags = DefaultTags
	}
	if data.AlwaysTags == nil {
		data.AlwaysTags = DefaultAlwaysTags
	}

	var buf bytes.Buffer
	if err := posterPromptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering poster prompt: %w", err)
	}
	return buf.String(), nil
}
