// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assemble

import (
	"strings"
)

// Section is the body of markdown under one level-two heading.
type Section struct {
	Heading string
	Body    string
}

// Parsed is a model summary split into its structural parts.
type Parsed struct {
	// FrontMatter is the YAML between the leading --- fences, without them.
	FrontMatter string

	// Title is the text of the first level-one heading.
	Title string

	// Preamble is any text between the title and the first section.
	Preamble string

	Sections []Section
}

// Section returns the first section whose heading matches name, ignoring
// case and a trailing colon.
func (p Parsed) Section(name string) (Section, bool) {
	for _, s := range p.Sections {
		if headingKey(s.Heading) == headingKey(name) {
			return s, true
		}
	}
	return Section{}, false
}

// Parse splits model output into front matter, title, preamble, and
// level-two sections. Deeper headings stay inside their section body and
// headings inside fenced code blocks are ignored. A code fence wrapping the
// whole response is removed first.
func Parse(markdown string) Parsed {
	lines := strings.Split(unwrapFence(strings.ReplaceAll(markdown, "\r\n", "\n")), "\n")

	var p Parsed
	i := skipBlank(lines, 0)

	if i < len(lines) && strings.TrimSpace(lines[i]) == "---" {
		if end := closingFrontMatter(lines, i+1); end > 0 {
			p.FrontMatter = strings.Join(lines[i+1:end], "\n")
			i = end + 1
		}
	}

	var (
		current  *Section
		preamble []string
		body     []string
		inFence  bool
	)
	flush := func() {
		if current != nil {
			current.Body = trimBlankLines(strings.Join(body, "\n"))
			p.Sections = append(p.Sections, *current)
		}
		body = nil
	}

	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if isFence(trimmed) {
			inFence = !inFence
		}

		switch {
		case !inFence && p.Title == "" && current == nil && isTitle(trimmed):
			p.Title = stripHeadingPrefix(trimmed)
		case !inFence && isSectionHeading(trimmed):
			flush()
			current = &Section{Heading: stripHeadingPrefix(trimmed)}
		case current == nil:
			preamble = append(preamble, line)
		default:
			body = append(body, line)
		}
	}
	flush()

	p.Preamble = trimBlankLines(strings.Join(preamble, "\n"))
	return p
}

// unwrapFence removes a ``` fence that encloses the whole response.
func unwrapFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return s
	}
	firstNL := strings.Index(trimmed, "\n")
	if firstNL < 0 {
		return s
	}
	inner := strings.TrimSuffix(trimmed[firstNL+1:], "```")
	// An inner fence means the outer markers belong to separate blocks.
	if strings.Contains(inner, "```") {
		return s
	}
	return inner
}

func closingFrontMatter(lines []string, from int) int {
	for j := from; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == "---" {
			return j
		}
	}
	return -1
}

func skipBlank(lines []string, i int) int {
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	return i
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}

func isTitle(line string) bool {
	return strings.HasPrefix(line, "# ")
}

func isSectionHeading(line string) bool {
	return strings.HasPrefix(line, "## ")
}

// stripHeadingPrefix removes the leading # characters and whitespace.
func stripHeadingPrefix(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

// headingKey normalizes a heading for comparison.
func headingKey(h string) string {
	h = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(h), ":"))
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// trimBlankLines drops leading and trailing blank lines but keeps the
// indentation of the first content line.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
