// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assemble

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxSlugLen = 80

// Slug lowercases s and joins its letter and digit runs with underscores.
// Non-ASCII letters are kept. The result is at most 80 bytes and never
// ends in an underscore.
func Slug(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	slug := b.String()
	if len(slug) <= maxSlugLen {
		return slug
	}
	slug = slug[:maxSlugLen]
	// Cut back to a word boundary so no rune or word is split.
	if i := strings.LastIndexByte(slug, '_'); i > 0 {
		slug = slug[:i]
	}
	for !utf8.ValidString(slug) {
		slug = slug[:len(slug)-1]
	}
	return strings.TrimRight(slug, "_")
}

// Filename turns a model-suggested name into a markdown file name. Quotes,
// code markers, and an extension the model may add are removed. It returns
// "" when nothing usable remains.
func Filename(suggested string) string {
	name := strings.TrimSpace(suggested)
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		name = name[:i]
	}
	name = strings.Trim(name, "`'\" ")
	lower := strings.ToLower(name)
	for _, ext := range []string{".md", ".markdown", ".txt"} {
		if strings.HasSuffix(lower, ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}
	slug := Slug(name)
	if slug == "" {
		return ""
	}
	return slug + ".md"
}
