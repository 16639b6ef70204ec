package format

import (
	"sort"
	"strings"
	"unicode"

	"smartnotes/core"
)

// minLinkableTitle keeps very short titles ("AI", "Go") from turning
// every mention into a link.
const minLinkableTitle = 4

// LinkTitles walks the document and turns plain-text occurrences of other
// note titles into links. Matching is a single left-to-right pass per text
// span with the candidate titles tried longest first, so "Neural Network
// Training" wins over "Neural Network". Code spans, code blocks, and
// existing links are left alone; the note's own title never links to itself.
func LinkTitles(doc *Document, self string, names []string, target core.Format) {
	candidates := linkCandidates(self, names)
	if len(candidates) == 0 {
		return
	}
	for _, block := range doc.Blocks {
		switch b := block.(type) {
		case *Heading:
			b.Inlines = linkInlines(b.Inlines, candidates, target)
		case *Paragraph:
			b.Inlines = linkInlines(b.Inlines, candidates, target)
		case *List:
			for i, item := range b.Items {
				b.Items[i] = linkInlines(item, candidates, target)
			}
		}
	}
}

// LinkTarget returns the link destination for a note title in the given
// format: a relative .md or .html filename, or a LaTeX label.
func LinkTarget(name string, target core.Format) string {
	underscored := strings.ReplaceAll(name, " ", "_")
	switch target {
	case core.FormatHTML:
		return underscored + ".html"
	case core.FormatLaTeX:
		return underscored
	default:
		return underscored + ".md"
	}
}

func linkCandidates(self string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if len([]rune(name)) < minLinkableTitle || name == self {
			continue
		}
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// linkInlines rewrites only plain-text spans; styled spans, code, and
// pre-existing links pass through untouched.
func linkInlines(inlines []Inline, candidates []string, target core.Format) []Inline {
	out := make([]Inline, 0, len(inlines))
	for _, span := range inlines {
		if span.Kind != InlineText {
			out = append(out, span)
			continue
		}
		out = append(out, linkText(span.Text, candidates, target)...)
	}
	return out
}

func linkText(text string, candidates []string, target core.Format) []Inline {
	var out []Inline
	var plain strings.Builder
	i := 0
	for i < len(text) {
		name, ok := matchCandidate(text, i, candidates)
		if !ok {
			plain.WriteByte(text[i])
			i++
			continue
		}
		if plain.Len() > 0 {
			out = append(out, Inline{Kind: InlineText, Text: plain.String()})
			plain.Reset()
		}
		out = append(out, Inline{Kind: InlineLink, Text: name, URL: LinkTarget(name, target)})
		i += len(name)
	}
	if plain.Len() > 0 {
		out = append(out, Inline{Kind: InlineText, Text: plain.String()})
	}
	if out == nil {
		out = []Inline{{Kind: InlineText, Text: text}}
	}
	return out
}

// matchCandidate tries each title at position i, longest first, requiring
// word boundaries on both sides.
func matchCandidate(text string, i int, candidates []string) (string, bool) {
	if !boundaryBefore(text, i) {
		return "", false
	}
	for _, name := range candidates {
		if !strings.HasPrefix(text[i:], name) {
			continue
		}
		if boundaryAfter(text, i+len(name)) {
			return name, true
		}
	}
	return "", false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(text[i-1])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
