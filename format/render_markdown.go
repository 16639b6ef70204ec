package format

import (
	"fmt"
	"strings"
)

// markdownRenderer writes the AST back out as Markdown. Used after the
// hyperlink pass so rewritten notes round-trip cleanly.
type markdownRenderer struct {
	sb strings.Builder
}

// RenderMarkdown renders a parsed document as Markdown text.
func RenderMarkdown(doc *Document) string {
	r := &markdownRenderer{}
	doc.Walk(r)
	return strings.TrimRight(r.sb.String(), "\n") + "\n"
}

func (r *markdownRenderer) VisitHeading(h *Heading) {
	r.sb.WriteString(strings.Repeat("#", h.Level))
	r.sb.WriteString(" ")
	r.sb.WriteString(renderInlinesMarkdown(h.Inlines))
	r.sb.WriteString("\n\n")
}

func (r *markdownRenderer) VisitList(l *List) {
	for i, item := range l.Items {
		if l.Ordered {
			fmt.Fprintf(&r.sb, "%d. %s\n", i+1, renderInlinesMarkdown(item))
		} else {
			fmt.Fprintf(&r.sb, "- %s\n", renderInlinesMarkdown(item))
		}
	}
	r.sb.WriteString("\n")
}

func (r *markdownRenderer) VisitCodeBlock(c *CodeBlock) {
	r.sb.WriteString("```")
	r.sb.WriteString(c.Language)
	r.sb.WriteString("\n")
	for _, line := range c.Lines {
		r.sb.WriteString(line)
		r.sb.WriteString("\n")
	}
	r.sb.WriteString("```\n\n")
}

func (r *markdownRenderer) VisitParagraph(p *Paragraph) {
	r.sb.WriteString(renderInlinesMarkdown(p.Inlines))
	r.sb.WriteString("\n\n")
}

// renderInlinesMarkdown restores inline markers around styled spans.
func renderInlinesMarkdown(inlines []Inline) string {
	var sb strings.Builder
	for _, span := range inlines {
		switch span.Kind {
		case InlineStrong:
			sb.WriteString("**" + span.Text + "**")
		case InlineEmph:
			sb.WriteString("*" + span.Text + "*")
		case InlineCode:
			sb.WriteString("`" + span.Text + "`")
		case InlineLink:
			sb.WriteString("[" + span.Text + "](" + span.URL + ")")
		default:
			sb.WriteString(span.Text)
		}
	}
	return sb.String()
}
