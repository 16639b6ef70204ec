package format

import (
	"fmt"
	"strings"
)

// htmlRenderer emits the body of a standalone HTML page. The surrounding
// document shell (head, inline stylesheet) is added by Convert.
type htmlRenderer struct {
	sb strings.Builder
}

// RenderHTMLBody renders the document blocks as HTML without the page shell.
func RenderHTMLBody(doc *Document) string {
	r := &htmlRenderer{}
	doc.Walk(r)
	return r.sb.String()
}

func (r *htmlRenderer) VisitHeading(h *Heading) {
	fmt.Fprintf(&r.sb, "<h%d>%s</h%d>\n", h.Level, renderInlinesHTML(h.Inlines), h.Level)
}

func (r *htmlRenderer) VisitList(l *List) {
	tag := "ul"
	if l.Ordered {
		tag = "ol"
	}
	fmt.Fprintf(&r.sb, "<%s>\n", tag)
	for _, item := range l.Items {
		fmt.Fprintf(&r.sb, "<li>%s</li>\n", renderInlinesHTML(item))
	}
	fmt.Fprintf(&r.sb, "</%s>\n", tag)
}

func (r *htmlRenderer) VisitCodeBlock(c *CodeBlock) {
	r.sb.WriteString("<pre><code>")
	for i, line := range c.Lines {
		if i > 0 {
			r.sb.WriteString("\n")
		}
		r.sb.WriteString(escapeHTML(line))
	}
	r.sb.WriteString("</code></pre>\n")
}

func (r *htmlRenderer) VisitParagraph(p *Paragraph) {
	fmt.Fprintf(&r.sb, "<p>%s</p>\n", renderInlinesHTML(p.Inlines))
}

func renderInlinesHTML(inlines []Inline) string {
	var sb strings.Builder
	for _, span := range inlines {
		switch span.Kind {
		case InlineStrong:
			sb.WriteString("<strong>" + escapeHTML(span.Text) + "</strong>")
		case InlineEmph:
			sb.WriteString("<em>" + escapeHTML(span.Text) + "</em>")
		case InlineCode:
			sb.WriteString("<code>" + escapeHTML(span.Text) + "</code>")
		case InlineLink:
			sb.WriteString(`<a href="` + span.URL + `">` + escapeHTML(span.Text) + "</a>")
		default:
			sb.WriteString(escapeHTML(span.Text))
		}
	}
	return sb.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
