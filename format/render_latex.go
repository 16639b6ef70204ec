package format

import (
	"strings"
)

// latexRenderer emits the document body between \maketitle and
// \end{document}. The preamble is added by Convert.
type latexRenderer struct {
	sb        strings.Builder
	skipTitle string // heading text to drop, already emitted via \title
	skipped   bool
}

// RenderLaTeXBody renders the document blocks as LaTeX. If skipTitle is
// non-empty, the first level-1 heading whose text equals it is dropped.
func RenderLaTeXBody(doc *Document, skipTitle string) string {
	r := &latexRenderer{skipTitle: skipTitle}
	doc.Walk(r)
	return r.sb.String()
}

func (r *latexRenderer) VisitHeading(h *Heading) {
	text := PlainText(h.Inlines)
	if h.Level == 1 && !r.skipped && r.skipTitle != "" && text == r.skipTitle {
		r.skipped = true
		return
	}
	switch h.Level {
	case 1:
		r.sb.WriteString("\\section{" + renderInlinesLaTeX(h.Inlines) + "}\n")
	case 2:
		r.sb.WriteString("\\subsection{" + renderInlinesLaTeX(h.Inlines) + "}\n")
	default:
		r.sb.WriteString("\\subsubsection{" + renderInlinesLaTeX(h.Inlines) + "}\n")
	}
}

func (r *latexRenderer) VisitList(l *List) {
	env := "itemize"
	if l.Ordered {
		env = "enumerate"
	}
	r.sb.WriteString("\\begin{" + env + "}\n")
	for _, item := range l.Items {
		r.sb.WriteString("\\item " + renderInlinesLaTeX(item) + "\n")
	}
	r.sb.WriteString("\\end{" + env + "}\n")
}

func (r *latexRenderer) VisitCodeBlock(c *CodeBlock) {
	r.sb.WriteString("\\begin{verbatim}\n")
	for _, line := range c.Lines {
		r.sb.WriteString(line + "\n")
	}
	r.sb.WriteString("\\end{verbatim}\n")
}

func (r *latexRenderer) VisitParagraph(p *Paragraph) {
	r.sb.WriteString(renderInlinesLaTeX(p.Inlines) + "\n\n")
}

func renderInlinesLaTeX(inlines []Inline) string {
	var sb strings.Builder
	for _, span := range inlines {
		switch span.Kind {
		case InlineStrong:
			sb.WriteString("\\textbf{" + escapeLaTeX(span.Text) + "}")
		case InlineEmph:
			sb.WriteString("\\textit{" + escapeLaTeX(span.Text) + "}")
		case InlineCode:
			sb.WriteString("\\texttt{" + escapeLaTeX(span.Text) + "}")
		case InlineLink:
			sb.WriteString("\\hyperref[" + span.URL + "]{" + escapeLaTeX(span.Text) + "}")
		default:
			sb.WriteString(escapeLaTeX(span.Text))
		}
	}
	return sb.String()
}

var latexEscaper = strings.NewReplacer(
	"\\", "\\textbackslash{}",
	"&", "\\&",
	"%", "\\%",
	"$", "\\$",
	"#", "\\#",
	"_", "\\_",
	"{", "\\{",
	"}", "\\}",
	"~", "\\textasciitilde{}",
	"^", "\\textasciicircum{}",
)

func escapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}
