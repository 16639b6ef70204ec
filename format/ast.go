// Package format converts generated note content (Markdown) into the
// requested output representation and cross-links topic mentions between
// notes. Conversion parses a small Markdown AST once and renders it per
// target format instead of line-scanning with regexes.
package format

// Node is a block-level element of a parsed note.
type Node interface {
	Accept(v Visitor)
}

// Visitor renders or inspects block nodes. Each output format implements
// its own Visitor.
type Visitor interface {
	VisitHeading(h *Heading)
	VisitList(l *List)
	VisitCodeBlock(c *CodeBlock)
	VisitParagraph(p *Paragraph)
}

// Document is an ordered sequence of block nodes.
type Document struct {
	Blocks []Node
}

// Walk applies the visitor to every block in order.
func (d *Document) Walk(v Visitor) {
	for _, block := range d.Blocks {
		block.Accept(v)
	}
}

// Heading is an ATX heading (level 1-6).
type Heading struct {
	Level   int
	Inlines []Inline
}

func (h *Heading) Accept(v Visitor) { v.VisitHeading(h) }

// List is a run of consecutive bullet or numbered items.
type List struct {
	Ordered bool
	Items   [][]Inline
}

func (l *List) Accept(v Visitor) { v.VisitList(l) }

// CodeBlock is a fenced code block. Lines hold the verbatim content.
type CodeBlock struct {
	Language string
	Lines    []string
}

func (c *CodeBlock) Accept(v Visitor) { v.VisitCodeBlock(c) }

// Paragraph is a run of consecutive plain text lines.
type Paragraph struct {
	Inlines []Inline
}

func (p *Paragraph) Accept(v Visitor) { v.VisitParagraph(p) }

// InlineKind discriminates inline span types.
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineStrong
	InlineEmph
	InlineCode
	InlineLink
)

// Inline is a flat span of styled text. Link spans carry a URL.
type Inline struct {
	Kind InlineKind
	Text string
	URL  string
}

// PlainText flattens inline spans back to their unstyled text.
func PlainText(inlines []Inline) string {
	var out []byte
	for _, span := range inlines {
		out = append(out, span.Text...)
	}
	return string(out)
}
