package format

import (
	"strings"
	"testing"

	"smartnotes/core"
)

func TestParseBlocks(t *testing.T) {
	src := "# Title\n\nSome intro text\nspanning two lines.\n\n## Details\n\n- first\n- second\n\n1. one\n2. two\n\n```go\nfmt.Println(\"hi\")\n```\n"
	doc := Parse(src)

	if len(doc.Blocks) != 6 {
		t.Fatalf("expected 6 blocks, got %d", len(doc.Blocks))
	}

	h, ok := doc.Blocks[0].(*Heading)
	if !ok || h.Level != 1 || PlainText(h.Inlines) != "Title" {
		t.Errorf("block 0: expected H1 'Title', got %#v", doc.Blocks[0])
	}

	p, ok := doc.Blocks[1].(*Paragraph)
	if !ok || PlainText(p.Inlines) != "Some intro text spanning two lines." {
		t.Errorf("block 1: paragraph lines not joined: %#v", doc.Blocks[1])
	}

	ul, ok := doc.Blocks[3].(*List)
	if !ok || ul.Ordered || len(ul.Items) != 2 {
		t.Errorf("block 3: expected unordered list with 2 items, got %#v", doc.Blocks[3])
	}

	ol, ok := doc.Blocks[4].(*List)
	if !ok || !ol.Ordered || len(ol.Items) != 2 {
		t.Errorf("block 4: expected ordered list with 2 items, got %#v", doc.Blocks[4])
	}

	cb, ok := doc.Blocks[5].(*CodeBlock)
	if !ok || cb.Language != "go" || len(cb.Lines) != 1 {
		t.Errorf("block 5: expected go code block, got %#v", doc.Blocks[5])
	}
}

func TestParseInlines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Inline
	}{
		{
			name: "plain",
			in:   "just text",
			want: []Inline{{Kind: InlineText, Text: "just text"}},
		},
		{
			name: "bold and italic",
			in:   "a **bold** and *soft* word",
			want: []Inline{
				{Kind: InlineText, Text: "a "},
				{Kind: InlineStrong, Text: "bold"},
				{Kind: InlineText, Text: " and "},
				{Kind: InlineEmph, Text: "soft"},
				{Kind: InlineText, Text: " word"},
			},
		},
		{
			name: "code span",
			in:   "run `go vet` now",
			want: []Inline{
				{Kind: InlineText, Text: "run "},
				{Kind: InlineCode, Text: "go vet"},
				{Kind: InlineText, Text: " now"},
			},
		},
		{
			name: "link",
			in:   "see [docs](ref.md)",
			want: []Inline{
				{Kind: InlineText, Text: "see "},
				{Kind: InlineLink, Text: "docs", URL: "ref.md"},
			},
		},
		{
			name: "unmatched marker stays literal",
			in:   "2 * 3 = 6",
			want: []Inline{{Kind: InlineText, Text: "2 * 3 = 6"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseInlines(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d spans, want %d: %#v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d: got %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRenderMarkdownRoundTrip(t *testing.T) {
	src := "# Title\n\nA **bold** claim with `code`.\n\n- alpha\n- beta\n\n```\nraw line\n```\n"
	got := RenderMarkdown(Parse(src))
	if got != src {
		t.Errorf("round trip mismatch:\ngot:  %q\nwant: %q", got, src)
	}
}

func TestConvertMarkdown(t *testing.T) {
	out, err := Convert("Photosynthesis", "Body text.", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.HasPrefix(out, "# Photosynthesis\n\n") {
		t.Errorf("missing title heading: %q", out)
	}

	// Already titled content is untouched.
	titled := "# Photosynthesis\n\nBody text."
	out, err = Convert("Photosynthesis", titled, core.FormatMarkdown)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out != titled {
		t.Errorf("titled content changed: %q", out)
	}
}

func TestConvertLaTeX(t *testing.T) {
	src := "# Cell Biology\n\nIntro with **bold** and 50% more.\n\n## Organelles\n\n- mitochondria\n\n```\ncode here\n```\n"
	out, err := Convert("Cell Biology", src, core.FormatLaTeX)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for _, want := range []string{
		"\\documentclass{article}",
		"\\usepackage[utf8]{inputenc}",
		"\\usepackage{hyperref}",
		"\\title{Cell Biology}",
		"\\maketitle",
		"\\subsection{Organelles}",
		"\\begin{itemize}",
		"\\item mitochondria",
		"\\begin{verbatim}\ncode here\n\\end{verbatim}",
		"\\textbf{bold}",
		"50\\% more",
		"\\end{document}",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
	// The leading H1 duplicates \title and must not become a \section.
	if strings.Contains(out, "\\section{Cell Biology}") {
		t.Errorf("title heading rendered as section:\n%s", out)
	}
}

func TestConvertHTML(t *testing.T) {
	src := "# Acids & Bases\n\nA paragraph with *emphasis*.\n\n```\nif a < b {\n```\n"
	out, err := Convert("Acids & Bases", src, core.FormatHTML)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Acids &amp; Bases</title>",
		"max-width: 800px",
		"<h1>Acids &amp; Bases</h1>",
		"<p>A paragraph with <em>emphasis</em>.</p>",
		"<pre><code>if a &lt; b {</code></pre>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestLinkTitles(t *testing.T) {
	names := []string{"Neural Networks", "Neural Networks Training", "AI", "Gradient Descent"}
	src := "# Gradient Descent\n\nNeural Networks Training relies on Neural Networks and AI.\n"

	doc := Parse(src)
	LinkTitles(doc, "Gradient Descent", names, core.FormatMarkdown)
	out := RenderMarkdown(doc)

	if !strings.Contains(out, "[Neural Networks Training](Neural_Networks_Training.md)") {
		t.Errorf("longest title not preferred:\n%s", out)
	}
	if !strings.Contains(out, "[Neural Networks](Neural_Networks.md)") {
		t.Errorf("second occurrence not linked:\n%s", out)
	}
	// Titles under four characters never link.
	if strings.Contains(out, "[AI]") {
		t.Errorf("short title linked:\n%s", out)
	}
	// A note never links to itself.
	if strings.Contains(out, "[Gradient Descent]") {
		t.Errorf("self link created:\n%s", out)
	}
}

func TestLinkTitlesWordBoundary(t *testing.T) {
	doc := Parse("Osmosis is not Osmosisx.\n")
	LinkTitles(doc, "Other", []string{"Osmosis"}, core.FormatMarkdown)
	out := RenderMarkdown(doc)
	if !strings.Contains(out, "[Osmosis](Osmosis.md) is") {
		t.Errorf("standalone mention not linked: %s", out)
	}
	if strings.Contains(out, "[Osmosis](Osmosis.md)x") {
		t.Errorf("partial word linked: %s", out)
	}
}

func TestLinkTitlesSkipsCodeAndLinks(t *testing.T) {
	doc := Parse("See `Mitosis` and [Mitosis](other.md) but also Mitosis.\n")
	LinkTitles(doc, "Other", []string{"Mitosis"}, core.FormatMarkdown)
	out := RenderMarkdown(doc)
	if !strings.Contains(out, "`Mitosis`") {
		t.Errorf("code span rewritten: %s", out)
	}
	if !strings.Contains(out, "[Mitosis](other.md)") {
		t.Errorf("existing link rewritten: %s", out)
	}
	if !strings.Contains(out, "[Mitosis](Mitosis.md)") {
		t.Errorf("plain mention not linked: %s", out)
	}
}

func TestConvertLinkedTargets(t *testing.T) {
	src := "# Alpha\n\nRelates to Beta Topic.\n"
	names := []string{"Beta Topic"}

	md, err := ConvertLinked("Alpha", src, core.FormatMarkdown, names)
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	if !strings.Contains(md, "[Beta Topic](Beta_Topic.md)") {
		t.Errorf("markdown link missing:\n%s", md)
	}

	tex, err := ConvertLinked("Alpha", src, core.FormatLaTeX, names)
	if err != nil {
		t.Fatalf("latex: %v", err)
	}
	if !strings.Contains(tex, "\\hyperref[Beta_Topic]{Beta Topic}") {
		t.Errorf("latex link missing:\n%s", tex)
	}

	html, err := ConvertLinked("Alpha", src, core.FormatHTML, names)
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(html, `<a href="Beta_Topic.html">Beta Topic</a>`) {
		t.Errorf("html link missing:\n%s", html)
	}
}

func TestLinkTarget(t *testing.T) {
	if got := LinkTarget("Cell Division", core.FormatMarkdown); got != "Cell_Division.md" {
		t.Errorf("markdown target = %q", got)
	}
	if got := LinkTarget("Cell Division", core.FormatHTML); got != "Cell_Division.html" {
		t.Errorf("html target = %q", got)
	}
	if got := LinkTarget("Cell Division", core.FormatLaTeX); got != "Cell_Division" {
		t.Errorf("latex target = %q", got)
	}
}
