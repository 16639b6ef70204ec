package format

import (
	"fmt"
	"strings"

	"smartnotes/core"
)

// Convert renders Markdown note content into the requested output format.
//
// Markdown output is near-passthrough: the content is guaranteed to start
// with a level-1 title heading. LaTeX and HTML outputs are complete
// standalone documents.
//
// Example:
//
//	out, err := format.Convert("Neural Networks", body, core.FormatLaTeX)
func Convert(title, content string, target core.Format) (string, error) {
	switch target {
	case core.FormatMarkdown:
		return ensureTitle(title, content), nil
	case core.FormatLaTeX:
		return latexDocument(title, Parse(content)), nil
	case core.FormatHTML:
		return htmlDocument(title, Parse(content)), nil
	default:
		return "", fmt.Errorf("convert: unsupported format %q", target)
	}
}

// ConvertLinked is Convert with a cross-linking pass: occurrences of other
// note titles in the content become links to those notes, in the syntax of
// the target format.
func ConvertLinked(title, content string, target core.Format, names []string) (string, error) {
	doc := Parse(content)
	LinkTitles(doc, title, names, target)
	switch target {
	case core.FormatMarkdown:
		return ensureTitle(title, RenderMarkdown(doc)), nil
	case core.FormatLaTeX:
		return latexDocument(title, doc), nil
	case core.FormatHTML:
		return htmlDocument(title, doc), nil
	default:
		return "", fmt.Errorf("convert: unsupported format %q", target)
	}
}

func ensureTitle(title, content string) string {
	if strings.HasPrefix(content, "# ") {
		return content
	}
	return "# " + title + "\n\n" + content
}

func latexDocument(title string, doc *Document) string {
	var sb strings.Builder
	sb.WriteString("\\documentclass{article}\n")
	sb.WriteString("\\usepackage[utf8]{inputenc}\n")
	sb.WriteString("\\usepackage{hyperref}\n")
	sb.WriteString("\\usepackage{graphicx}\n")
	sb.WriteString("\\usepackage{amssymb,amsmath}\n")
	sb.WriteString("\\title{" + escapeLaTeX(title) + "}\n")
	sb.WriteString("\\date{}\n")
	sb.WriteString("\\begin{document}\n")
	sb.WriteString("\\maketitle\n")
	sb.WriteString(RenderLaTeXBody(doc, title))
	sb.WriteString("\\end{document}\n")
	return sb.String()
}

const htmlStyle = `body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 20px; }
code { background-color: #f5f5f5; padding: 2px 4px; border-radius: 3px; }
pre { background-color: #f5f5f5; padding: 10px; border-radius: 5px; overflow-x: auto; }
a { color: #0366d6; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 8px; }
img { max-width: 100%; }`

func htmlDocument(title string, doc *Document) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html>\n<head>\n")
	sb.WriteString("<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>" + escapeHTML(title) + "</title>\n")
	sb.WriteString("<style>\n" + htmlStyle + "\n</style>\n")
	sb.WriteString("</head>\n<body>\n")
	sb.WriteString(RenderHTMLBody(doc))
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}
