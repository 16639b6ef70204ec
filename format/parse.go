package format

import (
	"strings"
)

// Parse builds a Document from note content in Markdown.
//
// The grammar is deliberately small, matching what the note-generation
// prompts ask the model for: ATX headings, bullet and numbered lists,
// fenced code blocks, and paragraphs, with flat inline spans for bold,
// italic, inline code, and links.
func Parse(content string) *Document {
	doc := &Document{}
	lines := strings.Split(content, "\n")

	var paragraph []string
	var list *List
	var code *CodeBlock

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		text := strings.Join(paragraph, " ")
		doc.Blocks = append(doc.Blocks, &Paragraph{Inlines: ParseInlines(text)})
		paragraph = nil
	}
	flushList := func() {
		if list == nil {
			return
		}
		doc.Blocks = append(doc.Blocks, list)
		list = nil
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		// Fenced code blocks take lines verbatim until the closing fence.
		if code != nil {
			if strings.HasPrefix(line, "```") {
				doc.Blocks = append(doc.Blocks, code)
				code = nil
				continue
			}
			code.Lines = append(code.Lines, raw)
			continue
		}
		if strings.HasPrefix(line, "```") {
			flushParagraph()
			flushList()
			code = &CodeBlock{Language: strings.TrimSpace(strings.TrimPrefix(line, "```"))}
			continue
		}

		if line == "" {
			flushParagraph()
			flushList()
			continue
		}

		if level, text, ok := parseHeading(line); ok {
			flushParagraph()
			flushList()
			doc.Blocks = append(doc.Blocks, &Heading{Level: level, Inlines: ParseInlines(text)})
			continue
		}

		if item, ok := parseBulletItem(line); ok {
			flushParagraph()
			if list == nil || list.Ordered {
				flushList()
				list = &List{Ordered: false}
			}
			list.Items = append(list.Items, ParseInlines(item))
			continue
		}

		if item, ok := parseNumberedItem(line); ok {
			flushParagraph()
			if list == nil || !list.Ordered {
				flushList()
				list = &List{Ordered: true}
			}
			list.Items = append(list.Items, ParseInlines(item))
			continue
		}

		flushList()
		paragraph = append(paragraph, line)
	}

	flushParagraph()
	flushList()
	if code != nil {
		// Unterminated fence at EOF still renders as code.
		doc.Blocks = append(doc.Blocks, code)
	}

	return doc
}

// parseHeading recognizes ATX headings "# " through "###### ".
func parseHeading(line string) (level int, text string, ok bool) {
	for level = 0; level < len(line) && line[level] == '#'; level++ {
	}
	if level < 1 || level > 6 {
		return 0, "", false
	}
	if level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level+1:]), true
}

// parseBulletItem recognizes "- item" and "* item".
func parseBulletItem(line string) (string, bool) {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), true
	}
	return "", false
}

// parseNumberedItem recognizes "1. item", "12. item", etc.
func parseNumberedItem(line string) (string, bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(line) || line[i] != '.' || line[i+1] != ' ' {
		return "", false
	}
	return strings.TrimSpace(line[i+2:]), true
}

// ParseInlines splits text into flat styled spans: **bold**, __bold__,
// *italic*, _italic_, `code`, and [text](url). Unmatched markers stay
// literal text.
func ParseInlines(text string) []Inline {
	var spans []Inline
	var plain []byte

	flushPlain := func() {
		if len(plain) > 0 {
			spans = append(spans, Inline{Kind: InlineText, Text: string(plain)})
			plain = nil
		}
	}

	i := 0
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], "**"):
			if inner, width, ok := scanDelimited(text[i:], "**", "**"); ok {
				flushPlain()
				spans = append(spans, Inline{Kind: InlineStrong, Text: inner})
				i += width
				continue
			}
		case strings.HasPrefix(text[i:], "__"):
			if inner, width, ok := scanDelimited(text[i:], "__", "__"); ok {
				flushPlain()
				spans = append(spans, Inline{Kind: InlineStrong, Text: inner})
				i += width
				continue
			}
		case text[i] == '*':
			if inner, width, ok := scanDelimited(text[i:], "*", "*"); ok {
				flushPlain()
				spans = append(spans, Inline{Kind: InlineEmph, Text: inner})
				i += width
				continue
			}
		case text[i] == '_':
			if inner, width, ok := scanDelimited(text[i:], "_", "_"); ok {
				flushPlain()
				spans = append(spans, Inline{Kind: InlineEmph, Text: inner})
				i += width
				continue
			}
		case text[i] == '`':
			if inner, width, ok := scanDelimited(text[i:], "`", "`"); ok {
				flushPlain()
				spans = append(spans, Inline{Kind: InlineCode, Text: inner})
				i += width
				continue
			}
		case text[i] == '[':
			if linkText, url, width, ok := scanLink(text[i:]); ok {
				flushPlain()
				spans = append(spans, Inline{Kind: InlineLink, Text: linkText, URL: url})
				i += width
				continue
			}
		}
		plain = append(plain, text[i])
		i++
	}

	flushPlain()
	return spans
}

// scanDelimited matches opening + non-empty inner + closing at the start
// of s. Returns the inner text and total consumed width.
func scanDelimited(s, opening, closing string) (inner string, width int, ok bool) {
	body := s[len(opening):]
	end := strings.Index(body, closing)
	if end <= 0 {
		return "", 0, false
	}
	return body[:end], len(opening) + end + len(closing), true
}

// scanLink matches [text](url) at the start of s.
func scanLink(s string) (text, url string, width int, ok bool) {
	closeBracket := strings.Index(s, "]")
	if closeBracket <= 1 || closeBracket+1 >= len(s) || s[closeBracket+1] != '(' {
		return "", "", 0, false
	}
	closeParen := strings.Index(s[closeBracket+2:], ")")
	if closeParen < 0 {
		return "", "", 0, false
	}
	text = s[1:closeBracket]
	url = s[closeBracket+2 : closeBracket+2+closeParen]
	return text, url, closeBracket + closeParen + 3, true
}
