package parser

import (
	"bytes"
	"context"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/masahif/hondana/internal/resource"
)

// maxTitleLength is the longest first line still treated as a title
const maxTitleLength = 80

// TextParser converts plain text and reStructuredText sources to XHTML and
// then behaves like an HTMLParser.
type TextParser struct {
	*HTMLParser
	rst       bool
	converted bool
}

var _ Document = (*TextParser)(nil)

// NewTextParser creates a parser for a text resource
func NewTextParser(attribs *resource.Attributes, body []byte) Parser {
	return &TextParser{
		HTMLParser: newHTMLParser(attribs, body),
		rst:        attribs.EffectiveMediaType().Is(resource.TypeRST),
	}
}

// PreParse converts the text to XHTML and builds the tree
func (p *TextParser) PreParse(ctx context.Context) error {
	if !p.converted {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := string(decodeToUTF8(p.body, p.contentType))
		p.body = textToHTML(text, p.rst)
		p.contentType = "text/html; charset=utf-8"
		p.attribs.MediaType = resource.MediaType{Type: resource.TypeXHTML}
		p.converted = true
	}
	return p.HTMLParser.PreParse(ctx)
}

// Parse runs the HTML normalization over the converted document
func (p *TextParser) Parse(ctx context.Context) error {
	if err := p.PreParse(ctx); err != nil {
		return err
	}
	return p.HTMLParser.Parse(ctx)
}

// textToHTML lays text out as a document. Paragraphs are separated by blank
// lines. A short single-line first paragraph becomes the title. In rst mode
// underlined lines become headings, levelled by the order their adornment
// characters first appear.
func textToHTML(text string, rst bool) []byte {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")
	paragraphs := splitParagraphs(text)

	var title string
	var body bytes.Buffer
	adornments := map[rune]int{}

	for i, para := range paragraphs {
		if rst {
			if heading, char, ok := rstHeading(para); ok {
				level, seen := adornments[char]
				if !seen {
					level = len(adornments) + 1
					adornments[char] = level
				}
				if level > 6 {
					level = 6
				}
				if title == "" {
					title = heading
				}
				tag := "h" + string(rune('0'+level))
				body.WriteString("<" + tag + ">" + html.EscapeString(heading) + "</" + tag + ">\n")
				continue
			}
		}
		if i == 0 && len(para) == 1 && utf8.RuneCountInString(para[0]) <= maxTitleLength {
			title = para[0]
			body.WriteString("<h1>" + html.EscapeString(title) + "</h1>\n")
			continue
		}
		body.WriteString("<p>" + html.EscapeString(strings.Join(para, " ")) + "</p>\n")
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"/>")
	if title != "" {
		out.WriteString("<title>" + html.EscapeString(title) + "</title>")
	}
	out.WriteString("</head><body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body></html>\n")
	return out.Bytes()
}

// splitParagraphs groups trimmed non-blank lines into paragraphs
func splitParagraphs(text string) [][]string {
	var paragraphs [][]string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs
}

// rstHeading recognizes "Title\n=====" and "=====\nTitle\n=====" sections
func rstHeading(para []string) (string, rune, bool) {
	switch len(para) {
	case 2:
		if char, ok := adornment(para[1]); ok && utf8.RuneCountInString(para[1]) >= utf8.RuneCountInString(para[0]) {
			return para[0], char, true
		}
	case 3:
		over, ok1 := adornment(para[0])
		under, ok2 := adornment(para[2])
		if ok1 && ok2 && over == under {
			return para[1], under, true
		}
	}
	return "", 0, false
}

// adornment reports whether line is a run of one punctuation character
func adornment(line string) (rune, bool) {
	if utf8.RuneCountInString(line) < 2 {
		return 0, false
	}
	first, _ := utf8.DecodeRuneInString(line)
	if !strings.ContainsRune("=-~^\"'`#*+_:.", first) {
		return 0, false
	}
	for _, r := range line {
		if r != first {
			return 0, false
		}
	}
	return first, true
}
