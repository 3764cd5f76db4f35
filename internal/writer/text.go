package writer

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	htmlnode "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/masahif/hondana/internal/dom"
)

var repeatedSpaceRegex = regexp.MustCompile(`\s+`)

// blockElements end a run of inline content
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true,
	atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true,
	atom.Pre: true, atom.Section: true, atom.Table: true, atom.Tr: true,
	atom.Ul: true,
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// textBlock is one paragraph or heading of extracted text. level is the
// heading level, 0 for body text.
type textBlock struct {
	level int
	text  string
}

// extractor turns HTML blocks into plain text through a strict sanitizer
type extractor struct {
	policy *bluemonday.Policy
}

func newExtractor() *extractor {
	return &extractor{policy: bluemonday.StrictPolicy()}
}

func (x *extractor) clean(markup string) string {
	text := repeatedSpaceRegex.ReplaceAllString(x.policy.Sanitize(markup), " ")
	return strings.TrimSpace(html.UnescapeString(text))
}

// blocks returns the text blocks below n in document order
func (x *extractor) blocks(n *htmlnode.Node) []textBlock {
	var out []textBlock
	var inline bytes.Buffer

	flush := func() {
		if inline.Len() == 0 {
			return
		}
		if text := x.clean(inline.String()); text != "" {
			out = append(out, textBlock{text: text})
		}
		inline.Reset()
	}

	var walk func(n *htmlnode.Node)
	walk = func(n *htmlnode.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != htmlnode.ElementNode || !blockElements[c.DataAtom] {
				_ = htmlnode.Render(&inline, c)
				continue
			}
			flush()
			if level := headingLevels[c.DataAtom]; level > 0 || !hasBlockChild(c) {
				if text := x.clean(string(dom.Render(c))); text != "" {
					out = append(out, textBlock{level: level, text: text})
				}
				continue
			}
			walk(c)
			flush()
		}
	}
	walk(n)
	flush()
	return out
}

func hasBlockChild(n *htmlnode.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == htmlnode.ElementNode && blockElements[c.DataAtom] {
			return true
		}
	}
	return false
}

// bookBlocks extracts the text of every chunk in order
func bookBlocks(ctx context.Context, b *book) ([]textBlock, error) {
	x := newExtractor()
	var out []textBlock
	for _, chunk := range b.chunker.Chunks() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if body := dom.FindElement(chunk.Doc, atom.Body); body != nil {
			out = append(out, x.blocks(body)...)
		}
	}
	return out, nil
}

// TextWriter writes UTF-8 plain text
type TextWriter struct{}

var _ Writer = (*TextWriter)(nil)

func (w *TextWriter) Format() string {
	return "txt"
}

func (w *TextWriter) Build(ctx context.Context, job *Job) (string, error) {
	b, err := prepare(ctx, job)
	if err != nil {
		return "", err
	}
	blocks, err := bookBlocks(ctx, b)
	if err != nil {
		return "", err
	}

	var s strings.Builder
	writeHeading(&s, b.title, '=')
	if b.author != "" {
		fmt.Fprintf(&s, "%s\n\n", b.author)
	}
	for _, block := range blocks {
		switch block.level {
		case 1:
			writeHeading(&s, block.text, '=')
		case 2:
			writeHeading(&s, block.text, '-')
		default:
			s.WriteString(block.text)
			s.WriteString("\n\n")
		}
	}

	if err := ensureDir(job); err != nil {
		return "", err
	}
	out := job.OutputPath(".txt")
	if err := os.WriteFile(out, []byte(s.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write text: %w", err)
	}

	slog.Info("Text written", "path", out, "blocks", len(blocks))
	return out, nil
}

func writeHeading(s *strings.Builder, text string, underline rune) {
	s.WriteString(text)
	s.WriteByte('\n')
	s.WriteString(strings.Repeat(string(underline), utf8.RuneCountInString(text)))
	s.WriteString("\n\n")
}
