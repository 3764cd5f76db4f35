package parser

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/masahif/hondana/internal/dom"
	"github.com/masahif/hondana/internal/resource"
)

// allowedSchemes are the schemes the spider can follow
var allowedSchemes = map[string]bool{"http": true, "https": true, "file": true}

// HTMLParser parses HTML and XHTML documents
type HTMLParser struct {
	base
	contentType string
	doc         *html.Node
	baseURL     *url.URL
	parsed      bool

	title  string
	author string
	toc    []resource.TOCEntry
}

var _ Document = (*HTMLParser)(nil)

// NewHTMLParser creates a parser for an HTML resource
func NewHTMLParser(attribs *resource.Attributes, body []byte) Parser {
	return newHTMLParser(attribs, body)
}

func newHTMLParser(attribs *resource.Attributes, body []byte) *HTMLParser {
	return &HTMLParser{
		base:        base{attribs: attribs, body: body},
		contentType: attribs.OrigMediaType.String(),
	}
}

// PreParse decodes the body and builds the tree
func (p *HTMLParser) PreParse(ctx context.Context) error {
	if p.doc != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	baseURL, err := url.Parse(p.attribs.URL)
	if err != nil {
		return fmt.Errorf("invalid document URL: %w", err)
	}

	decoded := decodeToUTF8(p.body, p.contentType)
	doc, err := html.Parse(bytes.NewReader(decoded))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	p.doc = doc
	p.baseURL = baseURL
	if b := dom.FindElement(doc, atom.Base); b != nil {
		if href, ok := dom.Attr(b, "href"); ok && href != "" {
			if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
				p.baseURL = baseURL.ResolveReference(ref)
			}
		}
	}

	if p.attribs.MediaType.IsZero() {
		p.attribs.MediaType = resource.MediaType{Type: resource.TypeXHTML}
	}
	return nil
}

// Parse normalizes the tree: scripts are dropped, links made absolute, text
// NFC-normalized, the charset declaration replaced, headings given ids and
// the table of contents collected.
func (p *HTMLParser) Parse(ctx context.Context) error {
	if err := p.PreParse(ctx); err != nil {
		return err
	}
	if p.parsed {
		return nil
	}
	p.parsed = true

	p.normalizeHead()

	headingOrdinal := 0
	dom.Walk(p.doc, func(n *html.Node) bool {
		switch n.Type {
		case html.TextNode:
			n.Data = nfc(n.Data)
			return false
		case html.ElementNode:
		default:
			return true
		}

		switch n.DataAtom {
		case atom.Script, atom.Noscript:
			n.Parent.RemoveChild(n)
			return false
		case atom.Base:
			n.Parent.RemoveChild(n)
			return false
		case atom.Title:
			if p.title == "" {
				p.title = nfc(dom.TextContent(n))
			}
		case atom.Meta:
			p.parseMeta(n)
		case atom.H1, atom.H2, atom.H3:
			p.addTOCEntry(n, headingOrdinal)
			headingOrdinal++
		}

		for i, a := range n.Attr {
			switch a.Key {
			case "href", "src", "data":
				if abs, err := p.resolveURL(a.Val); err == nil {
					n.Attr[i].Val = abs
				}
			case "title", "alt":
				n.Attr[i].Val = nfc(a.Val)
			}
		}
		return true
	})

	if p.title == "" && len(p.toc) > 0 {
		p.title = p.toc[0].Title
	}
	return nil
}

// normalizeHead replaces charset declarations with UTF-8, since the tree is
// always serialized as UTF-8.
func (p *HTMLParser) normalizeHead() {
	head := dom.FindElement(p.doc, atom.Head)
	if head == nil {
		return
	}
	for _, c := range dom.ElementChildren(head) {
		if c.DataAtom != atom.Meta {
			continue
		}
		if _, ok := dom.Attr(c, "charset"); ok {
			head.RemoveChild(c)
			continue
		}
		if v, _ := dom.Attr(c, "http-equiv"); strings.EqualFold(v, "content-type") {
			head.RemoveChild(c)
		}
	}
	meta := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Meta,
		Data:     "meta",
		Attr:     []html.Attribute{{Key: "charset", Val: "utf-8"}},
	}
	head.InsertBefore(meta, head.FirstChild)
}

// parseMeta extracts the author from meta tags
func (p *HTMLParser) parseMeta(n *html.Node) {
	name, _ := dom.Attr(n, "name")
	content, _ := dom.Attr(n, "content")
	switch strings.ToLower(name) {
	case "author", "dc.creator":
		if p.author == "" {
			p.author = strings.TrimSpace(content)
		}
	case "dc.title":
		if p.title == "" {
			p.title = strings.TrimSpace(content)
		}
	}
}

// addTOCEntry records a heading, giving it an id when it has none
func (p *HTMLParser) addTOCEntry(n *html.Node, ordinal int) {
	title := nfc(dom.TextContent(n))
	if title == "" {
		return
	}
	id, ok := dom.Attr(n, "id")
	if !ok || id == "" {
		id = resource.GenerateID(p.attribs.URL, ordinal)
		dom.SetAttr(n, "id", id)
	}
	level := int(n.Data[1] - '0')
	p.toc = append(p.toc, resource.TOCEntry{
		URL:   p.attribs.URL + "#" + id,
		Title: title,
		Level: level,
	})
}

// IterLinks yields every followable link in document order
func (p *HTMLParser) IterLinks() iter.Seq2[string, Link] {
	return func(yield func(string, Link) bool) {
		if p.doc == nil {
			return
		}
		stop := false
		dom.Walk(p.doc, func(n *html.Node) bool {
			if stop {
				return false
			}
			if n.Type != html.ElementNode {
				return true
			}
			link, ok := p.linkFor(n)
			if !ok {
				return true
			}
			if !yield(link.URL, link) {
				stop = true
				return false
			}
			return true
		})
	}
}

// linkFor classifies an element and builds its link metadata
func (p *HTMLParser) linkFor(n *html.Node) (Link, bool) {
	var kind LinkKind
	var attr string

	switch n.DataAtom {
	case atom.A, atom.Area:
		kind, attr = KindAnchor, "href"
	case atom.Img:
		kind, attr = KindImage, "src"
	case atom.Image:
		kind, attr = KindImage, "href"
	case atom.Link:
		kind, attr = KindStyleLink, "href"
	case atom.Object:
		kind, attr = KindObject, "data"
	case atom.Embed:
		kind, attr = KindObject, "src"
	default:
		if n.Data != "image" {
			return Link{}, false
		}
		kind, attr = KindImage, "href"
	}

	href, ok := dom.Attr(n, attr)
	if !ok && attr == "href" {
		for _, a := range n.Attr {
			if a.Key == "href" && a.Namespace == "xlink" {
				href, ok = a.Val, true
			}
		}
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(href, "#") {
		return Link{}, false
	}

	abs, err := p.resolveURL(href)
	if err != nil || !isAllowedScheme(abs) {
		return Link{}, false
	}

	id, _ := dom.Attr(n, "id")
	title, _ := dom.Attr(n, "title")
	rel, _ := dom.Attr(n, "rel")
	typ, _ := dom.Attr(n, "type")

	link := Link{
		URL:   abs,
		Kind:  kind,
		Tag:   n.Data,
		ID:    id,
		Title: title,
		Rel:   parseRel(rel),
		Type:  strings.TrimSpace(typ),
	}

	if kind == KindAnchor && strings.HasPrefix(resource.GuessMediaType(abs).Type, "image/") {
		link.Rel = append(link.Rel, string(resource.RelLinkedImage))
	}
	return link, true
}

// RemapLinks rewrites href/src/data attributes through remap
func (p *HTMLParser) RemapLinks(remap map[string]string) {
	if p.doc == nil || len(remap) == 0 {
		return
	}
	dom.Walk(p.doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for i, a := range n.Attr {
			if a.Key != "href" && a.Key != "src" && a.Key != "data" {
				continue
			}
			abs, err := p.resolveURL(a.Val)
			if err != nil {
				continue
			}
			if target, ok := remapURL(abs, remap); ok {
				n.Attr[i].Val = target
			}
		}
		return true
	})
	for i, e := range p.toc {
		if target, ok := remapURL(e.URL, remap); ok {
			p.toc[i].URL = target
		}
	}
}

// resolveURL converts relative URLs to absolute URLs
func (p *HTMLParser) resolveURL(href string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	if p.baseURL == nil {
		return u.String(), nil
	}
	return p.baseURL.ResolveReference(u).String(), nil
}

// isAllowedScheme checks if an absolute URL has a followable scheme
func isAllowedScheme(abs string) bool {
	u, err := url.Parse(abs)
	if err != nil {
		return false
	}
	return allowedSchemes[u.Scheme]
}

// IsEmpty reports whether the body holds no element or text content
func (p *HTMLParser) IsEmpty() bool {
	if p.doc == nil {
		return true
	}
	body := dom.FindElement(p.doc, atom.Body)
	if body == nil {
		return true
	}
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode || (c.Type == html.TextNode && !dom.IsBlank(c)) {
			return false
		}
	}
	return true
}

// Document returns the parsed tree
func (p *HTMLParser) Document() *html.Node {
	return p.doc
}

// CloneDocument returns a deep copy of the parsed tree, for consumers that
// mutate it
func (p *HTMLParser) CloneDocument() *html.Node {
	if p.doc == nil {
		return nil
	}
	return dom.Clone(p.doc)
}

// Title returns the document title
func (p *HTMLParser) Title() string {
	return p.title
}

// Author returns the document author from its metadata
func (p *HTMLParser) Author() string {
	return p.author
}

// TOC returns the headings collected by Parse
func (p *HTMLParser) TOC() []resource.TOCEntry {
	return p.toc
}

// Data returns the serialized tree
func (p *HTMLParser) Data() []byte {
	if p.doc == nil {
		return p.body
	}
	return dom.Render(p.doc)
}
