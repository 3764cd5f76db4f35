// Package chunker splits HTML documents into size-bounded fragments and
// rewrites links so they keep pointing at the right fragment.
package chunker

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/masahif/hondana/internal/dom"
	"github.com/masahif/hondana/internal/resource"
)

// DefaultMaxChunkSize is the largest fragment many readers display reliably
const DefaultMaxChunkSize = 300 * 1024

// ErrNoBody is returned when a document has no body element
var ErrNoBody = errors.New("document has no body")

// DefaultThresholds maps "tag.class" and "tag" to the fraction of the
// maximum size after which a fragment is flushed before that element.
var DefaultThresholds = map[string]float64{
	"div.section": 0.5,
	"div.chapter": 0.5,
	"section":     0.5,
	"h1":          0.5,
	"div":         0.7,
	"h2":          0.7,
	"h3":          0.75,
	"p":           0.8,
	"figure":      0.8,
}

// neverSplit elements ship whole, even when oversize
var neverSplit = map[atom.Atom]bool{
	atom.Table:  true,
	atom.Figure: true,
	atom.Dl:     true,
	atom.Ol:     true,
	atom.Ul:     true,
}

// containers are always descended into. Other elements are descended into
// when they hold more than one block child, as with the <center> and <font>
// wrappers of older documents.
var containers = map[atom.Atom]bool{
	atom.Body:       true,
	atom.Div:        true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Main:       true,
	atom.Blockquote: true,
	atom.Aside:      true,
}

var blocks = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Center: true, atom.Details: true, atom.Div: true, atom.Dl: true,
	atom.Fieldset: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Main: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true, atom.Ul: true,
}

// Chunk is one shipped fragment
type Chunk struct {
	Doc     *html.Node
	Attribs *resource.Attributes
}

// Options configures a Chunker
type Options struct {
	MaxChunkSize int
	// SplitSelectors are "tag" or "tag.class" keys that always start a new
	// fragment
	SplitSelectors []string
}

// Chunker splits documents. One Chunker is used for all documents of a
// build so links between documents resolve through the shared id map.
type Chunker struct {
	maxSize    int
	thresholds map[string]float64

	chunks  []Chunk
	idMap   map[string]string
	counter int
}

// New creates a chunker
func New(opts Options) *Chunker {
	maxSize := opts.MaxChunkSize
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	thresholds := make(map[string]float64, len(DefaultThresholds)+len(opts.SplitSelectors))
	for k, v := range DefaultThresholds {
		thresholds[k] = v
	}
	for _, sel := range opts.SplitSelectors {
		thresholds[strings.ToLower(strings.TrimSpace(sel))] = 0
	}
	return &Chunker{
		maxSize:    maxSize,
		thresholds: thresholds,
		idMap:      make(map[string]string),
	}
}

// fragment is a fragment under construction
type fragment struct {
	root    *html.Node
	target  *html.Node
	size    int
	content int
}

// Split cuts doc into fragments no larger than the maximum size where the
// structure allows. doc is not modified.
func (c *Chunker) Split(doc *html.Node, attribs *resource.Attributes) error {
	body := dom.FindElement(doc, atom.Body)
	if body == nil {
		return fmt.Errorf("%s: %w", attribs.URL, ErrNoBody)
	}

	before := len(c.chunks)
	c.split(doc, descend(body), attribs)
	slog.Debug("Split document", "url", attribs.URL, "chunks", len(c.chunks)-before)
	return nil
}

// split distributes the children of container over fragments stamped from
// doc, then ships them, re-splitting any oversize fragment that can be
// descended into.
func (c *Chunker) split(doc, container *html.Node, attribs *resource.Attributes) {
	var fragments []*fragment
	cur := c.newFragment(doc, container, false)

	for child := container.FirstChild; child != nil; child = child.NextSibling {
		childSize := dom.RenderedSize(child)
		if cur.content > 0 && (cur.size+childSize > c.maxSize || c.softBreak(child, cur.size)) {
			fragments = append(fragments, cur)
			cur = c.newFragment(doc, container, true)
		}
		cur.target.AppendChild(dom.Clone(child))
		cur.size += childSize
		if isContent(child) {
			cur.content++
		}
	}
	if cur.content == 0 && len(fragments) > 0 {
		// trailing comments and whitespace join the last fragment when they
		// fit and are dropped otherwise
		last := fragments[len(fragments)-1]
		for _, n := range dom.Children(cur.target) {
			cur.target.RemoveChild(n)
			if size := dom.RenderedSize(n); last.size+size <= c.maxSize {
				last.target.AppendChild(n)
				last.size += size
			}
		}
	} else {
		fragments = append(fragments, cur)
	}

	for _, f := range fragments {
		if f.size > c.maxSize && f.content == 1 {
			if inner := descend(f.target); inner != f.target && contentCount(inner) > 1 {
				c.split(f.root, inner, attribs)
				continue
			}
		}
		c.shipout(f.root, attribs)
	}
}

// newFragment stamps an empty fragment. Fragments after the first drop the
// ids of the skeleton so every id stays unique.
func (c *Chunker) newFragment(doc, container *html.Node, stripIDs bool) *fragment {
	root, target := dom.CloneSkeleton(doc, container)
	if stripIDs {
		dom.Walk(root, func(n *html.Node) bool {
			if n.Type == html.ElementNode {
				dom.RemoveAttr(n, "id")
			}
			return true
		})
	}
	return &fragment{root: root, target: target, size: dom.RenderedSize(root)}
}

// softBreak reports whether the fragment already passed the child's
// threshold
func (c *Chunker) softBreak(child *html.Node, size int) bool {
	if child.Type != html.ElementNode {
		return false
	}
	frac, ok := c.threshold(child)
	return ok && float64(size) > frac*float64(c.maxSize)
}

// threshold looks up tag.class first, then tag
func (c *Chunker) threshold(n *html.Node) (float64, bool) {
	for _, class := range dom.Classes(n) {
		if frac, ok := c.thresholds[n.Data+"."+strings.ToLower(class)]; ok {
			return frac, true
		}
	}
	frac, ok := c.thresholds[n.Data]
	return frac, ok
}

// descend walks down from n while it holds a single container element and
// nothing else but whitespace
func descend(n *html.Node) *html.Node {
	for {
		var only *html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.CommentNode || dom.IsBlank(c):
				continue
			case c.Type == html.ElementNode && only == nil:
				only = c
			default:
				return n
			}
		}
		if only == nil || neverSplit[only.DataAtom] {
			return n
		}
		if !containers[only.DataAtom] && blockCount(only) < 2 {
			return n
		}
		n = only
	}
}

// isContent reports whether n counts toward a fragment's content
func isContent(n *html.Node) bool {
	return n.Type != html.CommentNode && !dom.IsBlank(n)
}

// contentCount counts the children of n that are not whitespace or comments
func contentCount(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isContent(c) {
			count++
		}
	}
	return count
}

func blockCount(n *html.Node) int {
	count := 0
	for _, c := range dom.ElementChildren(n) {
		if blocks[c.DataAtom] {
			count++
		}
	}
	return count
}

// shipout names a finished fragment and records where its ids went. Keys
// already mapped by an earlier fragment keep their first location.
func (c *Chunker) shipout(root *html.Node, attribs *resource.Attributes) {
	c.counter++
	chunkURL := ChunkURL(attribs.URL, c.counter)

	if _, ok := c.idMap[attribs.URL]; !ok {
		c.idMap[attribs.URL] = chunkURL
	}
	goquery.NewDocumentFromNode(root).Find("[id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		if id == "" {
			return
		}
		key := attribs.URL + "#" + id
		if _, ok := c.idMap[key]; !ok {
			c.idMap[key] = chunkURL + "#" + id
		}
	})

	chunkAttribs := attribs.Clone()
	chunkAttribs.URL = chunkURL
	chunkAttribs.OrigURL = attribs.URL
	c.chunks = append(c.chunks, Chunk{Doc: root, Attribs: chunkAttribs})
}

// ChunkURL derives the name of the n-th chunk from a document URL:
// book/ch1.xhtml becomes book/ch1-3.xhtml. Documents without an extension
// get ".html".
func ChunkURL(docURL string, n int) string {
	u, err := url.Parse(docURL)
	if err != nil {
		return fmt.Sprintf("%s-%d.html", docURL, n)
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index"
	}
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	if ext == "" {
		ext = ".html"
	}
	u.Path = fmt.Sprintf("%s-%d%s", stem, n, ext)
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Chunks returns the shipped fragments in order
func (c *Chunker) Chunks() []Chunk {
	return c.chunks
}

// IDMap returns the mapping from document locations to chunk locations
func (c *Chunker) IDMap() map[string]string {
	return c.idMap
}

// RewriteLinks applies f to every href and src in every chunk, to every id
// map value and to every chunk URL
func (c *Chunker) RewriteLinks(f func(string) string) {
	for i := range c.chunks {
		chunk := &c.chunks[i]
		goquery.NewDocumentFromNode(chunk.Doc).Find("[href], [src]").Each(func(_ int, s *goquery.Selection) {
			for _, attr := range []string{"href", "src"} {
				if v, ok := s.Attr(attr); ok {
					s.SetAttr(attr, f(v))
				}
			}
		})
		chunk.Attribs.URL = f(chunk.Attribs.URL)
	}
	for k, v := range c.idMap {
		c.idMap[k] = f(v)
	}
}

// resolve maps a document location to its chunk location. dangling is true
// when the document was split but the fragment id was not found.
func (c *Chunker) resolve(href string) (target string, ok, dangling bool) {
	if target, ok := c.idMap[href]; ok {
		return target, true, false
	}
	base, frag := resource.Defrag(href)
	target, ok = c.idMap[base]
	if !ok {
		return href, false, false
	}
	return target, true, frag != ""
}

// RewriteInternalLinks points every href that targets a chunked document at
// the chunk holding its target. Links to ids that do not exist are pointed
// at the document's first chunk, logged and returned.
func (c *Chunker) RewriteInternalLinks() []string {
	var dangling []string
	for _, chunk := range c.chunks {
		goquery.NewDocumentFromNode(chunk.Doc).Find("[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			target, ok, isDangling := c.resolve(href)
			if !ok {
				return
			}
			if isDangling {
				slog.Error("Dangling internal link", "chunk", chunk.Attribs.URL, "href", href)
				dangling = append(dangling, href)
			}
			s.SetAttr("href", target)
		})
	}
	return dangling
}

// RewriteInternalLinksInTOC resolves table of contents entries the same way
func (c *Chunker) RewriteInternalLinksInTOC(entries []resource.TOCEntry) []resource.TOCEntry {
	out := make([]resource.TOCEntry, len(entries))
	for i, e := range entries {
		out[i] = e
		target, ok, isDangling := c.resolve(e.URL)
		if !ok {
			continue
		}
		if isDangling {
			slog.Error("Dangling table of contents entry", "title", e.Title, "url", e.URL)
		}
		out[i].URL = target
	}
	return out
}
