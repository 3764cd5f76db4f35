// Package parser provides the per-mediatype parsers used by the spider and
// the writers, and the registry that caches them by URL.
package parser

import (
	"context"
	"errors"
	"iter"
	"strings"

	"golang.org/x/net/html"

	"github.com/masahif/hondana/internal/resource"
)

// ErrNoContent is returned when a resource parses to nothing usable
var ErrNoContent = errors.New("resource has no content")

// LinkKind classifies an outgoing link by the element that carries it
type LinkKind int

// Link kinds
const (
	KindAnchor    LinkKind = iota // <a href>
	KindImage                     // <img src>, <image href>, CSS url()
	KindStyleLink                 // <link href>, CSS @import
	KindObject                    // <object data>, <embed src>
)

func (k LinkKind) String() string {
	switch k {
	case KindAnchor:
		return "anchor"
	case KindImage:
		return "image"
	case KindStyleLink:
		return "stylelink"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Link is the metadata of one outgoing link
type Link struct {
	URL   string // absolute, may carry a fragment
	Kind  LinkKind
	Tag   string
	ID    string
	Title string
	Rel   []string
	Type  string
}

// HasRel reports whether the link carries the relation
func (l Link) HasRel(rel resource.Relation) bool {
	for _, r := range l.Rel {
		if r == string(rel) {
			return true
		}
	}
	return false
}

// Parser is implemented by every mediatype parser
type Parser interface {
	// Attribs returns the resource this parser owns
	Attribs() *resource.Attributes
	// PreParse does the cheap parse needed for link discovery. Idempotent.
	PreParse(ctx context.Context) error
	// Parse does the full parse and normalization. Memoized.
	Parse(ctx context.Context) error
	// IterLinks yields (url, metadata) for every outgoing link. Restartable.
	IterLinks() iter.Seq2[string, Link]
	// MediaType is the output media type, zero if unknown
	MediaType() resource.MediaType
	// IsEmpty reports whether the parser produced no content
	IsEmpty() bool
	// RemapLinks rewrites links whose fragment-free URL is a key of remap
	RemapLinks(remap map[string]string)
	// Data returns the resource bytes as they should be packaged
	Data() []byte
}

// Document is implemented by parsers that produce an HTML tree
type Document interface {
	Parser
	Document() *html.Node
	CloneDocument() *html.Node
	Title() string
	Author() string
	TOC() []resource.TOCEntry
}

// base carries the state every parser shares
type base struct {
	attribs *resource.Attributes
	body    []byte
}

func (b *base) Attribs() *resource.Attributes {
	return b.attribs
}

func (b *base) Data() []byte {
	return b.body
}

func (b *base) MediaType() resource.MediaType {
	return b.attribs.EffectiveMediaType()
}

// parseRel splits a rel attribute into lowercased tokens
func parseRel(v string) []string {
	fields := strings.Fields(strings.ToLower(v))
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// remapURL looks up the fragment-free part of u and keeps the fragment
func remapURL(u string, remap map[string]string) (string, bool) {
	if len(remap) == 0 {
		return u, false
	}
	base, frag := resource.Defrag(u)
	target, ok := remap[base]
	if !ok {
		return u, false
	}
	if frag != "" {
		return target + "#" + frag, true
	}
	return target, true
}
