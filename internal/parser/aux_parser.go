package parser

import (
	"context"
	"iter"

	"github.com/masahif/hondana/internal/resource"
)

// AuxParser holds a resource that is packaged as is: images, fonts and
// anything else without outgoing links.
type AuxParser struct {
	base
}

var _ Parser = (*AuxParser)(nil)

// NewAuxParser creates a parser for an opaque resource
func NewAuxParser(attribs *resource.Attributes, body []byte) Parser {
	return &AuxParser{base: base{attribs: attribs, body: body}}
}

func (p *AuxParser) PreParse(ctx context.Context) error {
	return ctx.Err()
}

func (p *AuxParser) Parse(ctx context.Context) error {
	return ctx.Err()
}

// IterLinks yields nothing
func (p *AuxParser) IterLinks() iter.Seq2[string, Link] {
	return func(func(string, Link) bool) {}
}

func (p *AuxParser) IsEmpty() bool {
	return len(p.body) == 0
}

func (p *AuxParser) RemapLinks(map[string]string) {}
