package spider

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/masahif/hondana/internal/parser"
	"github.com/masahif/hondana/internal/resource"
)

// LinkClass decides how deep a discovered link is enqueued
type LinkClass int

const (
	// Document links are enqueued one level deeper and obey MaxDepth
	Document LinkClass = iota
	// Auxiliary links (images, stylesheets) stay at the referrer's depth
	Auxiliary
)

func (c LinkClass) String() string {
	if c == Auxiliary {
		return "auxiliary"
	}
	return "document"
}

// linkPolicies holds one classification function per link kind
var linkPolicies = map[parser.LinkKind]func(parser.Link) LinkClass{
	parser.KindAnchor: func(l parser.Link) LinkClass {
		if l.HasRel(resource.RelLinkedImage) {
			return Auxiliary
		}
		return Document
	},
	parser.KindImage:  func(parser.Link) LinkClass { return Auxiliary },
	parser.KindObject: func(parser.Link) LinkClass { return Auxiliary },
	parser.KindStyleLink: func(l parser.Link) LinkClass {
		if l.HasRel(resource.RelStylesheet) || l.HasRel(resource.RelIcon) || l.HasRel(resource.RelCoverpage) {
			return Auxiliary
		}
		return Document
	},
}

// Classify returns the class of a link
func Classify(link parser.Link) LinkClass {
	if policy, ok := linkPolicies[link.Kind]; ok {
		return policy(link)
	}
	return Auxiliary
}

// DefaultMediaTypes are included when no media type pattern is configured
var DefaultMediaTypes = []string{"text/*", "application/xhtml+xml", "image/*", "font/*"}

// overrideRelations keep a resource regardless of URL and media type policy
var overrideRelations = []resource.Relation{
	resource.RelIcon,
	resource.RelImportant,
	resource.RelLinkedImage,
}

// Filter applies the include/exclude glob policy. It holds no state besides
// the compiled patterns.
type Filter struct {
	includeURLs  []glob.Glob
	excludeURLs  []glob.Glob
	includeTypes []glob.Glob
	excludeTypes []glob.Glob
}

// NewFilter compiles the patterns. Globs match the whole string and '*'
// crosses '/' boundaries.
func NewFilter(includeURLs, excludeURLs, includeTypes, excludeTypes []string) (*Filter, error) {
	f := &Filter{}
	var err error
	if f.includeURLs, err = compileGlobs(includeURLs); err != nil {
		return nil, err
	}
	if f.excludeURLs, err = compileGlobs(excludeURLs); err != nil {
		return nil, err
	}
	if len(includeTypes) == 0 {
		includeTypes = DefaultMediaTypes
	}
	if f.includeTypes, err = compileGlobs(includeTypes); err != nil {
		return nil, err
	}
	if f.excludeTypes, err = compileGlobs(excludeTypes); err != nil {
		return nil, err
	}
	return f, nil
}

// RootPattern returns the default include pattern for a root document:
// everything under its directory.
func RootPattern(rootURL string) string {
	return glob.QuoteMeta(resource.DirURL(rootURL)) + "*"
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// IsIncludedURL reports whether u matches at least one include pattern and
// no exclude pattern
func (f *Filter) IsIncludedURL(u string) bool {
	return matchAny(f.includeURLs, u) && !matchAny(f.excludeURLs, u)
}

// IsIncludedMediaType checks the declared media type, or a guess from the
// URL. A resource whose type cannot be determined is included.
func (f *Filter) IsIncludedMediaType(attribs *resource.Attributes) bool {
	mt := attribs.OrigMediaType
	if mt.IsZero() {
		mt = resource.GuessMediaType(attribs.URL)
	}
	if mt.IsZero() {
		return true
	}
	return matchAny(f.includeTypes, mt.Type) && !matchAny(f.excludeTypes, mt.Type)
}

// IsIncludedRelation reports whether the resource carries a relation that
// overrides the URL and media type policy
func IsIncludedRelation(attribs *resource.Attributes) bool {
	return attribs.Relations.HasAny(overrideRelations...)
}

// IsIncluded combines the three checks
func (f *Filter) IsIncluded(attribs *resource.Attributes) bool {
	if IsIncludedRelation(attribs) {
		return true
	}
	return f.IsIncludedURL(attribs.URL) && f.IsIncludedMediaType(attribs)
}
