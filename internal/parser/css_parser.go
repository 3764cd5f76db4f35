package parser

import (
	"context"
	"iter"
	"net/url"
	"strings"

	"github.com/gorilla/css/scanner"

	"github.com/masahif/hondana/internal/resource"
)

// CSSParser finds url() and @import references in a stylesheet
type CSSParser struct {
	base
	text    string
	decoded bool
}

var _ Parser = (*CSSParser)(nil)

// NewCSSParser creates a parser for a stylesheet
func NewCSSParser(attribs *resource.Attributes, body []byte) Parser {
	return &CSSParser{base: base{attribs: attribs, body: body}}
}

// PreParse decodes the stylesheet to UTF-8
func (p *CSSParser) PreParse(ctx context.Context) error {
	if p.decoded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.text = string(decodeToUTF8(p.body, p.attribs.OrigMediaType.String()))
	p.decoded = true
	if p.attribs.MediaType.IsZero() {
		p.attribs.MediaType = resource.MediaType{Type: resource.TypeCSS}
	}
	return nil
}

// Parse is PreParse; stylesheets need no further normalization
func (p *CSSParser) Parse(ctx context.Context) error {
	return p.PreParse(ctx)
}

// cssRef is one reference found by the scanner: the target as written and
// the index of the token holding it.
type cssRef struct {
	raw   string
	kind  LinkKind
	index int
}

// refs scans the stylesheet and reports every reference in order
func (p *CSSParser) refs() ([]*scanner.Token, []cssRef) {
	var tokens []*scanner.Token
	var refs []cssRef
	afterImport := false
	consumed := 0

	s := scanner.New(p.text)
	for {
		tok := s.Next()
		if tok.Type == scanner.TokenEOF {
			break
		}
		if tok.Type == scanner.TokenError {
			// keep the untokenizable tail verbatim
			tokens = append(tokens, &scanner.Token{Type: scanner.TokenChar, Value: p.text[consumed:]})
			break
		}
		tokens = append(tokens, tok)
		consumed += len(tok.Value)

		switch tok.Type {
		case scanner.TokenAtKeyword:
			afterImport = strings.EqualFold(tok.Value, "@import")
		case scanner.TokenS, scanner.TokenComment:
			// keep afterImport
		case scanner.TokenURI:
			kind := KindImage
			if afterImport {
				kind = KindStyleLink
			}
			refs = append(refs, cssRef{raw: unwrapURI(tok.Value), kind: kind, index: len(tokens) - 1})
			afterImport = false
		case scanner.TokenString:
			if afterImport {
				refs = append(refs, cssRef{raw: unquote(tok.Value), kind: KindStyleLink, index: len(tokens) - 1})
			}
			afterImport = false
		default:
			afterImport = false
		}
	}
	return tokens, refs
}

// IterLinks yields url() targets as images and @import targets as stylesheets
func (p *CSSParser) IterLinks() iter.Seq2[string, Link] {
	return func(yield func(string, Link) bool) {
		if !p.decoded {
			return
		}
		_, refs := p.refs()
		for _, ref := range refs {
			abs, ok := p.resolve(ref.raw)
			if !ok {
				continue
			}
			link := Link{URL: abs, Kind: ref.kind, Tag: "css"}
			if ref.kind == KindStyleLink {
				link.Rel = []string{string(resource.RelStylesheet)}
			}
			if !yield(abs, link) {
				return
			}
		}
	}
}

// RewriteURLs returns the stylesheet with every reference passed through f.
// The scanner preserves the input text, so untouched tokens are copied as is.
func (p *CSSParser) RewriteURLs(f func(string) string) []byte {
	tokens, refs := p.refs()
	replaced := make(map[int]string, len(refs))
	for _, ref := range refs {
		target, ok := p.resolve(ref.raw)
		if !ok {
			continue
		}
		newURL := f(target)
		if tokens[ref.index].Type == scanner.TokenString {
			replaced[ref.index] = `"` + newURL + `"`
		} else {
			replaced[ref.index] = `url("` + newURL + `")`
		}
	}

	var b strings.Builder
	for i, tok := range tokens {
		if v, ok := replaced[i]; ok {
			b.WriteString(v)
			continue
		}
		b.WriteString(tok.Value)
	}
	return []byte(b.String())
}

// RemapLinks rewrites references whose target was redirected
func (p *CSSParser) RemapLinks(remap map[string]string) {
	if !p.decoded || len(remap) == 0 {
		return
	}
	p.text = string(p.RewriteURLs(func(u string) string {
		if target, ok := remapURL(u, remap); ok {
			return target
		}
		return u
	}))
}

// IsEmpty reports whether the stylesheet has no content
func (p *CSSParser) IsEmpty() bool {
	return strings.TrimSpace(string(p.Data())) == ""
}

// Data returns the decoded, possibly remapped stylesheet
func (p *CSSParser) Data() []byte {
	if !p.decoded {
		return p.body
	}
	return []byte(p.text)
}

func (p *CSSParser) resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "#") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	baseURL, err := url.Parse(p.attribs.URL)
	if err != nil {
		return "", false
	}
	abs := baseURL.ResolveReference(ref).String()
	if !isAllowedScheme(abs) {
		return "", false
	}
	return abs, true
}

// unwrapURI turns `url( "x" )` into x
func unwrapURI(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 4 && strings.EqualFold(v[:4], "url(") {
		v = v[4:]
	}
	v = strings.TrimSuffix(v, ")")
	return unquote(strings.TrimSpace(v))
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
