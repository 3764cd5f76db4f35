// Package resource describes the units of work passed between the spider,
// the parsers and the writers: a fetched resource's URLs, media types and
// relationship tags.
package resource

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// Relation is a relationship tag describing how a resource relates to the
// document that linked it.
type Relation string

// Known relation tags
const (
	RelStylesheet  Relation = "stylesheet"
	RelIcon        Relation = "icon"
	RelImportant   Relation = "important"
	RelLinkedImage Relation = "linked_image"
	RelNext        Relation = "next"
	RelCoverpage   Relation = "coverpage"
)

// Relations is a set of relation tags
type Relations map[Relation]struct{}

// NewRelations builds a set from the given tags
func NewRelations(rels ...Relation) Relations {
	r := make(Relations, len(rels))
	for _, rel := range rels {
		r.Add(rel)
	}
	return r
}

// Add inserts a tag. Adding an existing tag is a no-op.
func (r Relations) Add(rel Relation) {
	if rel == "" {
		return
	}
	r[rel] = struct{}{}
}

// Has reports whether the tag is in the set
func (r Relations) Has(rel Relation) bool {
	_, ok := r[rel]
	return ok
}

// HasAny reports whether any of the tags is in the set
func (r Relations) HasAny(rels ...Relation) bool {
	for _, rel := range rels {
		if r.Has(rel) {
			return true
		}
	}
	return false
}

// Strings returns the tags sorted
func (r Relations) Strings() []string {
	out := make([]string, 0, len(r))
	for rel := range r {
		out = append(out, string(rel))
	}
	sort.Strings(out)
	return out
}

// Attributes describes one resource discovered by the spider.
//
// URL is resolved, absolute and fragment-free; OrigURL is the link as written
// in the referring document. OrigMediaType is what the server, the link's type
// attribute or the file extension declared; MediaType is the type after any
// format conversion performed by a parser.
type Attributes struct {
	URL           string
	OrigURL       string
	MediaType     MediaType
	OrigMediaType MediaType
	Relations     Relations
	Referrer      string
	ID            string
	Title         string
}

// NewAttributes creates attributes for the given URL
func NewAttributes(rawURL string) *Attributes {
	return &Attributes{
		URL:       rawURL,
		OrigURL:   rawURL,
		Relations: NewRelations(),
	}
}

// Clone returns a deep copy
func (a *Attributes) Clone() *Attributes {
	c := *a
	c.Relations = NewRelations()
	for rel := range a.Relations {
		c.Relations.Add(rel)
	}
	c.MediaType = a.MediaType.Clone()
	c.OrigMediaType = a.OrigMediaType.Clone()
	return &c
}

// EffectiveMediaType returns the best known media type: the converted type,
// then the declared one, then a guess from the URL.
func (a *Attributes) EffectiveMediaType() MediaType {
	if !a.MediaType.IsZero() {
		return a.MediaType
	}
	if !a.OrigMediaType.IsZero() {
		return a.OrigMediaType
	}
	return GuessMediaType(a.URL)
}

// GenerateID returns a deterministic identifier for a seed and ordinal,
// used when a link carries no id of its own.
func GenerateID(seed string, ordinal int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s#%d", seed, ordinal)
	return fmt.Sprintf("id-%d", h.Sum64())
}

// TOCEntry is one table-of-contents entry. URL points at a document and,
// usually, a fragment inside it.
type TOCEntry struct {
	URL   string
	Title string
	Level int
}

// Defrag splits a URL into its fragment-free part and the fragment
func Defrag(rawURL string) (string, string) {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i], rawURL[i+1:]
	}
	return rawURL, ""
}

// NormalizeURL turns a command-line source into an absolute URL. Bare paths
// become file:// URLs.
func NormalizeURL(source string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("empty source")
	}
	u, err := url.Parse(source)
	if err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		switch u.Scheme {
		case "http", "https", "file":
			u.Fragment = ""
			return u.String(), nil
		default:
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", source, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// DirURL returns the URL of the directory containing the resource, with a
// trailing slash.
func DirURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.LastIndexByte(rawURL, '/'); i >= 0 {
			return rawURL[:i+1]
		}
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = dirPath(u.Path)
	if u.RawPath != "" {
		u.RawPath = dirPath(u.RawPath)
	}
	return u.String()
}

func dirPath(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i+1]
	}
	return "/"
}
