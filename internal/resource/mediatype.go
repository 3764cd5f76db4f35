package resource

import (
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Common media types
const (
	TypeHTML  = "text/html"
	TypeXHTML = "application/xhtml+xml"
	TypeText  = "text/plain"
	TypeRST   = "text/x-rst"
	TypeCSS   = "text/css"
)

// MediaType is a (type, parameters) pair with Content-Type semantics
type MediaType struct {
	Type   string
	Params map[string]string
}

// extensionTypes covers extensions that mime.TypeByExtension gets wrong or
// does not know on minimal systems.
var extensionTypes = map[string]string{
	".html":  TypeHTML,
	".htm":   TypeHTML,
	".xhtml": TypeXHTML,
	".xht":   TypeXHTML,
	".txt":   TypeText,
	".rst":   TypeRST,
	".css":   TypeCSS,
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

// ParseMediaType parses a Content-Type style value. Unparsable values keep
// their lowercased type part and drop parameters.
func ParseMediaType(s string) MediaType {
	s = strings.TrimSpace(s)
	if s == "" {
		return MediaType{}
	}
	t, params, err := mime.ParseMediaType(s)
	if err != nil {
		t = strings.ToLower(strings.TrimSpace(strings.SplitN(s, ";", 2)[0]))
		params = nil
	}
	return MediaType{Type: t, Params: params}
}

// GuessMediaType guesses the media type from a URL's file extension. The
// zero MediaType is returned when nothing can be guessed.
func GuessMediaType(rawURL string) MediaType {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return MediaType{}
	}
	if t, ok := extensionTypes[ext]; ok {
		return MediaType{Type: t}
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return ParseMediaType(t)
	}
	return MediaType{}
}

// IsZero reports whether the media type is unknown
func (m MediaType) IsZero() bool {
	return m.Type == ""
}

// Is reports whether the type part equals t
func (m MediaType) Is(t string) bool {
	return m.Type == t
}

// IsHTML reports whether the type is HTML or XHTML
func (m MediaType) IsHTML() bool {
	return m.Type == TypeHTML || m.Type == TypeXHTML
}

// Charset returns the charset parameter, if any
func (m MediaType) Charset() string {
	return m.Params["charset"]
}

// Clone returns a deep copy
func (m MediaType) Clone() MediaType {
	if m.Params == nil {
		return m
	}
	p := make(map[string]string, len(m.Params))
	for k, v := range m.Params {
		p[k] = v
	}
	return MediaType{Type: m.Type, Params: p}
}

// String formats the media type as a Content-Type value
func (m MediaType) String() string {
	if m.Type == "" {
		return ""
	}
	if len(m.Params) == 0 {
		return m.Type
	}
	if s := mime.FormatMediaType(m.Type, m.Params); s != "" {
		return s
	}
	keys := make([]string, 0, len(m.Params))
	for k := range m.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(m.Type)
	for _, k := range keys {
		b.WriteString("; " + k + "=" + m.Params[k])
	}
	return b.String()
}
