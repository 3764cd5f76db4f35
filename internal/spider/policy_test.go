package spider

import (
	"testing"

	"github.com/masahif/hondana/internal/parser"
	"github.com/masahif/hondana/internal/resource"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		link     parser.Link
		expected LinkClass
	}{
		{"anchor", parser.Link{Kind: parser.KindAnchor}, Document},
		{"anchor to image", parser.Link{Kind: parser.KindAnchor, Rel: []string{"linked_image"}}, Auxiliary},
		{"next anchor", parser.Link{Kind: parser.KindAnchor, Rel: []string{"next"}}, Document},
		{"image", parser.Link{Kind: parser.KindImage}, Auxiliary},
		{"object", parser.Link{Kind: parser.KindObject}, Auxiliary},
		{"stylesheet", parser.Link{Kind: parser.KindStyleLink, Rel: []string{"stylesheet"}}, Auxiliary},
		{"icon", parser.Link{Kind: parser.KindStyleLink, Rel: []string{"shortcut", "icon"}}, Auxiliary},
		{"coverpage", parser.Link{Kind: parser.KindStyleLink, Rel: []string{"coverpage"}}, Auxiliary},
		{"link next", parser.Link{Kind: parser.KindStyleLink, Rel: []string{"next"}}, Document},
		{"link without rel", parser.Link{Kind: parser.KindStyleLink}, Document},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.link); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestFilterIsIncludedURL(t *testing.T) {
	f, err := NewFilter([]string{"*/book/*", "https://cdn.example.com/*"}, []string{"*/book/ads/*", "*.zip"}, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create filter: %v", err)
	}

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/book/index.html", true},
		{"https://example.com/book/images/deep/pic.png", true},
		{"https://example.com/book/ads/banner.png", false},
		{"https://example.com/book/all.zip", false},
		{"https://example.com/other/page.html", false},
		{"https://cdn.example.com/font.woff", true},
		{"https://example.com/BOOK/index.html", false},
	}

	for _, tt := range tests {
		// repeated calls give the same answer
		for i := 0; i < 2; i++ {
			if got := f.IsIncludedURL(tt.url); got != tt.expected {
				t.Errorf("IsIncludedURL(%s): expected %v, got %v", tt.url, tt.expected, got)
			}
		}
	}
}

func TestFilterIsIncludedMediaType(t *testing.T) {
	f, err := NewFilter([]string{"*"}, nil, nil, []string{"image/gif"})
	if err != nil {
		t.Fatalf("Failed to create filter: %v", err)
	}

	tests := []struct {
		name     string
		url      string
		declared string
		expected bool
	}{
		{"html by extension", "https://example.com/a.html", "", true},
		{"xhtml declared", "https://example.com/a", "application/xhtml+xml", true},
		{"png", "https://example.com/a.png", "", true},
		{"excluded gif", "https://example.com/a.gif", "", false},
		{"font", "https://example.com/a.woff2", "", true},
		{"pdf", "https://example.com/a.pdf", "", false},
		{"unknown", "https://example.com/download", "", true},
		{"declared overrides extension", "https://example.com/a.png", "application/zip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := resource.NewAttributes(tt.url)
			a.OrigMediaType = resource.ParseMediaType(tt.declared)
			if got := f.IsIncludedMediaType(a); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestIsIncludedRelation(t *testing.T) {
	for _, rel := range []resource.Relation{resource.RelIcon, resource.RelImportant, resource.RelLinkedImage} {
		a := resource.NewAttributes("https://elsewhere.example.com/x.png")
		a.Relations.Add(rel)
		if !IsIncludedRelation(a) {
			t.Errorf("Expected relation %s to override the policy", rel)
		}
	}

	a := resource.NewAttributes("https://elsewhere.example.com/x.css")
	a.Relations.Add(resource.RelStylesheet)
	if IsIncludedRelation(a) {
		t.Error("Expected stylesheet not to override the policy")
	}
}

func TestRootPattern(t *testing.T) {
	pattern := RootPattern("https://example.com/my[book]/index.html")
	f, err := NewFilter([]string{pattern}, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to compile root pattern %q: %v", pattern, err)
	}
	if !f.IsIncludedURL("https://example.com/my[book]/ch/1.html") {
		t.Error("Expected URLs below the root directory to match")
	}
	if f.IsIncludedURL("https://example.com/other/1.html") {
		t.Error("Expected URLs outside the root directory not to match")
	}
}

func TestNewFilterInvalidPattern(t *testing.T) {
	if _, err := NewFilter([]string{"[unclosed"}, nil, nil, nil); err == nil {
		t.Error("Expected an error for an invalid pattern")
	}
}
