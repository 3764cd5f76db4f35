package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/masahif/hondana/internal/resource"
)

func TestTextParser(t *testing.T) {
	text := "My Title\r\n\r\nFirst line\nsecond line.\n\n\n  A & B <tag>  \n"
	attribs := resource.NewAttributes("file:///books/story.txt")
	attribs.OrigMediaType = resource.MediaType{Type: resource.TypeText}

	p := NewTextParser(attribs, []byte(text)).(*TextParser)
	if err := p.Parse(context.Background()); err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if p.Title() != "My Title" {
		t.Errorf("Expected title 'My Title', got '%s'", p.Title())
	}
	if len(p.TOC()) != 1 {
		t.Errorf("Expected 1 TOC entry, got %d", len(p.TOC()))
	}

	data := string(p.Data())
	for _, want := range []string{
		"<p>First line second line.</p>",
		"<p>A &amp; B &lt;tag&gt;</p>",
		`<meta charset="utf-8"/>`,
	} {
		if !strings.Contains(data, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, data)
		}
	}

	if mt := p.MediaType(); mt.Type != resource.TypeXHTML {
		t.Errorf("Expected media type %s, got %s", resource.TypeXHTML, mt.Type)
	}
	if p.IsEmpty() {
		t.Error("Expected converted text not to be empty")
	}
}

func TestTextParserLongFirstLine(t *testing.T) {
	first := strings.Repeat("word ", 30)
	attribs := resource.NewAttributes("file:///books/long.txt")
	p := NewTextParser(attribs, []byte(first+"\n\nnext")).(*TextParser)
	if err := p.Parse(context.Background()); err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if p.Title() != "" {
		t.Errorf("Expected no title for a long first line, got '%s'", p.Title())
	}
	if len(p.TOC()) != 0 {
		t.Errorf("Expected no TOC entries, got %d", len(p.TOC()))
	}
}

func TestTextParserRST(t *testing.T) {
	text := `=====
Intro
=====

Some text.

Part One
--------

More text
over two lines.

Part Two
--------

End.
`
	attribs := resource.NewAttributes("file:///books/guide.rst")
	attribs.OrigMediaType = resource.MediaType{Type: resource.TypeRST}

	p := NewTextParser(attribs, []byte(text)).(*TextParser)
	if err := p.Parse(context.Background()); err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	expected := []struct {
		title string
		level int
	}{
		{"Intro", 1},
		{"Part One", 2},
		{"Part Two", 2},
	}

	toc := p.TOC()
	if len(toc) != len(expected) {
		t.Fatalf("Expected %d TOC entries, got %d", len(expected), len(toc))
	}
	for i, want := range expected {
		if toc[i].Title != want.title || toc[i].Level != want.level {
			t.Errorf("Entry %d: expected %s at level %d, got %s at level %d",
				i, want.title, want.level, toc[i].Title, toc[i].Level)
		}
	}
	if p.Title() != "Intro" {
		t.Errorf("Expected title 'Intro', got '%s'", p.Title())
	}
	if !strings.Contains(string(p.Data()), "<p>More text over two lines.</p>") {
		t.Errorf("Expected joined paragraph, got:\n%s", p.Data())
	}
}

func TestTextParserEmpty(t *testing.T) {
	attribs := resource.NewAttributes("file:///books/empty.txt")
	p := NewTextParser(attribs, []byte("  \n\n ")).(*TextParser)
	if err := p.PreParse(context.Background()); err != nil {
		t.Fatalf("Failed to pre-parse: %v", err)
	}
	if !p.IsEmpty() {
		t.Error("Expected blank text to be empty")
	}
}

func TestAdornment(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
	}{
		{"=====", true},
		{"--", true},
		{"-", false},
		{"=-=-", false},
		{"abc", false},
		{"~~~~", true},
	}

	for _, tt := range tests {
		if _, ok := adornment(tt.line); ok != tt.ok {
			t.Errorf("adornment(%q): expected %v, got %v", tt.line, tt.ok, ok)
		}
	}
}
