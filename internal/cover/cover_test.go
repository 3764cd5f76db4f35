package cover

import (
	"bytes"
	"image/color"
	"image/png"
	"reflect"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	data, err := Generate("The Art of Computer Programming", "Donald Knuth", Options{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Expected a PNG, got decode error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != defaultWidth || b.Dy() != defaultHeight {
		t.Errorf("Expected %dx%d, got %dx%d", defaultWidth, defaultHeight, b.Dx(), b.Dy())
	}

	bg := color.RGBAModel.Convert(Options{}.withDefaults().Background)
	if got := color.RGBAModel.Convert(img.At(1, 1)); got != bg {
		t.Errorf("Expected background %v in the corner, got %v", bg, got)
	}

	// text is drawn in the upper half
	drawn := false
	for y := margin; y < defaultHeight/2 && !drawn; y++ {
		for x := margin; x < defaultWidth-margin; x++ {
			if color.RGBAModel.Convert(img.At(x, y)) != bg {
				drawn = true
				break
			}
		}
	}
	if !drawn {
		t.Error("Expected title pixels in the upper half")
	}
}

func TestGenerateCustomSize(t *testing.T) {
	data, err := Generate("", "", Options{Width: 300, Height: 400, Background: color.Black})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 400 {
		t.Errorf("Expected 300x400, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestGenerateLongTitle(t *testing.T) {
	title := strings.Repeat("Supercalifragilistic ", 30)
	if _, err := Generate(title, "", Options{}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{"fits", "short title", 20, []string{"short title"}},
		{"breaks at spaces", "the quick brown fox", 10, []string{"the quick", "brown fox"}},
		{"long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"multibyte", "日本語の本", 2, []string{"日本", "語の", "本"}},
		{"collapses spaces", "  a   b  ", 10, []string{"a b"}},
		{"zero width", "ab", 0, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrap(tt.text, tt.maxChars); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
