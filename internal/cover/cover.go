// Package cover draws a plain cover image from a book's title and author
// for books that do not provide one.
package cover

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MediaType of generated covers
const MediaType = "image/png"

const (
	defaultWidth  = 600
	defaultHeight = 800
	margin        = 40
)

// Options configures the generated image. Zero values use the defaults.
type Options struct {
	Width      int
	Height     int
	Background color.Color
	Foreground color.Color
	Accent     color.Color
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.Background == nil {
		o.Background = color.RGBA{R: 0x2c, G: 0x3e, B: 0x50, A: 0xff}
	}
	if o.Foreground == nil {
		o.Foreground = color.White
	}
	if o.Accent == nil {
		o.Accent = color.RGBA{R: 0xe6, G: 0x7e, B: 0x22, A: 0xff}
	}
	return o
}

// Generate returns a PNG showing the title in the upper half and the author
// in the lower half. The bitmap font is drawn small and scaled up.
func Generate(title, author string, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	textWidth := opts.Width - 2*margin

	titleArea := image.Rect(margin, margin, opts.Width-margin, opts.Height/2)
	drawText(img, titleArea, title, face, opts.Foreground, 6, textWidth)

	rule := image.Rect(margin, opts.Height/2+margin/2, opts.Width-margin, opts.Height/2+margin/2+4)
	draw.Draw(img, rule, image.NewUniform(opts.Accent), image.Point{}, draw.Src)

	if author = strings.TrimSpace(author); author != "" {
		authorArea := image.Rect(margin, opts.Height/2+2*margin, opts.Width-margin, opts.Height-margin)
		drawText(img, authorArea, author, face, opts.Foreground, 3, textWidth)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode cover: %w", err)
	}
	return buf.Bytes(), nil
}

// drawText wraps text, renders it at native size and scales it into area,
// shrinking the scale until the lines fit
func drawText(dst draw.Image, area image.Rectangle, text string, face font.Face, fg color.Color, scale, width int) {
	glyph := font.MeasureString(face, "M").Ceil()
	lineHeight := face.Metrics().Height.Ceil()

	var lines []string
	for ; scale >= 1; scale-- {
		lines = wrap(text, width/(glyph*scale))
		if len(lines)*lineHeight*scale <= area.Dy() || scale == 1 {
			break
		}
	}

	src := renderLines(lines, face, fg)
	w, h := src.Bounds().Dx()*scale, src.Bounds().Dy()*scale
	x := area.Min.X + (area.Dx()-w)/2
	y := area.Min.Y + (area.Dy()-h)/2
	draw.CatmullRom.Scale(dst, image.Rect(x, y, x+w, y+h), src, src.Bounds(), draw.Over, nil)
}

// renderLines draws centered lines on a transparent image at native size
func renderLines(lines []string, face font.Face, fg color.Color) *image.RGBA {
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()

	width := 1
	for _, l := range lines {
		width = max(width, font.MeasureString(face, l).Ceil())
	}
	img := image.NewRGBA(image.Rect(0, 0, width, max(1, lineHeight*len(lines))))

	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: face}
	for i, l := range lines {
		lw := font.MeasureString(face, l).Ceil()
		d.Dot = fixed.P((width-lw)/2, i*lineHeight+metrics.Ascent.Ceil())
		d.DrawString(l)
	}
	return img
}

// wrap breaks text into lines of at most maxChars runes, at spaces where
// possible
func wrap(text string, maxChars int) []string {
	if maxChars < 1 {
		maxChars = 1
	}

	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > maxChars {
			if cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			runes := []rune(word)
			lines = append(lines, string(runes[:maxChars]))
			word = string(runes[maxChars:])
		}
		switch {
		case cur.Len() == 0:
			cur.WriteString(word)
		case utf8.RuneCountInString(cur.String())+1+utf8.RuneCountInString(word) <= maxChars:
			cur.WriteByte(' ')
			cur.WriteString(word)
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(word)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
