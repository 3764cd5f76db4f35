package writer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin     = 20.0
	pdfPageWidth  = 210.0
	pdfPageHeight = 297.0
	pdfFont       = "Helvetica"
)

// headingSizes are font sizes in points by heading level
var headingSizes = map[int]float64{1: 20, 2: 16, 3: 14, 4: 12, 5: 12, 6: 12}

// pdfImageTypes maps media types to the image types gofpdf decodes
var pdfImageTypes = map[string]string{
	"image/png":  "PNG",
	"image/jpeg": "JPG",
	"image/gif":  "GIF",
}

// PDFWriter lays the text of the book out on A4 pages. Headings become
// bookmarks. Images other than the cover are not rendered.
type PDFWriter struct{}

var _ Writer = (*PDFWriter)(nil)

func (w *PDFWriter) Format() string {
	return "pdf"
}

func (w *PDFWriter) Build(ctx context.Context, job *Job) (string, error) {
	b, err := prepare(ctx, job)
	if err != nil {
		return "", err
	}
	blocks, err := bookBlocks(ctx, b)
	if err != nil {
		return "", err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(b.title, true)
	if b.author != "" {
		pdf.SetAuthor(b.author, true)
	}
	pdf.SetCreator("hondana", true)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(pdfFont, "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	// core fonts are cp1252, characters outside it are dropped
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if job.Cover != nil {
		w.addCover(pdf, job.Cover)
	}

	pdf.AddPage()
	pdf.SetFont(pdfFont, "B", 24)
	pdf.MultiCell(0, 12, tr(b.title), "", "C", false)
	if b.author != "" {
		pdf.Ln(4)
		pdf.SetFont(pdfFont, "", 14)
		pdf.MultiCell(0, 8, tr(b.author), "", "C", false)
	}
	pdf.Ln(10)

	for _, block := range blocks {
		if block.level > 0 {
			pdf.Ln(3)
			pdf.Bookmark(block.text, block.level-1, -1)
			pdf.SetFont(pdfFont, "B", headingSizes[block.level])
			pdf.MultiCell(0, headingSizes[block.level]*0.5, tr(block.text), "", "L", false)
			pdf.Ln(2)
			continue
		}
		pdf.SetFont(pdfFont, "", 11)
		pdf.MultiCell(0, 5.5, tr(block.text), "", "J", false)
		pdf.Ln(2)
	}

	if err := ensureDir(job); err != nil {
		return "", err
	}
	out := job.OutputPath(".pdf")
	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", fmt.Errorf("failed to write pdf: %w", err)
	}

	slog.Info("PDF written", "path", out, "pages", pdf.PageCount(), "blocks", len(blocks))
	return out, nil
}

// addCover puts the cover on a page of its own, scaled to fit the margins
func (w *PDFWriter) addCover(pdf *gofpdf.Fpdf, cover *Image) {
	imageType, ok := pdfImageTypes[mediaTypeOf(cover).Type]
	if !ok {
		slog.Warn("Cover format not supported in PDF", "media_type", cover.MediaType)
		return
	}

	opts := gofpdf.ImageOptions{ImageType: imageType}
	info := pdf.RegisterImageOptionsReader("cover", opts, bytes.NewReader(cover.Data))
	if pdf.Err() || info == nil {
		slog.Warn("Failed to decode cover for PDF", "error", pdf.Error())
		pdf.ClearError()
		return
	}

	maxW := pdfPageWidth - 2*pdfMargin
	maxH := pdfPageHeight - 2*pdfMargin
	width, height := maxW, maxW*info.Height()/info.Width()
	if height > maxH {
		width, height = maxH*info.Width()/info.Height(), maxH
	}

	pdf.AddPage()
	pdf.ImageOptions("cover", (pdfPageWidth-width)/2, pdfMargin, width, height, false, opts, 0, "")
}
