package crossword

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// PDF adapts an fpdf document to Document.
type PDF struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// NewPDF returns an A4 portrait document with one empty page.
func NewPDF() *PDF {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(time.Now())
	pdf.SetFont("Helvetica", "", 10)
	pdf.AddPage()
	return &PDF{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (p *PDF) SetFontSize(size float64) { p.pdf.SetFontSize(size) }

func (p *PDF) Rect(x, y, w, h float64) { p.pdf.Rect(x, y, w, h, "D") }

func (p *PDF) Text(x, y float64, s string) { p.pdf.Text(x, y, p.tr(s)) }

// SplitText wraps s on spaces. Lines stay UTF-8 and are measured in the
// font's encoding; Text does the only translation.
func (p *PDF) SplitText(s string, width float64) []string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(s) {
		next := word
		if line != "" {
			next = line + " " + word
			if p.pdf.GetStringWidth(p.tr(next)) > width {
				lines = append(lines, line)
				next = word
			}
		}
		line = next
	}
	if line != "" || len(lines) == 0 {
		lines = append(lines, line)
	}
	return lines
}

func (p *PDF) AddPage() { p.pdf.AddPage() }

// Save encodes the document to w.
func (p *PDF) Save(w io.Writer) error {
	if err := p.pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := p.pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// WritePDF exports the puzzle as a PDF to w.
func WritePDF(w io.Writer, grid Grid, words []Word, d Difficulty) error {
	doc := NewPDF()
	Export(doc, grid, words, d)
	return doc.Save(w)
}
