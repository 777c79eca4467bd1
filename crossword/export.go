package crossword

import (
	"fmt"
	"time"
)

// Document is the drawing surface the exporter writes to. Coordinates are in
// page units with the origin at the top left.
type Document interface {
	SetFontSize(size float64)
	Rect(x, y, w, h float64)
	Text(x, y float64, s string)
	// SplitText wraps s into lines no wider than width.
	SplitText(s string, width float64) []string
	AddPage()
}

// Page geometry, in millimetres on A4.
const (
	cellSize    = 10.0
	marginX     = 20.0
	gridTop     = 30.0
	clueWidth   = 170.0
	clueTop     = 30.0
	pageTop     = 20.0
	pageBottom  = 270.0
	lineHeight  = 5.0
	clueSpacing = 2.0
)

// Filename names an export so successive downloads do not collide.
func Filename(d Difficulty, at time.Time) string {
	return fmt.Sprintf("crossword-puzzle-%s-%d.pdf", d, at.UnixMilli())
}

// Export draws the blank grid on the current page and the clue list on the
// following pages. Solution letters and player input are never drawn.
func Export(doc Document, grid Grid, words []Word, d Difficulty) {
	doc.SetFontSize(16)
	doc.Text(marginX, 20, "Medical Terminology Crossword")
	doc.SetFontSize(10)
	doc.Text(marginX, 26, "Difficulty: "+d.Label())

	for r, row := range grid {
		for c, cell := range row {
			if cell.Blocked {
				continue
			}
			x := marginX + float64(c)*cellSize
			y := gridTop + float64(r)*cellSize
			doc.Rect(x, y, cellSize, cellSize)
			if cell.Number > 0 {
				doc.SetFontSize(6)
				doc.Text(x+1, y+3, fmt.Sprint(cell.Number))
			}
		}
	}

	doc.AddPage()
	doc.SetFontSize(14)
	doc.Text(marginX, pageTop, "Clues")

	y := clueTop
	y = clueGroup(doc, "Across", byDirection(words, Across), y)
	y += 5
	clueGroup(doc, "Down", byDirection(words, Down), y)
}

func clueGroup(doc Document, heading string, words []Word, y float64) float64 {
	doc.SetFontSize(12)
	doc.Text(marginX, y, heading)
	y += 8
	doc.SetFontSize(9)

	for _, w := range words {
		lines := doc.SplitText(fmt.Sprintf("%d. %s", w.Number, w.Clue), clueWidth)
		for i, line := range lines {
			doc.Text(marginX, y+float64(i)*lineHeight, line)
		}
		y += float64(len(lines))*lineHeight + clueSpacing

		if y > pageBottom {
			doc.AddPage()
			y = pageTop
		}
	}
	return y
}
