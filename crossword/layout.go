// Package crossword builds small intersecting crosswords from glossary terms,
// tracks a player's progress through one, and renders it for printing.
package crossword

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

const (
	// GridSize is the width and height of every puzzle grid.
	GridSize = 15
	// MaxWords caps how many candidates are tried, the seed word included.
	MaxWords = 8
	// MinWords is the smallest selection a puzzle can be built from.
	MinWords = 3

	minWordLen = 3
	maxWordLen = 12
)

var (
	// ErrValidation is wrapped by every selection error.
	ErrValidation = errors.New("validation failed")

	ErrTooFewSelected = fmt.Errorf("%w: select at least %d words", ErrValidation, MinWords)
	ErrTooFewEligible = fmt.Errorf("%w: need at least %d valid words (%d-%d letters)", ErrValidation, MinWords, minWordLen, maxWordLen)
)

// Direction is the orientation of a placed word.
type Direction string

const (
	Across Direction = "across"
	Down   Direction = "down"
)

// Entry is a glossary term offered to the builder.
type Entry struct {
	ID          string `json:"id"`
	Term        string `json:"term"`
	Definition  string `json:"definition"`
	Category    string `json:"category"`
	Translation string `json:"translation,omitempty"`
}

// Word is a term laid into the grid.
type Word struct {
	Word      string    `json:"word"`
	Clue      string    `json:"clue"`
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	Direction Direction `json:"direction"`
	Number    int       `json:"number"`
}

// Cells returns the coordinates the word covers, first letter first.
func (w Word) Cells() [][2]int {
	cells := make([][2]int, len(w.Word))
	for i := range cells {
		cells[i] = w.at(i)
	}
	return cells
}

func (w Word) at(i int) [2]int {
	if w.Direction == Down {
		return [2]int{w.Row + i, w.Col}
	}
	return [2]int{w.Row, w.Col + i}
}

// Cell is a single square of the grid. A blocked cell is covered by no word.
type Cell struct {
	Letter  string `json:"letter"`
	Input   string `json:"input"`
	Number  int    `json:"number,omitempty"`
	Blocked bool   `json:"blocked"`
}

// Grid is the fixed-size puzzle board, indexed [row][col].
type Grid [GridSize][GridSize]Cell

// NewGrid returns a grid with every cell blocked.
func NewGrid() Grid {
	var g Grid
	for r := range g {
		for c := range g[r] {
			g[r][c].Blocked = true
		}
	}
	return g
}

// Layout is the builder's output.
type Layout struct {
	Grid  Grid   `json:"grid"`
	Words []Word `json:"words"`
}

// Across returns the across words in placement order.
func (l Layout) Across() []Word { return byDirection(l.Words, Across) }

// Down returns the down words in placement order.
func (l Layout) Down() []Word { return byDirection(l.Words, Down) }

func byDirection(words []Word, d Direction) []Word {
	return lo.Filter(words, func(w Word, _ int) bool { return w.Direction == d })
}

// Normalize reduces a term to its uppercase A-Z letters.
func Normalize(term string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(term) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Eligible reports whether a term's normalized form fits the grid.
func Eligible(term string) bool {
	n := len(Normalize(term))
	return n >= minWordLen && n <= maxWordLen
}

// Select resolves the chosen ids against the glossary and returns the
// eligible entries in glossary order.
func Select(entries []Entry, ids []string) ([]Entry, error) {
	ids = lo.Uniq(ids)
	if len(ids) < MinWords {
		return nil, ErrTooFewSelected
	}
	chosen := lo.Filter(entries, func(e Entry, _ int) bool { return slices.Contains(ids, e.ID) })
	return Candidates(chosen)
}

// Candidates filters entries down to those the builder can place.
func Candidates(entries []Entry) ([]Entry, error) {
	eligible := lo.Filter(entries, func(e Entry, _ int) bool { return Eligible(e.Term) })
	if len(eligible) < MinWords {
		return nil, ErrTooFewEligible
	}
	return eligible, nil
}

// Build lays candidates into a fresh grid. The first candidate is centred
// across; each following one is crossed through the first compatible letter
// of an already placed word. Candidates that cannot cross anything are left
// out. Callers are expected to pass the output of Candidates.
func Build(candidates []Entry, d Difficulty) Layout {
	grid := NewGrid()
	var placed []Word
	if len(candidates) == 0 {
		return Layout{Grid: grid}
	}

	seed := Normalize(candidates[0].Term)
	first := Word{
		Word:      seed,
		Clue:      Clue(d, candidates[0].Definition, seed),
		Row:       GridSize / 2,
		Col:       (GridSize - len(seed)) / 2,
		Direction: Across,
		Number:    1,
	}
	if !canPlace(&grid, first.Word, first.Row, first.Col, first.Direction) {
		return Layout{Grid: grid}
	}
	place(&grid, first)
	placed = append(placed, first)

	for _, entry := range candidates[1:min(len(candidates), MaxWords)] {
		word := Normalize(entry.Term)
		if w, ok := intersect(&grid, placed, word); ok {
			w.Clue = Clue(d, entry.Definition, word)
			w.Number = len(placed) + 1
			place(&grid, w)
			placed = append(placed, w)
		}
	}

	return Layout{Grid: grid, Words: placed}
}

// intersect finds the first valid crossing of word with any placed word.
func intersect(grid *Grid, placed []Word, word string) (Word, bool) {
	for _, p := range placed {
		for j := 0; j < len(word); j++ {
			for k := 0; k < len(p.Word); k++ {
				if word[j] != p.Word[k] {
					continue
				}
				w := Word{Word: word}
				if p.Direction == Across {
					w.Row, w.Col, w.Direction = p.Row-j, p.Col+k, Down
				} else {
					w.Row, w.Col, w.Direction = p.Row+k, p.Col-j, Across
				}
				if canPlace(grid, w.Word, w.Row, w.Col, w.Direction) {
					return w, true
				}
			}
		}
	}
	return Word{}, false
}

func canPlace(grid *Grid, word string, row, col int, dir Direction) bool {
	if row < 0 || col < 0 {
		return false
	}
	w := Word{Word: word, Row: row, Col: col, Direction: dir}
	for i, rc := range w.Cells() {
		r, c := rc[0], rc[1]
		if r >= GridSize || c >= GridSize {
			return false
		}
		cell := grid[r][c]
		if !cell.Blocked && cell.Letter != word[i:i+1] {
			return false
		}
	}
	return true
}

func place(grid *Grid, w Word) {
	for i, rc := range w.Cells() {
		cell := &grid[rc[0]][rc[1]]
		cell.Letter = w.Word[i : i+1]
		cell.Blocked = false
		if i == 0 && cell.Number == 0 {
			cell.Number = w.Number
		}
	}
}
