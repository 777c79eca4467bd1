package main

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bodul/medterm/crossword"
)

// Puzzle is a crossword being played by one user.
type Puzzle struct {
	ID         string               `json:"id"`
	UserID     uuid.UUID            `json:"user_id"`
	Difficulty crossword.Difficulty `json:"difficulty"`
	CreatedAt  time.Time            `json:"created_at"`
	session    *crossword.Session
	lastSeen   atomic.Int64 // unix nanos of the last lookup
}

// PuzzleState is the JSON view of a puzzle. Solution letters are stripped
// until the puzzle is solved.
type PuzzleState struct {
	*Puzzle
	crossword.Snapshot
}

// NewPuzzle builds a layout from candidates and starts playing it. Events
// from the session are passed to onEvent tagged with the puzzle ID.
func NewPuzzle(userID uuid.UUID, candidates []crossword.Entry, d crossword.Difficulty, onEvent func(id string, e crossword.Event)) *Puzzle {
	p := &Puzzle{
		ID:         generateID(),
		UserID:     userID,
		Difficulty: d,
		CreatedAt:  time.Now(),
	}
	p.session = crossword.NewSession(crossword.WithEventHandler(func(e crossword.Event) {
		if onEvent != nil {
			onEvent(p.ID, e)
		}
	}))
	p.session.Start(crossword.Build(candidates, d))
	return p
}

// SetCell writes a letter. Blocked or out-of-range cells are ignored.
func (p *Puzzle) SetCell(row, col int, value string) {
	p.session.SetCell(row, col, value)
}

// State returns a copy of the current state for clients.
func (p *Puzzle) State() PuzzleState {
	snap := p.session.Snapshot()
	if !snap.Solved {
		snap.Grid = hideSolution(snap.Grid)
		for i := range snap.Words {
			snap.Words[i].Word = ""
		}
	}
	return PuzzleState{Puzzle: p, Snapshot: snap}
}

// Layout returns the grid and words for export.
func (p *Puzzle) Layout() crossword.Layout {
	snap := p.session.Snapshot()
	return crossword.Layout{Grid: snap.Grid, Words: snap.Words}
}

// Reset stops the timer and clears the board.
func (p *Puzzle) Reset() { p.session.Reset() }

// Close stops the timer.
func (p *Puzzle) Close() { p.session.Close() }

func (p *Puzzle) touch(at time.Time) { p.lastSeen.Store(at.UnixNano()) }

func (p *Puzzle) idleSince() time.Time { return time.Unix(0, p.lastSeen.Load()) }

func hideSolution(g crossword.Grid) crossword.Grid {
	for r := range g {
		for c := range g[r] {
			g[r][c].Letter = ""
		}
	}
	return g
}
