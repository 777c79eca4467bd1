package main

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bodul/medterm/crossword"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)

// GlossaryEntry is a term in a user's personal glossary.
type GlossaryEntry struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Term        string    `json:"term"`
	Definition  string    `json:"definition"`
	Category    string    `json:"category"`
	Translation string    `json:"translation,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Vocabulary converts glossary entries into crossword input, keeping order.
func Vocabulary(entries []GlossaryEntry) []crossword.Entry {
	out := make([]crossword.Entry, len(entries))
	for i, e := range entries {
		out[i] = crossword.Entry{
			ID:          e.ID.String(),
			Term:        e.Term,
			Definition:  e.Definition,
			Category:    e.Category,
			Translation: e.Translation,
		}
	}
	return out
}

// PracticeSession is a graded practice transcript.
type PracticeSession struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	ScenarioType   string    `json:"scenario_type"`
	TargetLanguage string    `json:"target_language"`
	Score          int       `json:"score"`
	Feedback       string    `json:"feedback"`
	CreatedAt      time.Time `json:"created_at"`
}
