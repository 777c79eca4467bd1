package crossword

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Difficulty selects how much of a definition is shown as the clue.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// hardClueWords is how many definition words a hard clue keeps.
const hardClueWords = 3

// ParseDifficulty accepts easy, medium or hard in any case. An empty string
// means medium.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Easy, Medium, Hard:
		return d, nil
	case "":
		return Medium, nil
	default:
		return "", fmt.Errorf("%w: unknown difficulty %q", ErrValidation, s)
	}
}

// Label is the display form, e.g. "Medium".
func (d Difficulty) Label() string {
	return cases.Title(language.English).String(string(d))
}

// Clue derives the hint shown for word from its definition.
func Clue(d Difficulty, definition, word string) string {
	switch d {
	case Medium:
		before, _, _ := strings.Cut(definition, ".")
		return before
	case Hard:
		words := strings.Split(definition, " ")
		return fmt.Sprintf("%d letters - %s...", len(word), strings.Join(words[:min(len(words), hardClueWords)], " "))
	default:
		return definition
	}
}
