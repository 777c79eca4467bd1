package crossword

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(terms ...string) []Entry {
	out := make([]Entry, len(terms))
	for i, t := range terms {
		out[i] = Entry{
			ID:         fmt.Sprintf("e%d", i+1),
			Term:       t,
			Definition: "Definition of " + strings.ToLower(t) + ". More detail here.",
			Category:   "general",
		}
	}
	return out
}

func wordLetters(g Grid, w Word) string {
	var b strings.Builder
	for _, rc := range w.Cells() {
		b.WriteString(g[rc[0]][rc[1]].Letter)
	}
	return b.String()
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "HEARTATTACK", Normalize("heart-attack 2"))
	assert.Equal(t, "CPR", Normalize("C.P.R."))
	assert.Equal(t, "", Normalize("123 ---"))
	assert.True(t, Eligible("C.P.R."))
	assert.False(t, Eligible("IV"))
	assert.False(t, Eligible("Electroencephalogram"))
}

func TestBuildScenario(t *testing.T) {
	l := Build(entries("Fever", "Nausea", "Rash"), Easy)
	require.Len(t, l.Words, 3)

	fever, nausea, rash := l.Words[0], l.Words[1], l.Words[2]
	assert.Equal(t, Word{Word: "FEVER", Clue: "Definition of fever. More detail here.", Row: 7, Col: 5, Direction: Across, Number: 1}, fever)

	// NAUSEA crosses the first E of FEVER with its E.
	assert.Equal(t, Down, nausea.Direction)
	assert.Equal(t, 3, nausea.Row)
	assert.Equal(t, 6, nausea.Col)
	assert.Equal(t, 2, nausea.Number)

	// RASH crosses the R of FEVER.
	assert.Equal(t, Down, rash.Direction)
	assert.Equal(t, 7, rash.Row)
	assert.Equal(t, 9, rash.Col)
	assert.Equal(t, 3, rash.Number)
	assert.Equal(t, "R", l.Grid[7][9].Letter)
	assert.Equal(t, 3, l.Grid[7][9].Number)
}

func TestBuildInvariants(t *testing.T) {
	sets := [][]string{
		{"Fever", "Nausea", "Rash"},
		{"Hepatitis", "Anemia", "Asthma", "Stroke", "Insulin", "Biopsy", "Tumor", "Edema", "Sepsis", "Angina"},
		{"Pneumonia", "Bronchitis", "Arrhythmia", "Tachycardia", "Hypertension", "Dialysis", "Catheter"},
		{"ABC", "XYZ", "QQQ", "CAB"},
	}
	for _, terms := range sets {
		t.Run(terms[0], func(t *testing.T) {
			l := Build(entries(terms...), Medium)
			require.NotEmpty(t, l.Words)
			assert.LessOrEqual(t, len(l.Words), MaxWords)

			covered := map[[2]int]bool{}
			for i, w := range l.Words {
				assert.Equal(t, i+1, w.Number, "numbers follow placement order")
				for _, rc := range w.Cells() {
					require.True(t, rc[0] >= 0 && rc[0] < GridSize && rc[1] >= 0 && rc[1] < GridSize, "%s out of bounds", w.Word)
					covered[rc] = true
				}
				assert.Equal(t, w.Word, wordLetters(l.Grid, w), "grid reproduces %s", w.Word)
				assert.Equal(t, w.Number, l.Grid[w.Row][w.Col].Number, "start cell of %s", w.Word)
			}

			for r := range l.Grid {
				for c, cell := range l.Grid[r] {
					assert.Equal(t, !covered[[2]int{r, c}], cell.Blocked, "cell %d,%d", r, c)
					if cell.Blocked {
						assert.Empty(t, cell.Letter)
					}
				}
			}
		})
	}
}

func TestBuildDropsUnplaceable(t *testing.T) {
	l := Build(entries("Fever", "Xyz", "Rash"), Easy)
	require.Len(t, l.Words, 2)
	assert.Equal(t, "FEVER", l.Words[0].Word)
	assert.Equal(t, "RASH", l.Words[1].Word)
	assert.Equal(t, 2, l.Words[1].Number)
}

func TestBuildCapsAttempts(t *testing.T) {
	terms := []string{"Banana", "Abc", "Cab", "Bad", "Dab", "Tab", "Lab", "Nab", "Jab", "Gab"}
	l := Build(entries(terms...), Easy)
	assert.LessOrEqual(t, len(l.Words), MaxWords)
	for _, w := range l.Words {
		assert.NotEqual(t, "JAB", w.Word)
		assert.NotEqual(t, "GAB", w.Word)
	}
}

func TestBuildSharedStartCellKeepsFirstNumber(t *testing.T) {
	l := Build(entries("Abc", "Ace", "Zzz"), Easy)
	require.Len(t, l.Words, 2)
	ace := l.Words[1]
	assert.Equal(t, Down, ace.Direction)
	assert.Equal(t, l.Words[0].Row, ace.Row)
	assert.Equal(t, l.Words[0].Col, ace.Col)
	assert.Equal(t, 2, ace.Number)
	assert.Equal(t, 1, l.Grid[ace.Row][ace.Col].Number)
}

func TestLayoutDirections(t *testing.T) {
	l := Build(entries("Fever", "Nausea", "Rash"), Easy)
	assert.Len(t, l.Across(), 1)
	assert.Len(t, l.Down(), 2)
}

func TestSelect(t *testing.T) {
	all := entries("Fever", "Nausea", "Rash", "IV", "Sepsis")

	_, err := Select(all, []string{"e1", "e2"})
	assert.ErrorIs(t, err, ErrTooFewSelected)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = Select(all, []string{"e1", "e1", "e2"})
	assert.ErrorIs(t, err, ErrTooFewSelected)

	_, err = Select(all, []string{"e1", "e2", "e4"})
	assert.ErrorIs(t, err, ErrTooFewEligible)

	got, err := Select(all, []string{"e5", "e1", "e4", "e3"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Fever", "Rash", "Sepsis"}, []string{got[0].Term, got[1].Term, got[2].Term})
}

func TestClue(t *testing.T) {
	def := "Inflammation of the liver often caused by viral infection."

	assert.Equal(t, def, Clue(Easy, def, "HEPATITIS"))
	assert.Equal(t, "Inflammation of the liver often caused by viral infection", Clue(Medium, def, "HEPATITIS"))
	assert.Equal(t, "9 letters - Inflammation of the...", Clue(Hard, def, "HEPATITIS"))
	assert.Equal(t, "4 letters - Red...", Clue(Hard, "Red", "RASH"))
	assert.Equal(t, "No period here", Clue(Medium, "No period here", "X"))
}

func TestParseDifficulty(t *testing.T) {
	for in, want := range map[string]Difficulty{"easy": Easy, " HARD ": Hard, "Medium": Medium, "": Medium} {
		got, err := ParseDifficulty(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDifficulty("expert")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Hard", Hard.Label())
}
