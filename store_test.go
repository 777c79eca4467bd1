package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodul/medterm/crossword"
)

var testVocabulary = []crossword.Entry{
	{ID: "a", Term: "Fever", Definition: "Raised body temperature. Usually infection."},
	{ID: "b", Term: "Nausea", Definition: "Urge to vomit."},
	{ID: "c", Term: "Rash", Definition: "Skin eruption."},
}

func TestAddAndListEntries(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	alice, bob := uuid.New(), uuid.New()

	first, err := s.AddEntry(ctx, GlossaryEntry{UserID: alice, Term: "Fever"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = s.AddEntry(ctx, GlossaryEntry{UserID: alice, Term: "Rash"})
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, GlossaryEntry{UserID: bob, Term: "Nausea"})
	require.NoError(t, err)

	list, err := s.ListEntries(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Rash", list[0].Term, "most recent first")
	assert.Equal(t, "Fever", list[1].Term)

	empty, err := s.ListEntries(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSetTranslation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := uuid.New()
	e, _ := s.AddEntry(ctx, GlossaryEntry{UserID: user, Term: "Fever"})

	updated, err := s.SetTranslation(ctx, user, e.ID, "Fiebre")
	require.NoError(t, err)
	assert.Equal(t, "Fiebre", updated.Translation)

	list, _ := s.ListEntries(ctx, user)
	assert.Equal(t, "Fiebre", list[0].Translation)

	_, err = s.SetTranslation(ctx, uuid.New(), e.ID, "x")
	assert.ErrorIs(t, err, ErrNotFound, "other users cannot update")
}

func TestDeleteEntry(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := uuid.New()
	e, _ := s.AddEntry(ctx, GlossaryEntry{UserID: user, Term: "Fever"})

	assert.ErrorIs(t, s.DeleteEntry(ctx, uuid.New(), e.ID), ErrNotFound)
	require.NoError(t, s.DeleteEntry(ctx, user, e.ID))
	assert.ErrorIs(t, s.DeleteEntry(ctx, user, e.ID), ErrNotFound)

	list, _ := s.ListEntries(ctx, user)
	assert.Empty(t, list)
}

func TestListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := uuid.New()
	s.AddEntry(ctx, GlossaryEntry{UserID: user, Term: "Fever"})

	list, _ := s.ListEntries(ctx, user)
	list[0].Term = "Changed"

	again, _ := s.ListEntries(ctx, user)
	assert.Equal(t, "Fever", again[0].Term)
}

func TestPractice(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := uuid.New()

	p, err := s.SavePractice(ctx, PracticeSession{UserID: user, ScenarioType: "emergency", Score: 80})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)
	s.SavePractice(ctx, PracticeSession{UserID: user, ScenarioType: "pediatrics", Score: 90})

	list, err := s.ListPractice(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pediatrics", list[0].ScenarioType)
}

func TestNewestFirstKeepsInsertionOrderOnTies(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []GlossaryEntry{
		{Term: "a", CreatedAt: at},
		{Term: "b", CreatedAt: at},
		{Term: "c", CreatedAt: at.Add(-time.Hour)},
		{Term: "d", CreatedAt: at},
	}

	got := newestFirst(list, func(e GlossaryEntry) time.Time { return e.CreatedAt })

	terms := make([]string, len(got))
	for i, e := range got {
		terms[i] = e.Term
	}
	assert.Equal(t, []string{"d", "b", "a", "c"}, terms)
	assert.Equal(t, "a", list[0].Term, "input untouched")
}

func TestPuzzleLifecycle(t *testing.T) {
	s := NewStore()
	defer s.Close()
	user := uuid.New()

	p := s.AddPuzzle(NewPuzzle(user, testVocabulary, crossword.Medium, nil))
	assert.NotEmpty(t, p.ID)
	assert.Same(t, p, s.GetPuzzle(p.ID))
	assert.Nil(t, s.GetPuzzle("nonexistent"))

	s.RemovePuzzle(p.ID)
	assert.Nil(t, s.GetPuzzle(p.ID))
	assert.False(t, p.State().Playing, "removal resets the session")

	s.RemovePuzzle(p.ID) // no-op
}

func TestExpireIdlePuzzles(t *testing.T) {
	s := NewStore()
	defer s.Close()
	clock := clockwork.NewFakeClock()
	s.clock = clock
	user := uuid.New()

	stale := s.AddPuzzle(NewPuzzle(user, testVocabulary, crossword.Easy, nil))
	fresh := s.AddPuzzle(NewPuzzle(user, testVocabulary, crossword.Easy, nil))
	require.True(t, stale.State().Active)

	clock.Advance(40 * time.Minute)
	s.GetPuzzle(fresh.ID)
	clock.Advance(40 * time.Minute)

	assert.Empty(t, s.ExpireIdle(90*time.Minute), "both seen recently enough")

	clock.Advance(20 * time.Minute)
	expired := s.ExpireIdle(90 * time.Minute)
	require.Len(t, expired, 1)
	assert.Same(t, stale, expired[0])
	assert.Nil(t, s.GetPuzzle(stale.ID))
	assert.NotNil(t, s.GetPuzzle(fresh.ID))

	state := stale.State()
	assert.False(t, state.Active, "timer stopped")
	assert.False(t, state.Playing)
	assert.True(t, fresh.State().Active)
}

func TestPuzzleStateHidesSolution(t *testing.T) {
	p := NewPuzzle(uuid.New(), testVocabulary, crossword.Medium, nil)
	defer p.Close()

	state := p.State()
	require.Len(t, state.Words, 3)
	for _, w := range state.Words {
		assert.Empty(t, w.Word)
	}
	for _, row := range state.Grid {
		for _, cell := range row {
			assert.Empty(t, cell.Letter)
		}
	}
	assert.Equal(t, "Raised body temperature", state.Words[0].Clue)

	layout := p.Layout()
	assert.Equal(t, "FEVER", layout.Words[0].Word, "layout keeps the solution")
	assert.Equal(t, "F", layout.Grid[7][5].Letter)
}

func TestPuzzleEventsCarryID(t *testing.T) {
	var mu sync.Mutex
	var ids []string
	var types []crossword.EventType
	p := NewPuzzle(uuid.New(), testVocabulary, crossword.Easy, func(id string, e crossword.Event) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, id)
		types = append(types, e.Type)
	})
	defer p.Close()

	p.SetCell(7, 5, "F")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{p.ID}, ids)
	assert.Equal(t, []crossword.EventType{crossword.EventProgress}, types)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()
	user := uuid.New()
	p := s.AddPuzzle(NewPuzzle(user, testVocabulary, crossword.Hard, nil))

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, _ := s.AddEntry(ctx, GlossaryEntry{UserID: user, Term: "term"})
			s.ListEntries(ctx, user)
			s.SetTranslation(ctx, user, e.ID, "x")
			p.SetCell(7, 5+i%5, "A")
			p.State()
			s.GetPuzzle(p.ID)
		}(i)
	}
	wg.Wait()

	list, _ := s.ListEntries(ctx, user)
	assert.Len(t, list, 100)
}
