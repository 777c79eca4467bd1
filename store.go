package main

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Repository persists glossary entries and practice results per user.
type Repository interface {
	ListEntries(ctx context.Context, userID uuid.UUID) ([]GlossaryEntry, error)
	AddEntry(ctx context.Context, e GlossaryEntry) (GlossaryEntry, error)
	SetTranslation(ctx context.Context, userID, id uuid.UUID, translation string) (GlossaryEntry, error)
	DeleteEntry(ctx context.Context, userID, id uuid.UUID) error
	SavePractice(ctx context.Context, p PracticeSession) (PracticeSession, error)
	ListPractice(ctx context.Context, userID uuid.UUID) ([]PracticeSession, error)
}

// Store holds puzzles in memory, and glossary data when no database is
// configured.
type Store struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID][]GlossaryEntry
	practice map[uuid.UUID][]PracticeSession
	puzzles  map[string]*Puzzle
	clock    clockwork.Clock
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[uuid.UUID][]GlossaryEntry),
		practice: make(map[uuid.UUID][]PracticeSession),
		puzzles:  make(map[string]*Puzzle),
		clock:    clockwork.NewRealClock(),
	}
}

// ListEntries returns the user's glossary, most recent first.
func (s *Store) ListEntries(_ context.Context, userID uuid.UUID) ([]GlossaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.entries[userID], func(e GlossaryEntry) time.Time { return e.CreatedAt }), nil
}

// AddEntry stores e with a fresh ID.
func (s *Store) AddEntry(_ context.Context, e GlossaryEntry) (GlossaryEntry, error) {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()

	s.mu.Lock()
	s.entries[e.UserID] = append(s.entries[e.UserID], e)
	s.mu.Unlock()

	return e, nil
}

// SetTranslation updates the translation of one entry.
func (s *Store) SetTranslation(_ context.Context, userID, id uuid.UUID, translation string) (GlossaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[userID]
	i := slices.IndexFunc(list, func(e GlossaryEntry) bool { return e.ID == id })
	if i < 0 {
		return GlossaryEntry{}, fmt.Errorf("glossary entry %s: %w", id, ErrNotFound)
	}
	list[i].Translation = translation
	return list[i], nil
}

// DeleteEntry removes one entry.
func (s *Store) DeleteEntry(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[userID]
	i := slices.IndexFunc(list, func(e GlossaryEntry) bool { return e.ID == id })
	if i < 0 {
		return fmt.Errorf("glossary entry %s: %w", id, ErrNotFound)
	}
	s.entries[userID] = slices.Delete(list, i, i+1)
	return nil
}

// SavePractice records a graded session.
func (s *Store) SavePractice(_ context.Context, p PracticeSession) (PracticeSession, error) {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()

	s.mu.Lock()
	s.practice[p.UserID] = append(s.practice[p.UserID], p)
	s.mu.Unlock()

	return p, nil
}

// ListPractice returns the user's practice sessions, most recent first.
func (s *Store) ListPractice(_ context.Context, userID uuid.UUID) ([]PracticeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.practice[userID], func(p PracticeSession) time.Time { return p.CreatedAt }), nil
}

// AddPuzzle registers a puzzle and returns it.
func (s *Store) AddPuzzle(p *Puzzle) *Puzzle {
	p.touch(s.clock.Now())
	s.mu.Lock()
	s.puzzles[p.ID] = p
	s.mu.Unlock()
	return p
}

// GetPuzzle returns a puzzle by ID, or nil if not found. A lookup counts as
// activity for ExpireIdle.
func (s *Store) GetPuzzle(id string) *Puzzle {
	s.mu.RLock()
	p := s.puzzles[id]
	s.mu.RUnlock()
	if p != nil {
		p.touch(s.clock.Now())
	}
	return p
}

// ExpireIdle removes puzzles not looked up for longer than ttl, stops their
// timers and returns them.
func (s *Store) ExpireIdle(ttl time.Duration) []*Puzzle {
	cutoff := s.clock.Now().Add(-ttl)

	s.mu.Lock()
	var expired []*Puzzle
	for id, p := range s.puzzles {
		if p.idleSince().Before(cutoff) {
			expired = append(expired, p)
			delete(s.puzzles, id)
		}
	}
	s.mu.Unlock()

	for _, p := range expired {
		p.Reset()
	}
	return expired
}

// RemovePuzzle drops a puzzle and stops its timer.
func (s *Store) RemovePuzzle(id string) {
	s.mu.Lock()
	p := s.puzzles[id]
	delete(s.puzzles, id)
	s.mu.Unlock()

	if p != nil {
		p.Reset()
	}
}

// Close stops every running puzzle timer.
func (s *Store) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.puzzles {
		p.Close()
	}
}

func newestFirst[T any](list []T, at func(T) time.Time) []T {
	out := slices.Clone(list)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b T) int { return cmp.Compare(at(b).UnixNano(), at(a).UnixNano()) })
	if out == nil {
		out = []T{}
	}
	return out
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
