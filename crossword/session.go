package crossword

import (
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

const tickInterval = time.Second

// EventType names what changed in a session.
type EventType string

const (
	// EventProgress follows every accepted cell write.
	EventProgress EventType = "progress"
	// EventSolved fires once per Start, when every word is complete.
	EventSolved EventType = "solved"
)

// Event is delivered to the session's handler outside the session lock.
type Event struct {
	Type      EventType `json:"type"`
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	Value     string    `json:"value"`
	Completed []int     `json:"completed"`
	Total     int       `json:"total"`
	Elapsed   int       `json:"elapsed"`
}

// Snapshot is a copy of a session's state.
type Snapshot struct {
	Grid      Grid   `json:"grid"`
	Words     []Word `json:"words"`
	Elapsed   int    `json:"elapsed"`
	Completed []int  `json:"completed"`
	Playing   bool   `json:"playing"`
	Active    bool   `json:"active"`
	Solved    bool   `json:"solved"`
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the real clock driving the timer.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithEventHandler registers fn to receive progress and solved events.
func WithEventHandler(fn func(Event)) Option {
	return func(s *Session) { s.onEvent = fn }
}

// Session tracks one player's pass through a layout: the letters typed so
// far, which words are complete, and the elapsed time. Invalid calls are
// ignored rather than reported.
type Session struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	onEvent   func(Event)
	grid      Grid
	words     []Word
	elapsed   int
	completed map[int]struct{}
	playing   bool
	active    bool
	solved    bool
	timer     *Repeater
	gen       uint64
}

// NewSession returns an idle session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		clock:     clockwork.NewRealClock(),
		completed: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start installs a layout and starts the one-second timer. Any previous
// puzzle and its timer are discarded.
func (s *Session) Start(l Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timer.Stop()
	s.gen++
	s.grid = l.Grid
	s.words = slices.Clone(l.Words)
	s.elapsed = 0
	s.completed = make(map[int]struct{})
	s.playing = true
	s.active = true
	s.solved = false

	gen := s.gen
	s.timer = Every(s.clock, tickInterval, func() { s.tickGen(gen) })
}

// SetCell writes the first letter of input, uppercased, into an open cell.
// An empty input clears the cell.
func (s *Session) SetCell(row, col int, input string) {
	evts := s.setCell(row, col, input)
	s.emit(evts)
}

func (s *Session) setCell(row, col int, input string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing || row < 0 || row >= GridSize || col < 0 || col >= GridSize {
		return nil
	}
	cell := &s.grid[row][col]
	if cell.Blocked {
		return nil
	}
	cell.Input = firstUpper(input)

	s.completed = s.completeWords()
	evts := []Event{{
		Type:      EventProgress,
		Row:       row,
		Col:       col,
		Value:     cell.Input,
		Completed: s.completedList(),
		Total:     len(s.words),
		Elapsed:   s.elapsed,
	}}

	if !s.solved && len(s.words) > 0 && len(s.completed) == len(s.words) {
		s.solved = true
		s.active = false
		s.timer.Stop()
		s.timer = nil
		evts = append(evts, Event{
			Type:      EventSolved,
			Completed: s.completedList(),
			Total:     len(s.words),
			Elapsed:   s.elapsed,
		})
	}
	return evts
}

// completeWords rebuilds the set of words whose every cell matches.
func (s *Session) completeWords() map[int]struct{} {
	done := make(map[int]struct{})
	for _, w := range s.words {
		complete := true
		for i, rc := range w.Cells() {
			if s.grid[rc[0]][rc[1]].Input != w.Word[i:i+1] {
				complete = false
				break
			}
		}
		if complete {
			done[w.Number] = struct{}{}
		}
	}
	return done
}

// Tick adds one second to the clock of an active session.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.elapsed++
	}
}

func (s *Session) tickGen(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && s.gen == gen {
		s.elapsed++
	}
}

// Reset stops the timer and drops the puzzle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timer.Stop()
	s.timer = nil
	s.gen++
	s.grid = Grid{}
	s.words = nil
	s.elapsed = 0
	s.completed = make(map[int]struct{})
	s.playing = false
	s.active = false
	s.solved = false
}

// Close stops the timer without touching the puzzle state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.Stop()
	s.timer = nil
	s.active = false
}

// Elapsed returns the seconds counted since Start.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Grid:      s.grid,
		Words:     slices.Clone(s.words),
		Elapsed:   s.elapsed,
		Completed: s.completedList(),
		Playing:   s.playing,
		Active:    s.active,
		Solved:    s.solved,
	}
}

func (s *Session) completedList() []int {
	list := lo.Keys(s.completed)
	slices.Sort(list)
	return list
}

func (s *Session) emit(evts []Event) {
	if s.onEvent == nil {
		return
	}
	for _, e := range evts {
		s.onEvent(e)
	}
}

func firstUpper(s string) string {
	if s == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r))
}
