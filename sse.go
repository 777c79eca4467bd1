package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	sseChannelBuffer = 16
	sseHeartbeat     = 30 * time.Second
)

// subscriber is a single SSE connection watching one puzzle.
type subscriber struct {
	ch       chan string
	puzzleID string
}

// Broadcaster fans puzzle events out to SSE subscribers.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribe adds a subscriber for a puzzle.
func (b *Broadcaster) Subscribe(puzzleID string) *subscriber {
	s := &subscriber{
		ch:       make(chan string, sseChannelBuffer),
		puzzleID: puzzleID,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(s *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

// Publish encodes v as JSON and sends it to every subscriber of a puzzle.
// Subscribers with a full buffer miss the message.
func (b *Broadcaster) Publish(puzzleID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("puzzle_id", puzzleID).Msg("encode sse event")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if s.puzzleID != puzzleID {
			continue
		}
		select {
		case s.ch <- string(data):
		default:
		}
	}
}

// CloseTopic disconnects every subscriber of a puzzle.
func (b *Broadcaster) CloseTopic(puzzleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if s.puzzleID == puzzleID {
			delete(b.subs, s)
			close(s.ch)
		}
	}
}

// SubscriberCount returns the number of connections watching a puzzle.
func (b *Broadcaster) SubscriberCount(puzzleID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for s := range b.subs {
		if s.puzzleID == puzzleID {
			n++
		}
	}
	return n
}

// ServeSSE streams a puzzle's events until the client goes away or the
// topic is closed. initial, when non-nil, is sent first.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, puzzleID string, initial any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := b.Subscribe(puzzleID)
	defer b.Unsubscribe(s)

	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-s.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
