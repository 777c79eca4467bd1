package main

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"lukechampine.com/frand"

	"github.com/bodul/medterm/crossword"
)

//go:embed frontend
var frontendFS embed.FS

const (
	maxBodySize     = 1 << 20
	maxRandomTerms  = 10
	defaultLanguage = "Spanish"
)

// rateLimiter is a simple per-IP token bucket rate limiter. Call stop on
// shutdown.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*bucket
	rate     int           // tokens per interval
	interval time.Duration // refill interval
	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

func newRateLimiter(rate int, interval time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		done:     make(chan struct{}),
	}
	go rl.cleanup(time.Minute)
	return rl
}

// cleanup drops stale entries every interval until stop is called.
func (rl *rateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, b := range rl.visitors {
				if time.Since(b.lastSeen) > 5*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &bucket{tokens: rl.rate - 1, lastSeen: time.Now()}
		return true
	}

	refill := int(time.Since(b.lastSeen) / rl.interval)
	if refill > 0 {
		b.tokens = min(b.tokens+refill*rl.rate, rl.rate)
		b.lastSeen = time.Now()
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Server is the main HTTP server.
type Server struct {
	mux     *http.ServeMux
	handler http.Handler
	repo    Repository
	puzzles *Store
	ai      Assistant
	sse     *Broadcaster
	aiRL    *rateLimiter
	cellRL  *rateLimiter
	newRL   *rateLimiter

	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a configured HTTP server. ai may be nil, in which case
// the AI endpoints answer 503.
func NewServer(repo Repository, puzzles *Store, ai Assistant, auth *Authenticator, limits LimitsConfig) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		repo:    repo,
		puzzles: puzzles,
		ai:      ai,
		sse:     NewBroadcaster(),
		aiRL:    newRateLimiter(limits.AIPerMinute, time.Minute),
		cellRL:  newRateLimiter(limits.CellsPerSecond, time.Second),
		newRL:   newRateLimiter(limits.PuzzlesPerMinute, time.Minute),
		done:    make(chan struct{}),
	}
	s.routes()
	s.handler = Chain(RequestID, AccessLog, auth.Middleware, Recover)(s.mux)
	if limits.PuzzleIdleTTL > 0 {
		go s.expirePuzzles(limits.PuzzleIdleTTL)
	}
	return s
}

// Close stops the background sweeps. Running puzzles are left to the Store.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.aiRL.stop()
		s.cellRL.stop()
		s.newRL.stop()
	})
}

// expirePuzzles discards puzzles idle for longer than ttl until Close.
func (s *Server) expirePuzzles(ttl time.Duration) {
	ticker := time.NewTicker(min(ttl, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.discardIdle(ttl)
		}
	}
}

func (s *Server) discardIdle(ttl time.Duration) int {
	expired := s.puzzles.ExpireIdle(ttl)
	for _, p := range expired {
		s.sse.Publish(p.ID, map[string]string{"type": "reset"})
		s.sse.CloseTopic(p.ID)
		log.Info().Str("puzzle_id", p.ID).Dur("ttl", ttl).Msg("idle puzzle discarded")
	}
	return len(expired)
}

func (s *Server) routes() {
	// Glossary
	s.mux.HandleFunc("GET /api/glossary", s.handleListGlossary)
	s.mux.HandleFunc("POST /api/glossary", s.handleAddGlossary)
	s.mux.HandleFunc("DELETE /api/glossary/{id}", s.handleDeleteGlossary)
	s.mux.HandleFunc("POST /api/glossary/{id}/translate", s.handleTranslateGlossary)
	s.mux.HandleFunc("POST /api/glossary/random", s.handleRandomGlossary)

	// Crossword
	s.mux.HandleFunc("POST /api/puzzles", s.handleCreatePuzzle)
	s.mux.HandleFunc("GET /api/puzzles/{id}", s.handleGetPuzzle)
	s.mux.HandleFunc("DELETE /api/puzzles/{id}", s.handleResetPuzzle)
	s.mux.HandleFunc("POST /api/puzzles/{id}/cells", s.handleSetCell)
	s.mux.HandleFunc("GET /api/puzzles/{id}/events", s.handlePuzzleEvents)
	s.mux.HandleFunc("GET /api/puzzles/{id}/pdf", s.handlePuzzlePDF)

	// AI relays
	s.mux.HandleFunc("POST /api/terms/translate", s.handleTranslateTerm)
	s.mux.HandleFunc("POST /api/terms/search", s.handleSearchTerm)
	s.mux.HandleFunc("POST /api/medications/translate", s.handleTranslateMedication)
	s.mux.HandleFunc("POST /api/practice/scenario", s.handlePracticeScenario)
	s.mux.HandleFunc("POST /api/practice/evaluate", s.handleEvaluate)
	s.mux.HandleFunc("GET /api/practice/sessions", s.handleListPractice)
	s.mux.HandleFunc("POST /api/ethics/consult", s.handleEthicsConsult)

	// Frontend static files
	frontendDir, _ := fs.Sub(frontendFS, "frontend")
	fileServer := http.FileServer(http.FS(frontendDir))
	s.mux.HandleFunc("GET /puzzle/{id}", s.handlePuzzlePage)
	s.mux.Handle("GET /", fileServer)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
	s.handler.ServeHTTP(w, r)
}

// --- Glossary handlers ---

// GET /api/glossary
func (s *Server) handleListGlossary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.repo.ListEntries(r.Context(), caller(r).UserID)
	if err != nil {
		s.internalError(w, r, err, "list glossary")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// POST /api/glossary, optionally translating the entry first.
func (s *Server) handleAddGlossary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term           string `json:"term"`
		Definition     string `json:"definition"`
		Category       string `json:"category"`
		TargetLanguage string `json:"target_language"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Term = strings.TrimSpace(req.Term)
	req.Definition = strings.TrimSpace(req.Definition)
	if req.Term == "" || req.Definition == "" {
		jsonError(w, "Fields 'term' and 'definition' are required", http.StatusBadRequest)
		return
	}
	if req.Category == "" {
		req.Category = "general"
	}

	entry := GlossaryEntry{
		UserID:     caller(r).UserID,
		Term:       req.Term,
		Definition: req.Definition,
		Category:   req.Category,
	}

	if req.TargetLanguage != "" && s.ai != nil {
		translation, err := s.ai.TranslateTerm(r.Context(), TermTranslation{
			Term:           req.Term,
			Definition:     req.Definition,
			TargetLanguage: req.TargetLanguage,
		})
		if err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("translation failed, saving without it")
		} else {
			entry.Translation = translation
		}
	}

	saved, err := s.repo.AddEntry(r.Context(), entry)
	if errors.Is(err, ErrInvalidInput) {
		jsonError(w, "Invalid glossary entry", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.internalError(w, r, err, "add glossary entry")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// DELETE /api/glossary/{id}
func (s *Server) handleDeleteGlossary(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		jsonError(w, "Invalid entry id", http.StatusBadRequest)
		return
	}
	if err := s.repo.DeleteEntry(r.Context(), caller(r).UserID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Glossary entry not found", http.StatusNotFound)
			return
		}
		s.internalError(w, r, err, "delete glossary entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/glossary/{id}/translate
func (s *Server) handleTranslateGlossary(w http.ResponseWriter, r *http.Request) {
	if !s.aiAvailable(w, r) {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		jsonError(w, "Invalid entry id", http.StatusBadRequest)
		return
	}
	var req struct {
		TargetLanguage string `json:"target_language"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = defaultLanguage
	}

	userID := caller(r).UserID
	entries, err := s.repo.ListEntries(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, err, "list glossary")
		return
	}
	entry, ok := lo.Find(entries, func(e GlossaryEntry) bool { return e.ID == id })
	if !ok {
		jsonError(w, "Glossary entry not found", http.StatusNotFound)
		return
	}

	translation, err := s.ai.TranslateTerm(r.Context(), TermTranslation{
		Term:           entry.Term,
		Definition:     entry.Definition,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		s.aiError(w, r, err)
		return
	}

	updated, err := s.repo.SetTranslation(r.Context(), userID, id, translation)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Glossary entry not found", http.StatusNotFound)
			return
		}
		s.internalError(w, r, err, "save translation")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// POST /api/glossary/random picks up to ten playable entries.
func (s *Server) handleRandomGlossary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.repo.ListEntries(r.Context(), caller(r).UserID)
	if err != nil {
		s.internalError(w, r, err, "list glossary")
		return
	}
	ids := lo.FilterMap(entries, func(e GlossaryEntry, _ int) (string, bool) {
		return e.ID.String(), crossword.Eligible(e.Term)
	})
	frand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > maxRandomTerms {
		ids = ids[:maxRandomTerms]
	}
	writeJSON(w, http.StatusOK, map[string][]string{"entry_ids": ids})
}

// --- Puzzle handlers ---

// POST /api/puzzles builds a crossword from selected glossary entries.
func (s *Server) handleCreatePuzzle(w http.ResponseWriter, r *http.Request) {
	if !s.newRL.allow(clientIP(r)) {
		jsonError(w, "Too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	var req struct {
		EntryIDs   []string `json:"entry_ids"`
		Difficulty string   `json:"difficulty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := crossword.ParseDifficulty(req.Difficulty)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := caller(r)
	entries, err := s.repo.ListEntries(r.Context(), id.UserID)
	if err != nil {
		s.internalError(w, r, err, "list glossary")
		return
	}
	candidates, err := crossword.Select(Vocabulary(entries), req.EntryIDs)
	if err != nil {
		if errors.Is(err, crossword.ErrValidation) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.internalError(w, r, err, "select terms")
		return
	}

	p := s.puzzles.AddPuzzle(NewPuzzle(id.UserID, candidates, d, s.publishEvent))
	log.Ctx(r.Context()).Info().
		Str("puzzle_id", p.ID).
		Str("difficulty", string(d)).
		Int("words", len(p.Layout().Words)).
		Msg("puzzle created")
	writeJSON(w, http.StatusCreated, p.State())
}

// GET /api/puzzles/{id}
func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	p, ok := s.puzzle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.State())
}

// DELETE /api/puzzles/{id} stops the timer, clears the board and discards
// the puzzle.
func (s *Server) handleResetPuzzle(w http.ResponseWriter, r *http.Request) {
	p, ok := s.puzzle(w, r)
	if !ok {
		return
	}
	s.puzzles.RemovePuzzle(p.ID)
	s.sse.Publish(p.ID, map[string]string{"type": "reset"})
	s.sse.CloseTopic(p.ID)
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/puzzles/{id}/cells writes one letter.
func (s *Server) handleSetCell(w http.ResponseWriter, r *http.Request) {
	if !s.cellRL.allow(clientIP(r)) {
		jsonError(w, "Too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	p, ok := s.puzzle(w, r)
	if !ok {
		return
	}

	var req struct {
		Row   int    `json:"row"`
		Col   int    `json:"col"`
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	p.SetCell(req.Row, req.Col, req.Value)
	writeJSON(w, http.StatusOK, p.State())
}

// GET /api/puzzles/{id}/events is an SSE stream.
func (s *Server) handlePuzzleEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := s.puzzle(w, r)
	if !ok {
		return
	}
	s.sse.ServeSSE(w, r, p.ID, map[string]any{
		"type":  "puzzle_state",
		"state": p.State(),
	})
}

// GET /api/puzzles/{id}/pdf
func (s *Server) handlePuzzlePDF(w http.ResponseWriter, r *http.Request) {
	p, ok := s.puzzle(w, r)
	if !ok {
		return
	}

	layout := p.Layout()
	var buf bytes.Buffer
	if err := crossword.WritePDF(&buf, layout.Grid, layout.Words, p.Difficulty); err != nil {
		s.internalError(w, r, err, "render pdf")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+crossword.Filename(p.Difficulty, time.Now())+`"`)
	w.Write(buf.Bytes())
}

func (s *Server) publishEvent(puzzleID string, e crossword.Event) {
	if e.Type == crossword.EventSolved {
		log.Info().Str("puzzle_id", puzzleID).Int("elapsed", e.Elapsed).Msg("puzzle solved")
	}
	s.sse.Publish(puzzleID, e)
}

// puzzle loads the path's puzzle. Puzzles owned by someone else are
// reported as missing.
func (s *Server) puzzle(w http.ResponseWriter, r *http.Request) (*Puzzle, bool) {
	p := s.puzzles.GetPuzzle(r.PathValue("id"))
	if p == nil || p.UserID != caller(r).UserID {
		jsonError(w, "Puzzle not found", http.StatusNotFound)
		return nil, false
	}
	return p, true
}

// --- AI relay handlers ---

// POST /api/terms/translate
func (s *Server) handleTranslateTerm(w http.ResponseWriter, r *http.Request) {
	if !s.aiAvailable(w, r) {
		return
	}
	var req TermTranslation
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Term == "" || req.TargetLanguage == "" {
		jsonError(w, "Fields 'term' and 'target_language' are required", http.StatusBadRequest)
		return
	}
	text, err := s.ai.TranslateTerm(r.Context(), req)
	if err != nil {
		s.aiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"translation": text})
}

// POST /api/terms/search
func (s *Server) handleSearchTerm(w http.ResponseWriter, r *http.Request) {
	if !s.aiAvailable(w, r) {
		return
	}
	var req struct {
		Term           string `json:"term"`
		TargetLanguage string `json:"target_language"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Term == "" {
		jsonError(w, "Field 'term' is required", http.StatusBadRequest)
		return
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = defaultLanguage
	}
	text, err := s.ai.SearchTerm(r.Context(), req.Term, req.TargetLanguage)
	if err != nil {
		s.aiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": text})
}

// POST /api/medications/translate. Generic and brand names are only
// returned to premium callers.
func (s *Server) handleTranslateMedication(w http.ResponseWriter, r *http.Request) {
	if !s.aiAvailable(w, r) {
		return
	}
	var req MedicationQuery
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Medication == "" || req.TargetLanguage == "" {
		jsonError(w, "Fields 'medication' and 'target_language' are required", http.StatusBadRequest)
		return
	}
	req.Premium = req.Premium && caller(r).HasRole(RolePremium, RoleAdmin)

	info, err := s.ai.TranslateMedication(r.Context(), req)
	if err != nil {
		s.aiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// POST /api/practice/scenario is a premium feature.
func (s *Server) handlePracticeScenario(w http.ResponseWriter, r *http.Request) {
	if !caller(r).HasRole(RolePremium, RoleAdmin) {
		jsonError(w, "Practice scenarios require a premium subscription", http.StatusForbidden)
		return
	}
	if !s.aiAvailable(w, r) {
		return
	}
	var req ScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ScenarioType == "" || req.TargetLanguage == "" {
		jsonError(w, "Fields 'scenario_type' and 'target_language' are required", http.StatusBadRequest)
		return
	}
	req.Difficulty = lo.CoalesceOrEmpty(req.Difficulty, "intermediate")
	req.ProviderAccent = lo.CoalesceOrEmpty(req.ProviderAccent, "neutral")

	text, err := s.ai.PracticeScenario(r.Context(), req)
	if err != nil {
		s.aiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scenario": text})
}

// POST /api/practice/evaluate grades a transcript and records the result.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !s.aiAvailable(w, r) {
		return
	}
	var req EvaluationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		jsonError(w, "Field 'transcript' is required", http.StatusBadRequest)
		return
	}

	eval, err := s.ai.EvaluatePerformance(r.Context(), req)
	if err != nil {
		s.aiError(w, r, err)
		return
	}

	saved, err := s.repo.SavePractice(r.Context(), PracticeSession{
		UserID:         caller(r).UserID,
		ScenarioType:   req.ScenarioType,
		TargetLanguage: req.TargetLanguage,
		Score:          eval.Score,
		Feedback:       eval.Feedback,
	})
	if err != nil {
		s.internalError(w, r, err, "save practice session")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// GET /api/practice/sessions
func (s *Server) handleListPractice(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.repo.ListPractice(r.Context(), caller(r).UserID)
	if err != nil {
		s.internalError(w, r, err, "list practice sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// POST /api/ethics/consult continues a consultation.
func (s *Server) handleEthicsConsult(w http.ResponseWriter, r *http.Request) {
	if !s.aiAvailable(w, r) {
		return
	}
	var req struct {
		Messages []ChatMessage `json:"messages"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	n := len(req.Messages)
	if n == 0 || req.Messages[n-1].Role != "user" || strings.TrimSpace(req.Messages[n-1].Content) == "" {
		jsonError(w, "The last message must be a non-empty user question", http.StatusBadRequest)
		return
	}

	reply, err := s.ai.ConsultEthics(r.Context(), req.Messages)
	if err != nil {
		s.aiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// aiAvailable rejects the request when no AI backend is configured or the
// caller is over budget.
func (s *Server) aiAvailable(w http.ResponseWriter, r *http.Request) bool {
	if s.ai == nil {
		jsonError(w, "AI features are not configured", http.StatusServiceUnavailable)
		return false
	}
	if !s.aiRL.allow(clientIP(r)) {
		jsonError(w, "Too many requests, try again later", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (s *Server) aiError(w http.ResponseWriter, r *http.Request, err error) {
	log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("ai request failed")
	jsonError(w, "AI service error", http.StatusBadGateway)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, op string) {
	log.Ctx(r.Context()).Error().Err(err).Msg(op)
	jsonError(w, "Internal server error", http.StatusInternalServerError)
}

// --- Frontend page handlers ---

// GET /puzzle/{id} serves the play page.
func (s *Server) handlePuzzlePage(w http.ResponseWriter, _ *http.Request) {
	data, _ := frontendFS.ReadFile("frontend/puzzle.html")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// --- Helpers ---

// caller returns the request's identity, or the local user outside /api/.
func caller(r *http.Request) Identity {
	if id, ok := IdentityFromCtx(r.Context()); ok {
		return id
	}
	return Identity{UserID: localUserID, Role: RoleLocal}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
