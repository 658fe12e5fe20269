// Package api provides the HTTP API for observing the lattice.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane — the sentinel
// drives resyncs through it).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/prime-lattice/internal/clock"
	"github.com/talgya/prime-lattice/internal/engine"
	"github.com/talgya/prime-lattice/internal/persistence"
	"github.com/talgya/prime-lattice/internal/phaselock"
	"github.com/talgya/prime-lattice/internal/resonance"
)

// Server serves the lattice state over HTTP.
type Server struct {
	Field *resonance.Field
	Ctrl  *phaselock.Controller
	Eng   *engine.Engine
	DB    *persistence.DB
	Clock *clock.Reference

	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Mu serializes API reads against the tick loop's writes. The
	// controller has no internal synchronization, so every handler that
	// touches it must hold at least the read side.
	Mu *sync.RWMutex

	started time.Time
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	mux := s.routes()

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// routes builds the endpoint mux.
func (s *Server) routes() *http.ServeMux {
	s.started = time.Now()

	// The report endpoint walks the full coherence matrix; keep casual
	// pollers from hammering it.
	reportLimiter := NewRateLimiter(120, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/anchors", s.handleAnchors)
	mux.HandleFunc("/api/v1/anchor/", s.handleAnchorDetail)
	mux.HandleFunc("/api/v1/patterns", s.handlePatterns)
	mux.HandleFunc("/api/v1/resonance", s.handleResonance)
	mux.HandleFunc("/api/v1/sync/quality", s.handleQuality)
	mux.HandleFunc("/api/v1/sync/coherence", s.handleCoherence)
	mux.HandleFunc("/api/v1/sync/report", RateLimitMiddleware(reportLimiter, s.handleReport))
	mux.HandleFunc("/api/v1/sync/samples", s.handleSamples)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/sync/external", s.adminOnly(s.handleExternalSync))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/pattern", s.adminOnly(s.handleCreatePattern))

	return mux
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no LATTICE_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()

	status := map[string]any{
		"name":        "Prime Lattice",
		"tick":        s.Eng.TickCount(),
		"speed":       s.Eng.Speed(),
		"running":     s.Eng.Running(),
		"started":     humanize.Time(s.started),
		"local_time":  s.Ctrl.LocalTime(),
		"sync_time":   s.Ctrl.SynchronizedTime(),
		"offset_us":   s.Ctrl.Offset() * 1e6,
		"since_sync":  s.Ctrl.TimeSinceSync(),
		"quality":     s.Ctrl.SyncQuality(),
		"anchors":     len(s.Field.Anchors()),
		"patterns":    len(s.Field.Patterns()),
		"oscillators": len(s.Ctrl.Master().Oscillators()),
	}
	writeJSON(w, status)
}

func (s *Server) handleAnchors(w http.ResponseWriter, r *http.Request) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()

	writeJSON(w, map[string]any{"anchors": s.Field.Anchors()})
}

// handleAnchorDetail serves GET /api/v1/anchor/:name with the anchor and
// its measurement (normalized coefficient vector).
func (s *Server) handleAnchorDetail(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/anchor/")
	if name == "" {
		http.Error(w, "anchor name required", http.StatusBadRequest)
		return
	}

	s.Mu.RLock()
	defer s.Mu.RUnlock()

	anchor, err := s.Field.Anchor(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	measurement, _ := s.Field.Measure(name)

	writeJSON(w, map[string]any{
		"anchor":      anchor,
		"measurement": measurement,
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()

	type patternEntry struct {
		Name      string   `json:"name"`
		Anchors   []string `json:"anchors"`
		Strength  float64  `json:"strength"`
		Connected bool     `json:"connected"`
	}

	patterns := s.Field.Patterns()
	out := make([]patternEntry, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, patternEntry{
			Name:      p.Name,
			Anchors:   p.AnchorNames(),
			Strength:  p.Strength,
			Connected: s.Field.IsConnected(p),
		})
	}
	writeJSON(w, map[string]any{"patterns": out})
}

// handleResonance serves GET /api/v1/resonance?a=NAME&b=NAME.
func (s *Server) handleResonance(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		http.Error(w, "query params a and b required", http.StatusBadRequest)
		return
	}

	s.Mu.RLock()
	defer s.Mu.RUnlock()

	score, err := s.Field.Entanglement(a, b)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{"a": a, "b": b, "resonance": score})
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()

	writeJSON(w, map[string]any{
		"quality":    s.Ctrl.SyncQuality(),
		"offset_us":  s.Ctrl.Offset() * 1e6,
		"since_sync": s.Ctrl.TimeSinceSync(),
		"sync_time":  s.Ctrl.SynchronizedTime(),
	})
}

func (s *Server) handleCoherence(w http.ResponseWriter, r *http.Request) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()

	primes, matrix := s.Ctrl.CoherenceMatrix()
	writeJSON(w, map[string]any{"primes": primes, "matrix": matrix})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.Mu.RLock()
	report := s.Ctrl.Report()
	s.Mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, report)
}

// handleSamples serves GET /api/v1/sync/samples?limit=N (default 60).
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	limit := 60
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10000 {
			http.Error(w, "limit must be 1-10000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	if s.DB == nil {
		http.Error(w, "telemetry storage not configured", http.StatusServiceUnavailable)
		return
	}

	samples, err := s.DB.RecentSamples(limit)
	if err != nil {
		http.Error(w, "sample query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"count":   humanize.Comma(int64(len(samples))),
		"samples": samples,
	})
}

// handleExternalSync triggers an external time sync. The body may carry an
// explicit reference time; otherwise the server's reference clock is read.
func (s *Server) handleExternalSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ReferenceTime *float64 `json:"reference_time"`
	}
	if r.Body != nil {
		// An empty body is fine — decode errors only matter when a body
		// was actually supplied.
		json.NewDecoder(r.Body).Decode(&req)
	}

	referenceTime := s.Clock.Now()
	if req.ReferenceTime != nil {
		referenceTime = *req.ReferenceTime
	}

	s.Mu.Lock()
	s.Ctrl.SyncWithExternal(referenceTime)
	offset := s.Ctrl.Offset()
	quality := s.Ctrl.SyncQuality()
	s.Mu.Unlock()

	writeJSON(w, map[string]any{
		"reference_time": referenceTime,
		"offset_us":      offset * 1e6,
		"quality":        quality,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleCreatePattern serves POST /api/v1/pattern {"name": ..., "anchors": [...]}.
func (s *Server) handleCreatePattern(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name    string   `json:"name"`
		Anchors []string `json:"anchors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Name == "" || len(req.Anchors) == 0 {
		http.Error(w, "name and anchors required", http.StatusBadRequest)
		return
	}

	s.Mu.Lock()
	pattern, err := s.Field.CreatePattern(req.Name, req.Anchors)
	var connected bool
	if err == nil {
		connected = s.Field.IsConnected(pattern)
	}
	patterns := s.Field.Patterns()
	s.Mu.Unlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.DB != nil {
		if saveErr := s.DB.SavePatterns(patterns); saveErr != nil {
			slog.Error("pattern save failed", "error", saveErr)
		}
	}

	writeJSON(w, map[string]any{
		"name":      pattern.Name,
		"anchors":   pattern.AnchorNames(),
		"strength":  pattern.Strength,
		"connected": connected,
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
