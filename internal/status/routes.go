package status

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	logx "cadence/pkg/logx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Service) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.withAuth)
		r.Get("/schedules", s.handleSchedules)
		r.Get("/schedules/{name}", s.handleSchedule)
		r.Get("/tasks", s.handleTasks)
		r.Get("/journal", s.handleJournal)
		r.Get("/runtime", s.handleRuntime)
		if s.cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

func (s *Service) handleSchedules(w http.ResponseWriter, r *http.Request) {
	if s.src.Scheduler == nil {
		respondError(w, r, http.StatusNotFound, "scheduler not available")
		return
	}
	respondOK(w, r, s.src.Scheduler.Snapshot())
}

func (s *Service) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.src.Scheduler == nil {
		respondError(w, r, http.StatusNotFound, "scheduler not available")
		return
	}
	name := chi.URLParam(r, "name")
	for _, info := range s.src.Scheduler.Snapshot().Schedules {
		if info.Name == name {
			respondOK(w, r, info)
			return
		}
	}
	respondError(w, r, http.StatusNotFound, "unknown schedule "+strconv.Quote(name))
}

func (s *Service) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.src.Engine == nil {
		respondError(w, r, http.StatusNotFound, "engine not available")
		return
	}
	respondOK(w, r, s.src.Engine.Snapshot())
}

func (s *Service) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.src.Journal == nil {
		respondError(w, r, http.StatusNotFound, "journal disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, r, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}
	entries, err := s.src.Journal.Recent(r.Context(), r.URL.Query().Get("schedule"), limit)
	if err != nil {
		s.log.Warn("journal read failed", logx.Err(err))
		respondError(w, r, http.StatusInternalServerError, "journal read failed")
		return
	}
	respondOK(w, r, entries)
}

func (s *Service) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if s.src.Runtime == nil {
		respondError(w, r, http.StatusNotFound, "runtime not available")
		return
	}
	respondOK(w, r, s.src.Runtime.Snapshot())
}

// withAuth accepts either "Authorization: Bearer <token>" or ?token=<token>.
func (s *Service) withAuth(next http.Handler) http.Handler {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) {
				got = strings.TrimSpace(strings.TrimPrefix(ah, p))
			}
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respondError(w, r, http.StatusUnauthorized, "unauthorized")
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type envelope struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

func respondOK(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, http.StatusOK, envelope{Status: "ok", RequestID: middleware.GetReqID(r.Context()), Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respondJSON(w, status, envelope{Status: "error", RequestID: middleware.GetReqID(r.Context()), Error: msg})
}

func respondJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
