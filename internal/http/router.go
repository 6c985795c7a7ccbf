package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"poll-engine/internal/domain/poll"
	"poll-engine/internal/domain/vote"
	"poll-engine/internal/platform/apperr"
	jwtpkg "poll-engine/internal/platform/jwt"
	"poll-engine/internal/worker"
)

type Handler struct {
	pollSvc *poll.Service
	voteSvc *vote.Service
	jwtMgr  *jwtpkg.Manager
	voteCh  chan<- worker.VoteEvent
	db      *sql.DB
}

func NewRouter(
	pollSvc *poll.Service,
	voteSvc *vote.Service,
	jwtMgr *jwtpkg.Manager,
	voteCh chan<- worker.VoteEvent,
	db *sql.DB,
) http.Handler {
	h := &Handler{
		pollSvc: pollSvc,
		voteSvc: voteSvc,
		jwtMgr:  jwtMgr,
		voteCh:  voteCh,
		db:      db,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(RequestLogger)
	r.Use(CORSMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", h.handleReady)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(OptionalAuth(jwtMgr))

			r.Get("/polls", h.handleListPolls)
			r.Get("/polls/post/{postID}", h.handleGetPollByPost)
			r.Get("/polls/{pollID}", h.handleGetPoll)
			r.Get("/polls/{pollID}/results", h.handlePollResults)
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtMgr))

			r.Post("/polls", h.handleCreatePoll)
			r.Put("/polls/{pollID}", h.handleUpdatePoll)
			r.Patch("/polls/{pollID}", h.handleUpdatePoll)
			r.Delete("/polls/{pollID}", h.handleDeletePoll)
			r.With(RateLimitVotes(rate.Every(time.Minute/10), 3)).Post("/polls/{pollID}/vote", h.handleVote)
			r.Get("/polls/{pollID}/analytics", h.handleAnalytics)
			r.Get("/polls/{pollID}/export", h.handleExport)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func parsePollID(r *http.Request) (uuid.UUID, error) {
	id, err := parseUUIDParam(r, "pollID")
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid_input", "invalid poll id", err)
	}
	return id, nil
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "db_unavailable",
			"message": "database not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "db_unavailable",
			"message": "database not ready",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
