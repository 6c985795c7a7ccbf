package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"poll-engine/internal/domain/poll"
	"poll-engine/internal/platform/apperr"
)

type createPollRequest struct {
	PostID      string             `json:"postId"`
	Question    string             `json:"question"`
	Description *string            `json:"description"`
	Options     []poll.OptionInput `json:"options"`
	IsActive    *bool              `json:"isActive"`
	ExpiresAt   *string            `json:"expiresAt"`
}

type updatePollRequest struct {
	Question    *string            `json:"question"`
	Description *string            `json:"description"`
	Options     []poll.OptionInput `json:"options"`
	IsActive    *bool              `json:"isActive"`
	ExpiresAt   json.RawMessage    `json:"expiresAt"`
}

type postSummary struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Slug  string    `json:"slug"`
}

// @Summary     Create a poll for a post
// @Tags        polls
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       request  body      createPollRequest  true  "Poll definition"
// @Success     201      {object}  map[string]any
// @Failure     400      {object}  map[string]string  "validation failure"
// @Failure     401      {object}  map[string]string  "unauthorized"
// @Failure     403      {object}  map[string]string  "not author, collaborator, or admin"
// @Failure     404      {object}  map[string]string  "post not found"
// @Failure     409      {object}  map[string]string  "poll already exists for post"
// @Router      /api/v1/polls [post]
func (h *Handler) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	postID, err := uuid.Parse(req.PostID)
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid post id", err))
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			errorResponse(w, apperr.BadRequest("invalid_input", "expiresAt must be RFC3339", err))
			return
		}
		expiresAt = &t
	}

	requester, _ := requesterFromCtx(r)

	p, pst, err := h.pollSvc.Create(r.Context(), poll.CreateInput{
		PostID:      postID,
		Question:    req.Question,
		Description: req.Description,
		Options:     req.Options,
		IsActive:    req.IsActive,
		ExpiresAt:   expiresAt,
	}, requester)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"poll": p,
		"post": postSummary{ID: pst.ID, Title: pst.Title, Slug: pst.Slug},
	})
}

// @Summary     List polls
// @Tags        polls
// @Produce     json
// @Param       postId    query     string  false  "Filter by post"
// @Param       isActive  query     bool    false  "Filter by activation state"
// @Param       page      query     int     false  "Page (default 1)"
// @Param       limit     query     int     false  "Page size (default 20)"
// @Success     200       {object}  map[string]any
// @Router      /api/v1/polls [get]
func (h *Handler) handleListPolls(w http.ResponseWriter, r *http.Request) {
	f := poll.ListFilter{Page: 1, Limit: 20}

	q := r.URL.Query()
	if s := q.Get("postId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			errorResponse(w, apperr.BadRequest("invalid_input", "invalid post id", err))
			return
		}
		f.PostID = &id
	}
	if s := q.Get("isActive"); s != "" {
		active := s == "true"
		f.IsActive = &active
	}
	if s := q.Get("page"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			f.Page = n
		}
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			f.Limit = n
		}
	}

	// Clamp here as well as in the service: the pagination metadata
	// below must be computed from the limit actually served.
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}

	polls, total, err := h.pollSvc.List(r.Context(), f)
	if err != nil {
		errorResponse(w, err)
		return
	}

	totalPages := total / int64(f.Limit)
	if total%int64(f.Limit) != 0 {
		totalPages++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"polls": polls,
		"pagination": map[string]any{
			"currentPage": f.Page,
			"totalPages":  totalPages,
			"totalPolls":  total,
			"limit":       f.Limit,
		},
	})
}

func (h *Handler) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	pollID, err := parsePollID(r)
	if err != nil {
		errorResponse(w, err)
		return
	}
	h.writeResults(w, r, pollID)
}

func (h *Handler) handleGetPollByPost(w http.ResponseWriter, r *http.Request) {
	postID, err := parseUUIDParam(r, "postID")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid post id", err))
		return
	}

	p, err := h.pollSvc.GetByPost(r.Context(), postID)
	if err != nil {
		errorResponse(w, err)
		return
	}
	h.writeResults(w, r, p.ID)
}

// @Summary     Update a poll
// @Tags        polls
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       pollID   path      string             true  "Poll ID"
// @Param       request  body      updatePollRequest  true  "Fields to change"
// @Success     200      {object}  map[string]any
// @Failure     400      {object}  map[string]string  "invalid expiry or options"
// @Failure     403      {object}  map[string]string  "forbidden"
// @Failure     404      {object}  map[string]string  "poll not found"
// @Router      /api/v1/polls/{pollID} [patch]
func (h *Handler) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	pollID, err := parsePollID(r)
	if err != nil {
		errorResponse(w, err)
		return
	}

	var req updatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	in := poll.UpdateInput{
		Question:    req.Question,
		Description: req.Description,
		Options:     req.Options,
		IsActive:    req.IsActive,
	}

	// expiresAt absent means unchanged; null or "" clears it; a string
	// sets a new expiry.
	if len(req.ExpiresAt) > 0 {
		if bytes.Equal(req.ExpiresAt, []byte("null")) {
			in.ClearExpiry = true
		} else {
			var s string
			if err := json.Unmarshal(req.ExpiresAt, &s); err != nil {
				errorResponse(w, apperr.BadRequest("invalid_input", "expiresAt must be a string or null", err))
				return
			}
			if s == "" {
				in.ClearExpiry = true
			} else {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					errorResponse(w, apperr.BadRequest("invalid_input", "expiresAt must be RFC3339", err))
					return
				}
				in.ExpiresAt = &t
			}
		}
	}

	requester, _ := requesterFromCtx(r)

	p, err := h.pollSvc.Update(r.Context(), pollID, in, requester)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"poll": p})
}

// @Summary     Delete a poll and its votes
// @Tags        polls
// @Security    BearerAuth
// @Produce     json
// @Param       pollID  path      string  true  "Poll ID"
// @Success     200     {object}  map[string]string
// @Failure     403     {object}  map[string]string  "forbidden"
// @Failure     404     {object}  map[string]string  "poll not found"
// @Router      /api/v1/polls/{pollID} [delete]
func (h *Handler) handleDeletePoll(w http.ResponseWriter, r *http.Request) {
	pollID, err := parsePollID(r)
	if err != nil {
		errorResponse(w, err)
		return
	}

	requester, _ := requesterFromCtx(r)

	if err := h.pollSvc.Delete(r.Context(), pollID, requester); err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "poll deleted"})
}
