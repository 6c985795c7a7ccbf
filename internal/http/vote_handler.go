package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"poll-engine/internal/metrics"
	"poll-engine/internal/platform/apperr"
	"poll-engine/internal/worker"
)

type voteRequest struct {
	OptionID string `json:"optionId"`
}

// @Summary     Cast or change a vote
// @Tags        votes
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       pollID   path      string       true  "Poll ID"
// @Param       request  body      voteRequest  true  "Chosen option"
// @Success     200      {object}  vote.Result
// @Failure     400      {object}  map[string]string  "invalid option, inactive poll, or change budget exhausted"
// @Failure     401      {object}  map[string]string  "unauthorized"
// @Failure     404      {object}  map[string]string  "poll not found"
// @Router      /api/v1/polls/{pollID}/vote [post]
func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	pollID, err := parsePollID(r)
	if err != nil {
		errorResponse(w, err)
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}
	if req.OptionID == "" {
		errorResponse(w, apperr.BadRequest("invalid_input", "optionId is required", nil))
		return
	}

	requester, _ := requesterFromCtx(r)

	res, err := h.voteSvc.Vote(r.Context(), pollID, req.OptionID, requester.ID)
	if err != nil {
		errorResponse(w, err)
		return
	}

	kind := "new"
	if res.Changed {
		kind = "changed"
	}
	metrics.IncVote(kind)

	select {
	case h.voteCh <- worker.VoteEvent{PollID: pollID, OptionID: req.OptionID, VoterID: requester.ID}:
	default:
	}

	writeJSON(w, http.StatusOK, res)
}

// @Summary     Poll results
// @Tags        polls
// @Produce     json
// @Param       pollID  path      string  true  "Poll ID"
// @Success     200     {object}  vote.ResultsReport
// @Failure     404     {object}  map[string]string  "poll not found"
// @Router      /api/v1/polls/{pollID}/results [get]
func (h *Handler) handlePollResults(w http.ResponseWriter, r *http.Request) {
	pollID, err := parsePollID(r)
	if err != nil {
		errorResponse(w, err)
		return
	}
	h.writeResults(w, r, pollID)
}

func (h *Handler) writeResults(w http.ResponseWriter, r *http.Request, pollID uuid.UUID) {
	var voterID *uuid.UUID
	if requester, ok := requesterFromCtx(r); ok {
		voterID = &requester.ID
	}

	rep, err := h.voteSvc.Results(r.Context(), pollID, voterID)
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
