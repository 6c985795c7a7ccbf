package api

import (
	"fmt"
	"net/http"

	"poll-engine/internal/platform/apperr"
)

// @Summary     Poll analytics
// @Tags        polls
// @Security    BearerAuth
// @Produce     json
// @Param       pollID  path      string  true  "Poll ID"
// @Success     200     {object}  vote.Analytics
// @Failure     401     {object}  map[string]string  "unauthenticated"
// @Failure     403     {object}  map[string]string  "not author, collaborator, or admin"
// @Failure     404     {object}  map[string]string  "poll not found"
// @Router      /api/v1/polls/{pollID}/analytics [get]
func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	pollID, err := parsePollID(r)
	if err != nil {
		errorResponse(w, err)
		return
	}

	requester, _ := requesterFromCtx(r)

	a, err := h.voteSvc.Analytics(r.Context(), pollID, requester)
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// @Summary     Export poll results
// @Tags        polls
// @Security    BearerAuth
// @Produce     json
// @Produce     text/csv
// @Param       pollID  path      string  true   "Poll ID"
// @Param       format  query     string  false  "json (default) or csv"
// @Success     200     {object}  vote.Export
// @Failure     400     {object}  map[string]string  "unsupported format"
// @Failure     401     {object}  map[string]string  "unauthenticated"
// @Failure     403     {object}  map[string]string  "not author, collaborator, or admin"
// @Failure     404     {object}  map[string]string  "poll not found"
// @Router      /api/v1/polls/{pollID}/export [get]
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	pollID, err := parsePollID(r)
	if err != nil {
		errorResponse(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		errorResponse(w, apperr.BadRequest("invalid_input", "format must be json or csv", nil))
		return
	}

	requester, _ := requesterFromCtx(r)

	exp, err := h.voteSvc.Export(r.Context(), pollID, requester)
	if err != nil {
		errorResponse(w, err)
		return
	}

	if format == "json" {
		writeJSON(w, http.StatusOK, exp)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="poll-%s-results.csv"`, pollID))
	w.WriteHeader(http.StatusOK)
	if err := exp.WriteCSV(w); err != nil {
		slogLogger.Error("csv export write failed", "poll_id", pollID, "err", err)
	}
}
