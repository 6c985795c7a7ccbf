package api

import (
	"database/sql"
	"errors"
	"net/http"

	"poll-engine/internal/domain/poll"
	"poll-engine/internal/domain/post"
	"poll-engine/internal/domain/user"
	"poll-engine/internal/domain/vote"
	"poll-engine/internal/platform/apperr"
	"poll-engine/internal/repository/postgres"
)

func errorResponse(w http.ResponseWriter, err error) {
	appErr := mapError(err)
	writeJSON(w, appErr.StatusCode(), map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

func mapError(err error) *apperr.AppError {
	if err == nil {
		return apperr.Internal("internal_error", "internal server error", nil)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound("not_found", "resource not found", err)
	case errors.Is(err, poll.ErrPollNotFound):
		return apperr.NotFound("poll_not_found", "poll not found", err)
	case errors.Is(err, post.ErrPostNotFound):
		return apperr.NotFound("post_not_found", "post not found", err)
	case errors.Is(err, user.ErrUserNotFound):
		return apperr.NotFound("user_not_found", "user not found", err)
	case errors.Is(err, poll.ErrPollExists):
		return apperr.Conflict("poll_exists", "poll already exists for this post", err)
	case errors.Is(err, poll.ErrNotAllowed), errors.Is(err, vote.ErrNotAllowed):
		return apperr.Forbidden("forbidden", err.Error(), err)
	case errors.Is(err, poll.ErrQuestionRequired),
		errors.Is(err, poll.ErrQuestionTooLong),
		errors.Is(err, poll.ErrDescriptionTooLong),
		errors.Is(err, poll.ErrExpiryNotFuture),
		errors.Is(err, poll.ErrTooFewOptions),
		errors.Is(err, poll.ErrEmptyOptionText),
		errors.Is(err, poll.ErrOptionTextTooLong),
		errors.Is(err, poll.ErrDuplicateOption),
		errors.Is(err, poll.ErrDuplicateOptionID):
		return apperr.BadRequest("invalid_input", err.Error(), err)
	case errors.Is(err, vote.ErrPollNotActive):
		return apperr.InvalidState("poll_not_active", "poll is not active", err)
	case errors.Is(err, vote.ErrOptionNotInPoll):
		return apperr.BadRequest("invalid_option", "option does not belong to poll", err)
	case errors.Is(err, vote.ErrChangeWindowExpired):
		return apperr.InvalidState("change_window_expired", "vote change window has expired", err)
	case errors.Is(err, vote.ErrChangeLimitReached):
		return apperr.InvalidState("change_limit_reached", "vote change limit reached", err)
	case errors.Is(err, postgres.ErrConcurrentVote):
		return apperr.Conflict("concurrent_vote", "vote was modified concurrently, retry", err)
	default:
		return apperr.Internal("internal_error", http.StatusText(http.StatusInternalServerError), err)
	}
}
