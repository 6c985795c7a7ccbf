package vote

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"poll-engine/internal/domain/poll"
	"poll-engine/internal/domain/post"
	"poll-engine/internal/domain/user"
	"poll-engine/internal/platform/clock"
)

// PolicyDefaults seed each new ledger entry's change budget.
type PolicyDefaults struct {
	MaxChanges          int
	ChangeWindowMinutes int
}

type Service struct {
	entries  Repository
	polls    *poll.Service
	posts    post.Lookup
	users    user.Lookup
	clock    clock.Clock
	defaults PolicyDefaults
}

func NewService(entries Repository, polls *poll.Service, posts post.Lookup, users user.Lookup, clk clock.Clock, defaults PolicyDefaults) *Service {
	return &Service{
		entries:  entries,
		polls:    polls,
		posts:    posts,
		users:    users,
		clock:    clk,
		defaults: defaults,
	}
}

// Result is what a voter sees right after casting or changing a vote.
type Result struct {
	Results              map[string]int64 `json:"results"`
	TotalVotes           int64            `json:"totalVotes"`
	UserVote             string           `json:"userVote"`
	TimeRemainingMinutes int              `json:"timeRemainingMinutes"`
	ChangesRemaining     int              `json:"changesRemaining"`
	CanChangeAgain       bool             `json:"canChangeAgain"`
	Changed              bool             `json:"-"`
}

// Vote casts or changes a vote. First votes open a ledger entry with the
// configured change budget; re-submitting the same option is an
// idempotent no-op that consumes nothing; switching options goes through
// the change policy. The ledger write and the tally update always land
// in the same transaction.
func (s *Service) Vote(ctx context.Context, pollID uuid.UUID, optionID string, voterID uuid.UUID) (*Result, error) {
	p, err := s.polls.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrPollNotActive
	}
	if _, ok := p.Option(optionID); !ok {
		return nil, ErrOptionNotInPoll
	}

	now := s.clock.Now()

	e, err := s.entries.GetByPollAndVoter(ctx, pollID, voterID)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		fresh := &Entry{
			ID:                  uuid.New(),
			PollID:              pollID,
			VoterID:             voterID,
			OptionID:            optionID,
			FirstVotedAt:        now,
			ChangeCount:         0,
			MaxChanges:          s.defaults.MaxChanges,
			ChangeWindowMinutes: s.defaults.ChangeWindowMinutes,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		tally, err := s.entries.Insert(ctx, fresh)
		if errors.Is(err, ErrDuplicateEntry) {
			// Lost a race with this voter's own concurrent first vote;
			// fall through to the change path against the winner.
			e, err = s.entries.GetByPollAndVoter(ctx, pollID, voterID)
			if err != nil {
				return nil, err
			}
			return s.changeVote(ctx, e, optionID)
		}
		if err != nil {
			return nil, err
		}
		return &Result{
			Results:              tally,
			TotalVotes:           sumTally(tally),
			UserVote:             optionID,
			TimeRemainingMinutes: fresh.ChangeWindowMinutes,
			ChangesRemaining:     fresh.MaxChanges,
			CanChangeAgain:       fresh.MaxChanges > 0,
			Changed:              false,
		}, nil

	case err != nil:
		return nil, err
	}

	return s.changeVote(ctx, e, optionID)
}

func (s *Service) changeVote(ctx context.Context, e *Entry, optionID string) (*Result, error) {
	now := s.clock.Now()

	if e.OptionID == optionID {
		// Idempotent re-vote: no tally mutation, no change consumed.
		p, err := s.polls.Get(ctx, e.PollID)
		if err != nil {
			return nil, err
		}
		d := EvaluateChange(e, now)
		tally := p.Tally()
		return &Result{
			Results:              tally,
			TotalVotes:           sumTally(tally),
			UserVote:             e.OptionID,
			TimeRemainingMinutes: d.TimeRemainingMinutes,
			ChangesRemaining:     d.ChangesRemaining,
			CanChangeAgain:       d.CanChange,
			Changed:              false,
		}, nil
	}

	d := EvaluateChange(e, now)
	if !d.CanChange {
		if d.Reason == DenialWindowExpired {
			return nil, ErrChangeWindowExpired
		}
		return nil, ErrChangeLimitReached
	}

	tally, err := s.entries.UpdateChoice(ctx, e, optionID)
	if err != nil {
		return nil, err
	}

	after := EvaluateChange(e, now)
	return &Result{
		Results:              tally,
		TotalVotes:           sumTally(tally),
		UserVote:             e.OptionID,
		TimeRemainingMinutes: after.TimeRemainingMinutes,
		ChangesRemaining:     after.ChangesRemaining,
		CanChangeAgain:       after.CanChange,
		Changed:              true,
	}, nil
}

// PollSummary is the read-side projection of a poll used by results,
// analytics, and export payloads.
type PollSummary struct {
	ID          uuid.UUID     `json:"id"`
	Question    string        `json:"question"`
	Description *string       `json:"description,omitempty"`
	Options     []poll.Option `json:"options"`
	IsActive    bool          `json:"isActive"`
}

func summarize(p *poll.Poll) PollSummary {
	return PollSummary{
		ID:          p.ID,
		Question:    p.Question,
		Description: p.Description,
		Options:     p.Options,
		IsActive:    p.IsActive,
	}
}

type ResultsReport struct {
	Poll                 PollSummary      `json:"poll"`
	Results              map[string]int64 `json:"results"`
	TotalVotes           int64            `json:"totalVotes"`
	UserVote             *string          `json:"userVote"`
	CanChangeVote        bool             `json:"canChangeVote"`
	TimeRemainingMinutes int              `json:"timeRemainingMinutes"`
	ChangesRemaining     int              `json:"changesRemaining"`
}

// Results returns the tally for anyone; with a voter it also reports
// that voter's current choice and change eligibility. Inactive polls
// stay readable.
func (s *Service) Results(ctx context.Context, pollID uuid.UUID, voterID *uuid.UUID) (*ResultsReport, error) {
	p, err := s.polls.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}

	tally := p.Tally()
	rep := &ResultsReport{
		Poll:       summarize(p),
		Results:    tally,
		TotalVotes: sumTally(tally),
	}

	if voterID == nil {
		return rep, nil
	}

	e, err := s.entries.GetByPollAndVoter(ctx, pollID, *voterID)
	if errors.Is(err, ErrEntryNotFound) {
		return rep, nil
	}
	if err != nil {
		return nil, err
	}

	d := EvaluateChange(e, s.clock.Now())
	rep.UserVote = &e.OptionID
	rep.CanChangeVote = p.IsActive && d.CanChange
	rep.TimeRemainingMinutes = d.TimeRemainingMinutes
	rep.ChangesRemaining = d.ChangesRemaining
	return rep, nil
}

// authorize loads the poll and checks the requester against its post.
func (s *Service) authorize(ctx context.Context, pollID uuid.UUID, req user.Requester) (*poll.Poll, error) {
	p, err := s.polls.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}
	pst, err := s.posts.GetByID(ctx, p.PostID)
	if err != nil {
		return nil, err
	}
	if !post.CanManage(pst, req) {
		return nil, ErrNotAllowed
	}
	return p, nil
}

func sumTally(tally map[string]int64) int64 {
	var total int64
	for _, c := range tally {
		total += c
	}
	return total
}
