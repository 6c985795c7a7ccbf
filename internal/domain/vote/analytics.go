package vote

import (
	"context"
	"math"

	"github.com/google/uuid"

	"poll-engine/internal/domain/user"
)

// Analytics is the restricted aggregation over a poll's ledger. Buckets
// are computed from each entry's creation time in UTC.
type Analytics struct {
	Poll             PollSummary      `json:"poll"`
	TotalVotes       int64            `json:"totalVotes"`
	UniqueVoters     int64            `json:"uniqueVoters"`
	AvgVotesPerVoter float64          `json:"avgVotesPerVoter"`
	VoteChanges      int64            `json:"voteChanges"`
	ByDate           map[string]int64 `json:"votesByDate"`
	ByHour           map[int]int64    `json:"votesByHour"`
	ByOption         map[string]int64 `json:"votesByOption"`
}

// Analytics aggregates the ledger for the post author, collaborators, or
// an admin: per-day and per-hour distributions, per-option counts, how
// many voters changed their vote, and the voters-per-entry ratio.
func (s *Service) Analytics(ctx context.Context, pollID uuid.UUID, req user.Requester) (*Analytics, error) {
	p, err := s.authorize(ctx, pollID, req)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries.ListByPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	a := &Analytics{
		Poll:     summarize(p),
		ByDate:   make(map[string]int64),
		ByHour:   make(map[int]int64),
		ByOption: make(map[string]int64),
	}
	for _, o := range p.Options {
		a.ByOption[o.ID] = 0
	}

	voters := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		ts := e.CreatedAt.UTC()
		a.ByDate[ts.Format("2006-01-02")]++
		a.ByHour[ts.Hour()]++
		a.ByOption[e.OptionID]++
		if e.ChangeCount > 0 {
			a.VoteChanges++
		}
		voters[e.VoterID] = struct{}{}
	}

	a.TotalVotes = int64(len(entries))
	a.UniqueVoters = int64(len(voters))
	if a.UniqueVoters > 0 {
		ratio := float64(a.TotalVotes) / float64(a.UniqueVoters)
		a.AvgVotesPerVoter = math.Round(ratio*100) / 100
	}

	return a, nil
}
