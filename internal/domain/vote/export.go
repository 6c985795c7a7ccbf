package vote

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"poll-engine/internal/domain/user"
)

// ExportRow is one ledger entry flattened for export: who voted, for
// what, when, and how many times they changed their mind.
type ExportRow struct {
	Voter       string    `json:"voter"`
	Email       string    `json:"email"`
	OptionID    string    `json:"optionId"`
	OptionText  string    `json:"optionText"`
	VotedAt     time.Time `json:"votedAt"`
	ChangeCount int       `json:"changeCount"`
}

type Export struct {
	Poll        PollSummary `json:"poll"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Rows        []ExportRow `json:"rows"`
}

// Export renders the poll's full ledger for the post author,
// collaborators, or an admin, resolving voter display names and emails
// through the user lookup. Rows are ordered by first-vote time.
func (s *Service) Export(ctx context.Context, pollID uuid.UUID, req user.Requester) (*Export, error) {
	p, err := s.authorize(ctx, pollID, req)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries.ListByPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.VoterID)
	}
	voters, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	optionText := make(map[string]string, len(p.Options))
	for _, o := range p.Options {
		optionText[o.ID] = o.Text
	}

	rows := make([]ExportRow, 0, len(entries))
	for _, e := range entries {
		row := ExportRow{
			OptionID:    e.OptionID,
			OptionText:  optionText[e.OptionID],
			VotedAt:     e.FirstVotedAt,
			ChangeCount: e.ChangeCount,
		}
		if u, ok := voters[e.VoterID]; ok {
			row.Voter = u.Username
			row.Email = u.Email
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].VotedAt.Before(rows[j].VotedAt) })

	return &Export{
		Poll:        summarize(p),
		GeneratedAt: s.clock.Now(),
		Rows:        rows,
	}, nil
}

// WriteCSV renders the export as RFC 4180 CSV; encoding/csv quotes any
// field containing the delimiter, quotes, or newlines.
func (e *Export) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"voter", "email", "optionId", "optionText", "votedAt", "changeCount"}); err != nil {
		return err
	}
	for _, row := range e.Rows {
		rec := []string{
			row.Voter,
			row.Email,
			row.OptionID,
			row.OptionText,
			row.VotedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(row.ChangeCount),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
