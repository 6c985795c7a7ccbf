package vote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound       = errors.New("vote not found")
	ErrDuplicateEntry      = errors.New("voter already has a ledger entry for this poll")
	ErrPollNotActive       = errors.New("poll is not active")
	ErrOptionNotInPoll     = errors.New("option does not belong to poll")
	ErrChangeWindowExpired = errors.New("vote change window has expired")
	ErrChangeLimitReached  = errors.New("vote change limit reached")
	ErrNotAllowed          = errors.New("only post author, collaborators, or admin may view analytics or exports")
)

// Entry is one voter's durable record on one poll: their current choice,
// when they first voted, and how much change budget they have used.
// MaxChanges and ChangeWindowMinutes are frozen from the config defaults
// at first vote, so changing defaults never affects in-flight votes.
type Entry struct {
	ID                  uuid.UUID `json:"id"`
	PollID              uuid.UUID `json:"pollId"`
	VoterID             uuid.UUID `json:"voterId"`
	OptionID            string    `json:"optionId"`
	FirstVotedAt        time.Time `json:"firstVotedAt"`
	ChangeCount         int       `json:"changeCount"`
	MaxChanges          int       `json:"maxChanges"`
	ChangeWindowMinutes int       `json:"changeWindowMinutes"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Repository persists ledger entries. Insert and UpdateChoice mutate the
// poll's tally in the same transaction as the ledger write and return
// the updated tally, so callers never observe one without the other.
type Repository interface {
	GetByPollAndVoter(ctx context.Context, pollID, voterID uuid.UUID) (*Entry, error)
	// Insert records a first vote and increments the chosen option's
	// count. Returns ErrDuplicateEntry when a concurrent first vote won.
	Insert(ctx context.Context, e *Entry) (map[string]int64, error)
	// UpdateChoice moves the entry to a new option, bumping its change
	// count and shifting one count from the old option (floored at zero)
	// to the new one.
	UpdateChoice(ctx context.Context, e *Entry, newOptionID string) (map[string]int64, error)
	ListByPoll(ctx context.Context, pollID uuid.UUID) ([]Entry, error)
	CountByPoll(ctx context.Context, pollID uuid.UUID) (int64, error)
	// RecomputeTally rebuilds the poll's tally from the ledger and
	// overwrites the cached copy if it drifted. Reports whether a repair
	// was needed.
	RecomputeTally(ctx context.Context, pollID uuid.UUID) (map[string]int64, bool, error)
}
