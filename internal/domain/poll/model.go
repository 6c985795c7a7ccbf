package poll

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPollNotFound = errors.New("poll not found")
	ErrPollExists   = errors.New("poll already exists for this post")
	ErrNotAllowed   = errors.New("only post author, collaborators, or admin may manage polls")
)

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Poll is a single-question voting unit attached to exactly one post.
// Results is a derived tally cache keyed by option id; the vote ledger
// is the source of truth and the reconciler repairs any drift.
type Poll struct {
	ID          uuid.UUID        `json:"id"`
	PostID      uuid.UUID        `json:"postId"`
	Question    string           `json:"question"`
	Description *string          `json:"description,omitempty"`
	Options     []Option         `json:"options"`
	Results     map[string]int64 `json:"results"`
	IsActive    bool             `json:"isActive"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Option returns the option with the given id, if the poll has one.
func (p *Poll) Option(id string) (Option, bool) {
	for _, o := range p.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Tally returns the option-id -> count map with every option present,
// zero counts included.
func (p *Poll) Tally() map[string]int64 {
	t := make(map[string]int64, len(p.Options))
	for _, o := range p.Options {
		t[o.ID] = p.Results[o.ID]
	}
	return t
}

func (p *Poll) TotalVotes() int64 {
	var total int64
	for _, c := range p.Results {
		total += c
	}
	return total
}

// Expired reports whether the poll has an expiry at or before now.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

type ListFilter struct {
	PostID   *uuid.UUID
	IsActive *bool
	Page     int
	Limit    int
}

type Repository interface {
	Create(ctx context.Context, p *Poll) error
	GetByID(ctx context.Context, id uuid.UUID) (*Poll, error)
	GetByPost(ctx context.Context, postID uuid.UUID) (*Poll, error)
	List(ctx context.Context, f ListFilter) ([]Poll, int64, error)
	Update(ctx context.Context, p *Poll) error
	// Delete removes the poll and all its ledger entries in one step.
	Delete(ctx context.Context, id uuid.UUID) error
	// DeactivateExpired flips is_active off for every active poll whose
	// expiry is at or before now, returning how many were flipped.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
