package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"poll-engine/internal/domain/post"
	"poll-engine/internal/domain/user"
	"poll-engine/internal/platform/clock"
)

var (
	ErrQuestionRequired   = errors.New("question is required")
	ErrQuestionTooLong    = fmt.Errorf("question exceeds %d characters", maxQuestionLen)
	ErrDescriptionTooLong = fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	ErrExpiryNotFuture    = errors.New("expires_at must be in the future")
)

// Service is the poll lifecycle manager: it owns creation, edits,
// deletion, and expiry sweeps. Vote-driven tally updates go through the
// vote service instead.
type Service struct {
	repo  Repository
	posts post.Lookup
	clock clock.Clock
}

func NewService(repo Repository, posts post.Lookup, clk clock.Clock) *Service {
	return &Service{repo: repo, posts: posts, clock: clk}
}

type CreateInput struct {
	PostID      uuid.UUID
	Question    string
	Description *string
	Options     []OptionInput
	IsActive    *bool
	ExpiresAt   *time.Time
}

// Create builds and persists a poll for a post that does not have one
// yet. The requester must be the post author, a collaborator, or an
// admin. Returns the poll together with the resolved post for display.
func (s *Service) Create(ctx context.Context, in CreateInput, req user.Requester) (*Poll, *post.Post, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, nil, ErrQuestionRequired
	}
	if len(question) > maxQuestionLen {
		return nil, nil, ErrQuestionTooLong
	}
	if in.Description != nil && len(*in.Description) > maxDescriptionLen {
		return nil, nil, ErrDescriptionTooLong
	}

	opts, err := buildOptions(in.Options)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, nil, ErrExpiryNotFuture
	}

	pst, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, nil, err
	}
	if !post.CanManage(pst, req) {
		return nil, nil, ErrNotAllowed
	}

	p := &Poll{
		ID:          uuid.New(),
		PostID:      in.PostID,
		Question:    question,
		Description: in.Description,
		Options:     opts,
		Results:     make(map[string]int64),
		IsActive:    true,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, pst, nil
}

type UpdateInput struct {
	Question    *string
	Description *string
	Options     []OptionInput // nil means unchanged
	IsActive    *bool
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Update applies a partial edit. When options are replaced, counts for
// option ids that survive are kept and counts for removed ids are
// discarded; orphaned ledger entries are not migrated. A poll whose
// expiry has already passed is forced inactive on the way out.
func (s *Service) Update(ctx context.Context, pollID uuid.UUID, in UpdateInput, req user.Requester) (*Poll, error) {
	p, err := s.repo.GetByID(ctx, pollID)
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

	if in.Question != nil {
		q := strings.TrimSpace(*in.Question)
		if q == "" {
			return nil, ErrQuestionRequired
		}
		if len(q) > maxQuestionLen {
			return nil, ErrQuestionTooLong
		}
		p.Question = q
	}
	if in.Description != nil {
		if len(*in.Description) > maxDescriptionLen {
			return nil, ErrDescriptionTooLong
		}
		p.Description = in.Description
	}

	if in.Options != nil {
		opts, err := buildOptions(in.Options)
		if err != nil {
			return nil, err
		}
		kept := make(map[string]int64, len(opts))
		for _, o := range opts {
			if c, ok := p.Results[o.ID]; ok {
				kept[o.ID] = c
			}
		}
		p.Options = opts
		p.Results = kept
	}

	now := s.clock.Now()
	switch {
	case in.ClearExpiry:
		p.ExpiresAt = nil
	case in.ExpiresAt != nil:
		if !in.ExpiresAt.After(now) {
			return nil, ErrExpiryNotFuture
		}
		p.ExpiresAt = in.ExpiresAt
	}

	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if p.Expired(now) {
		p.IsActive = false
	}
	p.UpdatedAt = now

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the poll and cascades to its ledger entries.
func (s *Service) Delete(ctx context.Context, pollID uuid.UUID, req user.Requester) error {
	p, err := s.repo.GetByID(ctx, pollID)
	if err != nil {
		return err
	}

	pst, err := s.posts.GetByID(ctx, p.PostID)
	if err != nil {
		return err
	}
	if !post.CanManage(pst, req) {
		return ErrNotAllowed
	}

	return s.repo.Delete(ctx, pollID)
}

// DeactivateExpired is the lazy expiry sweep. Read and vote paths run it
// before touching a poll, and the reconciler runs it on a ticker; it is
// a consistency sweep, not a real-time guarantee.
func (s *Service) DeactivateExpired(ctx context.Context) (int64, error) {
	return s.repo.DeactivateExpired(ctx, s.clock.Now())
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Poll, error) {
	if _, err := s.DeactivateExpired(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByPost(ctx context.Context, postID uuid.UUID) (*Poll, error) {
	if _, err := s.DeactivateExpired(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetByPost(ctx, postID)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Poll, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	if _, err := s.DeactivateExpired(ctx); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f)
}
