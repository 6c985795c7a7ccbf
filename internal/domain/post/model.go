package post

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrPostNotFound = errors.New("post not found")

type Collaborator struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role"`
}

// Post is the read-only contract with the platform's post service: just
// enough to authorize poll mutations and label responses.
type Post struct {
	ID            uuid.UUID      `json:"id"`
	Title         string         `json:"title"`
	Slug          string         `json:"slug"`
	AuthorID      uuid.UUID      `json:"authorId"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
}

type Lookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Post, error)
}
