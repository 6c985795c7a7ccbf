package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"poll-engine/internal/domain/post"
)

// PostRepo reads the platform-owned posts table. The poll engine never
// writes it.
type PostRepo struct {
	db *sql.DB
}

func NewPostRepo(db *sql.DB) *PostRepo {
	return &PostRepo{db: db}
}

func (r *PostRepo) GetByID(ctx context.Context, id uuid.UUID) (*post.Post, error) {
	p := &post.Post{}
	var collabJSON []byte
	err := r.db.QueryRowContext(ctx, `
        SELECT id, title, slug, author_id, collaborators
        FROM posts WHERE id = $1
    `, id).Scan(&p.ID, &p.Title, &p.Slug, &p.AuthorID, &collabJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, post.ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(collabJSON, &p.Collaborators); err != nil {
		return nil, err
	}
	return p, nil
}
