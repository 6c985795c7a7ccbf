package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"poll-engine/internal/domain/user"
)

// UserRepo reads the platform-owned users table for display fields in
// analytics and export.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u := &user.User{}
	err := r.db.QueryRowContext(ctx, `
        SELECT id, username, email, role, created_at
        FROM users WHERE id = $1
    `, id).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]user.User, error) {
	res := make(map[uuid.UUID]user.User, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	strIDs := make([]string, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		strIDs = append(strIDs, id.String())
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT id, username, email, role, created_at
        FROM users WHERE id = ANY($1::uuid[])
    `, strIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		res[u.ID] = u
	}
	return res, rows.Err()
}
