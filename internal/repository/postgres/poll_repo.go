package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"poll-engine/internal/domain/poll"
)

type PollRepo struct {
	db *sql.DB
}

func NewPollRepo(db *sql.DB) *PollRepo {
	return &PollRepo{db: db}
}

func (r *PollRepo) Create(ctx context.Context, p *poll.Poll) error {
	optsJSON, err := json.Marshal(p.Options)
	if err != nil {
		return err
	}
	resultsJSON, err := json.Marshal(p.Results)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO polls (id, post_id, question, description, options, results, is_active, expires_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.PostID, p.Question, p.Description,
		optsJSON, resultsJSON, p.IsActive, p.ExpiresAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return poll.ErrPollExists
		}
		return err
	}
	return nil
}

const pollColumns = `id, post_id, question, description, options, results, is_active, expires_at, created_at, updated_at`

func scanPoll(row interface{ Scan(...any) error }) (*poll.Poll, error) {
	p := &poll.Poll{}
	var optsJSON, resultsJSON []byte
	err := row.Scan(
		&p.ID, &p.PostID, &p.Question, &p.Description,
		&optsJSON, &resultsJSON, &p.IsActive, &p.ExpiresAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(optsJSON, &p.Options); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resultsJSON, &p.Results); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PollRepo) GetByID(ctx context.Context, id uuid.UUID) (*poll.Poll, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id)
	p, err := scanPoll(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, poll.ErrPollNotFound
	}
	return p, err
}

func (r *PollRepo) GetByPost(ctx context.Context, postID uuid.UUID) (*poll.Poll, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls WHERE post_id = $1`, postID)
	p, err := scanPoll(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, poll.ErrPollNotFound
	}
	return p, err
}

func (r *PollRepo) List(ctx context.Context, f poll.ListFilter) ([]poll.Poll, int64, error) {
	where := ""
	args := []any{}
	if f.PostID != nil {
		args = append(args, *f.PostID)
		where = fmt.Sprintf(" WHERE post_id = $%d", len(args))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		if where == "" {
			where = fmt.Sprintf(" WHERE is_active = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND is_active = $%d", len(args))
		}
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM polls`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT %s FROM polls%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		pollColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []poll.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, *p)
	}
	return res, total, rows.Err()
}

func (r *PollRepo) Update(ctx context.Context, p *poll.Poll) error {
	optsJSON, err := json.Marshal(p.Options)
	if err != nil {
		return err
	}
	resultsJSON, err := json.Marshal(p.Results)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
        UPDATE polls
        SET question = $1, description = $2, options = $3, results = $4,
            is_active = $5, expires_at = $6, updated_at = $7
        WHERE id = $8
    `, p.Question, p.Description, optsJSON, resultsJSON, p.IsActive, p.ExpiresAt, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return poll.ErrPollNotFound
	}
	return nil
}

// Delete relies on the poll_votes FK cascade, so the ledger entries go
// in the same statement-level transaction as the poll row.
func (r *PollRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return poll.ErrPollNotFound
	}
	return nil
}

func (r *PollRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE polls
        SET is_active = FALSE, updated_at = $1
        WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
    `, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
