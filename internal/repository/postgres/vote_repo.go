package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"poll-engine/internal/domain/poll"
	"poll-engine/internal/domain/vote"
)

// ErrConcurrentVote is returned when an optimistic guard on a ledger row
// fails; the caller should retry the whole vote operation.
var ErrConcurrentVote = errors.New("vote was modified concurrently")

type VoteRepo struct {
	db *sql.DB
}

func NewVoteRepo(db *sql.DB) *VoteRepo {
	return &VoteRepo{db: db}
}

const entryColumns = `id, poll_id, voter_id, option_id, first_voted_at, change_count, max_changes, change_window_minutes, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*vote.Entry, error) {
	e := &vote.Entry{}
	err := row.Scan(
		&e.ID, &e.PollID, &e.VoterID, &e.OptionID, &e.FirstVotedAt,
		&e.ChangeCount, &e.MaxChanges, &e.ChangeWindowMinutes,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *VoteRepo) GetByPollAndVoter(ctx context.Context, pollID, voterID uuid.UUID) (*vote.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM poll_votes WHERE poll_id = $1 AND voter_id = $2`,
		pollID, voterID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vote.ErrEntryNotFound
	}
	return e, err
}

// lockTally locks the poll row and returns its cached tally. Every vote
// mutation takes this lock first, which serializes concurrent votes on
// the same poll without any cross-poll contention.
func lockTally(ctx context.Context, tx *sql.Tx, pollID uuid.UUID) (map[string]int64, error) {
	var resultsJSON []byte
	err := tx.QueryRowContext(ctx, `SELECT results FROM polls WHERE id = $1 FOR UPDATE`, pollID).
		Scan(&resultsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, poll.ErrPollNotFound
	}
	if err != nil {
		return nil, err
	}
	results := make(map[string]int64)
	if err := json.Unmarshal(resultsJSON, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func saveTally(ctx context.Context, tx *sql.Tx, pollID uuid.UUID, results map[string]int64) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE polls SET results = $1, updated_at = now() WHERE id = $2`,
		resultsJSON, pollID)
	return err
}

func (r *VoteRepo) Insert(ctx context.Context, e *vote.Entry) (map[string]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	results, err := lockTally(ctx, tx, e.PollID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO poll_votes (`+entryColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, e.ID, e.PollID, e.VoterID, e.OptionID, e.FirstVotedAt,
		e.ChangeCount, e.MaxChanges, e.ChangeWindowMinutes,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, vote.ErrDuplicateEntry
		}
		return nil, err
	}

	results[e.OptionID]++
	if err := saveTally(ctx, tx, e.PollID, results); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *VoteRepo) UpdateChoice(ctx context.Context, e *vote.Entry, newOptionID string) (map[string]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	results, err := lockTally(ctx, tx, e.PollID)
	if err != nil {
		return nil, err
	}

	// Optimistic guard on the state the policy was evaluated against.
	res, err := tx.ExecContext(ctx, `
        UPDATE poll_votes
        SET option_id = $1, change_count = change_count + 1, updated_at = now()
        WHERE id = $2 AND option_id = $3 AND change_count = $4
    `, newOptionID, e.ID, e.OptionID, e.ChangeCount)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrConcurrentVote
	}

	if results[e.OptionID] > 0 {
		results[e.OptionID]--
	}
	results[newOptionID]++
	if err := saveTally(ctx, tx, e.PollID, results); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.OptionID = newOptionID
	e.ChangeCount++
	return results, nil
}

func (r *VoteRepo) ListByPoll(ctx context.Context, pollID uuid.UUID) ([]vote.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM poll_votes WHERE poll_id = $1 ORDER BY first_voted_at`,
		pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []vote.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *VoteRepo) CountByPoll(ctx context.Context, pollID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM poll_votes WHERE poll_id = $1`, pollID).Scan(&n)
	return n, err
}

// RecomputeTally rebuilds the cached tally from the ledger, counting
// only options the poll still has; counts for removed options stay
// discarded. Overwrites the cache when it drifted.
func (r *VoteRepo) RecomputeTally(ctx context.Context, pollID uuid.UUID) (map[string]int64, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var optsJSON, resultsJSON []byte
	err = tx.QueryRowContext(ctx,
		`SELECT options, results FROM polls WHERE id = $1 FOR UPDATE`, pollID).
		Scan(&optsJSON, &resultsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, poll.ErrPollNotFound
	}
	if err != nil {
		return nil, false, err
	}

	var opts []poll.Option
	if err := json.Unmarshal(optsJSON, &opts); err != nil {
		return nil, false, err
	}
	cached := make(map[string]int64)
	if err := json.Unmarshal(resultsJSON, &cached); err != nil {
		return nil, false, err
	}

	known := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		known[o.ID] = struct{}{}
	}

	rows, err := tx.QueryContext(ctx, `
        SELECT option_id, COUNT(*)
        FROM poll_votes
        WHERE poll_id = $1
        GROUP BY option_id
    `, pollID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	fresh := make(map[string]int64)
	for rows.Next() {
		var optID string
		var c int64
		if err := rows.Scan(&optID, &c); err != nil {
			return nil, false, err
		}
		if _, ok := known[optID]; ok {
			fresh[optID] = c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	if talliesEqual(cached, fresh) {
		return fresh, false, tx.Commit()
	}

	if err := saveTally(ctx, tx, pollID, fresh); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}

// talliesEqual ignores explicit zero counts: a cached {red:0} and a
// recomputed map without "red" describe the same tally.
func talliesEqual(a, b map[string]int64) bool {
	for k, v := range a {
		if v != 0 && b[k] != v {
			return false
		}
	}
	for k, v := range b {
		if v != 0 && a[k] != v {
			return false
		}
	}
	return true
}
