package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool sizing for the poll engine: vote mutations hold a poll-row lock
// for one short transaction, so a small pool is enough.
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = time.Hour

	startupDeadline = 15 * time.Second
	pingTimeout     = 2 * time.Second
	pingBackoff     = 500 * time.Millisecond
)

// NewPostgres opens a pgx-backed handle and pings until the database
// accepts connections, so the engine can start while Postgres is still
// coming up next to it.
func NewPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	deadline := time.Now().Add(startupDeadline)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err := db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			_ = db.Close()
			return nil, err
		}
		time.Sleep(pingBackoff)
	}

	return db, nil
}
