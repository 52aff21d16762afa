package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type Attempt struct {
	UsernameHash string
	Failures     int
	BlockedUntil time.Time
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetAttempt returns the zero Attempt for unseen usernames.
func (s *Store) GetAttempt(ctx context.Context, usernameHash string) (Attempt, error) {
	var a Attempt
	var blockedUntil string
	err := s.db.QueryRowContext(ctx, `
		select username_hash, failures, blocked_until
		from login_attempts where username_hash = ?
	`, usernameHash).Scan(&a.UsernameHash, &a.Failures, &blockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{UsernameHash: usernameHash}, nil
	}
	if err != nil {
		return Attempt{}, err
	}
	a.BlockedUntil = parseTime(blockedUntil)
	return a, nil
}

func (s *Store) PutAttempt(ctx context.Context, a Attempt, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into login_attempts (username_hash, failures, blocked_until, updated_at)
		values (?, ?, ?, ?)
		on conflict (username_hash) do update set
			failures = excluded.failures,
			blocked_until = excluded.blocked_until,
			updated_at = excluded.updated_at
	`, a.UsernameHash, a.Failures, formatTime(a.BlockedUntil), formatTime(now))
	return err
}

func (s *Store) Clear(ctx context.Context, usernameHash string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from login_attempts where username_hash = ?
	`, usernameHash)
	return err
}

func (s *Store) PruneStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from login_attempts where updated_at < ?
	`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
