// Package db holds the hand-written sqlite store for the progress
// service. Times are stored as RFC 3339 text; sqlite has no native
// timestamp type and text keeps the rows greppable.
package db

import (
	"context"
	"database/sql"
	"time"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type User struct {
	UserHash           string
	Username           string
	CreatedAt          time.Time
	LastScrapedAt      time.Time
	ManualRefreshDate  string
	ManualRefreshCount int
	PlanName           string
}

type Snapshot struct {
	UserHash       string
	SubjectsJson   string
	TotalCredits   float64
	EarnedCredits  float64
	QualityFlagged bool
	QualityReason  string
	UpdatedAt      time.Time
}

type Plan struct {
	Name            string
	RequiredCredits float64
	SemestersJson   string
}

func formatTime(t time.Time) string {
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

// UpsertUser registers a user by hash, keeping the existing row's
// counters on conflict.
func (s *Store) UpsertUser(ctx context.Context, userHash, username string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (user_hash, username, created_at)
		values (?, ?, ?)
		on conflict (user_hash) do update set username = excluded.username
	`, userHash, username, formatTime(now))
	return err
}

func (s *Store) GetUser(ctx context.Context, userHash string) (User, error) {
	var u User
	var createdAt string
	var lastScrapedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select user_hash, username, created_at, last_scraped_at,
		       manual_refresh_date, manual_refresh_count, plan_name
		from users where user_hash = ?
	`, userHash).Scan(
		&u.UserHash, &u.Username, &createdAt, &lastScrapedAt,
		&u.ManualRefreshDate, &u.ManualRefreshCount, &u.PlanName,
	)
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = parseTime(createdAt)
	u.LastScrapedAt = parseTime(lastScrapedAt.String)
	return u, nil
}

func (s *Store) TouchScraped(ctx context.Context, userHash string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update users set last_scraped_at = ? where user_hash = ?
	`, formatTime(at), userHash)
	return err
}

// SetManualRefresh overwrites the per-day manual refresh counter. The
// date is a calendar day in the portal's timezone, not UTC.
func (s *Store) SetManualRefresh(ctx context.Context, userHash, date string, count int) error {
	_, err := s.db.ExecContext(ctx, `
		update users set manual_refresh_date = ?, manual_refresh_count = ?
		where user_hash = ?
	`, date, count, userHash)
	return err
}

func (s *Store) SetUserPlan(ctx context.Context, userHash, planName string) error {
	_, err := s.db.ExecContext(ctx, `
		update users set plan_name = ? where user_hash = ?
	`, planName, userHash)
	return err
}

func (s *Store) GetSnapshot(ctx context.Context, userHash string) (Snapshot, error) {
	var snap Snapshot
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		select user_hash, subjects, total_credits, earned_credits,
		       quality_flagged, quality_reason, updated_at
		from snapshots where user_hash = ?
	`, userHash).Scan(
		&snap.UserHash, &snap.SubjectsJson, &snap.TotalCredits,
		&snap.EarnedCredits, &snap.QualityFlagged, &snap.QualityReason,
		&updatedAt,
	)
	if err != nil {
		return Snapshot{}, err
	}
	snap.UpdatedAt = parseTime(updatedAt)
	return snap, nil
}

func (s *Store) PutSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		insert into snapshots (user_hash, subjects, total_credits,
			earned_credits, quality_flagged, quality_reason, updated_at)
		values (?, ?, ?, ?, ?, ?, ?)
		on conflict (user_hash) do update set
			subjects = excluded.subjects,
			total_credits = excluded.total_credits,
			earned_credits = excluded.earned_credits,
			quality_flagged = excluded.quality_flagged,
			quality_reason = excluded.quality_reason,
			updated_at = excluded.updated_at
	`, snap.UserHash, snap.SubjectsJson, snap.TotalCredits,
		snap.EarnedCredits, snap.QualityFlagged, snap.QualityReason,
		formatTime(snap.UpdatedAt))
	return err
}

func (s *Store) AppendHistory(ctx context.Context, userHash string, earnedCredits float64, subjectCount int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into snapshot_history (user_hash, earned_credits, subject_count, taken_at)
		values (?, ?, ?, ?)
	`, userHash, earnedCredits, subjectCount, formatTime(at))
	return err
}

func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from snapshot_history where taken_at < ?
	`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) UpsertPlan(ctx context.Context, plan Plan) error {
	_, err := s.db.ExecContext(ctx, `
		insert into career_plans (name, required_credits, semesters)
		values (?, ?, ?)
		on conflict (name) do update set
			required_credits = excluded.required_credits,
			semesters = excluded.semesters
	`, plan.Name, plan.RequiredCredits, plan.SemestersJson)
	return err
}

func (s *Store) GetPlan(ctx context.Context, name string) (Plan, error) {
	var plan Plan
	err := s.db.QueryRowContext(ctx, `
		select name, required_credits, semesters
		from career_plans where name = ?
	`, name).Scan(&plan.Name, &plan.RequiredCredits, &plan.SemestersJson)
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (s *Store) ListPlanNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select name from career_plans order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
