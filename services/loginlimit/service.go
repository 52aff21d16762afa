// Package loginlimit throttles credential guessing. Three consecutive
// failures block a username for fifteen minutes; a successful login
// clears the counter. State is keyed by username hash so the attempts
// table never holds usernames in the clear.
package loginlimit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ltiuy-backend/lib/timezone"
	"ltiuy-backend/services/loginlimit/db"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/loginlimit")

var ErrBlocked = errors.New("login temporarily blocked")

type Options struct {
	MaxFailures   int
	BlockDuration time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxFailures:   3,
		BlockDuration: 15 * time.Minute,
	}
}

type Service struct {
	store *db.Store
	opts  Options
	now   func() time.Time
}

func NewService(database *sql.DB, opts Options) *Service {
	return &Service{
		store: db.NewStore(database),
		opts:  opts,
		now:   timezone.Now,
	}
}

func hashUsername(username string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(username))))
	return hex.EncodeToString(sum[:])
}

// Check rejects logins for currently blocked usernames. An expired
// block is cleared on the way through.
func (s *Service) Check(ctx context.Context, username string) error {
	ctx, span := tracer.Start(ctx, "Check")
	defer span.End()

	key := hashUsername(username)
	attempt, err := s.store.GetAttempt(ctx, key)
	if err != nil {
		return err
	}
	if attempt.BlockedUntil.IsZero() {
		return nil
	}

	now := s.now()
	if now.Before(attempt.BlockedUntil) {
		remaining := attempt.BlockedUntil.Sub(now).Round(time.Minute)
		if remaining < time.Minute {
			remaining = time.Minute
		}
		return fmt.Errorf("%w: %s remaining", ErrBlocked, remaining)
	}
	return s.store.Clear(ctx, key)
}

// RecordFailure counts one failed login and reports whether it tripped
// the block.
func (s *Service) RecordFailure(ctx context.Context, username string) (bool, error) {
	ctx, span := tracer.Start(ctx, "RecordFailure")
	defer span.End()

	key := hashUsername(username)
	attempt, err := s.store.GetAttempt(ctx, key)
	if err != nil {
		return false, err
	}

	now := s.now()
	if !attempt.BlockedUntil.IsZero() && !now.Before(attempt.BlockedUntil) {
		attempt.BlockedUntil = time.Time{}
		attempt.Failures = 0
	}
	attempt.Failures++
	if attempt.Failures >= s.opts.MaxFailures {
		attempt.BlockedUntil = now.Add(s.opts.BlockDuration)
		attempt.Failures = 0
		slog.WarnContext(ctx, "blocking username after repeated login failures",
			"until", attempt.BlockedUntil)
	}
	if err := s.store.PutAttempt(ctx, attempt, now); err != nil {
		return false, err
	}
	return !attempt.BlockedUntil.IsZero() && now.Before(attempt.BlockedUntil), nil
}

// RecordSuccess clears the failure counter.
func (s *Service) RecordSuccess(ctx context.Context, username string) error {
	return s.store.Clear(ctx, hashUsername(username))
}

// UserMessage is the Spanish-facing text for a block.
func UserMessage(err error) string {
	if errors.Is(err, ErrBlocked) {
		return "Demasiados intentos fallidos. Esperá 15 minutos antes de volver a intentar."
	}
	return ""
}
