// Package assistant answers student questions about their academic
// progress through a language model, grounding every reply in the
// stored snapshot.
package assistant

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"ltiuy-backend/lib/timezone"
	"ltiuy-backend/services/assistant/db"
	"ltiuy-backend/services/progress"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/assistant")

var ErrEmptyQuestion = errors.New("empty question")

const (
	roleUser  = "user"
	roleModel = "model"
)

type Service struct {
	store     *db.Store
	generator Generator
	progress  *progress.Service
}

func NewService(database *sql.DB, generator Generator, progressService *progress.Service) *Service {
	return &Service{
		store:     db.NewStore(database),
		generator: generator,
		progress:  progressService,
	}
}

// Chat answers one question. Academic context is loaded best-effort: a
// student with no snapshot still gets an answer, just an uninformed
// one.
func (s *Service) Chat(ctx context.Context, userHash, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "Chat")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	var report *progress.Report
	if r, err := s.progress.GetProgress(ctx, userHash); err == nil {
		report = &r
	} else if !errors.Is(err, progress.ErrNoSnapshot) {
		slog.WarnContext(ctx, "failed to load progress for chat", "err", err)
	}

	var overview *progress.PlanOverview
	if report != nil {
		if o, err := s.progress.GetPlanOverview(ctx, userHash); err == nil {
			overview = &o
		}
	}

	history, err := s.store.RecentMessages(ctx, userHash, maxHistoryMessages)
	if err != nil {
		return "", err
	}

	contents := BuildPrompt(report, overview, history, question)
	span.SetAttributes(attribute.Int("prompt.messages", len(contents)))

	reply, err := s.generator.Generate(ctx, contents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", err
	}

	now := timezone.Now()
	if err := s.store.AppendMessage(ctx, userHash, roleUser, question, now); err != nil {
		return "", err
	}
	if err := s.store.AppendMessage(ctx, userHash, roleModel, reply, now); err != nil {
		return "", err
	}
	return reply, nil
}
