// Package progress owns the academic record of every registered
// student: scraping it, reconciling new scrapes against stored data
// and answering progress queries.
package progress

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ltiuy-backend/lib/scrapers/utec"
	"ltiuy-backend/lib/timezone"
	"ltiuy-backend/services/progress/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/progress")

var (
	ErrManualQuotaExceeded = errors.New("manual refresh quota exhausted for today")
	ErrUnknownUser         = errors.New("unknown user")
	ErrNoSnapshot          = errors.New("no progress snapshot yet")
	ErrUnknownPlan         = errors.New("unknown career plan")
)

const dateLayout = "2006-01-02"

// Scraper is the portal-facing side of a scrape cycle, abstracted so
// reconciliation can be exercised without a browser.
type Scraper interface {
	Scrape(ctx context.Context, cred utec.Credential) ([]utec.Subject, error)
}

type Options struct {
	// ScrapeCadence is how long a snapshot stays fresh before a login
	// triggers a background rescrape.
	ScrapeCadence time.Duration
	// ManualRefreshQuota caps user-initiated scrapes per calendar day
	// in the portal's timezone.
	ManualRefreshQuota int
	// HistoryRetention bounds the snapshot history table.
	HistoryRetention time.Duration
	HygieneInterval  time.Duration
}

func DefaultOptions() Options {
	return Options{
		ScrapeCadence:      5 * 24 * time.Hour,
		ManualRefreshQuota: 2,
		HistoryRetention:   180 * 24 * time.Hour,
		HygieneInterval:    12 * time.Hour,
	}
}

type Service struct {
	store   *db.Store
	scraper Scraper
	opts    Options

	mu    sync.Mutex
	locks map[string]*userLock
}

func NewService(database *sql.DB, scraper Scraper, opts Options) *Service {
	return &Service{
		store:   db.NewStore(database),
		scraper: scraper,
		opts:    opts,
		locks:   map[string]*userLock{},
	}
}

// HashUsername derives the stable user key. Progress rows are keyed by
// this hash so a database dump alone doesn't enumerate usernames next
// to academic records.
func HashUsername(username string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(username))))
	return hex.EncodeToString(sum[:])
}

type userLock struct {
	sync.Mutex
	refs int
}

// lockUser serializes the read-validate-merge-write cycle per student.
// Two concurrent scrapes for the same student would otherwise race the
// snapshot row and lose one side's merge. Lock entries are refcounted
// and dropped when the last holder releases, so the map only holds
// in-flight users.
func (s *Service) lockUser(userHash string) func() {
	s.mu.Lock()
	lock, ok := s.locks[userHash]
	if !ok {
		lock = &userLock{}
		s.locks[userHash] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, userHash)
		}
		s.mu.Unlock()
	}
}

type Report struct {
	UserHash       string         `json:"userHash"`
	Subjects       []utec.Subject `json:"subjects"`
	TotalCredits   float64        `json:"totalCredits"`
	EarnedCredits  float64        `json:"totalCreditsEarned"`
	UpdatedAt      time.Time      `json:"lastUpdated"`
	Skipped        bool           `json:"skipped"`
	QualityFlagged bool           `json:"qualityWarning"`
	QualityReason  string         `json:"reason,omitempty"`
	// QualityBefore and QualityAfter are set when this cycle rejected
	// the scrape, so the caller can show what regressed.
	QualityBefore *QualityStats `json:"qualityBefore,omitempty"`
	QualityAfter  *QualityStats `json:"qualityAfter,omitempty"`
}

// RunScrapeCycle runs one full scrape for a student: cadence and quota
// checks, the portal scrape itself, the quality gate and the merge. It
// is the only writer of snapshot rows. Credentials live for the
// duration of the call and are wiped before it returns.
func (s *Service) RunScrapeCycle(ctx context.Context, cred utec.Credential, manual bool) (Report, error) {
	ctx, span := tracer.Start(ctx, "RunScrapeCycle")
	defer span.End()
	span.SetAttributes(attribute.Bool("manual", manual))
	defer cred.Wipe()

	userHash := HashUsername(cred.Username)
	unlock := s.lockUser(userHash)
	defer unlock()

	now := timezone.Now()
	if err := s.store.UpsertUser(ctx, userHash, cred.Username, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register user")
		return Report{}, err
	}
	user, err := s.store.GetUser(ctx, userHash)
	if err != nil {
		return Report{}, err
	}

	if manual {
		if err := s.consumeManualRefresh(ctx, user, now); err != nil {
			return Report{}, err
		}
	} else if !user.LastScrapedAt.IsZero() && now.Sub(user.LastScrapedAt) < s.opts.ScrapeCadence {
		if report, err := s.GetProgress(ctx, userHash); err == nil {
			report.Skipped = true
			span.SetAttributes(attribute.Bool("skipped", true))
			return report, nil
		}
	}

	subjects, err := s.scraper.Scrape(ctx, cred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		return Report{}, err
	}

	existing, existingSnap, err := s.loadSubjects(ctx, userHash)
	if err != nil {
		return Report{}, err
	}

	verdict := ValidateQuality(existing, subjects)
	if !verdict.Acceptable {
		slog.WarnContext(ctx, "rejected low quality scrape",
			"reason", verdict.Reason,
			"passed_before", verdict.Existing.PassedSubjects,
			"passed_after", verdict.New.PassedSubjects,
			"credits_before", verdict.Existing.PassedCredits,
			"credits_after", verdict.New.PassedCredits)
		span.SetAttributes(attribute.String("quality.reason", verdict.Reason))

		existingSnap.QualityFlagged = true
		existingSnap.QualityReason = verdict.Reason
		if err := s.store.PutSnapshot(ctx, existingSnap); err != nil {
			return Report{}, err
		}
		report, err := reportFromSnapshot(existingSnap)
		if err != nil {
			return Report{}, err
		}
		report.QualityBefore = &verdict.Existing
		report.QualityAfter = &verdict.New
		return report, nil
	}

	merged := MergeSubjects(existing, subjects)
	subjectsJson, err := json.Marshal(merged.Subjects)
	if err != nil {
		return Report{}, err
	}
	snap := db.Snapshot{
		UserHash:      userHash,
		SubjectsJson:  string(subjectsJson),
		TotalCredits:  merged.TotalCredits,
		EarnedCredits: merged.EarnedCredits,
		UpdatedAt:     now,
	}
	if err := s.store.PutSnapshot(ctx, snap); err != nil {
		return Report{}, err
	}
	if err := s.store.AppendHistory(ctx, userHash, merged.EarnedCredits, len(merged.Subjects), now); err != nil {
		return Report{}, err
	}
	if err := s.store.TouchScraped(ctx, userHash, now); err != nil {
		return Report{}, err
	}

	span.SetAttributes(
		attribute.Int("subjects", len(merged.Subjects)),
		attribute.Float64("earned_credits", merged.EarnedCredits),
	)
	return reportFromSnapshot(snap)
}

func (s *Service) consumeManualRefresh(ctx context.Context, user db.User, now time.Time) error {
	today := now.Format(dateLayout)
	count := 0
	if user.ManualRefreshDate == today {
		count = user.ManualRefreshCount
	}
	if count >= s.opts.ManualRefreshQuota {
		return fmt.Errorf("%w: %d used today", ErrManualQuotaExceeded, count)
	}
	return s.store.SetManualRefresh(ctx, user.UserHash, today, count+1)
}

func (s *Service) loadSubjects(ctx context.Context, userHash string) ([]utec.Subject, db.Snapshot, error) {
	snap, err := s.store.GetSnapshot(ctx, userHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.Snapshot{UserHash: userHash}, nil
	}
	if err != nil {
		return nil, db.Snapshot{}, err
	}
	var subjects []utec.Subject
	if err := json.Unmarshal([]byte(snap.SubjectsJson), &subjects); err != nil {
		return nil, db.Snapshot{}, fmt.Errorf("corrupt snapshot for %s: %w", userHash, err)
	}
	return subjects, snap, nil
}

func reportFromSnapshot(snap db.Snapshot) (Report, error) {
	report := Report{
		UserHash:       snap.UserHash,
		TotalCredits:   snap.TotalCredits,
		EarnedCredits:  snap.EarnedCredits,
		UpdatedAt:      snap.UpdatedAt,
		QualityFlagged: snap.QualityFlagged,
		QualityReason:  snap.QualityReason,
	}
	if snap.SubjectsJson != "" {
		if err := json.Unmarshal([]byte(snap.SubjectsJson), &report.Subjects); err != nil {
			return Report{}, err
		}
	}
	return report, nil
}

// GetProgress returns the stored snapshot without scraping.
func (s *Service) GetProgress(ctx context.Context, userHash string) (Report, error) {
	snap, err := s.store.GetSnapshot(ctx, userHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNoSnapshot
	}
	if err != nil {
		return Report{}, err
	}
	return reportFromSnapshot(snap)
}

// SelectPlan assigns a career plan to a student, resolving fuzzy input
// against the imported plan catalogue.
func (s *Service) SelectPlan(ctx context.Context, userHash, input string) (string, error) {
	if _, err := s.store.GetUser(ctx, userHash); errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnknownUser
	} else if err != nil {
		return "", err
	}

	names, err := s.store.ListPlanNames(ctx)
	if err != nil {
		return "", err
	}
	name, ok := ResolvePlanName(input, names)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, input)
	}
	return name, s.store.SetUserPlan(ctx, userHash, name)
}

type PlanOverview struct {
	Plan            string           `json:"plan"`
	RequiredCredits float64          `json:"requiredCredits"`
	EarnedCredits   float64          `json:"earnedCredits"`
	Completion      float64          `json:"completion"`
	CurrentSemester int              `json:"currentSemester"`
	Semesters       []SemesterStatus `json:"semesters"`
}

// GetPlanOverview lays the student's snapshot over their selected plan.
func (s *Service) GetPlanOverview(ctx context.Context, userHash string) (PlanOverview, error) {
	user, err := s.store.GetUser(ctx, userHash)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanOverview{}, ErrUnknownUser
	}
	if err != nil {
		return PlanOverview{}, err
	}
	if user.PlanName == "" {
		return PlanOverview{}, fmt.Errorf("%w: no plan selected", ErrUnknownPlan)
	}

	row, err := s.store.GetPlan(ctx, user.PlanName)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanOverview{}, fmt.Errorf("%w: %q", ErrUnknownPlan, user.PlanName)
	}
	if err != nil {
		return PlanOverview{}, err
	}
	plan := Plan{Name: row.Name, RequiredCredits: row.RequiredCredits}
	if err := json.Unmarshal([]byte(row.SemestersJson), &plan.Semesters); err != nil {
		return PlanOverview{}, fmt.Errorf("corrupt plan %q: %w", row.Name, err)
	}
	if plan.RequiredCredits <= 0 {
		plan.RequiredCredits = DefaultRequiredCredits
	}

	subjects, snap, err := s.loadSubjects(ctx, userHash)
	if err != nil {
		return PlanOverview{}, err
	}

	statuses := EvaluatePlan(plan, subjects)
	overview := PlanOverview{
		Plan:            plan.Name,
		RequiredCredits: plan.RequiredCredits,
		EarnedCredits:   snap.EarnedCredits,
		CurrentSemester: CurrentSemester(statuses),
		Semesters:       statuses,
	}
	overview.Completion = overview.EarnedCredits / plan.RequiredCredits
	return overview, nil
}

// ImportPlan stores or replaces a career plan definition.
func (s *Service) ImportPlan(ctx context.Context, plan Plan) error {
	semesters, err := json.Marshal(plan.Semesters)
	if err != nil {
		return err
	}
	if plan.RequiredCredits <= 0 {
		plan.RequiredCredits = DefaultRequiredCredits
	}
	return s.store.UpsertPlan(ctx, db.Plan{
		Name:            plan.Name,
		RequiredCredits: plan.RequiredCredits,
		SemestersJson:   string(semesters),
	})
}

// ListPlans returns the names of every imported career plan.
func (s *Service) ListPlans(ctx context.Context) ([]string, error) {
	return s.store.ListPlanNames(ctx)
}
