package progress

import (
	"context"
	"testing"

	"ltiuy-backend/lib/scrapers/utec"
	"ltiuy-backend/lib/testutil"
	"ltiuy-backend/services/progress/db"

	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	results [][]utec.Subject
	err     error
	calls   int
}

func (f *fakeScraper) Scrape(ctx context.Context, cred utec.Credential) ([]utec.Subject, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	result := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return result, nil
}

func setup(t *testing.T, scraper Scraper) *Service {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "progress",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	return NewService(result.DB, scraper, DefaultOptions())
}

func cred() utec.Credential {
	return utec.Credential{Username: "estudiante@utec.edu.uy", Password: "hunter2"}
}

func fullScrape() []utec.Subject {
	return []utec.Subject{
		subj("Matemática Discreta", 8, "7", true),
		subj("Física I", 10, "2", false),
		subj("Programación Avanzada", 12, "Exonerado", true),
		subj("TOTAL    356,00    12,00    344,00    0,00", 356, "", false),
	}
}

func TestRunScrapeCycleFirstScrape(t *testing.T) {
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape()}}
	svc := setup(t, scraper)

	report, err := svc.RunScrapeCycle(context.Background(), cred(), false)
	require.NoError(t, err)
	require.False(t, report.Skipped)
	require.Len(t, report.Subjects, 3)
	require.Equal(t, 12.0, report.EarnedCredits)
	require.Equal(t, 30.0, report.TotalCredits)
	require.Equal(t, HashUsername("Estudiante@utec.edu.uy "), report.UserHash)
	require.Equal(t, 1, scraper.calls)
}

func TestRunScrapeCycleCadenceSkip(t *testing.T) {
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape()}}
	svc := setup(t, scraper)

	_, err := svc.RunScrapeCycle(context.Background(), cred(), false)
	require.NoError(t, err)

	report, err := svc.RunScrapeCycle(context.Background(), cred(), false)
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Len(t, report.Subjects, 3)
	require.Equal(t, 1, scraper.calls)
}

func TestManualRefreshQuota(t *testing.T) {
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape()}}
	svc := setup(t, scraper)

	_, err := svc.RunScrapeCycle(context.Background(), cred(), true)
	require.NoError(t, err)
	_, err = svc.RunScrapeCycle(context.Background(), cred(), true)
	require.NoError(t, err)

	_, err = svc.RunScrapeCycle(context.Background(), cred(), true)
	require.ErrorIs(t, err, ErrManualQuotaExceeded)
	require.Equal(t, 2, scraper.calls)
}

func TestQualityGateKeepsStoredData(t *testing.T) {
	truncated := []utec.Subject{subj("Matemática Discreta", 8, "7", true)}
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape(), truncated}}
	svc := setup(t, scraper)

	_, err := svc.RunScrapeCycle(context.Background(), cred(), true)
	require.NoError(t, err)

	report, err := svc.RunScrapeCycle(context.Background(), cred(), true)
	require.NoError(t, err)
	require.True(t, report.QualityFlagged)
	require.Equal(t, "fewer_subjects", report.QualityReason)
	require.Len(t, report.Subjects, 3)
	require.Equal(t, 12.0, report.EarnedCredits)

	// the rejection reports what regressed
	require.NotNil(t, report.QualityBefore)
	require.NotNil(t, report.QualityAfter)
	require.Equal(t, QualityStats{PassedSubjects: 2, PassedCredits: 20}, *report.QualityBefore)
	require.Equal(t, QualityStats{PassedSubjects: 1, PassedCredits: 8}, *report.QualityAfter)
}

func TestAcceptedScrapeCarriesNoQualityStats(t *testing.T) {
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape()}}
	svc := setup(t, scraper)

	report, err := svc.RunScrapeCycle(context.Background(), cred(), false)
	require.NoError(t, err)
	require.Nil(t, report.QualityBefore)
	require.Nil(t, report.QualityAfter)
}

func TestLockMapDrainsAfterCycle(t *testing.T) {
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape()}}
	svc := setup(t, scraper)

	_, err := svc.RunScrapeCycle(context.Background(), cred(), false)
	require.NoError(t, err)
	require.Empty(t, svc.locks)
}

func TestScrapeErrorLeavesSnapshotUntouched(t *testing.T) {
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape()}}
	svc := setup(t, scraper)

	report, err := svc.RunScrapeCycle(context.Background(), cred(), true)
	require.NoError(t, err)

	scraper.err = utec.ErrPortalTimeout
	_, err = svc.RunScrapeCycle(context.Background(), cred(), true)
	require.ErrorIs(t, err, utec.ErrPortalTimeout)

	stored, err := svc.GetProgress(context.Background(), report.UserHash)
	require.NoError(t, err)
	require.Equal(t, report.Subjects, stored.Subjects)
}

func TestGetProgressNoSnapshot(t *testing.T) {
	svc := setup(t, &fakeScraper{})
	_, err := svc.GetProgress(context.Background(), HashUsername("nadie"))
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSelectPlanAndOverview(t *testing.T) {
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape()}}
	svc := setup(t, scraper)
	ctx := context.Background()

	require.NoError(t, svc.ImportPlan(ctx, Plan{
		Name:            "Licenciatura en Tecnologías de la Información",
		RequiredCredits: 356,
		Semesters: [][]PlanSubject{
			{
				{Name: "Matemática Discreta", Credits: 8},
				{Name: "Programación Avanzada", Credits: 12},
			},
			{
				{Name: "Física I", Credits: 10},
			},
		},
	}))

	report, err := svc.RunScrapeCycle(ctx, cred(), false)
	require.NoError(t, err)

	name, err := svc.SelectPlan(ctx, report.UserHash, "tecnologías de la información")
	require.NoError(t, err)
	require.Equal(t, "Licenciatura en Tecnologías de la Información", name)

	overview, err := svc.GetPlanOverview(ctx, report.UserHash)
	require.NoError(t, err)
	require.Equal(t, 12.0, overview.EarnedCredits)
	require.Equal(t, 356.0, overview.RequiredCredits)
	require.Equal(t, 2, overview.CurrentSemester)
	require.True(t, overview.Semesters[0].Complete)
	require.False(t, overview.Semesters[1].Complete)
	require.InDelta(t, 12.0/356.0, overview.Completion, 1e-9)
}

func TestSelectPlanUnknown(t *testing.T) {
	scraper := &fakeScraper{results: [][]utec.Subject{fullScrape()}}
	svc := setup(t, scraper)
	ctx := context.Background()

	report, err := svc.RunScrapeCycle(ctx, cred(), false)
	require.NoError(t, err)

	_, err = svc.SelectPlan(ctx, report.UserHash, "plan inexistente")
	require.ErrorIs(t, err, ErrUnknownPlan)

	_, err = svc.SelectPlan(ctx, HashUsername("otro"), "algo")
	require.ErrorIs(t, err, ErrUnknownUser)
}
