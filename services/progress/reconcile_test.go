package progress

import (
	"testing"

	"ltiuy-backend/lib/scrapers/utec"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func subj(name string, credits float64, grade string, passed bool) utec.Subject {
	return utec.Subject{
		Name:    name,
		Credits: credits,
		Grade:   grade,
		Passed:  passed,
	}
}

func manySubjects(n int) []utec.Subject {
	var out []utec.Subject
	for i := 0; i < n; i++ {
		out = append(out, subj(string(rune('A'+i))+" materia", 8, "7", true))
	}
	return out
}

func TestValidateQualityFirstScrape(t *testing.T) {
	verdict := ValidateQuality(nil, manySubjects(3))
	require.True(t, verdict.Acceptable)

	verdict = ValidateQuality(nil, nil)
	require.True(t, verdict.Acceptable)
}

func TestValidateQualityEmptyResult(t *testing.T) {
	verdict := ValidateQuality(manySubjects(5), nil)
	require.False(t, verdict.Acceptable)
	require.Equal(t, "empty_result", verdict.Reason)
}

func TestValidateQualityFewerSubjects(t *testing.T) {
	verdict := ValidateQuality(manySubjects(10), manySubjects(8))
	require.False(t, verdict.Acceptable)
	require.Equal(t, "fewer_subjects", verdict.Reason)

	verdict = ValidateQuality(manySubjects(10), manySubjects(9))
	require.True(t, verdict.Acceptable)
}

func TestValidateQualityFewerCredits(t *testing.T) {
	existing := []utec.Subject{
		subj("Materia uno", 10, "7", true),
		subj("Materia dos", 10, "7", true),
	}
	incoming := []utec.Subject{
		subj("Materia uno", 10, "7", true),
		subj("Materia dos", 2, "7", true),
	}
	verdict := ValidateQuality(existing, incoming)
	require.False(t, verdict.Acceptable)
	require.Equal(t, "fewer_credits", verdict.Reason)
}

func TestValidateQualityReportsStats(t *testing.T) {
	verdict := ValidateQuality(manySubjects(10), manySubjects(8))
	require.Equal(t, QualityStats{PassedSubjects: 10, PassedCredits: 80}, verdict.Existing)
	require.Equal(t, QualityStats{PassedSubjects: 8, PassedCredits: 64}, verdict.New)
}

func TestValidateQualityIgnoresSummaryRows(t *testing.T) {
	existing := append(manySubjects(5), subj("TOTAL 356,00 12,00 344,00 0,00", 356, "", false))
	incoming := manySubjects(5)
	verdict := ValidateQuality(existing, incoming)
	require.True(t, verdict.Acceptable)
}

func TestParseEarnedCredits(t *testing.T) {
	subjects := []utec.Subject{
		subj("Materia uno", 8, "7", true),
		subj("TOTAL    356,00    12,00    344,00    0,00", 356, "", false),
	}
	earned, ok := ParseEarnedCredits(subjects)
	require.True(t, ok)
	require.Equal(t, 12.0, earned)

	_, ok = ParseEarnedCredits(manySubjects(3))
	require.False(t, ok)
}

func TestParseEarnedCreditsDotDecimals(t *testing.T) {
	subjects := []utec.Subject{
		subj("TOTAL    356.00    12.00    344.00    0.00", 356, "", false),
	}
	earned, ok := ParseEarnedCredits(subjects)
	require.True(t, ok)
	require.Equal(t, 12.0, earned)

	subjects = []utec.Subject{
		subj("TOTAL 356 12 344 0", 356, "", false),
	}
	earned, ok = ParseEarnedCredits(subjects)
	require.True(t, ok)
	require.Equal(t, 12.0, earned)
}

func TestIsSummaryRow(t *testing.T) {
	require.True(t, isSummaryRow("TOTAL"))
	require.True(t, isSummaryRow("total 356,00 12,00"))
	require.True(t, isSummaryRow("  TOTAL  356,00  "))
	require.True(t, isSummaryRow("OBLIGATORIA"))
	require.True(t, isSummaryRow("Libre Configuración"))
	require.True(t, isSummaryRow("PRÁCTICAS PROFESIONALES"))
	require.False(t, isSummaryRow("Total Quality Management"))
	require.False(t, isSummaryRow("Matemática Discreta"))
	require.False(t, isSummaryRow("Proyecto de Software"))
}

func TestMergeUnchangedSnapshot(t *testing.T) {
	subjects := []utec.Subject{
		{Name: "Matemática Discreta", Credits: 8, Type: "Obligatoria", Convocatoria: "Diciembre 2024", Grade: "7", Passed: true},
		{Name: "Física I", Credits: 10, Type: "Obligatoria", Convocatoria: "Julio 2025", Grade: "2", Passed: false},
	}
	merged := MergeSubjects(subjects, subjects)
	require.Empty(t, cmp.Diff(subjects, merged.Subjects))
	require.Equal(t, 18.0, merged.TotalCredits)
}

func TestMergePartialFieldsKeepStored(t *testing.T) {
	existing := []utec.Subject{
		{Name: "Física I", Credits: 10, Type: "Obligatoria", Convocatoria: "Julio 2025", Grade: "8", Passed: true},
	}
	incoming := []utec.Subject{
		{Name: "FÍSICA I", Credits: 10, Type: "", Convocatoria: "-", Grade: "", Passed: true},
	}
	merged := MergeSubjects(existing, incoming)
	require.Len(t, merged.Subjects, 1)
	got := merged.Subjects[0]
	require.Equal(t, "Física I", got.Name)
	require.Equal(t, "Obligatoria", got.Type)
	require.Equal(t, "Julio 2025", got.Convocatoria)
	require.Equal(t, "8", got.Grade)
	require.True(t, got.Passed)
}

func TestMergeUpdatesGradeAndPassed(t *testing.T) {
	existing := []utec.Subject{
		{Name: "Cálculo I", Credits: 8, Grade: "", Passed: false},
	}
	incoming := []utec.Subject{
		{Name: "CALCULO I", Credits: 8, Grade: "7", Passed: true},
	}
	merged := MergeSubjects(existing, incoming)
	require.Len(t, merged.Subjects, 1)
	got := merged.Subjects[0]
	require.Equal(t, "Cálculo I", got.Name)
	require.Equal(t, "7", got.Grade)
	require.True(t, got.Passed)
}

func TestMergeKeepsRowsMissingFromScrape(t *testing.T) {
	existing := []utec.Subject{
		subj("Materia uno", 8, "7", true),
		subj("Materia dos", 10, "9", true),
	}
	incoming := []utec.Subject{
		subj("Materia uno", 8, "7", true),
	}
	merged := MergeSubjects(existing, incoming)
	require.Len(t, merged.Subjects, 2)
	require.Equal(t, 18.0, merged.TotalCredits)
}

func TestMergeCollapsesDuplicates(t *testing.T) {
	incoming := []utec.Subject{
		subj("Materia uno", 8, "7", true),
		subj("materia   uno", 8, "7", true),
	}
	merged := MergeSubjects(nil, incoming)
	require.Len(t, merged.Subjects, 1)
}

func TestMergeAppendPreservesOrder(t *testing.T) {
	existing := []utec.Subject{
		subj("Materia uno", 8, "7", true),
		subj("Materia dos", 10, "9", true),
	}
	incoming := []utec.Subject{
		subj("Materia tres", 6, "8", true),
		subj("Materia uno", 8, "7", true),
		subj("Materia dos", 10, "9", true),
	}
	merged := MergeSubjects(existing, incoming)
	require.Len(t, merged.Subjects, 3)
	require.Equal(t, "Materia uno", merged.Subjects[0].Name)
	require.Equal(t, "Materia dos", merged.Subjects[1].Name)
	require.Equal(t, "Materia tres", merged.Subjects[2].Name)
}

func TestMergeIdempotent(t *testing.T) {
	existing := []utec.Subject{
		subj("Materia uno", 8, "7", true),
	}
	incoming := []utec.Subject{
		subj("Materia uno", 8, "8", true),
		subj("Materia dos", 10, "9", true),
	}
	once := MergeSubjects(existing, incoming)
	twice := MergeSubjects(once.Subjects, incoming)
	require.Empty(t, cmp.Diff(once.Subjects, twice.Subjects))
	require.Equal(t, once.TotalCredits, twice.TotalCredits)
}

func TestMergeEarnedCreditsFallsBackToPassedSum(t *testing.T) {
	incoming := []utec.Subject{
		subj("Materia uno", 8, "7", true),
		subj("Materia dos", 10, "2", false),
	}
	merged := MergeSubjects(nil, incoming)
	require.Equal(t, 8.0, merged.EarnedCredits)
}

func TestMergePrefersIncomingEarnedTotal(t *testing.T) {
	incoming := []utec.Subject{
		subj("Materia uno", 8, "7", true),
		subj("TOTAL    356,00    12,00    344,00    0,00", 356, "", false),
	}
	merged := MergeSubjects(nil, incoming)
	require.Equal(t, 12.0, merged.EarnedCredits)
	// summary rows are bookkeeping, not subjects
	require.Len(t, merged.Subjects, 1)
}

func TestMergeEarnedTotalDotDecimals(t *testing.T) {
	incoming := []utec.Subject{
		subj("Materia uno", 8, "7", true),
		subj("TOTAL    356.00    12.00    344.00    0.00", 356, "", false),
	}
	merged := MergeSubjects(nil, incoming)
	require.Equal(t, 12.0, merged.EarnedCredits)
}
