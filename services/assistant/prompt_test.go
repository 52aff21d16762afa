package assistant

import (
	"strings"
	"testing"

	"ltiuy-backend/lib/scrapers/utec"
	"ltiuy-backend/services/assistant/db"
	"ltiuy-backend/services/progress"

	"github.com/stretchr/testify/require"
)

func sampleReport() *progress.Report {
	return &progress.Report{
		EarnedCredits: 12,
		TotalCredits:  30,
		Subjects: []utec.Subject{
			{Name: "Matemática Discreta", Credits: 8, Grade: "7", Passed: true},
			{Name: "Física I", Credits: 10, Grade: "2"},
		},
	}
}

func TestBuildPromptIncludesAcademicContext(t *testing.T) {
	contents := BuildPrompt(sampleReport(), nil, nil, "¿cuántos créditos me faltan?")
	require.GreaterOrEqual(t, len(contents), 3)

	preamble := contents[0].Parts[0].Text
	require.Contains(t, preamble, "español")
	require.Contains(t, preamble, "Créditos obtenidos: 12 de 30")
	require.Contains(t, preamble, "Matemática Discreta")
	require.Contains(t, preamble, "aprobada")
	require.Contains(t, preamble, "pendiente")

	last := contents[len(contents)-1]
	require.Equal(t, "user", last.Role)
	require.Equal(t, "¿cuántos créditos me faltan?", last.Parts[0].Text)
}

func TestBuildPromptNoSnapshot(t *testing.T) {
	contents := BuildPrompt(nil, nil, nil, "hola")
	require.Contains(t, contents[0].Parts[0].Text, "no tiene datos académicos")
}

func TestBuildPromptPlanOverview(t *testing.T) {
	overview := &progress.PlanOverview{
		Plan:            "Licenciatura en Tecnologías de la Información",
		RequiredCredits: 356,
		Completion:      12.0 / 356.0,
		CurrentSemester: 2,
	}
	contents := BuildPrompt(sampleReport(), overview, nil, "¿en qué semestre estoy?")
	preamble := contents[0].Parts[0].Text
	require.Contains(t, preamble, "Licenciatura en Tecnologías de la Información")
	require.Contains(t, preamble, "Semestre actual: 2")
}

func TestBuildPromptHistoryWindow(t *testing.T) {
	var history []db.Message
	for i := 0; i < 15; i++ {
		history = append(history,
			db.Message{Role: "user", Content: "pregunta"},
			db.Message{Role: "model", Content: "respuesta"},
		)
	}
	contents := BuildPrompt(nil, nil, history, "última")
	// preamble + ack + capped history + question
	require.Len(t, contents, 2+maxHistoryMessages+1)
}

func TestBuildPromptTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("á", maxMessageRunes+100)
	contents := BuildPrompt(nil, nil, []db.Message{{Role: "user", Content: long}}, "ok")
	text := contents[2].Parts[0].Text
	require.Equal(t, maxMessageRunes+1, len([]rune(text)))
	require.True(t, strings.HasSuffix(text, "…"))
}

func TestBuildPromptQualityWarning(t *testing.T) {
	report := sampleReport()
	report.QualityFlagged = true
	contents := BuildPrompt(report, nil, nil, "hola")
	require.Contains(t, contents[0].Parts[0].Text, "rechazada por calidad")
}
