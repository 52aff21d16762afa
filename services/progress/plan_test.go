package progress

import (
	"testing"

	"ltiuy-backend/lib/scrapers/utec"

	"github.com/stretchr/testify/require"
)

func TestMatchSubjectToleratesAccentDrift(t *testing.T) {
	subjects := []utec.Subject{
		subj("Matemática Discreta", 8, "7", true),
		subj("Programación Avanzada", 12, "9", true),
	}
	matched := matchSubject("Matematica Discreta", subjects)
	require.NotNil(t, matched)
	require.Equal(t, "Matemática Discreta", matched.Name)
}

func TestMatchSubjectNoMatch(t *testing.T) {
	subjects := []utec.Subject{
		subj("Programación Avanzada", 12, "9", true),
	}
	require.Nil(t, matchSubject("Química General", subjects))
}

func TestEvaluatePlan(t *testing.T) {
	plan := Plan{
		Name: "Tecnologías de la Información",
		Semesters: [][]PlanSubject{
			{
				{Name: "Matemática Discreta", Credits: 8},
				{Name: "Programación", Credits: 12},
			},
			{
				{Name: "Física I", Credits: 10},
			},
		},
	}
	subjects := []utec.Subject{
		subj("Matemática Discreta", 8, "7", true),
		subj("Programación", 12, "Exonerado", true),
		subj("Física I", 10, "2", false),
	}

	statuses := EvaluatePlan(plan, subjects)
	require.Len(t, statuses, 2)
	require.True(t, statuses[0].Complete)
	require.False(t, statuses[1].Complete)
	require.Equal(t, 2, CurrentSemester(statuses))
}

func TestCurrentSemesterAllComplete(t *testing.T) {
	statuses := []SemesterStatus{
		{Number: 1, Complete: true},
		{Number: 2, Complete: true},
	}
	require.Equal(t, 3, CurrentSemester(statuses))
}

func TestResolvePlanName(t *testing.T) {
	known := []string{
		"Licenciatura en Tecnologías de la Información",
		"Ingeniería en Mecatrónica",
	}

	name, ok := ResolvePlanName("licenciatura en tecnologias de la informacion", known)
	require.True(t, ok)
	require.Equal(t, "Licenciatura en Tecnologías de la Información", name)

	name, ok = ResolvePlanName("tecnologías de la información", known)
	require.True(t, ok)
	require.Equal(t, "Licenciatura en Tecnologías de la Información", name)

	_, ok = ResolvePlanName("arquitectura naval", known)
	require.False(t, ok)
}
