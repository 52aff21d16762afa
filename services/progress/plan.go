package progress

import (
	"strings"

	"ltiuy-backend/lib/scrapers/utec"

	"github.com/antzucaro/matchr"
)

// DefaultRequiredCredits is the credit load of the standard UTEC
// engineering plan, used when a career plan carries no figure.
const DefaultRequiredCredits = 356

// planMatchThreshold is the Jaro-Winkler similarity above which a
// scraped subject name and a plan subject name are considered the same
// course. Scraped names drift from plan names in accents, casing and
// abbreviations, so exact matching misses real courses.
const planMatchThreshold = 0.85

type PlanSubject struct {
	Name    string  `json:"name"`
	Credits float64 `json:"credits"`
}

type Plan struct {
	Name            string          `json:"name"`
	RequiredCredits float64         `json:"requiredCredits"`
	Semesters       [][]PlanSubject `json:"semesters"`
}

type SemesterStatus struct {
	Number   int             `json:"number"`
	Subjects []SubjectStatus `json:"subjects"`
	Complete bool            `json:"complete"`
}

type SubjectStatus struct {
	PlanSubject
	// Matched is the scraped subject this plan entry resolved to, nil
	// when the student has no record for the course yet.
	Matched *utec.Subject `json:"matched,omitempty"`
	Passed  bool          `json:"passed"`
}

// matchSubject resolves a plan entry against the scraped subject list.
// When several scraped names clear the threshold, the closest one wins.
func matchSubject(planName string, subjects []utec.Subject) *utec.Subject {
	best := -1
	bestScore := 0.0
	normalized := normalizeKey(planName)
	for i, s := range subjects {
		score := matchr.JaroWinkler(normalized, normalizeKey(s.Name), false)
		if score >= planMatchThreshold && score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return nil
	}
	return &subjects[best]
}

// EvaluatePlan lays the scraped record over a career plan semester by
// semester.
func EvaluatePlan(plan Plan, subjects []utec.Subject) []SemesterStatus {
	subjects = dataRows(subjects)

	var out []SemesterStatus
	for i, semester := range plan.Semesters {
		status := SemesterStatus{Number: i + 1, Complete: true}
		for _, planSubject := range semester {
			entry := SubjectStatus{PlanSubject: planSubject}
			if matched := matchSubject(planSubject.Name, subjects); matched != nil {
				entry.Matched = matched
				entry.Passed = matched.Passed
			}
			if !entry.Passed {
				status.Complete = false
			}
			status.Subjects = append(status.Subjects, entry)
		}
		out = append(out, status)
	}
	return out
}

// CurrentSemester is the first semester with unfinished subjects, or
// the count plus one when everything is passed.
func CurrentSemester(statuses []SemesterStatus) int {
	for _, s := range statuses {
		if !s.Complete {
			return s.Number
		}
	}
	return len(statuses) + 1
}

// ResolvePlanName matches user input against the known plan names,
// tolerating the same kind of spelling drift as subject matching.
func ResolvePlanName(input string, known []string) (string, bool) {
	normalized := normalizeKey(input)
	bestScore := 0.0
	best := ""
	for _, name := range known {
		if normalizeKey(name) == normalized {
			return name, true
		}
		score := matchr.JaroWinkler(normalized, normalizeKey(name), false)
		if score >= planMatchThreshold && score > bestScore {
			best = name
			bestScore = score
		}
	}
	if best == "" && len(known) > 0 {
		// Substring match catches inputs like "tecnologias" against
		// "Licenciatura en Tecnologías de la Información".
		for _, name := range known {
			if strings.Contains(normalizeKey(name), normalized) && normalized != "" {
				return name, true
			}
		}
	}
	return best, best != ""
}
