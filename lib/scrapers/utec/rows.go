package utec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ltiuy-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var ErrGridNotFound = errors.New("progress grid not found in page")

// Subject is one row of the academic progress table as the portal
// renders it. Grade stays a string: the portal mixes numerals with
// words like "Exonerado".
type Subject struct {
	Name         string  `json:"name"`
	Credits      float64 `json:"credits"`
	Type         string  `json:"type"`
	Convocatoria string  `json:"convocatoria"`
	Grade        string  `json:"grade"`
	Passed       bool    `json:"passed"`
}

// noiseNames are header and placeholder rows the grid repeats between
// data rows, compared after normalization.
var noiseNames = map[string]bool{
	"":                  true,
	"-":                 true,
	"unidad curricular": true,
	"asignatura":        true,
	"creditos":          true,
	"créditos":          true,
	"tipo":              true,
	"convocatoria":      true,
	"nota":              true,
	"calificacion":      true,
	"calificación":      true,
	"sin datos":         true,
	"no hay datos":      true,
	"inicio":            true,
	"ayuda":             true,
	"desconexion":       true,
	"desconexión":       true,
	"english":           true,
	"espanol":           true,
	"español":           true,
}

// chromeFragments are page-chrome strings the grid sometimes swallows
// into a row: the help link, the language switch and the top strip,
// which renders its three labels concatenated. Matched as substrings
// since they arrive glued to neighboring text.
var chromeFragments = []string{
	"necesitas ayuda",
	"cambiar idioma",
	"inicioayudadesconexion",
	"inicioayudadesconexión",
}

func isChromeRow(name string) bool {
	n := normalizeName(name)
	for _, fragment := range chromeFragments {
		if strings.Contains(n, fragment) {
			return true
		}
	}
	return false
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseNumber accepts the portal's comma-decimal numerals alongside
// plain integers. Placeholders like "-" fail.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// derivePassed follows the portal's two ways of saying "passed": a
// numeric grade of 3 or better, or an explicit word.
func derivePassed(grade string) bool {
	g := normalizeName(grade)
	if strings.Contains(g, "aprobado") || strings.Contains(g, "exonerado") {
		return true
	}
	if n, ok := parseNumber(firstNumberToken(g)); ok {
		return n >= 3
	}
	return false
}

func firstNumberToken(s string) string {
	for _, tok := range strings.Fields(s) {
		if _, ok := parseNumber(tok); ok {
			return tok
		}
	}
	return ""
}

// subjectFromCells maps one grid row to a Subject, or reports the row
// as noise. A real row has a name longer than a grade abbreviation and
// a parseable credit count.
func subjectFromCells(cells []string) (Subject, bool) {
	if len(cells) < 5 {
		return Subject{}, false
	}
	name := strings.TrimSpace(cells[0])
	if len([]rune(name)) <= 3 || noiseNames[normalizeName(name)] || isChromeRow(name) {
		return Subject{}, false
	}
	credits, ok := parseNumber(cells[1])
	if !ok {
		return Subject{}, false
	}

	grade := strings.TrimSpace(cells[4])
	return Subject{
		Name:         name,
		Credits:      credits,
		Type:         strings.TrimSpace(cells[2]),
		Convocatoria: strings.TrimSpace(cells[3]),
		Grade:        grade,
		Passed:       derivePassed(grade),
	}, true
}

// ExtractSubjects parses the serialized progress page and returns every
// data row of the grid, noise rows filtered out. The summary row the
// portal appends is kept; downstream reconciliation reads the earned
// credit total out of it.
func ExtractSubjects(html string, gridSelector string) ([]Subject, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse progress page: %w", err)
	}

	grid := doc.Find(gridSelector).First()
	if grid.Length() == 0 {
		return nil, ErrGridNotFound
	}

	var subjects []Subject
	grid.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := htmlutil.CellTexts(row)
		if subject, ok := subjectFromCells(cells); ok {
			subjects = append(subjects, subject)
		}
	})
	return subjects, nil
}
