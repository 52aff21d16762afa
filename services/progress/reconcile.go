package progress

import (
	"regexp"
	"strconv"
	"strings"

	"ltiuy-backend/lib/scrapers/utec"
)

// qualityRatio is the fraction of the previous snapshot a new scrape
// must retain, in both subject count and credit volume, to be trusted.
// Scrapes routinely come back truncated when the portal times out mid
// render; overwriting good data with a truncated read is worse than
// serving stale data.
const qualityRatio = 0.9

// QualityStats summarizes one side of a quality comparison.
type QualityStats struct {
	PassedSubjects int     `json:"passedSubjects"`
	PassedCredits  float64 `json:"passedCredits"`
}

type QualityVerdict struct {
	Acceptable bool
	// Reason is one of "empty_result", "fewer_subjects",
	// "fewer_credits" when the scrape is rejected.
	Reason string
	// Existing and New carry the compared stats so a rejection can be
	// reported with its before and after numbers.
	Existing QualityStats
	New      QualityStats
}

// ValidateQuality compares a fresh scrape against the stored snapshot.
// The regression signal is passed subjects and earned credits, since
// grades are never un-earned in this domain; a drop there is a scraping
// artifact. Summary rows are excluded on both sides so a missing TOTAL
// row can't mask a real regression. A first scrape (no existing data)
// always passes.
func ValidateQuality(existing, incoming []utec.Subject) QualityVerdict {
	existing = dataRows(existing)
	incoming = dataRows(incoming)

	verdict := QualityVerdict{
		Existing: passedStats(existing),
		New:      passedStats(incoming),
	}

	if len(existing) == 0 {
		verdict.Acceptable = true
		return verdict
	}
	if len(incoming) == 0 {
		verdict.Reason = "empty_result"
		return verdict
	}

	if float64(verdict.New.PassedSubjects) < qualityRatio*float64(verdict.Existing.PassedSubjects) {
		verdict.Reason = "fewer_subjects"
		return verdict
	}
	if verdict.New.PassedCredits < qualityRatio*verdict.Existing.PassedCredits {
		verdict.Reason = "fewer_credits"
		return verdict
	}
	verdict.Acceptable = true
	return verdict
}

func passedStats(subjects []utec.Subject) QualityStats {
	var stats QualityStats
	for _, s := range subjects {
		if s.Passed {
			stats.PassedSubjects++
			stats.PassedCredits += s.Credits
		}
	}
	return stats
}

func sumCredits(subjects []utec.Subject) float64 {
	var total float64
	for _, s := range subjects {
		total += s.Credits
	}
	return total
}

// categoryRows are the per-category subtotal lines the portal inserts
// between subject groups, in normalized (folded) form.
var categoryRows = map[string]bool{
	"obligatoria":             true,
	"optativa":                true,
	"libre configuracion":     true,
	"proyecto":                true,
	"practicas profesionales": true,
}

// isSummaryRow matches the portal's subtotal and TOTAL rows. The TOTAL
// row's name cell carries the whole formatted totals line, so that
// check is "first word is TOTAL and the rest is only numbers".
func isSummaryRow(name string) bool {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return false
	}
	if categoryRows[normalizeKey(name)] {
		return true
	}
	if !strings.EqualFold(fields[0], "TOTAL") {
		return false
	}
	for _, f := range fields[1:] {
		if strings.IndexFunc(f, func(r rune) bool {
			return (r < '0' || r > '9') && r != ',' && r != '.'
		}) >= 0 {
			return false
		}
	}
	return true
}

func dataRows(subjects []utec.Subject) []utec.Subject {
	var out []utec.Subject
	for _, s := range subjects {
		if !isSummaryRow(s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// numberPattern accepts both decimal separators; the portal renders
// comma decimals but has shipped dot-formatted totals after locale
// regressions.
var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// ParseEarnedCredits reads the earned credit total out of the summary
// row. The totals line reads "TOTAL <required> <earned> <pending>
// <failed>", so the earned figure is the second embedded number.
func ParseEarnedCredits(subjects []utec.Subject) (float64, bool) {
	for _, s := range subjects {
		if !isSummaryRow(s.Name) {
			continue
		}
		matches := numberPattern.FindAllString(s.Name, -1)
		if len(matches) < 2 {
			continue
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(matches[1], ",", "."), 64)
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// normalizeKey is the subject matching key: lowercased, whitespace
// collapsed, accents folded. The portal is inconsistent about all
// three.
func normalizeKey(name string) string {
	return accentFolder.Replace(strings.ToLower(strings.Join(strings.Fields(name), " ")))
}

type MergeResult struct {
	Subjects      []utec.Subject
	TotalCredits  float64
	EarnedCredits float64
}

// MergeSubjects folds a fresh scrape into the stored subject list.
// Incoming rows update field by field, but an empty or placeholder
// field never erases a stored value; partial renders are the norm, not
// the exception. Stored rows keep their position and original casing;
// genuinely new subjects are appended. Names matching case and
// whitespace insensitively are the same subject, so portal-side
// duplicates collapse to one row.
func MergeSubjects(existing, incoming []utec.Subject) MergeResult {
	earned, hasEarned := ParseEarnedCredits(incoming)
	if !hasEarned {
		earned, hasEarned = ParseEarnedCredits(existing)
	}

	existing = dataRows(existing)
	incoming = dataRows(incoming)

	incomingByKey := make(map[string]utec.Subject, len(incoming))
	for _, s := range incoming {
		key := normalizeKey(s.Name)
		if _, dup := incomingByKey[key]; !dup {
			incomingByKey[key] = s
		}
	}

	var merged []utec.Subject
	seen := make(map[string]bool)
	for _, old := range existing {
		key := normalizeKey(old.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		if in, ok := incomingByKey[key]; ok {
			merged = append(merged, mergeSubject(old, in))
		} else {
			merged = append(merged, old)
		}
	}
	for _, in := range incoming {
		key := normalizeKey(in.Name)
		if !seen[key] {
			seen[key] = true
			merged = append(merged, in)
		}
	}

	result := MergeResult{
		Subjects:     merged,
		TotalCredits: sumCredits(merged),
	}
	if hasEarned {
		result.EarnedCredits = earned
	} else {
		for _, s := range merged {
			if s.Passed {
				result.EarnedCredits += s.Credits
			}
		}
	}
	return result
}

// mergeSubject updates a stored row from a scraped one. The stored name
// keeps its casing; passed always follows the scrape, since validation
// has already vouched for the scrape as a whole.
func mergeSubject(old, in utec.Subject) utec.Subject {
	out := old
	if in.Credits > 0 {
		out.Credits = in.Credits
	}
	out.Type = mergeField(old.Type, in.Type)
	out.Convocatoria = mergeField(old.Convocatoria, in.Convocatoria)
	if g := strings.TrimSpace(in.Grade); g != "" && g != "-" {
		out.Grade = in.Grade
	}
	out.Passed = in.Passed
	return out
}

func mergeField(old, in string) string {
	in = strings.TrimSpace(in)
	if in == "" || in == "-" {
		return old
	}
	return in
}
