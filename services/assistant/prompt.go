package assistant

import (
	"fmt"
	"strings"

	"ltiuy-backend/services/assistant/db"
	"ltiuy-backend/services/progress"
)

const (
	// maxHistoryMessages bounds how much chat history rides along on
	// every request; older turns fall off.
	maxHistoryMessages = 10
	// maxMessageRunes truncates any single history message so one long
	// paste can't crowd out the academic context.
	maxMessageRunes = 500
)

const systemPreamble = `Sos el asistente académico de LTI.UY, una aplicación para estudiantes de UTEC (Universidad Tecnológica del Uruguay).
Respondé siempre en español, de forma breve y concreta.
Usá únicamente los datos académicos que siguen; si no tenés la información, decilo en lugar de inventarla.
No repitas la lista completa de materias salvo que te la pidan.`

// BuildPrompt assembles the Gemini conversation: a preamble with the
// student's academic standing, the recent history and the new question.
func BuildPrompt(report *progress.Report, overview *progress.PlanOverview, history []db.Message, question string) []Content {
	var context strings.Builder
	context.WriteString(systemPreamble)
	context.WriteString("\n\n")
	writeAcademicContext(&context, report, overview)

	contents := []Content{{
		Role:  "user",
		Parts: []Part{{Text: context.String()}},
	}, {
		Role:  "model",
		Parts: []Part{{Text: "Entendido. ¿En qué te puedo ayudar?"}},
	}}

	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	for _, m := range history {
		contents = append(contents, Content{
			Role:  m.Role,
			Parts: []Part{{Text: truncate(m.Content)}},
		})
	}

	contents = append(contents, Content{
		Role:  "user",
		Parts: []Part{{Text: truncate(question)}},
	})
	return contents
}

func writeAcademicContext(out *strings.Builder, report *progress.Report, overview *progress.PlanOverview) {
	if report == nil {
		out.WriteString("El estudiante todavía no tiene datos académicos cargados.\n")
		return
	}

	fmt.Fprintf(out, "Créditos obtenidos: %.0f de %.0f cursados.\n",
		report.EarnedCredits, report.TotalCredits)
	if overview != nil {
		fmt.Fprintf(out, "Plan de estudios: %s (%.0f créditos requeridos, avance %.0f%%).\n",
			overview.Plan, overview.RequiredCredits, overview.Completion*100)
		fmt.Fprintf(out, "Semestre actual: %d.\n", overview.CurrentSemester)
	}
	if report.QualityFlagged {
		out.WriteString("Aviso: la última actualización de datos fue rechazada por calidad; los datos pueden estar desactualizados.\n")
	}

	out.WriteString("Materias:\n")
	for _, s := range report.Subjects {
		status := "pendiente"
		if s.Passed {
			status = "aprobada"
		}
		fmt.Fprintf(out, "- %s (%g créditos, nota: %s, %s)\n",
			s.Name, s.Credits, orDash(s.Grade), status)
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxMessageRunes {
		return s
	}
	return string(runes[:maxMessageRunes]) + "…"
}
