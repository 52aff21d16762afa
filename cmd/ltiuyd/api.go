package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ltiuy-backend/lib/scrapers/utec"
	"ltiuy-backend/lib/serviceutil"
	"ltiuy-backend/services/assistant"
	"ltiuy-backend/services/loginlimit"
	"ltiuy-backend/services/progress"
)

// credentialVerifier is the browserless password check, satisfied by
// *moodle.Client.
type credentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (bool, error)
}

type api struct {
	progress   *progress.Service
	loginlimit *loginlimit.Service
	assistant  *assistant.Service
	moodle     credentialVerifier
	sessions   *sessionStore

	adminUsername string
	adminPassword string
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/login", a.handleLogin)
	mux.HandleFunc("GET /api/progress", a.withSession(a.handleProgress))
	mux.HandleFunc("POST /api/refresh", a.withSession(a.handleRefresh))
	mux.HandleFunc("GET /api/plans", a.withSession(a.handlePlans))
	mux.HandleFunc("GET /api/plan", a.withSession(a.handlePlanOverview))
	mux.HandleFunc("POST /api/plan", a.withSession(a.handleSelectPlan))
	mux.HandleFunc("POST /api/plans/import", a.withSession(a.handleImportPlan))
	mux.HandleFunc("POST /api/chat", a.withSession(a.handleChat))
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		serviceutil.WriteJson(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess session)

func (a *api) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("authorization"), "Bearer ")
		sess, ok := a.sessions.get(token)
		if !ok {
			serviceutil.WriteJson(w, http.StatusUnauthorized, errorResponse{
				Error: "Sesión inválida o vencida. Iniciá sesión de nuevo.",
			})
			return
		}
		next(w, r, sess)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string           `json:"token"`
	Progress *progress.Report `json:"progress,omitempty"`
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := serviceutil.ReadJson[loginRequest](r)
	if err != nil || req.Username == "" || req.Password == "" {
		serviceutil.WriteJson(w, http.StatusBadRequest, errorResponse{
			Error: "Falta el usuario o la contraseña.",
		})
		return
	}

	if err := a.loginlimit.Check(ctx, req.Username); err != nil {
		if errors.Is(err, loginlimit.ErrBlocked) {
			serviceutil.WriteJson(w, http.StatusTooManyRequests, errorResponse{
				Error: loginlimit.UserMessage(err),
			})
			return
		}
		a.internalError(w, ctx, "login limit check failed", err)
		return
	}

	if a.adminUsername != "" && req.Username == a.adminUsername {
		a.handleAdminLogin(w, r, req)
		return
	}

	ok, err := a.moodle.VerifyCredentials(ctx, req.Username, req.Password)
	if err != nil {
		serviceutil.WriteJson(w, http.StatusBadGateway, errorResponse{
			Error: utec.UserMessage(utec.ErrPortalUnreachable),
		})
		return
	}
	if !ok {
		if _, err := a.loginlimit.RecordFailure(ctx, req.Username); err != nil {
			slog.WarnContext(ctx, "failed to record login failure", "err", err)
		}
		serviceutil.WriteJson(w, http.StatusUnauthorized, errorResponse{
			Error: utec.UserMessage(utec.ErrBadCredentials),
		})
		return
	}
	if err := a.loginlimit.RecordSuccess(ctx, req.Username); err != nil {
		slog.WarnContext(ctx, "failed to clear login failures", "err", err)
	}

	report, err := a.progress.RunScrapeCycle(ctx, utec.Credential{
		Username: req.Username,
		Password: req.Password,
	}, false)
	if err != nil {
		serviceutil.WriteJson(w, http.StatusBadGateway, errorResponse{
			Error: utec.UserMessage(err),
		})
		return
	}

	token, err := a.sessions.issue(report.UserHash, req.Username, false)
	if err != nil {
		a.internalError(w, ctx, "failed to issue session", err)
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, loginResponse{
		Token:    token,
		Progress: &report,
	})
}

func (a *api) handleAdminLogin(w http.ResponseWriter, r *http.Request, req loginRequest) {
	ctx := r.Context()
	if req.Password != a.adminPassword {
		if _, err := a.loginlimit.RecordFailure(ctx, req.Username); err != nil {
			slog.WarnContext(ctx, "failed to record login failure", "err", err)
		}
		serviceutil.WriteJson(w, http.StatusUnauthorized, errorResponse{
			Error: utec.UserMessage(utec.ErrBadCredentials),
		})
		return
	}

	token, err := a.sessions.issue(progress.HashUsername(req.Username), req.Username, true)
	if err != nil {
		a.internalError(w, ctx, "failed to issue session", err)
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, loginResponse{Token: token})
}

func (a *api) handleProgress(w http.ResponseWriter, r *http.Request, sess session) {
	report, err := a.progress.GetProgress(r.Context(), sess.UserHash)
	if errors.Is(err, progress.ErrNoSnapshot) {
		serviceutil.WriteJson(w, http.StatusNotFound, errorResponse{
			Error: "Todavía no hay datos académicos. Actualizá tu progreso.",
		})
		return
	}
	if err != nil {
		a.internalError(w, r.Context(), "failed to load progress", err)
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, report)
}

type refreshRequest struct {
	Password string `json:"password"`
}

// handleRefresh runs a manual scrape. The password comes with the
// request because credentials are never stored server side.
func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request, sess session) {
	ctx := r.Context()
	req, err := serviceutil.ReadJson[refreshRequest](r)
	if err != nil || req.Password == "" {
		serviceutil.WriteJson(w, http.StatusBadRequest, errorResponse{
			Error: "Ingresá tu contraseña para actualizar los datos.",
		})
		return
	}

	// A mistyped password is caught over plain HTTP before the quota
	// is spent or a browser launched. A check that errors out falls
	// through to the scrape, which classifies its own failures.
	if ok, err := a.moodle.VerifyCredentials(ctx, sess.Username, req.Password); err == nil && !ok {
		serviceutil.WriteJson(w, http.StatusUnauthorized, errorResponse{
			Error: utec.UserMessage(utec.ErrBadCredentials),
		})
		return
	}

	report, err := a.progress.RunScrapeCycle(ctx, utec.Credential{
		Username: sess.Username,
		Password: req.Password,
	}, true)
	if errors.Is(err, progress.ErrManualQuotaExceeded) {
		serviceutil.WriteJson(w, http.StatusTooManyRequests, errorResponse{
			Error: "Ya usaste las dos actualizaciones manuales de hoy. Probá de nuevo mañana.",
		})
		return
	}
	if errors.Is(err, utec.ErrBadCredentials) {
		serviceutil.WriteJson(w, http.StatusUnauthorized, errorResponse{
			Error: utec.UserMessage(err),
		})
		return
	}
	if err != nil {
		serviceutil.WriteJson(w, http.StatusBadGateway, errorResponse{
			Error: utec.UserMessage(err),
		})
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, report)
}

func (a *api) handlePlans(w http.ResponseWriter, r *http.Request, sess session) {
	names, err := a.progress.ListPlans(r.Context())
	if err != nil {
		a.internalError(w, r.Context(), "failed to list plans", err)
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, map[string][]string{"plans": names})
}

type selectPlanRequest struct {
	Plan string `json:"plan"`
}

func (a *api) handleSelectPlan(w http.ResponseWriter, r *http.Request, sess session) {
	ctx := r.Context()
	req, err := serviceutil.ReadJson[selectPlanRequest](r)
	if err != nil || req.Plan == "" {
		serviceutil.WriteJson(w, http.StatusBadRequest, errorResponse{
			Error: "Indicá el plan de estudios.",
		})
		return
	}

	name, err := a.progress.SelectPlan(ctx, sess.UserHash, req.Plan)
	if errors.Is(err, progress.ErrUnknownPlan) {
		serviceutil.WriteJson(w, http.StatusNotFound, errorResponse{
			Error: "No se encontró ese plan de estudios.",
		})
		return
	}
	if err != nil {
		a.internalError(w, ctx, "failed to select plan", err)
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, map[string]string{"plan": name})
}

func (a *api) handlePlanOverview(w http.ResponseWriter, r *http.Request, sess session) {
	overview, err := a.progress.GetPlanOverview(r.Context(), sess.UserHash)
	if errors.Is(err, progress.ErrUnknownPlan) {
		serviceutil.WriteJson(w, http.StatusNotFound, errorResponse{
			Error: "Elegí primero tu plan de estudios.",
		})
		return
	}
	if err != nil {
		a.internalError(w, r.Context(), "failed to build plan overview", err)
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, overview)
}

func (a *api) handleImportPlan(w http.ResponseWriter, r *http.Request, sess session) {
	if !sess.Admin {
		serviceutil.WriteJson(w, http.StatusForbidden, errorResponse{
			Error: "Solo el administrador puede importar planes.",
		})
		return
	}
	plan, err := serviceutil.ReadJson[progress.Plan](r)
	if err != nil || plan.Name == "" {
		serviceutil.WriteJson(w, http.StatusBadRequest, errorResponse{
			Error: "Definición de plan inválida.",
		})
		return
	}
	if err := a.progress.ImportPlan(r.Context(), plan); err != nil {
		a.internalError(w, r.Context(), "failed to import plan", err)
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, map[string]string{"plan": plan.Name})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request, sess session) {
	ctx := r.Context()
	req, err := serviceutil.ReadJson[chatRequest](r)
	if err != nil {
		serviceutil.WriteJson(w, http.StatusBadRequest, errorResponse{
			Error: "Mensaje inválido.",
		})
		return
	}

	reply, err := a.assistant.Chat(ctx, sess.UserHash, req.Message)
	if errors.Is(err, assistant.ErrEmptyQuestion) {
		serviceutil.WriteJson(w, http.StatusBadRequest, errorResponse{
			Error: "Escribí una pregunta.",
		})
		return
	}
	if errors.Is(err, assistant.ErrModelUnavailable) {
		serviceutil.WriteJson(w, http.StatusBadGateway, errorResponse{
			Error: "El asistente no está disponible en este momento.",
		})
		return
	}
	if err != nil {
		a.internalError(w, ctx, "chat failed", err)
		return
	}
	serviceutil.WriteJson(w, http.StatusOK, map[string]string{"reply": reply})
}

func (a *api) internalError(w http.ResponseWriter, ctx context.Context, message string, err error) {
	slog.ErrorContext(ctx, message, "err", err)
	serviceutil.WriteJson(w, http.StatusInternalServerError, errorResponse{
		Error: "Ocurrió un error inesperado. Intentá de nuevo más tarde.",
	})
}
