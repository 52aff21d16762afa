package utec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ltiuy-backend/lib/browser"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/utec")

var (
	ErrBadCredentials    = errors.New("invalid portal credentials")
	ErrPortalTimeout     = errors.New("portal did not respond in time")
	ErrPortalUnreachable = errors.New("portal unreachable")
	// ErrUnknownAuthState means the login page neither confirmed nor
	// rejected the credentials; the portal does not render an error
	// element for every rejection.
	ErrUnknownAuthState = errors.New("could not verify login outcome")
)

// UserMessage maps an authentication or scrape error to the Spanish
// message shown to students. Anything unclassified gets a generic
// retry message rather than leaking internals.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrBadCredentials):
		return "Usuario o contraseña incorrectos."
	case errors.Is(err, ErrPortalTimeout):
		return "El portal de UTEC no responde en este momento. Intentá de nuevo más tarde."
	case errors.Is(err, ErrPortalUnreachable):
		return "No se pudo conectar con el portal de UTEC."
	case errors.Is(err, ErrUnknownAuthState):
		return "No se pudo verificar el inicio de sesión. Intentá de nuevo."
	default:
		return "Ocurrió un error inesperado. Intentá de nuevo más tarde."
	}
}

// classifyNav splits a navigation failure into "their network is down"
// versus "they are slow", which map to different user messages.
func classifyNav(err error) error {
	if browser.IsNetwork(err) {
		return fmt.Errorf("%w: %s", ErrPortalUnreachable, err)
	}
	return fmt.Errorf("%w: %s", ErrPortalTimeout, err)
}

// Page is the slice of a browser session the login flow drives.
// *browser.Session satisfies it; tests substitute a scripted page.
type Page interface {
	URL() string
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Has(ctx context.Context, selector string) bool
	ElementText(ctx context.Context, selector string) string
	Pause(ctx context.Context, d time.Duration)
}

type Authenticator struct {
	cfg Config
}

func NewAuthenticator(cfg Config) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Login submits the Moodle form and waits for a layered set of outcome
// signals. Signals are checked in priority order on every poll tick:
//
//  1. leaving the login URL means the session was established
//  2. logged-in chrome appearing means the same, for pages that keep
//     the login URL briefly after redirecting content in
//  3. only with neither success signal does an inline error box count
//     as a rejection; logged-in dashboards render site notices with
//     the same alert classes
//
// Only when none of them fire within LoginTimeout does the attempt
// count as an unknown outcome.
func (a *Authenticator) Login(ctx context.Context, s Page, cred Credential) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	if err := s.Navigate(ctx, a.cfg.MoodleLoginUrl); err != nil {
		err = classifyNav(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open login page")
		return err
	}

	if err := s.WaitVisible(ctx, a.cfg.UsernameSelector, a.cfg.LoginTimeout); err != nil {
		err = classifyNav(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "login form never appeared")
		return err
	}
	if err := s.Fill(ctx, a.cfg.UsernameSelector, cred.Username); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fill username")
		return classifyNav(err)
	}
	if err := s.Fill(ctx, a.cfg.PasswordSelector, cred.Password); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fill password")
		return classifyNav(err)
	}
	if err := s.Click(ctx, a.cfg.SubmitSelector); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return classifyNav(err)
	}

	err := a.waitOutcome(ctx, s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login did not succeed")
	}
	return err
}

func (a *Authenticator) waitOutcome(ctx context.Context, s Page) error {
	deadline := time.Now().Add(a.cfg.LoginTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !strings.Contains(s.URL(), a.cfg.LoginPathFragment) {
			return nil
		}

		for _, selector := range a.cfg.SuccessSelectors {
			if s.Has(ctx, selector) {
				return nil
			}
		}

		for _, selector := range a.cfg.ErrorSelectors {
			if s.Has(ctx, selector) {
				detail := s.ElementText(ctx, selector)
				if detail == "" {
					return ErrBadCredentials
				}
				return fmt.Errorf("%w: %s", ErrBadCredentials, detail)
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: still on login page with no error element", ErrUnknownAuthState)
		}
		s.Pause(ctx, time.Millisecond*250)
	}
}
