package utec

import (
	"context"
	"fmt"
	"log/slog"

	"ltiuy-backend/lib/browser"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProgressScraper drives a full authenticated scrape of the academic
// progress view. Each Scrape call owns one browser session end to end.
type ProgressScraper struct {
	cfg  Config
	auth *Authenticator
}

func NewProgressScraper(cfg Config) *ProgressScraper {
	return &ProgressScraper{
		cfg:  cfg,
		auth: NewAuthenticator(cfg),
	}
}

// Scrape logs in, follows the federated redirect chain into PortalUXXI,
// reaches the progress grid and extracts its rows. The browser is
// released on every exit path, including panics in extraction.
func (p *ProgressScraper) Scrape(ctx context.Context, cred Credential) ([]Subject, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()

	session, err := browser.NewSession(ctx, p.cfg.Browser)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch browser")
		return nil, fmt.Errorf("%w: %s", ErrPortalUnreachable, err)
	}
	defer session.Close()

	if err := p.auth.Login(ctx, session, cred); err != nil {
		return nil, err
	}

	if err := p.openProgressView(ctx, session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach progress view")
		return nil, err
	}

	html, err := session.Content(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read page content")
		return nil, classifyNav(err)
	}

	subjects, err := ExtractSubjects(html, p.cfg.GridSelector)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract subjects")
		return nil, err
	}

	span.SetAttributes(attribute.Int("subjects", len(subjects)))
	return subjects, nil
}

// openProgressView walks from the freshly logged-in Moodle session to
// the rendered progress grid. The portal bounces through the
// institutional auth host before landing on PortalUXXI; both hops are
// waited on explicitly so a stall is attributed to the right system.
func (p *ProgressScraper) openProgressView(ctx context.Context, s *browser.Session) error {
	if err := s.Navigate(ctx, p.cfg.PortalUrl); err != nil {
		return classifyNav(err)
	}

	// The auth hop is skipped entirely when the SSO cookie is still
	// warm, so a miss there is not an error on its own.
	if err := s.WaitForURL(ctx, p.cfg.AuthGlob, p.cfg.RedirectTimeout); err != nil {
		slog.InfoContext(ctx, "auth hop not observed, assuming warm session")
	}
	if err := s.WaitForURL(ctx, p.cfg.PortalGlob, p.cfg.RedirectTimeout); err != nil {
		return classifyNav(err)
	}
	s.WaitSettled(ctx, p.cfg.RedirectTimeout)

	if err := p.clickMenuEntry(ctx, s); err != nil {
		return err
	}

	if err := s.PressKeys(ctx, p.cfg.FocusTraversal); err != nil {
		return classifyNav(err)
	}

	if err := s.WaitVisible(ctx, p.cfg.GridSelector, p.cfg.GridTimeout); err != nil {
		return fmt.Errorf("%w: %s", ErrPortalTimeout, err)
	}
	// Rows stream into the grid with no completion event.
	s.Pause(ctx, p.cfg.SettleDelay)
	return nil
}

func (p *ProgressScraper) clickMenuEntry(ctx context.Context, s *browser.Session) error {
	for _, label := range p.cfg.MenuLabels {
		for _, selector := range []string{
			fmt.Sprintf("a:has-text(%q)", label),
			fmt.Sprintf("[role=\"menuitem\"]:has-text(%q)", label),
			fmt.Sprintf("span:has-text(%q)", label),
		} {
			if s.Has(ctx, selector) {
				if err := s.Click(ctx, selector); err != nil {
					return classifyNav(err)
				}
				s.WaitSettled(ctx, p.cfg.RedirectTimeout)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: academic information menu entry", browser.ErrElementNotFound)
}
