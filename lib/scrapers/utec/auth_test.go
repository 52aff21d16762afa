package utec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePage is a scripted login page; selector presence and the current
// URL are fixed per test.
type fakePage struct {
	url     string
	present map[string]bool
	texts   map[string]string

	fills   map[string]string
	clicked []string
	navErr  error
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Navigate(ctx context.Context, url string) error { return p.navErr }

func (p *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	if p.fills == nil {
		p.fills = map[string]string{}
	}
	p.fills[selector] = value
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.clicked = append(p.clicked, selector)
	return nil
}

func (p *fakePage) Has(ctx context.Context, selector string) bool { return p.present[selector] }

func (p *fakePage) ElementText(ctx context.Context, selector string) string {
	return p.texts[selector]
}

func (p *fakePage) Pause(ctx context.Context, d time.Duration) {}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LoginTimeout = time.Millisecond * 50
	return cfg
}

func testCred() Credential {
	return Credential{Username: "estudiante@utec.edu.uy", Password: "hunter2"}
}

func TestLoginSucceedsOnRedirect(t *testing.T) {
	page := &fakePage{url: "https://ev1.utec.edu.uy/moodle/my/"}
	auth := NewAuthenticator(testConfig())

	err := auth.Login(context.Background(), page, testCred())
	require.NoError(t, err)
	require.Equal(t, "estudiante@utec.edu.uy", page.fills["#username"])
	require.Equal(t, []string{"#loginbtn"}, page.clicked)
}

func TestLoginSucceedsOnChromeWhileUrlLags(t *testing.T) {
	page := &fakePage{
		url:     "https://ev1.utec.edu.uy/moodle/login/index.php",
		present: map[string]bool{"div.usermenu .userbutton": true},
	}
	auth := NewAuthenticator(testConfig())

	err := auth.Login(context.Background(), page, testCred())
	require.NoError(t, err)
}

func TestLoginRejectedByErrorBox(t *testing.T) {
	page := &fakePage{
		url:     "https://ev1.utec.edu.uy/moodle/login/index.php",
		present: map[string]bool{"#loginerrormessage": true},
		texts:   map[string]string{"#loginerrormessage": "Datos erróneos"},
	}
	auth := NewAuthenticator(testConfig())

	err := auth.Login(context.Background(), page, testCred())
	require.ErrorIs(t, err, ErrBadCredentials)
	require.Contains(t, err.Error(), "Datos erróneos")
}

func TestLoginNoticeAfterRedirectIsNotRejection(t *testing.T) {
	// Logged-in dashboards render site notices with the same alert
	// classes the login page uses for rejections.
	page := &fakePage{
		url:     "https://ev1.utec.edu.uy/moodle/my/",
		present: map[string]bool{"div.alert-danger": true},
	}
	auth := NewAuthenticator(testConfig())

	err := auth.Login(context.Background(), page, testCred())
	require.NoError(t, err)
}

func TestLoginChromeOutranksAlertBox(t *testing.T) {
	page := &fakePage{
		url: "https://ev1.utec.edu.uy/moodle/login/index.php",
		present: map[string]bool{
			"div.usermenu .userbutton": true,
			"div.alert-danger":         true,
		},
	}
	auth := NewAuthenticator(testConfig())

	err := auth.Login(context.Background(), page, testCred())
	require.NoError(t, err)
}

func TestLoginUnknownOutcome(t *testing.T) {
	page := &fakePage{url: "https://ev1.utec.edu.uy/moodle/login/index.php"}
	auth := NewAuthenticator(testConfig())

	err := auth.Login(context.Background(), page, testCred())
	require.ErrorIs(t, err, ErrUnknownAuthState)
}

func TestLoginNavigationClassification(t *testing.T) {
	auth := NewAuthenticator(testConfig())

	page := &fakePage{navErr: errors.New("net::ERR_CONNECTION_REFUSED at https://ev1.utec.edu.uy")}
	err := auth.Login(context.Background(), page, testCred())
	require.ErrorIs(t, err, ErrPortalUnreachable)

	page = &fakePage{navErr: errors.New("Timeout 30000ms exceeded")}
	err = auth.Login(context.Background(), page, testCred())
	require.ErrorIs(t, err, ErrPortalTimeout)
}
