// Package utec scrapes the UTEC student portal through a real browser.
// Login happens against Moodle; the academic progress view lives behind
// a federated redirect chain into the PortalUXXI instance.
package utec

import (
	"time"

	"ltiuy-backend/lib/browser"
)

type Config struct {
	// MoodleLoginUrl is the form-based entry point for student
	// credentials.
	MoodleLoginUrl string `json:"moodleLoginUrl"`
	// LoginPathFragment identifies the login page by URL. Leaving it is
	// one of the success signals after submitting the form.
	LoginPathFragment string `json:"loginPathFragment"`

	UsernameSelector string `json:"usernameSelector"`
	PasswordSelector string `json:"passwordSelector"`
	SubmitSelector   string `json:"submitSelector"`

	// ErrorSelectors match the inline error box Moodle renders on bad
	// credentials. Only consulted while no success signal has fired;
	// logged-in pages reuse the same alert classes for site notices.
	ErrorSelectors []string `json:"errorSelectors"`
	// SuccessSelectors match chrome that only exists for a logged-in
	// session.
	SuccessSelectors []string `json:"successSelectors"`

	// PortalUrl starts the redirect chain towards PortalUXXI. The chain
	// bounces through the institutional auth host before landing.
	PortalUrl  string `json:"portalUrl"`
	AuthGlob   string `json:"authGlob"`
	PortalGlob string `json:"portalGlob"`

	// MenuLabels are the accepted spellings of the academic information
	// menu entry. The portal is inconsistent about accents.
	MenuLabels []string `json:"menuLabels"`

	// FocusTraversal reaches the progress table through keyboard
	// navigation. The widget has no stable click target, so the tab
	// count is data that tracks UI drift.
	FocusTraversal []browser.Keystroke `json:"focusTraversal"`

	// GridSelector matches the rendered progress table.
	GridSelector string `json:"gridSelector"`

	LoginTimeout    time.Duration `json:"loginTimeout"`
	RedirectTimeout time.Duration `json:"redirectTimeout"`
	GridTimeout     time.Duration `json:"gridTimeout"`
	// SettleDelay is a fixed pause after the grid appears; rows stream
	// in with no completion signal.
	SettleDelay time.Duration `json:"settleDelay"`

	Browser browser.Options `json:"browser"`
}

func DefaultConfig() Config {
	return Config{
		MoodleLoginUrl:    "https://ev1.utec.edu.uy/moodle/login/index.php",
		LoginPathFragment: "/login/index.php",

		UsernameSelector: "#username",
		PasswordSelector: "#password",
		SubmitSelector:   "#loginbtn",

		ErrorSelectors: []string{
			"#loginerrormessage",
			".loginerrors",
			"div.alert-danger",
		},
		SuccessSelectors: []string{
			"div.usermenu .userbutton",
			"div.usermenu .userpicture",
			"#usermenu",
		},

		PortalUrl:  "https://portal.utec.edu.uy/",
		AuthGlob:   "**/autenticacion.utec.edu.uy/**",
		PortalGlob: "**/portaluxxi.utec.edu.uy/**",

		MenuLabels: []string{
			"Información Académica",
			"Informacion Academica",
			"INFORMACIÓN ACADÉMICA",
		},

		FocusTraversal: []browser.Keystroke{
			{Key: "Tab", Delay: time.Millisecond * 500},
			{Key: "Tab", Delay: time.Millisecond * 500},
			{Key: "Enter", Delay: time.Second},
		},

		GridSelector: `div[role="grid"]`,

		LoginTimeout:    time.Second * 20,
		RedirectTimeout: time.Second * 45,
		GridTimeout:     time.Second * 30,
		SettleDelay:     time.Second * 2,

		Browser: browser.Options{
			Locale:         "es-UY",
			ViewportWidth:  1366,
			ViewportHeight: 768,
			DefaultTimeout: time.Second * 30,
		},
	}
}
