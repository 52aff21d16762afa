package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ltiuy-backend/lib/scrapers/utec"
	"ltiuy-backend/lib/testutil"
	"ltiuy-backend/services/progress"
	progressdb "ltiuy-backend/services/progress/db"

	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeVerifier) VerifyCredentials(ctx context.Context, username, password string) (bool, error) {
	f.calls++
	return f.ok, f.err
}

type fakeScraper struct {
	subjects []utec.Subject
	calls    int
}

func (f *fakeScraper) Scrape(ctx context.Context, cred utec.Credential) ([]utec.Subject, error) {
	f.calls++
	return f.subjects, nil
}

func setupApi(t *testing.T, verifier *fakeVerifier, scraper progress.Scraper) (*api, string) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "api",
		DbSchema: progressdb.Schema,
	})
	t.Cleanup(cleanup)

	a := &api{
		progress: progress.NewService(result.DB, scraper, progress.DefaultOptions()),
		moodle:   verifier,
		sessions: newSessionStore(),
	}
	token, err := a.sessions.issue(progress.HashUsername("estudiante"), "estudiante", false)
	require.NoError(t, err)
	return a, token
}

func postRefresh(t *testing.T, a *api, token, password string) *httptest.ResponseRecorder {
	body, err := json.Marshal(map[string]string{"password": password})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/refresh", bytes.NewReader(body))
	r.Header.Set("authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	mux := http.NewServeMux()
	a.register(mux)
	mux.ServeHTTP(w, r)
	return w
}

func TestHandleRefreshRejectsBadPasswordWithoutScraping(t *testing.T) {
	verifier := &fakeVerifier{ok: false}
	scraper := &fakeScraper{}
	a, token := setupApi(t, verifier, scraper)

	w := postRefresh(t, a, token, "incorrecta")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, 1, verifier.calls)
	require.Equal(t, 0, scraper.calls)
}

func TestHandleRefreshScrapesOnVerifiedPassword(t *testing.T) {
	verifier := &fakeVerifier{ok: true}
	scraper := &fakeScraper{subjects: []utec.Subject{
		{Name: "Matemática Discreta", Credits: 8, Grade: "7", Passed: true},
	}}
	a, token := setupApi(t, verifier, scraper)

	w := postRefresh(t, a, token, "hunter2")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, verifier.calls)
	require.Equal(t, 1, scraper.calls)
}
