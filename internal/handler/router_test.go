package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sessionService "github.com/zhouzirui/survey-runner/backend/internal/service/session"
	surveyService "github.com/zhouzirui/survey-runner/backend/internal/service/survey"
	"github.com/zhouzirui/survey-runner/backend/internal/store"
)

func newTestRouter(checks map[string]Checker) http.Handler {
	st := store.NewMemoryStore(store.Seed())
	return NewRouter(Dependencies{
		Survey:   surveyService.NewService(st),
		Sessions: sessionService.NewService(),
		Checks:   checks,
	})
}

func TestRouterServesAPIAndLegacyPaths(t *testing.T) {
	r := newTestRouter(nil)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/trials", `{"session_id":"s"}`, http.StatusOK},
		{http.MethodPost, "/fetchTrials.php", `{"session_id":"s"}`, http.StatusOK},
		{http.MethodPost, "/api/responses", `{"q1":"\"yes\""}`, http.StatusOK},
		{http.MethodPost, "/saveResponses.php", `{"q1":"\"yes\""}`, http.StatusOK},
		{http.MethodPost, "/api/session", ``, http.StatusCreated},
		{http.MethodGet, "/healthcheck", ``, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}

func TestHealthcheckReportsFailingDependency(t *testing.T) {
	r := newTestRouter(map[string]Checker{
		"store": func(context.Context) error { return nil },
		"cache": func(context.Context) error { return errors.New("redis down") },
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"cache":false`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
