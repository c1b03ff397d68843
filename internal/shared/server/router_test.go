package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"schedule-backend/internal/contributions"
	"schedule-backend/internal/services/health"
	"schedule-backend/internal/shared/config"
	"schedule-backend/internal/shared/server/middleware"
)

func testRouter(hs *health.Service) http.Handler {
	cfg := config.Config{}
	cfg.Server.UploadRate = 0.001
	cfg.Server.UploadBurst = 1
	svc := &contributions.Service{Repo: contributions.NewMemoryRepo()}
	return NewRouter(RouterDeps{
		Config:              cfg,
		ContributionHandler: contributions.NewHandler(svc),
		Health:              hs,
	})
}

func TestHealthIsPublic(t *testing.T) {
	router := testRouter(nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestHealthReportsFailingDependency(t *testing.T) {
	hs := health.NewService()
	hs.Register("database", func(ctx context.Context) error { return errors.New("down") })
	router := testRouter(hs)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "down") {
		t.Fatalf("expected failing check in body, got %s", resp.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := testRouter(nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestContributionsRequireIdentity(t *testing.T) {
	router := testRouter(nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/contributions", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestUploadsAreRateLimited(t *testing.T) {
	router := testRouter(nil)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contributions/images", strings.NewReader(""))
		req.Header.Set(middleware.GuestHeader, "g1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	if first := send(); first.Code != http.StatusBadRequest {
		t.Fatalf("expected first upload to reach the handler (400), got %d", first.Code)
	}
	second := send()
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	list := httptest.NewRequest(http.MethodGet, "/api/v1/contributions", nil)
	list.Header.Set(middleware.GuestHeader, "g1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, list)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected listing to bypass the upload limit, got %d", resp.Code)
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
