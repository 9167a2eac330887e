package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDBRequiredRejectsWithoutPool(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a database pool")
	})
	h := DBRequiredMiddleware{Pool: nil}.Wrap(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "FAILED_PRECONDITION") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestDBRequiredSkipsInfraPaths(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	h := DBRequiredMiddleware{
		Pool: nil,
		Skip: func(r *http.Request) bool { return r.URL.Path == "/healthz" },
	}.Wrap(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("skip path blocked: called=%v status=%d", called, rec.Code)
	}
}
