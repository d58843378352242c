package healthcheck

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultPingEndpoint(t *testing.T) {
	s := New(":0")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "PONG\n" {
		t.Fatalf("body = %q, want PONG", rec.Body.String())
	}
}

func TestAddEndpointRejectsReservedPaths(t *testing.T) {
	s := New(":0")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for reserved path")
		}
	}()
	s.AddEndpoint("/_ALL_", func() (int, string) { return 200, "" })
}

func TestAddEndpointRejectsDuplicate(t *testing.T) {
	s := New(":0")
	s.AddEndpoint("/custom", func() (int, string) { return 200, "ok" })
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for duplicate registration")
		}
	}()
	s.AddEndpoint("/custom", func() (int, string) { return 200, "ok" })
}

func TestServeAllAggregatesWorstCode(t *testing.T) {
	s := New(":0")
	s.AddEndpoint("/degraded", func() (int, string) { return http.StatusServiceUnavailable, "down\n" })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_ALL_", nil)
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
