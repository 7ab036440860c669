package e2e

import (
	"net/http"
	"testing"
)

func TestRoot(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodGet, "/", "")
	assertStatus(t, resp, http.StatusOK)
	if body := parseJSON(t, resp); body["timestamp"] == nil {
		t.Error("expected 'timestamp' in response")
	}
}

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	for _, path := range []string{"/health", "/api/health"} {
		resp := mustRequest(t, ta.app, http.MethodGet, path, "")
		assertStatus(t, resp, http.StatusOK)

		body := parseJSON(t, resp)
		if body["status"] != "ok" {
			t.Errorf("%s: status = %v, want ok", path, body["status"])
		}
		services, ok := body["services"].(map[string]interface{})
		if !ok {
			t.Fatalf("%s: expected 'services' object", path)
		}
		if services["gemini"] != true || services["database"] != true {
			t.Errorf("%s: services = %v", path, services)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodGet, "/api/nope", "")
	assertStatus(t, resp, http.StatusNotFound)
	if code := errorCode(t, resp); code != "NOT_FOUND" {
		t.Errorf("code = %s, want NOT_FOUND", code)
	}
}
