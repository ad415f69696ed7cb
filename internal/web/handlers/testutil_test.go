package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/frame-curator/internal/telemetry"
)

// requestWithChiParams attaches chi URL parameters such as {agent} or {name}.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// reportRequest builds an agent report POST with a JSON body.
func reportRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// seededStore returns a store holding one report per agent id.
func seededStore(agents ...string) *telemetry.Store {
	store := telemetry.NewStore()
	for _, id := range agents {
		store.Put(telemetry.Metrics{AgentID: id})
	}
	return store
}

func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON response, got Content-Type %q", ct)
	}
}

// assertJSONError checks for a {"error": message} body and nothing else.
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, message string) {
	t.Helper()
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if len(result) != 1 || result["error"] != message {
		t.Errorf("expected only error %q, got %v", message, result)
	}
}
