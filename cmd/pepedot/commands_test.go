package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/njagatron/PEPE-DOT/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestCreateWorkOrder(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /workorders": `{"name":"RN-100","status":"created"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/workorders", map[string]string{"name": "RN-100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "created" {
		t.Errorf("status = %q, want created", result["status"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["name"] != "RN-100" {
		t.Errorf("body.name = %q, want RN-100", body["name"])
	}
}

func TestDeleteWorkOrder_SendsConfirmation(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /workorders/RN-100": `{"status":"deleted"}`,
	})

	client := ts.client()
	resp, err := client.delete(ctx, "/workorders/RN-100", map[string]string{"confirm": "RN-100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["confirm"] != "RN-100" {
		t.Errorf("body.confirm = %q, want RN-100", body["confirm"])
	}
}

func TestPointList_Filters(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /workorders/RN-100/points": `[{"index":0,"name":"T20250101","x":360,"y":200,"page":1,"document_name":"plan.pdf"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/workorders/RN-100/points?all_sessions=true&document=-1&page=0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var points []struct {
		Index int     `json:"index"`
		Name  string  `json:"name"`
		X     float64 `json:"x"`
	}
	if err := decodeJSON(resp, &points); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if points[0].Name != "T20250101" {
		t.Errorf("name = %q, want T20250101", points[0].Name)
	}

	if !strings.Contains(ts.requests[0].Path, "all_sessions=true") {
		t.Errorf("path = %q, want all_sessions filter", ts.requests[0].Path)
	}
}

func TestRnCreateCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"rn", "create"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestDocPageCommand_BadDirection(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"doc", "page", "RN-100", "sideways"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for bad direction")
	}
	if !strings.Contains(err.Error(), "next or prev") {
		t.Errorf("error = %q, want it to mention 'next or prev'", err.Error())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/workorders")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.Render.Scale = 2.0

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}

func TestPrintState_NoActiveDocument(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	view := stateView{Name: "RN-100", ActiveDocumentIndex: -1, PointCount: 2}
	// Must not panic with an empty collection.
	printState(view)
}
