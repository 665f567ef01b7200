package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KEYLEDGER_STORAGE_DRIVER", "memory")
	t.Setenv("KEYLEDGER_ADMIN_EMAIL", "admin@keyledger.test")
	t.Setenv("KEYLEDGER_ADMIN_PASSWORD", "pw")
	t.Setenv("KEYLEDGER_LOG_FILE", "")
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{"email":"admin@keyledger.test","password":"pw"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out.Token
}

func authed(h http.Handler, token, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildServesAPIAndMetrics(t *testing.T) {
	setEnv(t)
	trace := filepath.Join(t.TempDir(), "trace.jsonl")
	var logs bytes.Buffer
	app, err := build(context.Background(), config{logLevel: "debug", metrics: "prometheus", traceFile: trace}, &logs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.close()

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	token := login(t, app.handler)
	if rec := authed(app.handler, token, http.MethodPost, "/api/categories", `{"name":"Games","color":"#FF0000"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create category: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `keyledger_service_operations_total{operation="add_category",status="success"} 1`) {
		t.Fatalf("expected operation counter in metrics, got:\n%s", body)
	}
	if !strings.Contains(logs.String(), "installed demo seed") {
		t.Fatalf("expected seed log line, got %s", logs.String())
	}
	raw, err := os.ReadFile(trace)
	if err != nil || !strings.Contains(string(raw), `"operation":"add_category"`) {
		t.Fatalf("expected trace line, got %q (%v)", raw, err)
	}
}

func TestBuildExpvarSink(t *testing.T) {
	setEnv(t)
	app, err := build(context.Background(), config{logLevel: "error", metrics: "expvar"}, io.Discard)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.close()
	token := login(t, app.handler)
	authed(app.handler, token, http.MethodPost, "/api/customers", `{"name":"Ada","email":"ada@example.com"}`)

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	if !strings.Contains(rec.Body.String(), `"add_customer"`) {
		t.Fatalf("expected expvar operations, got %s", rec.Body.String())
	}
}

func TestBuildErrors(t *testing.T) {
	setEnv(t)
	if _, err := build(context.Background(), config{logLevel: "info", metrics: "statsd"}, io.Discard); err == nil {
		t.Fatalf("expected unknown sink error")
	}
	if _, err := build(context.Background(), config{logLevel: "chatty", metrics: "prometheus"}, io.Discard); err == nil {
		t.Fatalf("expected log level error")
	}
	t.Setenv("KEYLEDGER_ADMIN_PASSWORD", "")
	if _, err := build(context.Background(), config{logLevel: "info", metrics: "prometheus"}, io.Discard); err == nil {
		t.Fatalf("expected missing credentials error")
	}
}

func TestCLIExitCodes(t *testing.T) {
	setEnv(t)
	var stderr bytes.Buffer
	if code := cli([]string{"-nope"}, io.Discard, &stderr); code != 2 {
		t.Fatalf("expected flag error code 2, got %d", code)
	}
	t.Setenv("KEYLEDGER_ADMIN_EMAIL", "")
	stderr.Reset()
	if code := cli([]string{"-addr", "127.0.0.1:0"}, io.Discard, &stderr); code != 1 {
		t.Fatalf("expected build failure code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "admin email and password are required") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	setEnv(t)
	app, err := build(context.Background(), config{logLevel: "error", metrics: "expvar"}, io.Discard)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}
