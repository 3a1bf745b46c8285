package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/caffeineduck/codearena/executor"
	"github.com/caffeineduck/codearena/internal/question"
	"github.com/caffeineduck/codearena/internal/server"
	"github.com/caffeineduck/codearena/judge"
	"github.com/caffeineduck/codearena/store"
)

const doubleQuestion = `
number = 1
title = "Double it"
template = "n = int(input())\n"

[[samples]]
input = "2"
output = "4"

[[samples]]
input = "21"
output = "42"
`

// setupTestServer serves a question directory with the real interpreter.
// It skips unless the interpreter resources are available locally.
func setupTestServer(t *testing.T) http.Handler {
	t.Helper()

	exec, err := executor.GetTestExecutor()
	if errors.Is(err, executor.ErrNoTestInterpreter) {
		t.Skip(err)
	}
	if err != nil {
		t.Fatalf("failed to load interpreter: %v", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1.toml"), []byte(doubleQuestion), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := server.New(server.Config{
		Runtime:   exec,
		Questions: question.Dir(dir),
		Store:     store.NewMemory(),
	})
	t.Cleanup(func() { srv.Close(t.Context()) })
	return srv.Handler()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServerRunsPython(t *testing.T) {
	h := setupTestServer(t)

	w := post(t, h, "/run", `{"code":"print(int(input()) * 3)","input":"5"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Output  string `json:"output"`
		IsError bool   `json:"is_error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Output != "15" || resp.IsError {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestServerReportsErrors(t *testing.T) {
	h := setupTestServer(t)

	w := post(t, h, "/run", `{"code":"x = 1\nprint(y)"}`)
	var resp struct {
		Output  string `json:"output"`
		IsError bool   `json:"is_error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.IsError {
		t.Fatalf("expected an error, got %+v", resp)
	}
	if want := "Error: NameError: name 'y' is not defined on line 2"; resp.Output != want {
		t.Errorf("output = %q, want %q", resp.Output, want)
	}
}

func TestServerJudgesSamples(t *testing.T) {
	h := setupTestServer(t)

	w := post(t, h, "/questions/1/run", `{"code":"n = int(input())\nprint(n * 2)"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var rep judge.Report
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rep.Passed != 2 || rep.Total != 2 {
		t.Errorf("expected 2/2, got %d/%d: %+v", rep.Passed, rep.Total, rep.Cases)
	}
}
