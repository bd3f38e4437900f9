package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"sceneflow/internal/config"
	"sceneflow/internal/services"
	"sceneflow/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRemote_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckRemote(context.Background(), srv.URL+"/login/")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRemote_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := CheckRemote(context.Background(), srv.URL)
	if result.Passed {
		t.Fatal("expected failure for 503")
	}
}

func TestCheckRemote_MissingURL(t *testing.T) {
	if result := CheckRemote(context.Background(), " "); result.Passed {
		t.Fatal("expected failure for blank url")
	}
}

func TestRunAllPassesForFreshConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg, Options{})
	if len(results) != 3 {
		t.Fatalf("expected directory checks only, got %+v", results)
	}
	if err := Err(results); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
}

func TestRunAllReportsMissingStepCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Steps = []config.WorkflowStep{{Description: "mask", Command: "clearly-not-present-binary"}}

	err := Err(RunAll(context.Background(), cfg, Options{}))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunAllSkipsRemoteWhenOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRemote("http://127.0.0.1:1"))
	for _, r := range RunAll(context.Background(), cfg, Options{Offline: true}) {
		if r.Name == "Download service" {
			t.Fatal("remote check should be skipped offline")
		}
	}
}
