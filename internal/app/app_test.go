package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/five82/flowwatch/internal/config"
	"github.com/five82/flowwatch/internal/coordinator"
	"github.com/five82/flowwatch/internal/entity"
	"github.com/five82/flowwatch/internal/entry"
	"github.com/five82/flowwatch/internal/fileflows"
)

// fakeFileFlows answers /api/status, /api/nodes, /api/settings and
// /api/files; everything else is 404.
func fakeFileFlows(t *testing.T, statusCode int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if statusCode != http.StatusOK {
			http.Error(w, "boom", statusCode)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":2,"processing":1,"processed":10,"time":"00:42","processingFiles":[]}`))
	})
	mux.HandleFunc("/api/nodes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"uid":"n1","name":"Tower","enabled":true,"flowRunners":2}]`))
	})
	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"logQueueMessages":false}`))
	})
	mux.HandleFunc("/api/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[{"name":"done.mkv","flowName":"Transcode","nodeName":"Tower","status":1}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, url string) config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	cfg.URL = url
	dir := t.TempDir()
	cfg.EntryPath = filepath.Join(dir, "entry.toml")
	cfg.LogFile = filepath.Join(dir, "flowwatch.log")
	return cfg
}

func TestSetup_CreatesEntryAndRefreshes(t *testing.T) {
	srv := fakeFileFlows(t, http.StatusOK)
	cfg := testConfig(t, srv.URL)
	cfg.Name = "Basement"

	inst, err := Setup(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	if _, err := uuid.Parse(inst.Entry.ID); err != nil {
		t.Fatalf("entry ID %q is not a UUID", inst.Entry.ID)
	}
	if inst.Entry.Title != "Basement" || inst.Entry.Server != inst.Endpoint.UniqueID() {
		t.Fatalf("entry = %+v", inst.Entry)
	}
	if saved := entry.Load(cfg.EntryPath); saved.ID != inst.Entry.ID {
		t.Fatalf("saved entry ID = %q, want %q", saved.ID, inst.Entry.ID)
	}

	snap := inst.Coordinator.Snapshot()
	if !snap.Online() || snap.Status.Queue != 2 {
		t.Fatalf("snapshot = online %v queue %d, want online with queue 2", snap.Online(), snap.Status.Queue)
	}
	if !snap.Nodes.Available || len(snap.Nodes.Value) != 1 {
		t.Fatalf("nodes capability = %+v", snap.Nodes)
	}
	if snap.Flows.Available {
		t.Fatalf("flows should be unavailable on this server")
	}

	if !snap.Settings.Available || snap.FileHistory.Path != "/api/files" {
		t.Fatalf("settings=%+v history=%+v", snap.Settings, snap.FileHistory)
	}

	states := inst.Registry.Build(snap, snap.LastUpdated)
	recent, ok := entity.Find(states, inst.Registry.ServerID("recent_files"))
	if !ok || recent.Value != 1 || recent.Attributes["last_status"] != "Processed" {
		t.Fatalf("recent files = %+v", recent)
	}
	want := inst.Entry.ID + "_n1_enabled"
	found := false
	for _, st := range states {
		if st.UniqueID == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("node switch %q not built", want)
	}
}

func TestSetup_ReusesEntry(t *testing.T) {
	srv := fakeFileFlows(t, http.StatusOK)
	cfg := testConfig(t, srv.URL)

	first, err := Setup(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("first Setup returned error: %v", err)
	}
	second, err := Setup(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("second Setup returned error: %v", err)
	}
	if first.Entry.ID != second.Entry.ID {
		t.Fatalf("entry ID changed: %q -> %q", first.Entry.ID, second.Entry.ID)
	}
}

func TestSetup_UnparseableEntryFails(t *testing.T) {
	srv := fakeFileFlows(t, http.StatusOK)
	cfg := testConfig(t, srv.URL)
	body := "id = \"" + uuid.NewString() + "\"\ntitle = \"Home\n"
	writeFile(t, cfg.EntryPath, body)

	if _, err := Setup(context.Background(), cfg, nil); err == nil {
		t.Fatalf("Setup returned nil error for an unparseable entry")
	}
	if got := entry.Load(cfg.EntryPath); got.ID != "" {
		t.Fatalf("entry rewritten with ID %q", got.ID)
	}
}

func TestSetup_RejectsUnreachableServer(t *testing.T) {
	srv := fakeFileFlows(t, http.StatusInternalServerError)
	cfg := testConfig(t, srv.URL)

	_, err := Setup(context.Background(), cfg, nil)
	if !errors.Is(err, ErrCannotConnect) {
		t.Fatalf("Setup error = %v, want ErrCannotConnect", err)
	}
	var apiErr *fileflows.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Setup error = %v, want wrapped APIError with 500", err)
	}
	if entry.Load(cfg.EntryPath).ID != "" {
		t.Fatalf("entry created for a rejected setup")
	}
}

func TestSetup_StrictPolicyFailsOnMissingEndpoint(t *testing.T) {
	srv := fakeFileFlows(t, http.StatusOK)
	cfg := testConfig(t, srv.URL)
	cfg.FailurePolicy = "strict"

	_, err := Setup(context.Background(), cfg, nil)
	var failed *coordinator.UpdateFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Setup error = %v, want UpdateFailedError", err)
	}

	cfg.OptionalEndpoints = []string{"nodes"}
	if _, err := Setup(context.Background(), cfg, nil); err != nil {
		t.Fatalf("Setup with only nodes enabled returned error: %v", err)
	}
}

func TestSetup_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.FailurePolicy = "sometimes"
	if _, err := Setup(context.Background(), cfg, nil); err == nil {
		t.Fatalf("Setup returned nil error for an invalid policy")
	}
}

func sampleReport() ProbeReport {
	return ProbeReport{
		Server: "http://nas:8585",
		Endpoints: []fileflows.ProbeResult{
			{Path: "/api/status", OK: true},
			{Path: "/api/worker", OK: false, Kind: "not found", Message: "api /api/worker: not found"},
		},
	}
}

func TestWriteProbeReport(t *testing.T) {
	report := sampleReport()

	var text bytes.Buffer
	if err := WriteProbeReport(&text, report, "text"); err != nil {
		t.Fatalf("text: %v", err)
	}
	if !strings.Contains(text.String(), "1/2") || !strings.Contains(text.String(), "not found") {
		t.Fatalf("text output:\n%s", text.String())
	}

	var js bytes.Buffer
	if err := WriteProbeReport(&js, report, "JSON"); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded ProbeReport
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(decoded.Endpoints) != 2 || decoded.Endpoints[1].OK {
		t.Fatalf("json endpoints = %+v", decoded.Endpoints)
	}

	var ym bytes.Buffer
	if err := WriteProbeReport(&ym, report, "yaml"); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(ym.Bytes(), &doc); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if doc["server"] != "http://nas:8585" {
		t.Fatalf("yaml server = %v", doc["server"])
	}

	if err := WriteProbeReport(&bytes.Buffer{}, report, "xml"); err == nil {
		t.Fatalf("unknown format returned nil error")
	}
}

func TestRunProbe_ChecksKnownEndpoints(t *testing.T) {
	srv := fakeFileFlows(t, http.StatusOK)
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "config.toml")
	writeFile(t, path, "url = \""+srv.URL+"\"\n")

	var out bytes.Buffer
	if err := RunProbe(context.Background(), Options{ConfigPath: path}, "json", &out); err != nil {
		t.Fatalf("RunProbe returned error: %v", err)
	}
	var report ProbeReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Endpoints) != len(fileflows.KnownEndpoints) {
		t.Fatalf("endpoints = %d, want %d", len(report.Endpoints), len(fileflows.KnownEndpoints))
	}
	if report.Available() != 2 {
		t.Fatalf("available = %d, want 2 (status and nodes)", report.Available())
	}
}
