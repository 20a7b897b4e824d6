package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/five82/flowwatch/internal/entity"
	"github.com/five82/flowwatch/internal/fileflows"
	"github.com/five82/flowwatch/internal/state"
)

type fakeSource struct {
	mu   sync.Mutex
	snap state.Snapshot
	subs []func(state.Snapshot)
}

func (f *fakeSource) Snapshot() state.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) Subscribe(fn func(state.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSource) publish(snap state.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	subs := append([]func(state.Snapshot){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

type fakeActions struct {
	mu        sync.Mutex
	calls     []string
	err       error
	refreshes int
}

func (f *fakeActions) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeActions) SetNodeEnabled(ctx context.Context, uid string, enabled bool) error {
	if enabled {
		return f.record("enable " + uid)
	}
	return f.record("disable " + uid)
}

func (f *fakeActions) Pause(ctx context.Context, minutes int) error {
	return f.record("pause")
}

func (f *fakeActions) Resume(ctx context.Context) error {
	return f.record("resume")
}

func (f *fakeActions) ForceRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func onlineSnapshot() state.Snapshot {
	var store state.Store
	store.Publish(state.Snapshot{
		Status:    fileflows.Status{Queue: 4, Processing: 1, Processed: 9},
		HasStatus: true,
	})
	return store.Snapshot()
}

func newTestServer(t *testing.T) (*Server, *fakeSource, *fakeActions) {
	t.Helper()
	src := &fakeSource{snap: onlineSnapshot()}
	actions := &fakeActions{}
	srv := New(Options{
		Source:   src,
		Registry: entity.NewRegistry(entity.Options{EntryID: "e1", Title: "Home", ConnectedTimespan: 5 * time.Minute}),
		Actions:  actions,
	})
	return srv, src, actions
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, src, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}

	src.snap = state.Snapshot{StatusError: "down"}
	rec = do(t, srv, http.MethodGet, "/health", "")
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Fatalf("health body = %s, want degraded", rec.Body.String())
	}
}

func TestSnapshot_RendersErrorsAsStrings(t *testing.T) {
	srv, src, _ := newTestServer(t)
	var store state.Store
	store.Publish(onlineSnapshot())
	store.Fail(errors.New("connection refused"))
	src.snap = store.Snapshot()

	rec := do(t, srv, http.MethodGet, "/api/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view snapshotView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if view.LastError != "connection refused" || view.LastUpdateSuccess {
		t.Fatalf("view = %+v, want failed update with error text", view)
	}
	if view.Status == nil || view.Status.Queue != 4 {
		t.Fatalf("stale status not kept: %+v", view.Status)
	}
	if view.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", view.ConsecutiveFailures)
	}
}

func TestSnapshot_IncludesSettingsAndHistory(t *testing.T) {
	srv, src, _ := newTestServer(t)
	var store state.Store
	store.Publish(state.Snapshot{
		HasStatus:   true,
		Settings:    fileflows.Capability[fileflows.Settings]{Value: fileflows.Settings{"logQueueMessages": true}, Available: true, Path: "/api/settings"},
		FileHistory: fileflows.Capability[[]fileflows.LibraryFile]{Value: []fileflows.LibraryFile{{Name: "a.mkv"}}, Available: true, Path: "/api/files"},
	})
	src.snap = store.Snapshot()

	rec := do(t, srv, http.MethodGet, "/api/snapshot", "")
	var view snapshotView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !view.Settings.Available || view.Settings.Value["logQueueMessages"] != true {
		t.Fatalf("settings = %+v", view.Settings)
	}
	if !view.FileHistory.Available || view.FileHistory.Path != "/api/files" || len(view.FileHistory.Value) != 1 {
		t.Fatalf("file history = %+v", view.FileHistory)
	}
}

func TestEntities(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/entities", "")
	var states []entity.State
	if err := json.Unmarshal(rec.Body.Bytes(), &states); err != nil {
		t.Fatalf("decode entities: %v", err)
	}
	queueID := srv.registry.ServerID("queue")
	if _, ok := entity.Find(states, queueID); !ok {
		t.Fatalf("queue sensor %s missing from %d states", queueID, len(states))
	}

	rec = do(t, srv, http.MethodGet, "/api/entities?kind=binary_sensor", "")
	states = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &states); err != nil {
		t.Fatalf("decode entities: %v", err)
	}
	for _, st := range states {
		if st.Kind != entity.KindBinarySensor {
			t.Fatalf("filtered list contains %s (%s)", st.UniqueID, st.Kind)
		}
	}

	rec = do(t, srv, http.MethodGet, "/api/entities/"+queueID, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"value":4`) {
		t.Fatalf("entity = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/entities/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing entity status = %d, want 404", rec.Code)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantCall string
	}{
		{name: "pause with minutes", method: http.MethodPost, path: "/api/pause", body: `{"minutes":30}`, wantCode: http.StatusOK, wantCall: "pause"},
		{name: "pause without body", method: http.MethodPost, path: "/api/pause", wantCode: http.StatusOK, wantCall: "pause"},
		{name: "pause negative", method: http.MethodPost, path: "/api/pause", body: `{"minutes":-1}`, wantCode: http.StatusBadRequest},
		{name: "resume", method: http.MethodPost, path: "/api/resume", wantCode: http.StatusOK, wantCall: "resume"},
		{name: "disable node", method: http.MethodPut, path: "/api/nodes/n1/enabled", body: `{"enabled":false}`, wantCode: http.StatusOK, wantCall: "disable n1"},
		{name: "node without flag", method: http.MethodPut, path: "/api/nodes/n1/enabled", body: `{}`, wantCode: http.StatusBadRequest},
		{name: "node bad json", method: http.MethodPut, path: "/api/nodes/n1/enabled", body: `{`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, actions := newTestServer(t)
			rec := do(t, srv, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCall == "" {
				if len(actions.calls) != 0 {
					t.Fatalf("calls = %v, want none", actions.calls)
				}
				return
			}
			if len(actions.calls) != 1 || actions.calls[0] != tt.wantCall {
				t.Fatalf("calls = %v, want [%s]", actions.calls, tt.wantCall)
			}
		})
	}
}

func TestCommands_APIErrorIsBadGateway(t *testing.T) {
	srv, _, actions := newTestServer(t)
	actions.err = &fileflows.APIError{Kind: fileflows.KindHTTP, Endpoint: "/api/system/pause", StatusCode: 500, Message: "returned status 500"}

	rec := do(t, srv, http.MethodPost, "/api/pause", `{"minutes":5}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http error") {
		t.Fatalf("body = %s, want error kind", rec.Body.String())
	}
}

func TestRefresh(t *testing.T) {
	srv, _, actions := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusAccepted || actions.refreshes != 1 {
		t.Fatalf("refresh = %d, refreshes = %d", rec.Code, actions.refreshes)
	}
}

func TestStream_PushesOnConnectAndOnPublish(t *testing.T) {
	srv, src, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	read := func() []entity.State {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var states []entity.State
		if err := conn.ReadJSON(&states); err != nil {
			t.Fatalf("read stream: %v", err)
		}
		return states
	}

	first := read()
	if st, ok := entity.Find(first, "e1_server_queue"); !ok || st.Value != float64(4) {
		t.Fatalf("initial queue = %#v", st)
	}

	deadline := time.Now().Add(5 * time.Second)
	for src.subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var store state.Store
	store.Publish(state.Snapshot{Status: fileflows.Status{Queue: 11}, HasStatus: true})
	src.publish(store.Snapshot())

	next := read()
	if st, ok := entity.Find(next, "e1_server_queue"); !ok || st.Value != float64(11) {
		t.Fatalf("pushed queue = %#v", st)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
