package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	rtsup "cadence/internal/runtime/supervisor"
	"cadence/internal/storage"
	"cadence/internal/task/engine"
	"cadence/internal/task/scheduler"
	logx "cadence/pkg/logx"
)

type fakeScheduler struct{ snap scheduler.Snapshot }

func (f fakeScheduler) Snapshot() scheduler.Snapshot { return f.snap }

type fakeEngine struct{ snap engine.Snapshot }

func (f fakeEngine) Snapshot() engine.Snapshot { return f.snap }

type decoded struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
}

func do(t *testing.T, h http.Handler, path string, hdr map[string]string) (int, decoded) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var body decoded
	if w.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("GET %s: invalid JSON %q: %v", path, w.Body.String(), err)
		}
	}
	return w.Code, body
}

func testSources() Sources {
	return Sources{
		Scheduler: fakeScheduler{snap: scheduler.Snapshot{
			Running:      true,
			PollInterval: 100 * time.Millisecond,
			Schedules: []scheduler.ScheduleInfo{
				{Name: "backup", Kind: "periodic", Sequence: "every 6h", Fired: 3},
				{Name: "report", Kind: "regular", Sequence: "[0]:[9]:[]:[1,2,3,4,5]:[]"},
			},
		}},
		Engine: fakeEngine{snap: engine.Snapshot{Running: true, Workers: 4, Completed: 7}},
	}
}

func TestHealthzNeedsNoToken(t *testing.T) {
	s := New(Config{Token: "secret"}, testSources(), logx.Nop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestSchedulesEndpoints(t *testing.T) {
	h := New(Config{}, testSources(), logx.Nop()).Handler()

	code, body := do(t, h, "/schedules", nil)
	if code != http.StatusOK || body.Status != "ok" || body.RequestID == "" {
		t.Fatalf("schedules = %d %+v", code, body)
	}
	var snap scheduler.Snapshot
	if err := json.Unmarshal(body.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Schedules) != 2 || snap.PollInterval != 100*time.Millisecond {
		t.Fatalf("snapshot = %+v", snap)
	}

	code, body = do(t, h, "/schedules/backup", nil)
	var info scheduler.ScheduleInfo
	if code != http.StatusOK || json.Unmarshal(body.Data, &info) != nil || info.Fired != 3 {
		t.Fatalf("backup = %d %+v", code, body)
	}

	code, body = do(t, h, "/schedules/missing", nil)
	if code != http.StatusNotFound || body.Status != "error" {
		t.Fatalf("missing = %d %+v", code, body)
	}

	code, body = do(t, h, "/tasks", nil)
	var es engine.Snapshot
	if code != http.StatusOK || json.Unmarshal(body.Data, &es) != nil || es.Completed != 7 {
		t.Fatalf("tasks = %d %+v", code, body)
	}
}

func TestMissingSourcesAnswer404(t *testing.T) {
	h := New(Config{}, Sources{}, logx.Nop()).Handler()
	for _, p := range []string{"/schedules", "/tasks", "/journal", "/runtime"} {
		if code, _ := do(t, h, p, nil); code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", p, code)
		}
	}
}

func TestAuth(t *testing.T) {
	h := New(Config{Token: "secret"}, testSources(), logx.Nop()).Handler()
	tests := []struct {
		path string
		hdr  map[string]string
		want int
	}{
		{"/schedules", nil, http.StatusUnauthorized},
		{"/schedules", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"/schedules", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"/schedules?token=secret", nil, http.StatusOK},
		{"/schedules?token=nope", map[string]string{"Authorization": "Bearer secret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		if code, _ := do(t, h, tt.path, tt.hdr); code != tt.want {
			t.Errorf("%s %v = %d, want %d", tt.path, tt.hdr, code, tt.want)
		}
	}
}

func TestJournalEndpoint(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "a"} {
		if err := st.Append(ctx, storage.Entry{Type: "schedule.fired", Schedule: name}); err != nil {
			t.Fatal(err)
		}
	}

	src := testSources()
	src.Journal = st
	h := New(Config{}, src, logx.Nop()).Handler()

	code, body := do(t, h, "/journal?schedule=a", nil)
	var entries []storage.Entry
	if code != http.StatusOK || json.Unmarshal(body.Data, &entries) != nil || len(entries) != 2 {
		t.Fatalf("journal = %d %+v", code, body)
	}
	if code, _ := do(t, h, "/journal?limit=0", nil); code != http.StatusBadRequest {
		t.Fatalf("limit=0 = %d", code)
	}
}

func TestRuntimeAndPprof(t *testing.T) {
	sup := rtsup.New(context.Background())
	defer sup.Cancel()
	src := testSources()
	src.Runtime = sup

	withPprof := New(Config{Pprof: true}, src, logx.Nop()).Handler()
	if code, _ := do(t, withPprof, "/runtime", nil); code != http.StatusOK {
		t.Fatalf("runtime = %d", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	w := httptest.NewRecorder()
	withPprof.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("pprof cmdline = %d", w.Code)
	}

	without := New(Config{}, src, logx.Nop()).Handler()
	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	w = httptest.NewRecorder()
	without.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", w.Code)
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	s := New(Config{Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		s.Stop(context.Background())
		t.Fatal("expected refusal")
	}
}

func TestStartServesAndStops(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, testSources(), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var addr string
	deadline := time.Now().Add(3 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		addr = s.Addr()
	}
	if addr == "" {
		t.Fatal("server did not start")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if s.Addr() != "" {
		t.Fatal("listener still registered after Stop")
	}
}
