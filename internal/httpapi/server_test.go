package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"aircheck/internal/config"
	"aircheck/internal/job"
	"aircheck/internal/scheduler"
	"aircheck/internal/settings"
	logx "aircheck/pkg/logx"
)

type apiFixture struct {
	reg   *job.Registry
	sched *scheduler.Service
	set   *settings.Store
	ts    *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	dir := t.TempDir()
	set := settings.NewStore(filepath.Join(dir, "settings.json"), logx.Nop())
	if err := set.Save(settings.Settings{
		Format: "mp3", Quality: "medium",
		StoragePath: filepath.Join(dir, "recordings"), Timezone: "UTC",
	}); err != nil {
		t.Fatal(err)
	}

	reg := job.NewRegistry(nil, nil, logx.Nop())
	sched := scheduler.New(reg, set, func(context.Context, string, string, string, int) {}, logx.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() { sched.Stop(context.Background()) })

	srv := NewServer(config.HTTPConfig{}, reg, sched, set, "test", logx.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &apiFixture{reg: reg, sched: sched, set: set, ts: ts}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, b
}

func TestCreateAndListJobs(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/jobs",
		`{"name":"Morning Show","stream_url":"http://example/stream","cron":"0 9 * * 1","duration_minutes":60}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, body)
	}
	var created struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		NextRun string `json:"next_run"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != "scheduled" {
		t.Fatalf("created = %+v", created)
	}
	if created.NextRun == "" {
		t.Fatal("created job has no next run")
	}
	if !f.sched.Installed(created.ID) {
		t.Fatal("create did not install the trigger")
	}

	resp, body = f.do(t, http.MethodGet, "/api/jobs", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("list has %d jobs, want 1", len(list))
	}
}

func TestCreateJobRejectsInvalidSpec(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"stream_url":"http://x","cron":"0 9 * * 1","duration_minutes":60}`},
		{"bad cron", `{"name":"A","stream_url":"http://x","cron":"nope","duration_minutes":60}`},
		{"zero duration", `{"name":"A","stream_url":"http://x","cron":"0 9 * * 1","duration_minutes":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/jobs", tt.body)
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, body %s", resp.StatusCode, body)
			}
		})
	}
	if got := len(f.reg.List()); got != 0 {
		t.Fatalf("rejected specs left %d jobs behind", got)
	}
}

func TestCreateJobRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/jobs",
		`{"name":"A","stream_url":"http://x","cron":"0 9 * * 1","duration_minutes":60,"bogus":true}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetAndDeleteJob(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	j, err := f.reg.Create(job.Spec{Name: "A", StreamURL: "http://x", Cron: "0 9 * * 1", DurationMinutes: 30})
	if err != nil {
		t.Fatal(err)
	}
	f.sched.Install(j)

	resp, _ := f.do(t, http.MethodGet, "/api/jobs/"+j.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/jobs/"+j.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if f.sched.Installed(j.ID) {
		t.Fatal("delete left the trigger installed")
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/jobs/"+j.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/jobs/"+j.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/settings", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var cur settings.Settings
	if err := json.Unmarshal(body, &cur); err != nil {
		t.Fatal(err)
	}
	if cur.Format != "mp3" {
		t.Fatalf("format = %q", cur.Format)
	}

	cur.Quality = "high"
	cur.Timezone = "UTC"
	b, _ := json.Marshal(cur)
	resp, _ = f.do(t, http.MethodPut, "/api/settings", string(b))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	if got := f.set.Current().Quality; got != "high" {
		t.Fatalf("quality not persisted: %q", got)
	}
}

func TestPutSettingsRejectsBadTimezone(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	before := f.set.Current()

	resp, _ := f.do(t, http.MethodPut, "/api/settings",
		`{"format":"mp3","quality":"low","storage_path":"/x","timezone":"Mars/Olympus_Mons"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if f.set.Current() != before {
		t.Fatal("rejected settings were persisted anyway")
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	if _, err := f.reg.Create(job.Spec{Name: "A", StreamURL: "http://x", Cron: "0 9 * * 1", DurationMinutes: 30}); err != nil {
		t.Fatal(err)
	}

	resp, body := f.do(t, http.MethodGet, "/api/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st struct {
		Version string `json:"version"`
		Jobs    struct {
			Total     int `json:"total"`
			Scheduled int `json:"scheduled"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Version != "test" {
		t.Fatalf("version = %q", st.Version)
	}
	if st.Jobs.Total != 1 || st.Jobs.Scheduled != 1 {
		t.Fatalf("job counts = %+v", st.Jobs)
	}
}
