package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aircheck/internal/job"
	"aircheck/internal/settings"
	"aircheck/internal/store"
	logx "aircheck/pkg/logx"
)

type captureRecorder struct {
	mu    sync.Mutex
	calls []string
	fired chan string
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{fired: make(chan string, 16)}
}

func (c *captureRecorder) fn(_ context.Context, id, _, _ string, _ int) {
	c.mu.Lock()
	c.calls = append(c.calls, id)
	c.mu.Unlock()
	select {
	case c.fired <- id:
	default:
	}
}

func (c *captureRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newTestService(t *testing.T) (*Service, *job.Registry, *captureRecorder) {
	t.Helper()
	set := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), logx.Nop())
	reg := job.NewRegistry(nil, nil, logx.Nop())
	rec := newCaptureRecorder()
	return New(reg, set, rec.fn, logx.Nop()), reg, rec
}

func TestInstallAndFire(t *testing.T) {
	t.Parallel()
	svc, reg, rec := newTestService(t)

	j, err := reg.Create(job.Spec{
		Name: "Ticker", StreamURL: "http://example/stream",
		Cron: "@every 25ms", DurationMinutes: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	svc.Start(context.Background())
	defer svc.Stop(context.Background())
	svc.Install(j)

	select {
	case id := <-rec.fired:
		if id != j.ID {
			t.Fatalf("fired for %q, want %q", id, j.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never fired")
	}
}

func TestInstallBeforeStart(t *testing.T) {
	t.Parallel()
	svc, reg, rec := newTestService(t)

	j, err := reg.Create(job.Spec{
		Name: "Early", StreamURL: "http://example/stream",
		Cron: "@every 25ms", DurationMinutes: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Registration order must not matter: bindings installed before Start
	// go live when the runtime comes up.
	svc.Install(j)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("pre-start binding never fired")
	}
}

func TestInvalidExpressionIsInert(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	svc.Install(job.Job{ID: "bad", Name: "Broken", Cron: "not a cron"})

	if svc.Installed("bad") {
		t.Fatal("invalid expression must not produce a binding")
	}
}

func TestUninstallStopsFiring(t *testing.T) {
	t.Parallel()
	svc, reg, rec := newTestService(t)

	j, err := reg.Create(job.Spec{
		Name: "ShortLived", StreamURL: "http://example/stream",
		Cron: "@every 20ms", DurationMinutes: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	svc.Start(context.Background())
	defer svc.Stop(context.Background())
	svc.Install(j)

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never fired")
	}

	svc.Uninstall(j.ID)
	if svc.Installed(j.ID) {
		t.Fatal("binding survived uninstall")
	}
	// Let in-flight firings drain, then verify the count stays put.
	time.Sleep(60 * time.Millisecond)
	n := rec.count()
	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != n {
		t.Fatalf("fired %d more times after uninstall", got-n)
	}
}

func TestUninstallUnknownIsNoop(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	svc.Uninstall("nope")
}

func TestBootstrapRestoresAndInstalls(t *testing.T) {
	t.Parallel()
	svc, reg, _ := newTestService(t)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	recs := []store.Record{
		{
			ID: "1704700000000", Name: "Morning Show", StreamURL: "http://example/a",
			Cron: "0 9 * * 1", DurationMinutes: 60,
			Status: "recording", CurrentRecording: "Morning Show_2024-01-08_09-00.mp3",
			LastRecording: "Morning Show_2024-01-01_09-00.mp3",
		},
		{
			ID: "1704700000001", Name: "Broken", StreamURL: "http://example/b",
			Cron: "this is garbage", DurationMinutes: 30,
			Status: "error", LastError: "exit status 1",
		},
	}
	svc.Bootstrap(recs)

	j, ok := reg.Get("1704700000000")
	if !ok {
		t.Fatal("restored job missing from registry")
	}
	if j.Status != job.StatusScheduled {
		t.Fatalf("status = %s, want scheduled after restart", j.Status)
	}
	if j.CurrentRecording != "" {
		t.Fatal("stale pending artifact survived restart")
	}
	if j.LastRecording != "Morning Show_2024-01-01_09-00.mp3" {
		t.Fatalf("last recording lost: %q", j.LastRecording)
	}
	if !svc.Installed(j.ID) {
		t.Fatal("valid restored job not installed")
	}

	// The corrupt expression stays visible but inert and must not have
	// blocked the valid one.
	b, ok := reg.Get("1704700000001")
	if !ok {
		t.Fatal("job with corrupt expression dropped during restore")
	}
	if b.Status != job.StatusScheduled {
		t.Fatalf("status = %s, want scheduled", b.Status)
	}
	if svc.Installed(b.ID) {
		t.Fatal("corrupt expression must not produce a binding")
	}
}

func TestNextRun(t *testing.T) {
	t.Parallel()
	svc, reg, _ := newTestService(t)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	j, err := reg.Create(job.Spec{
		Name: "Weekly", StreamURL: "http://example/stream",
		Cron: "0 9 * * 1", DurationMinutes: 60,
	})
	if err != nil {
		t.Fatal(err)
	}
	svc.Install(j)

	next, ok := svc.NextRun(j.ID)
	if !ok {
		t.Fatal("no next run for installed job")
	}
	if next.Weekday() != time.Monday || next.Hour() != 9 {
		t.Fatalf("next run = %v, want a Monday 09:00", next)
	}
	if _, ok := svc.NextRun("ghost"); ok {
		t.Fatal("next run reported for unknown job")
	}
}

func TestReloadLocationSameZoneIsNoop(t *testing.T) {
	t.Parallel()
	svc, reg, rec := newTestService(t)

	j, err := reg.Create(job.Spec{
		Name: "Steady", StreamURL: "http://example/stream",
		Cron: "@every 25ms", DurationMinutes: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	svc.Start(context.Background())
	defer svc.Stop(context.Background())
	svc.Install(j)

	svc.ReloadLocation()

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("binding lost across a no-op reload")
	}
}

func TestStopPreventsFurtherCaptures(t *testing.T) {
	t.Parallel()
	svc, reg, rec := newTestService(t)

	j, err := reg.Create(job.Spec{
		Name: "Stopping", StreamURL: "http://example/stream",
		Cron: "@every 20ms", DurationMinutes: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	svc.Start(context.Background())
	svc.Install(j)
	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never fired")
	}

	svc.Stop(context.Background())
	time.Sleep(60 * time.Millisecond)
	n := rec.count()
	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != n {
		t.Fatalf("captured %d more times after stop", got-n)
	}
}
