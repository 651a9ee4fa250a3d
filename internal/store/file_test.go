package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "aircheck/pkg/logx"
)

func newFileStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.json")
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s := newFileStore(t)
	ctx := context.Background()

	recs := []Record{
		{
			ID:              "1700000000000",
			Name:            "Morning Show",
			StreamURL:       "http://example.com/stream",
			Cron:            "0 9 * * 1",
			DurationMinutes: 30,
			CreatedAt:       time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
			Status:          "scheduled",
			LastRecording:   "Morning Show_2024-01-01_09-00.mp3",
		},
		{
			ID:              "1700000000001",
			Name:            "Night Owl",
			StreamURL:       "http://example.com/night",
			Cron:            "0 23 * * *",
			DurationMinutes: 120,
			CreatedAt:       time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
			Status:          "error",
			LastError:       "connection refused",
		},
	}
	if err := s.SaveJobs(ctx, recs); err != nil {
		t.Fatalf("SaveJobs error: %v", err)
	}

	got, err := s.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadJobs returned %d records, want 2", len(got))
	}
	if got[0].ID != "1700000000000" || got[1].ID != "1700000000001" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].LastRecording != "Morning Show_2024-01-01_09-00.mp3" {
		t.Fatalf("LastRecording = %q", got[0].LastRecording)
	}
	if got[1].LastError != "connection refused" {
		t.Fatalf("LastError = %q", got[1].LastError)
	}
}

func TestFileStoreSaveIsWholesale(t *testing.T) {
	t.Parallel()
	s := newFileStore(t)
	ctx := context.Background()

	if err := s.SaveJobs(ctx, []Record{{ID: "a", Name: "A", Status: "scheduled"}, {ID: "b", Name: "B", Status: "scheduled"}}); err != nil {
		t.Fatalf("SaveJobs error: %v", err)
	}
	if err := s.SaveJobs(ctx, []Record{{ID: "b", Name: "B", Status: "recording"}}); err != nil {
		t.Fatalf("SaveJobs error: %v", err)
	}

	got, err := s.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" || got[0].Status != "recording" {
		t.Fatalf("snapshot not wholesale: %+v", got)
	}
}

func TestFileStoreMissingSnapshot(t *testing.T) {
	t.Parallel()
	s := newFileStore(t)
	got, err := s.LoadJobs(context.Background())
	if err != nil {
		t.Fatalf("LoadJobs error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty schedule, got %d records", len(got))
	}
}

func TestFileStoreCorruptSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	got, err := s.LoadJobs(context.Background())
	if err != nil {
		t.Fatalf("LoadJobs must not fail on corrupt snapshot: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty schedule, got %d records", len(got))
	}
}
