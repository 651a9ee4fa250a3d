package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	logx "aircheck/pkg/logx"
)

func TestBitrateKbps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		quality string
		want    int
	}{
		{"low", 96},
		{"medium", 192},
		{"high", 320},
		{"HIGH", 320},
		{"", 192},
		{"ultra", 192},
	}
	for _, tt := range tests {
		if got := (Settings{Quality: tt.quality}).BitrateKbps(); got != tt.want {
			t.Errorf("BitrateKbps(%q) = %d, want %d", tt.quality, got, tt.want)
		}
	}
}

func TestExt(t *testing.T) {
	t.Parallel()
	if got := (Settings{Format: " AAC "}).Ext(); got != "aac" {
		t.Fatalf("Ext = %q", got)
	}
	if got := (Settings{}).Ext(); got != "mp3" {
		t.Fatalf("empty format Ext = %q, want mp3", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := Settings{Format: "mp3", Quality: "low", StoragePath: "/tmp/rec", Timezone: "UTC"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	bad := ok
	bad.Timezone = "Mars/Olympus_Mons"
	err := bad.Validate()
	var inv *InvalidError
	if !errors.As(err, &inv) || inv.Field != "timezone" {
		t.Fatalf("want timezone InvalidError, got %v", err)
	}

	bad = ok
	bad.StoragePath = "   "
	if err := bad.Validate(); err == nil {
		t.Fatal("empty storage path accepted")
	}
}

func TestInitWritesDefaultsOnce(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	st := NewStore(path, logx.Nop())

	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	if got := st.Current(); got != Defaults() {
		t.Fatalf("first-run settings = %+v, want defaults", got)
	}

	custom := Settings{Format: "aac", Quality: "high", StoragePath: "/srv/rec", Timezone: "UTC"}
	if err := st.Save(custom); err != nil {
		t.Fatal(err)
	}
	// A second Init must not clobber the saved record.
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	if got := st.Current(); got != custom {
		t.Fatalf("Init overwrote saved settings: %+v", got)
	}
}

func TestCurrentRereadsDisk(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	st := NewStore(path, logx.Nop())

	if err := st.Save(Settings{Format: "mp3", Quality: "low", StoragePath: "/a"}); err != nil {
		t.Fatal(err)
	}
	if got := st.Current().Quality; got != "low" {
		t.Fatalf("quality = %q", got)
	}

	// An out-of-band edit is picked up by the very next read.
	if err := os.WriteFile(path, []byte(`{"format":"ogg","quality":"high","storage_path":"/b"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got := st.Current()
	if got.Quality != "high" || got.Format != "ogg" {
		t.Fatalf("stale read: %+v", got)
	}
}

func TestCurrentToleratesMissingAndCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	st := NewStore(path, logx.Nop())

	if got := st.Current(); got != Defaults() {
		t.Fatalf("missing file: got %+v, want defaults", got)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := st.Current(); got != Defaults() {
		t.Fatalf("corrupt file: got %+v, want defaults", got)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	st := NewStore(path, logx.Nop())

	if err := st.Save(Settings{StoragePath: "/x", Timezone: "Nowhere/Nope"}); err == nil {
		t.Fatal("invalid timezone accepted")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("rejected save still touched the file")
	}
}
