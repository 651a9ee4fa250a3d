package trigger

import (
	"testing"
	"time"
)

func TestValidateAccepted(t *testing.T) {
	t.Parallel()
	exprs := []string{
		"0 9 * * 1",
		"*/5 * * * *",
		"30 6 1 * *",
		"0 0 9 * * 1", // six fields (seconds)
		"@hourly",
		"@every 30m",
	}
	for _, e := range exprs {
		if !Validate(e) {
			t.Errorf("Validate(%q) = false, want true", e)
		}
	}
}

func TestValidateRejected(t *testing.T) {
	t.Parallel()
	exprs := []string{
		"",
		"   ",
		"not-a-cron",
		"* * *",           // too few fields
		"* * * * * * *",   // too many fields
		"61 * * * *",      // minute out of range
		"* 25 * * *",      // hour out of range
		"0 9 * * MONDAYS", // bad day name
	}
	for _, e := range exprs {
		if Validate(e) {
			t.Errorf("Validate(%q) = true, want false", e)
		}
	}
}

func TestParseNextOccurrence(t *testing.T) {
	t.Parallel()
	sched, err := Parse("0 9 * * 1")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	// Wed 2024-01-03 12:00 UTC -> next Monday 09:00.
	from := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	next := sched.Next(from)
	want := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}
