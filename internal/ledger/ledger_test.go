package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "renders.json"))
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	if len(l.All()) != 0 {
		t.Error("Expected empty ledger")
	}
}

func TestNew_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renders.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	if _, err := New(path); err == nil {
		t.Error("Expected error for corrupt ledger file")
	}
}

func TestRecord_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "renders.json")
	l, _ := New(path)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry{
		RenderID:   "r1",
		CalendarID: "cal-7",
		Status:     "completed",
		Files: []File{
			{Role: "header", Path: "out/cal-7/header.psd", Format: "psd", ColorSpace: "cmyk", DPI: 300, WidthPx: 3957, HeightPx: 2658},
		},
		StartedAt: start,
		Duration:  1500 * time.Millisecond,
	}
	if err := l.Record(entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("Failed to reopen ledger: %v", err)
	}
	got := reopened.Get("r1")
	if got == nil {
		t.Fatal("Expected entry after reopen")
	}
	if got.CalendarID != "cal-7" || len(got.Files) != 1 || got.Files[0].WidthPx != 3957 {
		t.Errorf("Entry not persisted correctly: %+v", got)
	}
	if !got.StartedAt.Equal(start) || got.Duration != entry.Duration {
		t.Errorf("Timing not persisted: %v %v", got.StartedAt, got.Duration)
	}
}

func TestRecord_RequiresID(t *testing.T) {
	l, _ := New(filepath.Join(t.TempDir(), "renders.json"))
	if err := l.Record(Entry{CalendarID: "x"}); err == nil {
		t.Error("Expected error for entry without render id")
	}
}

func TestForCalendar_OrderAndLatest(t *testing.T) {
	l, _ := New(filepath.Join(t.TempDir(), "renders.json"))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.Record(Entry{RenderID: "b", CalendarID: "cal", Status: "failed", Stage: "render", StartedAt: base.Add(time.Hour)})
	l.Record(Entry{RenderID: "a", CalendarID: "cal", Status: "completed", StartedAt: base})
	l.Record(Entry{RenderID: "c", CalendarID: "other", Status: "completed", StartedAt: base.Add(2 * time.Hour)})

	entries := l.ForCalendar("cal")
	if len(entries) != 2 || entries[0].RenderID != "a" || entries[1].RenderID != "b" {
		t.Fatalf("Unexpected order: %+v", entries)
	}
	if latest := l.Latest("cal"); latest == nil || latest.Status != "failed" {
		t.Errorf("Latest = %+v", latest)
	}
	if l.Latest("missing") != nil {
		t.Error("Expected nil for unknown calendar")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	l, _ := New(filepath.Join(t.TempDir(), "renders.json"))
	l.Record(Entry{RenderID: "r", Status: "completed"})

	e := l.Get("r")
	e.Status = "tampered"

	if l.Get("r").Status != "completed" {
		t.Error("Get should return a copy")
	}
}
