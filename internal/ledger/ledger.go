// Package ledger keeps a persistent record of render attempts per calendar
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// File is one artifact written by a render
type File struct {
	Role       string  `json:"role"` // header, backing, combined or a proof
	Path       string  `json:"path"`
	Format     string  `json:"format"`
	ColorSpace string  `json:"color_space"`
	DPI        float64 `json:"dpi"`
	WidthPx    int     `json:"width_px"`
	HeightPx   int     `json:"height_px"`
	WidthMM    float64 `json:"width_mm"`
	HeightMM   float64 `json:"height_mm"`
	Fallback   bool    `json:"fallback,omitempty"`
}

// Entry is the stored outcome of one render
type Entry struct {
	RenderID   string        `json:"render_id"`
	CalendarID string        `json:"calendar_id"`
	Status     string        `json:"status"` // completed or failed
	Stage      string        `json:"stage,omitempty"`
	Error      string        `json:"error,omitempty"`
	Files      []File        `json:"files,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Ledger is a JSON file of entries keyed by render ID
type Ledger struct {
	filePath string
	data     map[string]*Entry
	mu       sync.RWMutex
}

// New opens the ledger at filePath. A missing file is created on the
// first Record.
func New(filePath string) (*Ledger, error) {
	l := &Ledger{
		filePath: filePath,
		data:     make(map[string]*Entry),
	}

	if err := l.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load ledger: %w", err)
		}
	}

	return l, nil
}

// Record stores e and persists the ledger
func (l *Ledger) Record(e Entry) error {
	if e.RenderID == "" {
		return fmt.Errorf("ledger entry without render id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.data[e.RenderID] = &e
	return l.save()
}

// Get returns a copy of the entry for renderID
func (l *Ledger) Get(renderID string) *Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if e, ok := l.data[renderID]; ok {
		entryCopy := *e
		return &entryCopy
	}
	return nil
}

// ForCalendar returns the entries of one calendar, oldest first
func (l *Ledger) ForCalendar(calendarID string) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Entry
	for _, e := range l.data {
		if e.CalendarID == calendarID {
			entryCopy := *e
			out = append(out, &entryCopy)
		}
	}
	sortByStart(out)
	return out
}

// Latest returns the newest entry of a calendar, or nil
func (l *Ledger) Latest(calendarID string) *Entry {
	entries := l.ForCalendar(calendarID)
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1]
}

// All returns every entry, oldest first
func (l *Ledger) All() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Entry, 0, len(l.data))
	for _, e := range l.data {
		entryCopy := *e
		out = append(out, &entryCopy)
	}
	sortByStart(out)
	return out
}

func sortByStart(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartedAt.Equal(entries[j].StartedAt) {
			return entries[i].RenderID < entries[j].RenderID
		}
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &l.data)
}

func (l *Ledger) save() error {
	data, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(l.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(l.filePath, data, 0644)
}
