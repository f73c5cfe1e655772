package timetrack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTimeEntryDuration(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	e := TimeEntry{Project: "x", Start: start, End: start.Add(25 * time.Minute)}
	if got := e.Duration(); got != 25*time.Minute {
		t.Errorf("duration = %v", got)
	}

	// End before start is malformed, not negative.
	bad := TimeEntry{Project: "x", Start: start, End: start.Add(-time.Hour)}
	if got := bad.Duration(); got != 0 {
		t.Errorf("malformed duration = %v, want 0", got)
	}
}

func TestRESTReaderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth = %q", got)
		}
		if r.URL.Query().Get("from") == "" || r.URL.Query().Get("to") == "" {
			t.Error("missing date range params")
		}
		// Out of order on purpose; Fetch must sort.
		w.Write([]byte(`[
			{"project_name":"beta","start_time":"2025-06-01T10:00:00Z","end_time":"2025-06-01T10:30:00Z"},
			{"project_name":"alpha","start_time":"2025-06-01T09:00:00Z","end_time":"2025-06-01T09:45:00Z"}
		]`))
	}))
	defer srv.Close()

	r := NewRESTReader(srv.URL, "key", time.Second)
	entries, err := r.Fetch(context.Background(), DateRange{
		From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Project != "alpha" || entries[1].Project != "beta" {
		t.Errorf("not sorted by start: %+v", entries)
	}
}

func TestRESTReaderFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewRESTReader(srv.URL, "", time.Second).Fetch(context.Background(), DateRange{}); err == nil {
		t.Error("expected error on 502")
	}

	if _, err := NewRESTReader("", "", time.Second).Fetch(context.Background(), DateRange{}); err == nil {
		t.Error("expected error for unconfigured endpoint")
	}
}

func TestFileReaderFiltersAndSorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	data := `[
		{"project_name":"late","start_time":"2025-06-03T09:00:00Z","end_time":"2025-06-03T10:00:00Z"},
		{"project_name":"inside","start_time":"2025-06-01T14:00:00Z","end_time":"2025-06-01T15:00:00Z"},
		{"project_name":"early","start_time":"2025-05-20T09:00:00Z","end_time":"2025-05-20T10:00:00Z"}
	]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	f := &FileReader{Path: path}
	entries, err := f.Fetch(context.Background(), DateRange{
		From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 1 || entries[0].Project != "inside" {
		t.Errorf("entries = %+v, want only the in-range entry", entries)
	}

	// Zero range means everything, sorted.
	all, err := f.Fetch(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("Fetch all: %v", err)
	}
	if len(all) != 3 || all[0].Project != "early" {
		t.Errorf("all = %+v, want 3 sorted entries", all)
	}
}

func TestFileReaderMissingFile(t *testing.T) {
	f := &FileReader{Path: filepath.Join(t.TempDir(), "nope.json")}
	if _, err := f.Fetch(context.Background(), DateRange{}); err == nil {
		t.Error("expected error for missing export file")
	}
}
