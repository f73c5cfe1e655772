// Package timetrack reads external time-tracking records. The core only
// consumes finite, already-fetched entry lists; fetch failures always
// degrade to an empty list at the call site, never to a crashed session.
package timetrack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"cadence/internal/logging"
)

// TimeEntry is one tracked block of time on a project. Read-only to the
// core.
type TimeEntry struct {
	Project string    `json:"project_name"`
	Start   time.Time `json:"start_time"`
	End     time.Time `json:"end_time"`
}

// Duration returns the entry's length, zero for malformed ranges.
func (e TimeEntry) Duration() time.Duration {
	if e.End.Before(e.Start) {
		return 0
	}
	return e.End.Sub(e.Start)
}

// DateRange bounds a fetch.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Reader fetches time entries for a date range.
type Reader interface {
	Fetch(ctx context.Context, r DateRange) ([]TimeEntry, error)
}

// RESTReader fetches entries from a time-tracking service's REST API.
type RESTReader struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRESTReader creates a reader for the given endpoint.
func NewRESTReader(baseURL, apiKey string, timeout time.Duration) *RESTReader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTReader{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves entries overlapping the range, sorted by start time.
func (r *RESTReader) Fetch(ctx context.Context, dr DateRange) ([]TimeEntry, error) {
	if r.baseURL == "" {
		return nil, fmt.Errorf("time-tracking endpoint not configured")
	}

	url := fmt.Sprintf("%s/entries?from=%s&to=%s",
		r.baseURL, dr.From.UTC().Format(time.RFC3339), dr.To.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	logging.Tracking("Fetching time entries: %s .. %s", dr.From.Format(time.RFC3339), dr.To.Format(time.RFC3339))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		logging.TrackingWarn("Time-tracking fetch failed: %v", err)
		return nil, fmt.Errorf("time-tracking fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logging.TrackingWarn("Time-tracking fetch returned %d: %s", resp.StatusCode, body)
		return nil, fmt.Errorf("time-tracking fetch returned status %d", resp.StatusCode)
	}

	var entries []TimeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode time entries: %w", err)
	}

	sortEntries(entries)
	logging.Tracking("Fetched %d time entries", len(entries))
	return entries, nil
}

// FileReader loads entries from a local JSON export. Useful for tests and
// for users who export their tracker data manually.
type FileReader struct {
	Path string
}

// Fetch loads every entry from the file whose start falls in the range.
func (f *FileReader) Fetch(ctx context.Context, dr DateRange) ([]TimeEntry, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read time entries file: %w", err)
	}

	var all []TimeEntry
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse time entries file: %w", err)
	}

	var entries []TimeEntry
	for _, e := range all {
		if !dr.From.IsZero() && e.Start.Before(dr.From) {
			continue
		}
		if !dr.To.IsZero() && e.Start.After(dr.To) {
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []TimeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Start.Before(entries[j].Start)
	})
}
