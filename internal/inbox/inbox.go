// Package inbox talks to the external task inbox service. The inbox
// feeds the mind sweep with already-captured tasks and receives
// completions back. It is strictly optional: every failure degrades to
// an empty inbox or a task left pending.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cadence/internal/logging"
)

// Item is one pending task in the inbox.
type Item struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Inbox lists pending tasks and marks them done.
type Inbox interface {
	ListItems(ctx context.Context) ([]Item, error)
	MarkDone(ctx context.Context, id string) error
}

// RESTInbox implements Inbox over a JSON HTTP API.
type RESTInbox struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewRESTInbox(baseURL, token string, timeout time.Duration) *RESTInbox {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RESTInbox{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListItems fetches the pending tasks. Callers treat an error as an
// empty inbox.
func (i *RESTInbox) ListItems(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", i.baseURL+"/api/v1/items?status=pending", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	i.authorize(req)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inbox request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inbox returned status %d: %s", resp.StatusCode, string(body))
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode inbox items: %w", err)
	}

	logging.Tracking("Inbox: fetched %d pending items", len(items))
	return items, nil
}

// MarkDone marks one task complete. On failure the task simply stays
// pending for the next session.
func (i *RESTInbox) MarkDone(ctx context.Context, id string) error {
	payload, _ := json.Marshal(map[string]string{"status": "done"})
	req, err := http.NewRequestWithContext(ctx, "PATCH", i.baseURL+"/api/v1/items/"+id, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	i.authorize(req)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inbox request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("inbox returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (i *RESTInbox) authorize(req *http.Request) {
	if i.token != "" {
		req.Header.Set("Authorization", "Bearer "+i.token)
	}
}

// Nop is the inbox used when the integration is disabled.
type Nop struct{}

func (Nop) ListItems(ctx context.Context) ([]Item, error) { return nil, nil }
func (Nop) MarkDone(ctx context.Context, id string) error { return nil }
