package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/avesia/backend/internal/nodes"
)

// Client talks to the vision inference service that runs the actual model.
// The service is a separate process; it may be down during deploys, so
// callers treat failures as degraded rather than fatal.
type Client struct {
	baseURL string
	http    *http.Client

	// pushAttempts and pushDelay shape the bounded retry on PushNodes.
	pushAttempts int
	pushDelay    time.Duration
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: 10 * time.Second},
		pushAttempts: 2,
		pushDelay:    time.Second,
	}
}

// PushNodes sends the compiled prompt and output schema derived from the
// current listener set. Two attempts with a short pause covers the common
// case of the service still booting; beyond that the watcher will push
// again on the next config change.
func (c *Client) PushNodes(ctx context.Context, listeners []*nodes.ListenerConfig) error {
	payload := map[string]any{
		"prompt": nodes.CombinedPrompt(listeners),
		"schema": nodes.OutputSchema(listeners),
	}

	var lastErr error
	for attempt := 1; attempt <= c.pushAttempts; attempt++ {
		lastErr = c.postJSON(ctx, "/nodes", payload)
		if lastErr == nil {
			return nil
		}
		log.Printf("[WARN] vision: push nodes attempt %d/%d failed: %v", attempt, c.pushAttempts, lastErr)
		if attempt < c.pushAttempts {
			select {
			case <-time.After(c.pushDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("push nodes: %w", lastErr)
}

// UpdatePrompt overrides the model prompt directly, bypassing listener
// compilation. Used by the manual prompt endpoint.
func (c *Client) UpdatePrompt(ctx context.Context, prompt string) error {
	return c.postJSON(ctx, "/prompt", map[string]any{"prompt": prompt})
}

// Control starts or stops inference. action is "start" or "stop".
func (c *Client) Control(ctx context.Context, action string) error {
	if action != "start" && action != "stop" {
		return fmt.Errorf("unknown control action %q", action)
	}
	return c.postJSON(ctx, "/control", map[string]any{"action": action})
}

// Health reports whether the vision service is reachable and ready.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vision unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return nil
}
