package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// UserAgent identifies this client to imagery servers
const UserAgent = "timeglobe/1.0"

// maxPayloadBytes guards against a misconfigured locator streaming
// something enormous into memory (full-globe composites are a few MB).
const maxPayloadBytes = 64 * 1024 * 1024

// Client fetches image payloads from HTTP(S) URLs or local file paths.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a fetch client. The transport-level timeout is a
// backstop; per-fetch deadlines come from the caller's context.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves the byte payload at the locator. HTTP(S) locators go over
// the network; anything else is treated as a local file path.
func (c *Client) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return c.fetchHTTP(ctx, locator)
	}
	return fetchFile(locator)
}

func (c *Client) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request for %s failed with status: %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

func fetchFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
