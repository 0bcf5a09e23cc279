// Package jellyfin implements the Jellyfin backend: it supplies the server
// connection context and the raw image-byte fetch used by the asset loader.
package jellyfin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rpeters1430/Jellyfin-New-sub000/internal/assets"
)

const defaultTimeout = 30 * time.Second

// Client talks to one Jellyfin server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a new Jellyfin API client
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// Context returns the current connection coordinates. After Disconnect the
// context is empty and resolution yields no candidates.
func (c *Client) Context() assets.ConnectionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return assets.ConnectionContext{}
	}
	return assets.ConnectionContext{
		BaseURL:     c.baseURL,
		AccessToken: c.token,
	}
}

// SetToken replaces the access token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Disconnect drops the access token; subsequent requests resolve to nothing
// and in-flight ones run out of candidates instead of hanging.
func (c *Client) Disconnect() {
	c.SetToken("")
}

// FetchImage performs a single authenticated GET for the given image URL and
// returns the raw payload. Transport failures surface as *assets.NetworkError
// and non-200 responses as *assets.HTTPStatusError; retrying is the caller's
// policy, not the client's.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	req.Header.Set("Accept", "image/*")
	req.Header.Set("X-Emby-Authorization", buildAuthHeader(token))

	c.logger.Debug("jellyfin image request", "url", imageURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &assets.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &assets.HTTPStatusError{Code: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &assets.NetworkError{Err: err}
	}

	return payload, nil
}

// buildAuthHeader constructs the X-Emby-Authorization header
func buildAuthHeader(token string) string {
	parts := []string{
		`MediaBrowser Client="JellyView"`,
		`Device="CLI"`,
		`DeviceId="jellyview-cli"`,
		`Version="1.0.0"`,
	}

	if token != "" {
		parts = append(parts, fmt.Sprintf(`Token="%s"`, token))
	}

	return strings.Join(parts, ", ")
}
