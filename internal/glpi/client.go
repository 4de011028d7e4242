// Package glpi talks to the GLPI help-desk APIs: the legacy REST API
// (session tokens, field-catalog discovery, paginated search) and the
// high-level OAuth2 API.
package glpi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
)

// Config is the immutable per-instance configuration for one sync cycle.
type Config struct {
	Instance   domain.Instance
	BaseURL    string
	APIBaseURL string

	// Session-token strategy.
	AppToken  string
	UserToken string

	// OAuth2 strategy.
	OAuthClientID     string
	OAuthClientSecret string

	// Shared by both strategies.
	Username string
	Password string
}

// HasSessionCredentials reports whether the session-token strategy can be
// attempted for this instance.
func (c Config) HasSessionCredentials() bool {
	return c.AppToken != "" && (c.UserToken != "" || (c.Username != "" && c.Password != ""))
}

// HasOAuthCredentials reports whether the OAuth2 strategy can be attempted.
func (c Config) HasOAuthCredentials() bool {
	return c.OAuthClientID != "" && c.OAuthClientSecret != "" && c.Username != "" && c.Password != ""
}

// Client executes requests against GLPI instances.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a client with the given request timeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// doJSON performs a request and decodes the JSON response into out.
// Non-2xx responses yield an error carrying a truncated body excerpt.
func (c *Client) doJSON(ctx context.Context, method, url string, header http.Header, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("glpi: HTTP %d: %s", resp.StatusCode, truncate(data, 500))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("glpi: decode response: %w", err)
	}
	return nil
}

func truncate(data []byte, max int) string {
	s := string(data)
	if len(s) > max {
		return s[:max]
	}
	return s
}

// GLPI serializes values loosely: numbers arrive as numbers or strings
// depending on the endpoint and version. The helpers below normalize.

func asInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case json.Number:
		n, err := val.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// GLPI timestamp layouts seen in the wild.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func asTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stringPtrOf(v any) *string {
	if s, ok := asString(v); ok {
		return &s
	}
	return nil
}

func intPtrOf(v any) *int {
	if n, ok := asInt64(v); ok {
		i := int(n)
		return &i
	}
	return nil
}

func int64PtrOf(v any) *int64 {
	if n, ok := asInt64(v); ok {
		return &n
	}
	return nil
}

func timePtrOf(v any) *time.Time {
	if t, ok := asTime(v); ok {
		return &t
	}
	return nil
}
