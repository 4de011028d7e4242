package glpi

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
)

// SessionCredential is a short-lived session obtained from initSession.
// It is immutable; Invalidate releases it on the server, best effort.
type SessionCredential struct {
	token    string
	appToken string
	apiBase  string
	instance domain.Instance
	client   *Client
}

// headers returns the header set every session-scoped call must carry.
func (s *SessionCredential) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("App-Token", s.appToken)
	h.Set("Session-Token", s.token)
	return h
}

// Invalidate issues killSession. Failure is swallowed: an unreleased
// session expires on its own and must never mask the caller's outcome.
func (s *SessionCredential) Invalidate(ctx context.Context) {
	err := s.client.doJSON(ctx, http.MethodGet, s.apiBase+"/killSession", s.headers(), nil, nil)
	if err != nil {
		s.client.logger.Debug("killSession failed",
			zap.String("instance", string(s.instance)),
			zap.Error(err))
	}
}

type initSessionResponse struct {
	SessionToken    string `json:"session_token"`
	SessionTokenAlt string `json:"sessionToken"`
}

// InitSession exchanges the configured credentials for a session token.
// A user token takes precedence over username/password basic auth.
func (c *Client) InitSession(ctx context.Context, cfg Config) (*SessionCredential, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("App-Token", cfg.AppToken)

	switch {
	case cfg.UserToken != "":
		header.Set("Authorization", "user_token "+cfg.UserToken)
	case cfg.Username != "" && cfg.Password != "":
		basic := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		header.Set("Authorization", "Basic "+basic)
	default:
		return nil, errMissingSessionCredentials
	}

	var resp initSessionResponse
	url := strings.TrimSuffix(cfg.APIBaseURL, "/") + "/initSession"
	if err := c.doJSON(ctx, http.MethodGet, url, header, nil, &resp); err != nil {
		return nil, err
	}

	token := resp.SessionToken
	if token == "" {
		token = resp.SessionTokenAlt
	}
	if token == "" {
		return nil, errNoSessionToken
	}

	return &SessionCredential{
		token:    token,
		appToken: cfg.AppToken,
		apiBase:  strings.TrimSuffix(cfg.APIBaseURL, "/"),
		instance: cfg.Instance,
		client:   c,
	}, nil
}
