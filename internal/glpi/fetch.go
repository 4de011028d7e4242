package glpi

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

var (
	errMissingSessionCredentials = errors.New("glpi: session strategy requires app token plus user token or username/password")
	errNoSessionToken            = errors.New("glpi: initSession returned no session_token")
	errNoAccessToken             = errors.New("glpi: token endpoint returned no access_token")
)

// Fetcher retrieves the active tickets of one instance.
type Fetcher interface {
	FetchActiveTickets(ctx context.Context, cfg Config) ([]domain.Ticket, error)
}

// FetchActiveTickets selects a credential strategy and ingests tickets.
//
// The session-token strategy is attempted first when its fields are
// present; any failure on that path falls through to OAuth2 when
// configured. Exactly one strategy succeeds per instance per cycle, with
// no retry beyond the single fallback.
func (c *Client) FetchActiveTickets(ctx context.Context, cfg Config) ([]domain.Ticket, error) {
	sessionConfigured := cfg.HasSessionCredentials()
	oauthConfigured := cfg.HasOAuthCredentials()

	if !sessionConfigured && !oauthConfigured {
		return nil, apperrors.NewAuthenticationError(
			"no credential strategy configured for instance "+string(cfg.Instance), nil)
	}

	if sessionConfigured {
		tickets, err := c.fetchViaSession(ctx, cfg)
		if err == nil {
			return tickets, nil
		}
		if !oauthConfigured {
			return nil, err
		}
		c.logger.Warn("session-token strategy failed, falling back to oauth2",
			zap.String("instance", string(cfg.Instance)),
			zap.Error(err))
	}

	return c.fetchViaOAuth(ctx, cfg)
}

func (c *Client) fetchViaSession(ctx context.Context, cfg Config) ([]domain.Ticket, error) {
	sess, err := c.InitSession(ctx, cfg)
	if err != nil {
		return nil, apperrors.NewAuthenticationError(
			"initSession failed for instance "+string(cfg.Instance), err)
	}
	// Invalidation runs on every exit path, including failures.
	defer sess.Invalidate(ctx)

	return c.fetchSessionTickets(ctx, cfg, sess)
}

func (c *Client) fetchViaOAuth(ctx context.Context, cfg Config) ([]domain.Ticket, error) {
	token, err := c.OAuthToken(ctx, cfg)
	if err != nil {
		return nil, apperrors.NewAuthenticationError(
			"oauth2 token request failed for instance "+string(cfg.Instance), err)
	}
	return c.fetchOAuthTickets(ctx, cfg, token)
}
