package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

// TriggerMiddleware guards the sync trigger with the shared secret.
// Accepted forms: the raw secret via X-Sync-Secret header or secret query
// parameter, or a bearer JWT signed with the same secret.
type TriggerMiddleware struct {
	secret string
	tokens *TokenManager
	logger *zap.Logger
}

// NewTriggerMiddleware constructs middleware. An empty secret leaves the
// trigger open; the caller decides whether that is acceptable.
func NewTriggerMiddleware(secret string, tokens *TokenManager, logger *zap.Logger) *TriggerMiddleware {
	return &TriggerMiddleware{secret: secret, tokens: tokens, logger: logger}
}

// Handle enforces trigger authentication.
func (m *TriggerMiddleware) Handle(c *fiber.Ctx) error {
	if m.secret == "" {
		m.logger.Warn("sync trigger invoked with no secret configured")
		return c.Next()
	}

	presented := c.Get("X-Sync-Secret")
	if presented == "" {
		presented = c.Query("secret")
	}
	if presented != "" {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(m.secret)) == 1 {
			return c.Next()
		}
		return apperrors.NewUnauthorized("invalid sync secret")
	}

	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing trigger credential")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}
	if _, err := m.tokens.ParseToken(parts[1]); err != nil {
		return apperrors.NewUnauthorized("invalid trigger token")
	}
	return c.Next()
}
