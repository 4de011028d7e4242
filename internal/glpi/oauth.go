package glpi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// OAuthToken performs the password-grant exchange against the high-level
// API token endpoint. The token expires server-side; there is no explicit
// invalidation.
func (c *Client) OAuthToken(ctx context.Context, cfg Config) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", cfg.OAuthClientID)
	form.Set("client_secret", cfg.OAuthClientSecret)
	form.Set("username", cfg.Username)
	form.Set("password", cfg.Password)
	form.Set("scope", "api")

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp oauthTokenResponse
	tokenURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/api.php/token"
	if err := c.doJSON(ctx, http.MethodPost, tokenURL, header, strings.NewReader(form.Encode()), &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errNoAccessToken
	}
	return resp.AccessToken, nil
}

// listingResponse tolerates the shapes the high-level listing returns:
// a bare array, {"data": [...]}, or {"items": [...]}.
type listingResponse struct {
	rows []map[string]any
}

func (r *listingResponse) UnmarshalJSON(data []byte) error {
	var search searchResponse
	if err := search.UnmarshalJSON(data); err == nil && search.rows != nil {
		r.rows = search.rows
		return nil
	}
	var wrapped struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Items != nil {
		r.rows = wrapped.Items
	}
	return nil
}

// fetchOAuthTickets lists Assistance/Ticket once and filters client-side to
// the active status set. The high-level API needs no schema discovery.
func (c *Client) fetchOAuthTickets(ctx context.Context, cfg Config, accessToken string) ([]domain.Ticket, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+accessToken)

	var listing listingResponse
	listURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/api.php/Assistance/Ticket"
	if err := c.doJSON(ctx, http.MethodGet, listURL, header, nil, &listing); err != nil {
		return nil, apperrors.NewIngestionError("list assistance tickets", err)
	}

	var tickets []domain.Ticket
	for _, row := range listing.rows {
		status, ok := asInt64(row["status"])
		if !ok || !domain.IsActiveStatus(int(status)) {
			continue
		}
		glpiID, ok := asInt64(row["id"])
		if !ok {
			continue
		}

		statusInt := int(status)
		tickets = append(tickets, domain.Ticket{
			GlpiID:          glpiID,
			Instance:        cfg.Instance,
			Title:           stringPtrOf(row["name"]),
			Content:         stringPtrOf(row["content"]),
			Status:          &statusInt,
			Entity:          nestedName(row["entity"], "name"),
			Category:        nestedName(row["category"], "completename"),
			Technician:      firstTechName(row["team"]),
			DateOpening:     timePtrOf(row["date"]),
			DateTakeAccount: timePtrOf(row["takeintoaccountdate"]),
			DateSolve:       timePtrOf(row["solvedate"]),
			DateClose:       timePtrOf(row["closedate"]),
			TimeToOwn:       int64PtrOf(row["internal_time_to_own"]),
			TimeToResolve:   int64PtrOf(row["internal_time_to_resolve"]),
			WaitingDuration: int64PtrOf(row["waiting_duration"]),
		})
	}
	return tickets, nil
}

// nestedName accepts either a plain string or an object carrying the name
// under key (falling back to "name").
func nestedName(v any, key string) *string {
	if s, ok := asString(v); ok {
		return &s
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if s, ok := asString(obj[key]); ok {
		return &s
	}
	if s, ok := asString(obj["name"]); ok {
		return &s
	}
	return nil
}

// firstTechName extracts team.tech[0].name, the single best-effort
// technician field the high-level listing exposes.
func firstTechName(v any) *string {
	team, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	techs, ok := team["tech"].([]any)
	if !ok || len(techs) == 0 {
		return nil
	}
	first, ok := techs[0].(map[string]any)
	if !ok {
		return nil
	}
	if s, ok := asString(first["name"]); ok {
		return &s
	}
	return nil
}
