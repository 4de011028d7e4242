package glpi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

const (
	// searchPageSize is the row window requested per search page.
	searchPageSize = 200
	// searchRowCap bounds total rows fetched per cycle. A safety bound
	// against runaway instances, not a product limit.
	searchRowCap = 2000

	// Ticket_User link type for assigned technicians.
	linkTypeTechnician = 2
)

// searchResponse tolerates both shapes GLPI returns: {"data": [...]} and a
// bare array.
type searchResponse struct {
	rows []map[string]any
}

func (r *searchResponse) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Data != nil {
		r.rows = wrapped.Data
		return nil
	}
	var bare []map[string]any
	if err := json.Unmarshal(data, &bare); err == nil {
		r.rows = bare
		return nil
	}
	// An empty object means an empty page.
	r.rows = nil
	return nil
}

// fetchSessionTickets runs the schema-discovering filtered search and
// enriches the result with technician names.
func (c *Client) fetchSessionTickets(ctx context.Context, cfg Config, sess *SessionCredential) ([]domain.Ticket, error) {
	catalog, err := c.FetchFieldCatalog(ctx, sess)
	if err != nil {
		return nil, apperrors.NewIngestionError("fetch field catalog", err)
	}
	fields, err := discoverTicketFields(catalog)
	if err != nil {
		return nil, err
	}

	rows, err := c.searchActiveTickets(ctx, sess, fields)
	if err != nil {
		return nil, err
	}

	tickets := make([]domain.Ticket, 0, len(rows))
	for _, row := range rows {
		ticket, ok := mapSearchRow(row, fields, cfg.Instance)
		if !ok {
			continue
		}
		tickets = append(tickets, ticket)
	}

	c.enrichTechnicians(ctx, sess, tickets)
	return tickets, nil
}

// searchQuery builds the search parameters once; only the range varies
// across pages.
func searchQuery(fields *ticketFields) url.Values {
	params := url.Values{}
	for _, id := range fields.all() {
		params.Add("forcedisplay[]", strconv.Itoa(int(id)))
	}
	for i, status := range domain.ActiveStatuses {
		prefix := fmt.Sprintf("criteria[%d]", i)
		params.Set(prefix+"[field]", strconv.Itoa(int(fields.status)))
		params.Set(prefix+"[searchtype]", "equals")
		params.Set(prefix+"[value]", strconv.Itoa(status))
		if i > 0 {
			params.Set(prefix+"[link]", "OR")
		}
	}
	return params
}

// searchActiveTickets pages through search/Ticket until a short page or the
// row cap. A paging failure aborts the instance's cycle.
func (c *Client) searchActiveTickets(ctx context.Context, sess *SessionCredential, fields *ticketFields) ([]map[string]any, error) {
	params := searchQuery(fields)

	var all []map[string]any
	for start := 0; start < searchRowCap; start += searchPageSize {
		rangeParam := fmt.Sprintf("%d-%d", start, start+searchPageSize-1)
		url := sess.apiBase + "/search/Ticket?" + params.Encode() + "&range=" + rangeParam

		var page searchResponse
		if err := c.doJSON(ctx, http.MethodGet, url, sess.headers(), nil, &page); err != nil {
			return nil, apperrors.NewIngestionError("search tickets page "+rangeParam, err)
		}
		if len(page.rows) == 0 {
			break
		}
		all = append(all, page.rows...)
		if len(page.rows) < searchPageSize {
			break
		}
	}
	return all, nil
}

// mapSearchRow converts one field-id-keyed search row to a domain ticket.
func mapSearchRow(row map[string]any, fields *ticketFields, instance domain.Instance) (domain.Ticket, bool) {
	get := func(id FieldID) any {
		if id == 0 {
			return nil
		}
		return row[strconv.Itoa(int(id))]
	}

	glpiID, ok := asInt64(get(fields.id))
	if !ok {
		return domain.Ticket{}, false
	}

	return domain.Ticket{
		GlpiID:          glpiID,
		Instance:        instance,
		Title:           stringPtrOf(get(fields.name)),
		Content:         stringPtrOf(get(fields.content)),
		Status:          intPtrOf(get(fields.status)),
		Entity:          stringPtrOf(get(fields.entityName)),
		Category:        stringPtrOf(get(fields.categoryName)),
		DateOpening:     timePtrOf(get(fields.dateOpening)),
		DateTakeAccount: timePtrOf(get(fields.dateTake)),
		DateSolve:       timePtrOf(get(fields.dateSolve)),
		DateClose:       timePtrOf(get(fields.dateClose)),
		TimeToOwn:       int64PtrOf(get(fields.timeToOwn)),
		TimeToResolve:   int64PtrOf(get(fields.timeToResolve)),
		WaitingDuration: int64PtrOf(get(fields.waiting)),
	}, true
}

// userNameCache maps user id to display name for a single instance cycle.
// It is created per ingestion pass and discarded with it so stale names
// never leak across instances or cycles.
type userNameCache map[int64]string

// enrichTechnicians resolves each ticket's assigned technician name.
// Failures are absorbed per ticket; the ticket keeps a nil technician.
func (c *Client) enrichTechnicians(ctx context.Context, sess *SessionCredential, tickets []domain.Ticket) {
	cache := userNameCache{}

	for i := range tickets {
		name, err := c.lookupTechnician(ctx, sess, tickets[i].GlpiID, cache)
		if err != nil {
			c.logger.Debug("technician lookup failed",
				zap.String("instance", string(sess.instance)),
				zap.Int64("glpi_id", tickets[i].GlpiID),
				zap.Error(err))
			continue
		}
		if name != "" {
			tickets[i].Technician = &name
		}
	}
}

func (c *Client) lookupTechnician(ctx context.Context, sess *SessionCredential, glpiID int64, cache userNameCache) (string, error) {
	var rel searchResponse
	url := fmt.Sprintf("%s/Ticket/%d/Ticket_User", sess.apiBase, glpiID)
	if err := c.doJSON(ctx, http.MethodGet, url, sess.headers(), nil, &rel); err != nil {
		return "", err
	}

	var userID int64
	for _, link := range rel.rows {
		linkType, _ := asInt64(link["type"])
		if linkType != linkTypeTechnician {
			continue
		}
		if uid, ok := asInt64(link["users_id"]); ok {
			userID = uid
			break
		}
	}
	if userID == 0 {
		return "", nil
	}

	if name, ok := cache[userID]; ok {
		return name, nil
	}

	var user struct {
		Name     string `json:"name"`
		RealName string `json:"realname"`
	}
	userURL := fmt.Sprintf("%s/User/%d", sess.apiBase, userID)
	if err := c.doJSON(ctx, http.MethodGet, userURL, sess.headers(), nil, &user); err != nil {
		return "", err
	}

	name := user.Name
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = fmt.Sprintf("user_%d", userID)
	}
	cache[userID] = name
	return name, nil
}
