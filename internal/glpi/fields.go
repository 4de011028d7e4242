package glpi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

// FieldID is a GLPI search-option identifier. Field ids are assigned per
// installation, so every cycle resolves them from the live catalog instead
// of hardcoding numbers.
type FieldID int

// GLPI tables and field names the sync needs.
const (
	tableTickets    = "glpi_tickets"
	tableEntities   = "glpi_entities"
	tableCategories = "glpi_itilcategories"

	fieldID            = "id"
	fieldName          = "name"
	fieldContent       = "content"
	fieldStatus        = "status"
	fieldDate          = "date"
	fieldTakeAccount   = "takeintoaccountdate"
	fieldSolveDate     = "solvedate"
	fieldCloseDate     = "closedate"
	fieldTimeToOwn     = "internal_time_to_own"
	fieldTimeToResolve = "internal_time_to_resolve"
	fieldWaiting       = "waiting_duration"
	fieldCompleteName  = "completename"
)

type searchOption struct {
	Table string `json:"table"`
	Field string `json:"field"`
}

// FieldCatalog is the remote field-id mapping fetched from
// listSearchOptions/Ticket.
type FieldCatalog struct {
	options map[FieldID]searchOption
}

// Resolve returns the field id registered for (table, field).
func (fc *FieldCatalog) Resolve(table, field string) (FieldID, bool) {
	for id, opt := range fc.options {
		if opt.Table == table && opt.Field == field {
			return id, true
		}
	}
	return 0, false
}

// FetchFieldCatalog retrieves the ticket search options for the session's
// instance. Non-option entries (group labels, metadata) are skipped.
func (c *Client) FetchFieldCatalog(ctx context.Context, sess *SessionCredential) (*FieldCatalog, error) {
	var raw map[string]json.RawMessage
	url := sess.apiBase + "/listSearchOptions/Ticket"
	if err := c.doJSON(ctx, http.MethodGet, url, sess.headers(), nil, &raw); err != nil {
		return nil, err
	}

	catalog := &FieldCatalog{options: make(map[FieldID]searchOption, len(raw))}
	for key, value := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		var opt searchOption
		if err := json.Unmarshal(value, &opt); err != nil || opt.Table == "" || opt.Field == "" {
			continue
		}
		catalog.options[FieldID(id)] = opt
	}
	return catalog, nil
}

// ticketFields holds the resolved ids for every field the sync reads.
// Zero means the instance does not expose that field.
type ticketFields struct {
	id            FieldID
	name          FieldID
	content       FieldID
	status        FieldID
	dateOpening   FieldID
	dateTake      FieldID
	dateSolve     FieldID
	dateClose     FieldID
	timeToOwn     FieldID
	timeToResolve FieldID
	waiting       FieldID
	entityName    FieldID
	categoryName  FieldID
}

func (f *ticketFields) all() []FieldID {
	candidates := []FieldID{
		f.id, f.name, f.content, f.status,
		f.dateOpening, f.dateTake, f.dateSolve, f.dateClose,
		f.timeToOwn, f.timeToResolve, f.waiting,
		f.entityName, f.categoryName,
	}
	resolved := make([]FieldID, 0, len(candidates))
	for _, id := range candidates {
		if id != 0 {
			resolved = append(resolved, id)
		}
	}
	return resolved
}

// discoverTicketFields resolves every needed field against the catalog.
// Missing any of the four essential fields means the remote schema is
// incompatible and the instance's cycle must fail.
func discoverTicketFields(catalog *FieldCatalog) (*ticketFields, error) {
	resolve := func(table, field string) FieldID {
		id, _ := catalog.Resolve(table, field)
		return id
	}
	resolveEither := func(table, preferred, fallback string) FieldID {
		if id, ok := catalog.Resolve(table, preferred); ok {
			return id
		}
		return resolve(table, fallback)
	}

	fields := &ticketFields{
		id:            resolve(tableTickets, fieldID),
		name:          resolve(tableTickets, fieldName),
		content:       resolve(tableTickets, fieldContent),
		status:        resolve(tableTickets, fieldStatus),
		dateOpening:   resolve(tableTickets, fieldDate),
		dateTake:      resolve(tableTickets, fieldTakeAccount),
		dateSolve:     resolve(tableTickets, fieldSolveDate),
		dateClose:     resolve(tableTickets, fieldCloseDate),
		timeToOwn:     resolve(tableTickets, fieldTimeToOwn),
		timeToResolve: resolve(tableTickets, fieldTimeToResolve),
		waiting:       resolve(tableTickets, fieldWaiting),
		entityName:    resolveEither(tableEntities, fieldCompleteName, fieldName),
		categoryName:  resolveEither(tableCategories, fieldCompleteName, fieldName),
	}

	missing := map[string]any{}
	if fields.id == 0 {
		missing[fieldID] = tableTickets
	}
	if fields.name == 0 {
		missing[fieldName] = tableTickets
	}
	if fields.status == 0 {
		missing[fieldStatus] = tableTickets
	}
	if fields.dateOpening == 0 {
		missing[fieldDate] = tableTickets
	}
	if len(missing) > 0 {
		return nil, apperrors.NewSchemaDiscoveryError("essential ticket fields not found in search options", missing)
	}
	return fields, nil
}
