package glpi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

// fakeGlpi emulates the legacy REST API surface the client touches.
type fakeGlpi struct {
	mu sync.Mutex

	totalRows     int
	initCalls     int
	killCalls     int
	searchCalls   int
	userCalls     int
	failInit      bool
	failSearch    bool
	catalog       map[string]any
	relationships map[int64][]map[string]any
}

func newFakeGlpi(totalRows int) *fakeGlpi {
	return &fakeGlpi{
		totalRows: totalRows,
		catalog: map[string]any{
			"1":      map[string]string{"table": "glpi_tickets", "field": "name"},
			"2":      map[string]string{"table": "glpi_tickets", "field": "id"},
			"12":     map[string]string{"table": "glpi_tickets", "field": "status"},
			"15":     map[string]string{"table": "glpi_tickets", "field": "date"},
			"21":     map[string]string{"table": "glpi_tickets", "field": "content"},
			"24":     map[string]string{"table": "glpi_tickets", "field": "takeintoaccountdate"},
			"17":     map[string]string{"table": "glpi_tickets", "field": "solvedate"},
			"16":     map[string]string{"table": "glpi_tickets", "field": "closedate"},
			"180":    map[string]string{"table": "glpi_tickets", "field": "internal_time_to_own"},
			"181":    map[string]string{"table": "glpi_tickets", "field": "internal_time_to_resolve"},
			"45":     map[string]string{"table": "glpi_tickets", "field": "waiting_duration"},
			"80":     map[string]string{"table": "glpi_entities", "field": "completename"},
			"7":      map[string]string{"table": "glpi_itilcategories", "field": "completename"},
			"common": "Characteristics",
		},
		relationships: map[int64][]map[string]any{},
	}
}

func (f *fakeGlpi) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		path := r.URL.Path
		switch {
		case path == "/initSession":
			f.initCalls++
			if f.failInit {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.Header.Get("App-Token") == "" {
				t.Error("initSession missing App-Token header")
			}
			json.NewEncoder(w).Encode(map[string]string{"session_token": "sess-123"})

		case path == "/killSession":
			f.killCalls++
			w.WriteHeader(http.StatusOK)

		case path == "/listSearchOptions/Ticket":
			if r.Header.Get("Session-Token") != "sess-123" {
				t.Error("catalog request missing session token")
			}
			json.NewEncoder(w).Encode(f.catalog)

		case path == "/search/Ticket":
			f.searchCalls++
			if f.failSearch {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			start, end := parseRange(r.URL.Query().Get("range"))
			var rows []map[string]any
			for i := start; i <= end && i < f.totalRows; i++ {
				rows = append(rows, map[string]any{
					"2":  i + 1,
					"1":  fmt.Sprintf("ticket %d", i+1),
					"12": "2",
					"15": "2026-01-02 03:04:05",
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"data": rows})

		case strings.HasPrefix(path, "/Ticket/"):
			id, _ := strconv.ParseInt(strings.Split(strings.TrimPrefix(path, "/Ticket/"), "/")[0], 10, 64)
			json.NewEncoder(w).Encode(f.relationships[id])

		case strings.HasPrefix(path, "/User/"):
			f.userCalls++
			id := strings.TrimPrefix(path, "/User/")
			json.NewEncoder(w).Encode(map[string]string{"name": "tech-" + id})

		default:
			t.Errorf("unexpected request path %q", path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func parseRange(s string) (int, int) {
	parts := strings.SplitN(s, "-", 2)
	start, _ := strconv.Atoi(parts[0])
	end, _ := strconv.Atoi(parts[1])
	return start, end
}

func sessionConfig(apiBase string) Config {
	return Config{
		Instance:   domain.InstancePETA,
		BaseURL:    apiBase,
		APIBaseURL: apiBase,
		AppToken:   "app-token",
		UserToken:  "user-token",
	}
}

func TestSessionIngestionPaginationTermination(t *testing.T) {
	fake := newFakeGlpi(550)
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(5*time.Second, zap.NewNop())
	tickets, err := client.FetchActiveTickets(context.Background(), sessionConfig(srv.URL))
	if err != nil {
		t.Fatalf("FetchActiveTickets: %v", err)
	}
	if len(tickets) != 550 {
		t.Errorf("got %d tickets, want 550", len(tickets))
	}
	if fake.searchCalls != 3 {
		t.Errorf("got %d page requests, want exactly 3", fake.searchCalls)
	}
	if fake.killCalls != 1 {
		t.Errorf("killSession called %d times, want 1", fake.killCalls)
	}
}

func TestSessionIngestionRowCap(t *testing.T) {
	fake := newFakeGlpi(5000)
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(5*time.Second, zap.NewNop())
	tickets, err := client.FetchActiveTickets(context.Background(), sessionConfig(srv.URL))
	if err != nil {
		t.Fatalf("FetchActiveTickets: %v", err)
	}
	if len(tickets) != searchRowCap {
		t.Errorf("got %d tickets, want cap of %d", len(tickets), searchRowCap)
	}
	if fake.searchCalls != searchRowCap/searchPageSize {
		t.Errorf("got %d page requests, want %d", fake.searchCalls, searchRowCap/searchPageSize)
	}
}

func TestSessionIngestionMapsFields(t *testing.T) {
	fake := newFakeGlpi(1)
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(5*time.Second, zap.NewNop())
	tickets, err := client.FetchActiveTickets(context.Background(), sessionConfig(srv.URL))
	if err != nil {
		t.Fatalf("FetchActiveTickets: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("got %d tickets, want 1", len(tickets))
	}

	ticket := tickets[0]
	if ticket.GlpiID != 1 || ticket.Instance != domain.InstancePETA {
		t.Errorf("identity = (%d, %s), want (1, PETA)", ticket.GlpiID, ticket.Instance)
	}
	if ticket.Title == nil || *ticket.Title != "ticket 1" {
		t.Errorf("title = %v, want %q", ticket.Title, "ticket 1")
	}
	// Status arrives as a string from the fake, as GLPI sometimes does.
	if ticket.Status == nil || *ticket.Status != domain.StatusAssigned {
		t.Errorf("status = %v, want %d", ticket.Status, domain.StatusAssigned)
	}
	if ticket.DateOpening == nil {
		t.Error("date_opening should be parsed")
	}
}

func TestTechnicianEnrichmentUsesCycleCache(t *testing.T) {
	fake := newFakeGlpi(3)
	// All three tickets assigned to the same technician.
	for id := int64(1); id <= 3; id++ {
		fake.relationships[id] = []map[string]any{
			{"type": 1, "users_id": 99},
			{"type": 2, "users_id": 7},
		}
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(5*time.Second, zap.NewNop())
	tickets, err := client.FetchActiveTickets(context.Background(), sessionConfig(srv.URL))
	if err != nil {
		t.Fatalf("FetchActiveTickets: %v", err)
	}
	for _, ticket := range tickets {
		if ticket.Technician == nil || *ticket.Technician != "tech-7" {
			t.Errorf("ticket %d technician = %v, want tech-7", ticket.GlpiID, ticket.Technician)
		}
	}
	if fake.userCalls != 1 {
		t.Errorf("user lookups = %d, want 1 (cache shared across the cycle)", fake.userCalls)
	}
}

func TestTechnicianEnrichmentFailureIsNonFatal(t *testing.T) {
	fake := newFakeGlpi(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/Ticket/") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fake.handler(t).ServeHTTP(w, r)
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, zap.NewNop())
	tickets, err := client.FetchActiveTickets(context.Background(), sessionConfig(srv.URL))
	if err != nil {
		t.Fatalf("FetchActiveTickets: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("got %d tickets, want 1", len(tickets))
	}
	if tickets[0].Technician != nil {
		t.Errorf("technician = %v, want nil after enrichment failure", *tickets[0].Technician)
	}
}

func TestSchemaDiscoveryFailsOnMissingEssentialField(t *testing.T) {
	fake := newFakeGlpi(1)
	delete(fake.catalog, "12") // drop the status field
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(5*time.Second, zap.NewNop())
	_, err := client.FetchActiveTickets(context.Background(), sessionConfig(srv.URL))
	if err == nil {
		t.Fatal("expected schema discovery error")
	}
	if !apperrors.HasCode(err, "SCHEMA_DISCOVERY_FAILED") {
		t.Errorf("error code = %v, want SCHEMA_DISCOVERY_FAILED", err)
	}
	if fake.killCalls != 1 {
		t.Errorf("killSession called %d times, want 1 (invalidation on failure path)", fake.killCalls)
	}
}

func TestFieldCatalogResolve(t *testing.T) {
	catalog := &FieldCatalog{options: map[FieldID]searchOption{
		2:  {Table: "glpi_tickets", Field: "id"},
		80: {Table: "glpi_entities", Field: "completename"},
	}}

	if id, ok := catalog.Resolve("glpi_tickets", "id"); !ok || id != 2 {
		t.Errorf("Resolve(glpi_tickets, id) = (%d, %v), want (2, true)", id, ok)
	}
	if _, ok := catalog.Resolve("glpi_tickets", "nonexistent"); ok {
		t.Error("Resolve must report missing fields")
	}
}
