package mantis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"supportbot/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL:      server.URL + "/api/rest/",
		APIToken:     "mantis-token",
		ProjectID:    3,
		CategoryName: "Washing Machine Support",
	}, server.Client(), zap.NewNop())
}

func TestCreateSendsIssueAndParsesID(t *testing.T) {
	var got issue
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/rest/issues" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "mantis-token" {
			t.Errorf("unexpected Authorization header: %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"issue":{"id":12345,"status":{"name":"new"},"created_at":"2025-04-01T10:00:00+00:00"}}`))
	})

	ticket, err := client.Create(context.Background(), domain.TicketRequest{
		Category:   domain.CategoryElectrical,
		Severity:   domain.SeverityHigh,
		Summary:    "machine has electrical problems and won't turn on",
		ReporterID: "U42",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ticket.ID != "12345" || ticket.Status != domain.StatusOpen || ticket.Severity != domain.SeverityHigh {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
	if ticket.ReporterID != "U42" {
		t.Fatalf("reporter = %q, want U42", ticket.ReporterID)
	}
	if !ticket.CreatedAt.Equal(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("created_at = %v", ticket.CreatedAt)
	}

	if got.Summary != "Electrical issue: machine has electrical problems and won't turn on" {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if got.Severity == nil || got.Severity.Name != "major" {
		t.Fatalf("unexpected severity: %+v", got.Severity)
	}
	if got.Project == nil || got.Project.ID != 3 {
		t.Fatalf("unexpected project: %+v", got.Project)
	}
	if got.Category == nil || got.Category.Name != "Washing Machine Support" {
		t.Fatalf("unexpected category: %+v", got.Category)
	}
	if got.AdditionalInformation != "Chat User ID: U42" {
		t.Fatalf("unexpected additional_information: %q", got.AdditionalInformation)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "category:electrical" {
		t.Fatalf("unexpected tags: %+v", got.Tags)
	}
}

func TestCreateFailureWrapsSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"db down"}`))
	})
	_, err := client.Create(context.Background(), domain.TicketRequest{Category: domain.CategoryDoor, ReporterID: "U1"})
	if !errors.Is(err, domain.ErrTicketCreateFailed) {
		t.Fatalf("err = %v, want ErrTicketCreateFailed", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("error should mention status: %v", err)
	}
}

func TestCreateWithoutIDFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"issue":{}}`))
	})
	if _, err := client.Create(context.Background(), domain.TicketRequest{ReporterID: "U1"}); !errors.Is(err, domain.ErrTicketCreateFailed) {
		t.Fatalf("err = %v, want ErrTicketCreateFailed", err)
	}
}

func TestCreateTimeoutIsFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Create(ctx, domain.TicketRequest{ReporterID: "U1"}); !errors.Is(err, domain.ErrTicketCreateFailed) {
		t.Fatalf("err = %v, want ErrTicketCreateFailed", err)
	}
}

func TestFetch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/rest/issues/77":
			_, _ = w.Write([]byte(`{"issues":[{
				"id": 77,
				"summary": "Door issue: won't latch",
				"status": {"name": "assigned"},
				"severity": {"name": "trivial"},
				"additional_information": "Chat User ID: U9",
				"tags": [{"name": "category:door"}],
				"created_at": "2025-03-30T08:00:00Z"
			}]}`))
		case "/api/rest/issues/404":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	ticket, err := client.Fetch(context.Background(), "77")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := domain.RemoteTicket{
		ID:         "77",
		Status:     domain.StatusInProgress,
		Category:   domain.CategoryDoor,
		Severity:   domain.SeverityLow,
		Summary:    "Door issue: won't latch",
		ReporterID: "U9",
		CreatedAt:  time.Date(2025, 3, 30, 8, 0, 0, 0, time.UTC),
	}
	if ticket != want {
		t.Fatalf("Fetch = %+v, want %+v", ticket, want)
	}

	if _, err := client.Fetch(context.Background(), "404"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("404 err = %v, want ErrTicketNotFound", err)
	}
	if _, err := client.Fetch(context.Background(), "500"); !errors.Is(err, domain.ErrTrackerUnavailable) {
		t.Fatalf("502 err = %v, want ErrTrackerUnavailable", err)
	}
	if _, err := client.Fetch(context.Background(), "abc"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("non-numeric err = %v, want ErrTicketNotFound", err)
	}
}

func TestListByReporter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("project_id") != "3" {
			t.Errorf("unexpected project_id: %q", r.URL.Query().Get("project_id"))
		}
		_, _ = w.Write([]byte(`{"issues":[
			{"id": 1, "status": {"name": "new"}, "additional_information": "Chat User ID: U1"},
			{"id": 2, "status": {"name": "closed"}, "additional_information": "Chat User ID: U2"},
			{"id": 3, "status": {"name": "resolved"}, "additional_information": "note\nChat User ID: U1"}
		]}`))
	})

	got, err := client.ListByReporter(context.Background(), "U1")
	if err != nil {
		t.Fatalf("ListByReporter: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("unexpected tickets: %+v", got)
	}
	if got[1].Status != domain.StatusResolved {
		t.Fatalf("unexpected status: %q", got[1].Status)
	}
}

func TestSeverityMapping(t *testing.T) {
	for _, s := range []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh} {
		if got := severityFromName(severityName(s)); got != s {
			t.Fatalf("round trip %q -> %q", s, got)
		}
	}
	if severityFromName("crash") != domain.SeverityHigh {
		t.Fatal("crash should map to high")
	}
}

func TestBuildSummaryTruncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := buildSummary(domain.CategoryMechanical, long)
	if !strings.HasPrefix(got, "Mechanical issue: ") || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected summary: %q", got)
	}
	if len(got) != len("Mechanical issue: ")+80+3 {
		t.Fatalf("unexpected length %d", len(got))
	}
}
