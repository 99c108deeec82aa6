package monday

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/outreach-matcher/internal/catalog"
	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/outreach"
)

type fakeBoard struct {
	mu      sync.Mutex
	created []map[string]any
	token   string
	scans   int
}

const firstPage = `{"data":{"boards":[{"items_page":{"cursor":"abc","items":[
  {"id":"1","name":"Autism Parent Trial","column_values":[
    {"id":"link_mkrtn4m6","text":"https://clinicaltrials.gov/study/NCT00000001","value":"{\"url\":\"https://clinicaltrials.gov/study/NCT00000001\"}"},
    {"id":"email_mkrt39hj","text":"first@example.org","value":"{\"email\":\"First@Example.org\",\"text\":\"First@Example.org\"}"}
  ]}
]}}]}}`

const secondPage = `{"data":{"next_items_page":{"cursor":"","items":[
  {"id":"2","name":"Follow-up NCT00000002","column_values":[
    {"id":"link_mkrtn4m6","text":"","value":null},
    {"id":"email_mkrt39hj","text":"","value":"\"second@example.org\""}
  ]}
]}}}`

func (b *fakeBoard) scanCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scans
}

func (b *fakeBoard) snapshot() (string, []map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token, append([]map[string]any(nil), b.created...)
}

func (b *fakeBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.token = r.Header.Get("Authorization")

	body, _ := io.ReadAll(r.Body)
	var req graphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch {
	case strings.Contains(req.Query, "create_item"):
		var values map[string]any
		_ = json.Unmarshal([]byte(req.Variables["column_values"].(string)), &values)
		values["item_name"] = req.Variables["item_name"]
		values["board_id"] = req.Variables["board_id"]
		b.created = append(b.created, values)
		_, _ = w.Write([]byte(`{"data":{"create_item":{"id":"99"}}}`))
	case strings.Contains(req.Query, "next_items_page"):
		if req.Variables["cursor"] != "abc" {
			_, _ = w.Write([]byte(`{"errors":[{"message":"bad cursor"}]}`))
			return
		}
		_, _ = w.Write([]byte(secondPage))
	default:
		b.scans++
		_, _ = w.Write([]byte(firstPage))
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(&Config{APIURL: srv.URL}, "secret-token", nil)
	c.now = func() time.Time { return time.Date(2025, time.July, 4, 12, 0, 0, 0, time.UTC) }
	return c
}

func result(id, email string) *matching.Result {
	return &matching.Result{Study: &catalog.Study{
		NCTID:        id,
		Title:        "Parent Coaching",
		Summary:      "A coaching study.",
		ContactEmail: email,
	}}
}

func TestContactedTrialIDs(t *testing.T) {
	t.Parallel()

	board := &fakeBoard{}
	c := newTestClient(t, board)

	ids, err := c.ContactedTrialIDs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"NCT00000001", "NCT00000002"} {
		if !ids.Has(id) {
			t.Fatalf("expected %s to be contacted, got %v", id, ids)
		}
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
	if token, _ := board.snapshot(); token != "secret-token" {
		t.Fatalf("expected raw token in Authorization header, got %q", token)
	}

	existing, err := c.Existing(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !existing.HasEmail("first@example.org") || !existing.HasEmail(" SECOND@example.org ") {
		t.Fatalf("expected both emails to be known, got %v", existing.Emails)
	}
}

func TestRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result *matching.Result
		expect outreach.Outcome
	}{
		{name: "missing email", result: result("NCT00000009", " "), expect: outreach.OutcomeSkipped},
		{name: "known trial", result: result("NCT00000002", "new@example.org"), expect: outreach.OutcomeDuplicate},
		{name: "known email", result: result("NCT00000009", "FIRST@example.org"), expect: outreach.OutcomeDuplicate},
		{name: "new study", result: result("NCT00000009", "New@Example.org"), expect: outreach.OutcomeCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			board := &fakeBoard{}
			c := newTestClient(t, board)

			got, err := c.Record(context.Background(), tt.result, "Autism Parent Trial")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %s, got %s", tt.expect, got)
			}

			_, items := board.snapshot()
			created := len(items)
			if (tt.expect == outreach.OutcomeCreated) != (created == 1) {
				t.Fatalf("unexpected number of created items: %d", created)
			}
			if created == 0 {
				return
			}

			item := items[0]
			if item["item_name"] != "Autism Parent Trial" || item["board_id"] != DefaultBoardID {
				t.Fatalf("unexpected item target: %v", item)
			}
			email := item["email_mkrt39hj"].(map[string]any)
			if email["email"] != "new@example.org" {
				t.Fatalf("expected normalized email, got %v", email)
			}
			link := item["link_mkrtn4m6"].(map[string]any)
			if link["url"] != "https://clinicaltrials.gov/study/NCT00000009" {
				t.Fatalf("unexpected link column: %v", link)
			}
			if item["text_mkrtjwn9"] != "N/A" {
				t.Fatalf("expected N/A contact, got %v", item["text_mkrtjwn9"])
			}
			date := item["date4"].(map[string]any)
			if date["date"] != "2025-07-04" {
				t.Fatalf("unexpected date column: %v", date)
			}
		})
	}
}

func TestForPageScansBoardOnce(t *testing.T) {
	t.Parallel()

	board := &fakeBoard{}
	c := newTestClient(t, board)

	recorder, err := c.ForPage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page := []struct {
		result *matching.Result
		expect outreach.Outcome
	}{
		{result: result("NCT00000002", "other@example.org"), expect: outreach.OutcomeDuplicate},
		{result: result("NCT00000010", "new@example.org"), expect: outreach.OutcomeCreated},
		{result: result("NCT00000011", "NEW@example.org"), expect: outreach.OutcomeDuplicate},
		{result: result("NCT00000010", "another@example.org"), expect: outreach.OutcomeDuplicate},
		{result: result("NCT00000012", ""), expect: outreach.OutcomeSkipped},
	}

	for i, p := range page {
		got, err := recorder.Record(context.Background(), p.result, "")
		if err != nil {
			t.Fatalf("record %d: unexpected error: %v", i, err)
		}
		if got != p.expect {
			t.Fatalf("record %d: expected %s, got %s", i, p.expect, got)
		}
	}

	if scans := board.scanCount(); scans != 1 {
		t.Fatalf("expected one board scan for the page, got %d", scans)
	}
	if _, items := board.snapshot(); len(items) != 1 {
		t.Fatalf("expected one created item, got %d", len(items))
	}
}

func TestQueryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "graphql errors",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"errors":[{"message":"not authenticated"}]}`))
			},
		},
		{
			name: "flat error message",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error_message":"rate limited"}`))
			},
		},
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "missing board",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"boards":[]}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, tt.handler)
			if _, err := c.ContactedTrialIDs(context.Background()); err == nil {
				t.Fatal("expected error")
			}
			if _, err := c.Record(context.Background(), result("NCT00000009", "x@example.org"), ""); err == nil {
				t.Fatal("expected record to surface the error")
			}
			if _, err := c.ForPage(context.Background()); err == nil {
				t.Fatal("expected page snapshot to surface the error")
			}
		})
	}
}

func TestColumnsDefaults(t *testing.T) {
	t.Parallel()

	c := New(&Config{Columns: Columns{Email: "email_custom"}}, "", nil)
	if c.columns.Email != "email_custom" || c.columns.Link != DefaultColumns().Link {
		t.Fatalf("unexpected columns: %+v", c.columns)
	}
}
