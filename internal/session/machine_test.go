package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spigell/outreach-matcher/internal/catalog"
	"github.com/spigell/outreach-matcher/internal/dedup"
	"github.com/spigell/outreach-matcher/internal/extractor"
	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/outreach"
)

type stubExtractor struct {
	criteria extractor.Criteria
	urls     []string
}

func (s *stubExtractor) Extract(_ context.Context, rawURL string) extractor.Criteria {
	s.urls = append(s.urls, rawURL)
	return s.criteria
}

type stubContacted struct {
	ids dedup.IDSet
	err error
}

func (s stubContacted) ContactedTrialIDs(context.Context) (dedup.IDSet, error) {
	return s.ids, s.err
}

type failingMatcher struct{}

func (failingMatcher) Match(context.Context, matching.Criteria) ([]*matching.Result, error) {
	return nil, errors.New("catalog unavailable")
}

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []string
	campaigns []outreach.Campaign
}

func (r *recordingDeliverer) Deliver(_ context.Context, campaign outreach.Campaign, page []*matching.Result) []outreach.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.campaigns = append(r.campaigns, campaign)
	deliveries := make([]outreach.Delivery, len(page))
	for i, result := range page {
		r.delivered = append(r.delivered, result.TrialID())
		deliveries[i] = outreach.Delivery{
			TrialID:  result.TrialID(),
			Document: "emails/" + result.TrialID() + "_outreach.md",
			Outcome:  outreach.OutcomeCreated,
		}
	}
	return deliveries
}

func (r *recordingDeliverer) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.delivered...)
}

func intPtr(v int) *int { return &v }

// autismCatalog returns 13 matching studies; NCT00000003 is already contacted.
func autismCatalog() catalog.Source {
	studies := make([]*catalog.Study, 0, 13)
	for i := 1; i <= 13; i++ {
		studies = append(studies, &catalog.Study{
			NCTID:        fmt.Sprintf("NCT%08d", i),
			Title:        fmt.Sprintf("Autism Study %d", i),
			Conditions:   "Autism Spectrum Disorder",
			MinAge:       intPtr(5),
			MaxAge:       intPtr(15),
			ContactName:  "Dr. Lee",
			ContactEmail: fmt.Sprintf("pi%d@example.org", i),
		})
	}
	return catalog.NewStatic(studies...)
}

type fixture struct {
	machine   *Machine
	store     *MemoryStore
	extractor *stubExtractor
	deliverer *recordingDeliverer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := NewMemoryStore()
	ex := &stubExtractor{criteria: extractor.Criteria{
		Condition: "autism", MinAge: 6, MaxAge: 12, ConditionDetected: true, AgesDetected: true,
	}}
	deliverer := &recordingDeliverer{}

	m := NewMachine(store, Dependencies{
		Extractor: ex,
		Matcher:   matching.New(autismCatalog(), nil, nil),
		Dedup:     dedup.New(stubContacted{ids: dedup.NewIDSet("NCT00000003")}, 0, nil),
		Deliverer: deliverer,
	}, &Config{RequireContactEmail: true, SuccessSummary: "92 leads in 6 weeks"}, nil)

	return &fixture{machine: m, store: store, extractor: ex, deliverer: deliverer}
}

func (f *fixture) send(t *testing.T, id, message string) string {
	t.Helper()
	reply, err := f.machine.Handle(context.Background(), id, message)
	if err != nil {
		t.Fatalf("unexpected error for %q: %v", message, err)
	}
	return reply
}

func (f *fixture) state(t *testing.T, id string) *State {
	t.Helper()
	s, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	return s
}

func TestConversationReachesResults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.send(t, "s1", "jane")
	f.send(t, "s1", "Coordinator")
	reply := f.send(t, "s1", "https://example.org/autism-study")
	if !strings.Contains(reply, "autism study for ages 6-12") {
		t.Fatalf("expected criteria summary, got %q", reply)
	}
	reply = f.send(t, "s1", "Hard to reach families")

	s := f.state(t, "s1")
	if s.Step != StepResults {
		t.Fatalf("expected results step, got %s", s.Step)
	}
	if s.AgentName != "Jane" || s.AgentTitle != "Coordinator" || s.StudyURL != "https://example.org/autism-study" {
		t.Fatalf("unexpected collected fields: %+v", s)
	}
	if len(s.Matches) != 12 || s.Sent != 0 {
		t.Fatalf("expected 12 unsent matches, got %d sent=%d", len(s.Matches), s.Sent)
	}
	if !strings.Contains(reply, "I found 12 matching studies") {
		t.Fatalf("unexpected reply %q", reply)
	}
	for _, r := range s.Matches {
		if r.TrialID() == "NCT00000003" {
			t.Fatalf("contacted study must not be offered")
		}
	}

	// The next message is treated as a pagination request.
	reply = f.send(t, "s1", "show more")
	if !strings.Contains(reply, "Matches 1-5 of 12") || !strings.Contains(reply, "CRM: added") {
		t.Fatalf("expected first page, got %q", reply)
	}
	if f.state(t, "s1").Sent != 5 {
		t.Fatalf("expected cursor at 5")
	}

	campaign := f.deliverer.campaigns[0]
	if campaign.AgentName != "Jane" || campaign.ChallengeSummary != "Hard to reach families" ||
		campaign.Name != "Autism study, ages 6-12" || campaign.SuccessSummary != "92 leads in 6 weeks" {
		t.Fatalf("unexpected campaign: %+v", campaign)
	}
}

func TestPaginationThroughConversation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, msg := range []string{"", "Jane", "Coordinator", "https://example.org/s", "Hard to reach families"} {
		f.send(t, "s1", msg)
	}

	expected := []struct {
		header string
		sent   int
	}{
		{header: "Matches 1-5 of 12", sent: 5},
		{header: "Matches 6-10 of 12", sent: 10},
		{header: "Matches 11-12 of 12", sent: 12},
		{header: "No more matches", sent: 12},
	}

	for _, want := range expected {
		reply := f.send(t, "s1", "show more")
		if !strings.Contains(reply, want.header) {
			t.Fatalf("expected %q, got %q", want.header, reply)
		}
		if got := f.state(t, "s1").Sent; got != want.sent {
			t.Fatalf("expected cursor %d, got %d", want.sent, got)
		}
	}

	delivered := f.deliverer.ids()
	if len(delivered) != 12 {
		t.Fatalf("expected 12 deliveries, got %d", len(delivered))
	}
	seen := map[string]bool{}
	for _, id := range delivered {
		if seen[id] {
			t.Fatalf("study %s delivered twice", id)
		}
		seen[id] = true
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.machine
	ctx := context.Background()

	tests := []struct {
		name       string
		state      State
		message    string
		expectStep Step
		expectText string
	}{
		{name: "empty greeting prompts for name", state: State{Step: StepGreeting}, expectStep: StepAgentName, expectText: replyGreeting},
		{name: "empty name re-prompts", state: State{Step: StepAgentName}, message: "  ", expectStep: StepAgentName, expectText: replyAskName},
		{name: "name is title-cased", state: State{Step: StepAgentName}, message: "jane   doe", expectStep: StepAgentTitle, expectText: "Nice to meet you, Jane Doe."},
		{name: "empty title re-prompts", state: State{Step: StepAgentTitle, AgentName: "Jane"}, expectStep: StepAgentTitle, expectText: "What's your title?"},
		{name: "title asks for url", state: State{Step: StepAgentTitle}, message: "PI", expectStep: StepStudyURL, expectText: replyAskURL},
		{name: "non url re-prompts", state: State{Step: StepStudyURL}, message: "my study", expectStep: StepStudyURL, expectText: replyBadURL},
		{name: "url without host re-prompts", state: State{Step: StepStudyURL}, message: "https://", expectStep: StepStudyURL, expectText: replyBadURL},
		{name: "empty challenge re-prompts", state: State{Step: StepChallenge}, expectStep: StepChallenge, expectText: replyAskChallenge},
		{name: "restart", state: State{Step: StepResults, AgentName: "Jane"}, message: "Restart", expectStep: StepAgentName, expectText: replyRestart},
		{name: "exhausted list", state: State{Step: StepResults}, message: "show more", expectStep: StepResults, expectText: replyExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, reply := m.Transition(ctx, tt.state, tt.message)
			if next.Step != tt.expectStep {
				t.Fatalf("expected step %s, got %s", tt.expectStep, next.Step)
			}
			if !strings.Contains(reply.Text, tt.expectText) {
				t.Fatalf("expected %q in reply, got %q", tt.expectText, reply.Text)
			}
		})
	}

	restarted, _ := m.Transition(ctx, State{ID: "x", Step: StepResults, AgentName: "Jane", Sent: 5}, "restart")
	if restarted.AgentName != "" || restarted.Sent != 0 || restarted.ID != "x" {
		t.Fatalf("expected a clean state after restart, got %+v", restarted)
	}
}

func TestCatalogFailureStaysAtChallenge(t *testing.T) {
	t.Parallel()

	m := NewMachine(NewMemoryStore(), Dependencies{Matcher: failingMatcher{}}, nil, nil)
	state := State{ID: "s1", Step: StepChallenge, AgentName: "Jane", Condition: "autism"}

	next, reply := m.Transition(context.Background(), state, "Hard to reach families")
	if next.Step != StepChallenge || reply.Text != replyCatalogDown {
		t.Fatalf("expected apology at challenge step, got %s %q", next.Step, reply.Text)
	}
	if next.AgentName != "Jane" || next.Condition != "autism" {
		t.Fatalf("collected fields must survive: %+v", next)
	}
}

func TestDegradedCollaborators(t *testing.T) {
	t.Parallel()

	m := NewMachine(NewMemoryStore(), Dependencies{
		Extractor: &stubExtractor{criteria: extractor.Criteria{
			Condition: "general", MinAge: 5, MaxAge: 17, Err: errors.New("timeout"),
		}},
		Matcher: matching.New(autismCatalog(), nil, nil),
		Dedup:   dedup.New(stubContacted{err: errors.New("crm down")}, 0, nil),
	}, nil, nil)
	ctx := context.Background()

	next, reply := m.Transition(ctx, State{Step: StepStudyURL}, "http://example.org")
	if !next.CriteriaDegraded || !strings.Contains(reply.Text, replyCriteriaDefaults) {
		t.Fatalf("expected defaults notice, got %q", reply.Text)
	}

	next.Condition = "autism"
	next, reply = m.Transition(ctx, next, "Hard to reach families")
	if next.Step != StepResults || !next.DedupDegraded || len(next.Matches) != 13 {
		t.Fatalf("expected fail-open dedup with all 13 matches, got %d degraded=%v", len(next.Matches), next.DedupDegraded)
	}
	if !strings.Contains(reply.Text, replyDedupDegraded) {
		t.Fatalf("expected crm notice, got %q", reply.Text)
	}
}

func TestHandleRequiresSessionID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.machine.Handle(context.Background(), "  ", "hi"); !errors.Is(err, ErrNoSessionID) {
		t.Fatalf("expected ErrNoSessionID, got %v", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.send(t, "a", "Jane")
	f.send(t, "b", "")

	if f.state(t, "a").Step != StepAgentTitle || f.state(t, "b").Step != StepAgentName {
		t.Fatalf("sessions leaked into each other")
	}
}

func TestConcurrentMessagesAreSerialised(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, msg := range []string{"Jane", "Coordinator", "https://example.org/s", "Hard to reach families"} {
		f.send(t, "s1", msg)
	}

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.machine.Handle(context.Background(), "s1", "show more")
		}()
	}
	wg.Wait()

	delivered := f.deliverer.ids()
	seen := map[string]bool{}
	for _, id := range delivered {
		if seen[id] {
			t.Fatalf("study %s delivered twice", id)
		}
		seen[id] = true
	}
	if len(seen) != 12 || f.state(t, "s1").Sent != 12 {
		t.Fatalf("expected every match exactly once, got %d", len(seen))
	}
	if f.machine.locks.Len() != 0 {
		t.Fatalf("expected no lingering locks")
	}
}
