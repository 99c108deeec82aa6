package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spigell/outreach-matcher/internal/dedup"
	"github.com/spigell/outreach-matcher/internal/extractor"
	"github.com/spigell/outreach-matcher/internal/logger"
	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/outreach"
	"github.com/spigell/outreach-matcher/internal/pagination"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrNoSessionID = errors.New("session id is required")

// Extractor derives campaign criteria from a study page. It never fails.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) extractor.Criteria
}

type Matcher interface {
	Match(ctx context.Context, c matching.Criteria) ([]*matching.Result, error)
}

// Deliverer runs the side effects of an emitted page.
type Deliverer interface {
	Deliver(ctx context.Context, campaign outreach.Campaign, page []*matching.Result) []outreach.Delivery
}

// Dependencies are the collaborators of the conversation flow. Dedup and
// Deliverer are optional.
type Dependencies struct {
	Extractor Extractor
	Matcher   Matcher
	Dedup     *dedup.Filter
	Deliverer Deliverer
}

type Config struct {
	PageSize            int
	RequireContactEmail bool
	// TopN bounds the stored match list when positive.
	TopN int
	// CampaignName overrides the name derived from the extracted criteria.
	CampaignName   string
	SuccessSummary string
	SenderEmail    string
}

// Machine drives conversations through the intake flow.
type Machine struct {
	store  Store
	locks  *Locker
	deps   Dependencies
	config Config
	logger *zap.Logger
	now    func() time.Time
}

func NewMachine(store Store, deps Dependencies, cfg *Config, log *zap.Logger) *Machine {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.PageSize <= 0 {
		c.PageSize = pagination.DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Machine{
		store:  store,
		locks:  NewLocker(),
		deps:   deps,
		config: c,
		logger: log,
		now:    time.Now,
	}
}

// Handle processes one message of a session and returns the reply text.
// Messages of the same session are processed one at a time. Only a missing
// session id is reported as an error; every other failure still yields a reply.
func (m *Machine) Handle(ctx context.Context, sessionID, message string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrNoSessionID
	}

	unlock := m.locks.Lock(sessionID)
	defer unlock()

	log := logger.WithFields(m.logger, logger.SessionFields(sessionID, "")...)

	state, err := m.load(ctx, sessionID)
	if err != nil {
		log.Error("loading session failed", zap.Error(err))
		return replyUnavailable, nil
	}

	next, reply := m.Transition(ctx, *state, message)
	next.UpdatedAt = m.now()

	if err := m.store.Update(ctx, &next); err != nil {
		log.Error("saving session failed", zap.Error(err))
	}

	var deliveries []outreach.Delivery
	if len(reply.Page) > 0 && m.deps.Deliverer != nil {
		deliveries = m.deps.Deliverer.Deliver(ctx, m.Campaign(next), reply.Page)
	}

	log.Debug("message handled",
		zap.Stringer("from", state.Step),
		zap.Stringer("to", next.Step),
		zap.Int("page_size", len(reply.Page)),
	)

	return reply.Render(deliveries), nil
}

func (m *Machine) load(ctx context.Context, id string) (*State, error) {
	state, err := m.store.Get(ctx, id)
	if !errors.Is(err, ErrNotFound) {
		return state, err
	}

	state, err = m.store.Create(ctx, id)
	if errors.Is(err, ErrExists) {
		return m.store.Get(ctx, id)
	}
	return state, err
}

// Transition computes the next state and the reply for a message. It performs
// the lookups a step needs but never persists anything.
func (m *Machine) Transition(ctx context.Context, state State, message string) (State, Reply) {
	message = strings.TrimSpace(message)
	log := logger.WithFields(m.logger, logger.SessionFields(state.ID, state.Step.String())...)

	if state.Step > StepGreeting && isRestart(message) {
		log.Info("conversation restarted")
		return State{ID: state.ID, Step: StepAgentName, CreatedAt: state.CreatedAt}, Reply{Text: replyRestart}
	}

	switch state.Step {
	case StepGreeting:
		if message == "" {
			state.Step = StepAgentName
			return state, Reply{Text: replyGreeting}
		}
		// An opening message with content is the agent's name.
		return m.acceptName(state, message)

	case StepAgentName:
		if message == "" {
			return state, Reply{Text: replyAskName}
		}
		return m.acceptName(state, message)

	case StepAgentTitle:
		if message == "" {
			return state, Reply{Text: fmt.Sprintf(replyAskTitle, state.AgentName)}
		}
		state.AgentTitle = message
		state.Step = StepStudyURL
		return state, Reply{Text: replyAskURL}

	case StepStudyURL:
		if !isStudyURL(message) {
			return state, Reply{Text: replyBadURL}
		}
		state.StudyURL = message
		criteria := m.extract(ctx, message)
		state.Condition = criteria.Condition
		state.MinAge, state.MaxAge = criteria.MinAge, criteria.MaxAge
		state.CriteriaDegraded = criteria.Degraded()
		state.Step = StepChallenge

		text := fmt.Sprintf(replyCriteria, criteria.Condition, criteria.MinAge, criteria.MaxAge)
		if state.CriteriaDegraded {
			text += replyCriteriaDefaults
		}
		return state, Reply{Text: text + " " + replyAskChallenge}

	case StepChallenge:
		if message == "" {
			return state, Reply{Text: replyAskChallenge}
		}
		state.ChallengeSummary = message

		results, degraded, err := m.search(ctx, state)
		if err != nil {
			log.Error("matching failed", zap.Error(err))
			return state, Reply{Text: replyCatalogDown}
		}

		state.Matches = results
		state.Sent = 0
		state.DedupDegraded = degraded
		state.Step = StepResults

		log.Info("matches found", zap.Int("matches", len(results)), zap.Bool("dedup_degraded", degraded))

		if len(results) == 0 {
			return state, Reply{Text: replyNoMatches}
		}
		text := fmt.Sprintf(replyFound, len(results), m.config.PageSize)
		if degraded {
			text += replyDedupDegraded
		}
		return state, Reply{Text: text}

	default:
		state.Step = StepResults
		page := pagination.Next(state.Matches, state.Sent, m.config.PageSize)
		if page.Exhausted() {
			return state, Reply{Text: replyExhausted}
		}
		state.Sent = page.Sent
		return state, Reply{
			Page:    page.Items,
			Offset:  page.Sent - len(page.Items),
			Total:   len(state.Matches),
			HasMore: page.HasMore(),
		}
	}
}

func (m *Machine) acceptName(state State, message string) (State, Reply) {
	state.AgentName = titleCase(message)
	state.Step = StepAgentTitle
	return state, Reply{Text: fmt.Sprintf(replyAskTitle, state.AgentName)}
}

func (m *Machine) extract(ctx context.Context, rawURL string) extractor.Criteria {
	if m.deps.Extractor == nil {
		return extractor.New(nil, m.logger).Defaults()
	}
	return m.deps.Extractor.Extract(ctx, rawURL)
}

// search runs matching and drops studies that were already contacted.
func (m *Machine) search(ctx context.Context, state State) ([]*matching.Result, bool, error) {
	if m.deps.Matcher == nil {
		return nil, false, errors.New("no matcher configured")
	}

	results, err := m.deps.Matcher.Match(ctx, matching.Criteria{
		Condition:           state.Condition,
		MinAge:              state.MinAge,
		MaxAge:              state.MaxAge,
		ChallengeSummary:    state.ChallengeSummary,
		RequireContactEmail: m.config.RequireContactEmail,
	})
	if err != nil {
		return nil, false, err
	}

	results, outcome := dedup.Apply(ctx, m.deps.Dedup, results)

	return matching.Rank(results, m.config.TopN), outcome.Degraded, nil
}

// Campaign describes the conversation's reference campaign for outreach.
func (m *Machine) Campaign(state State) outreach.Campaign {
	name := strings.TrimSpace(m.config.CampaignName)
	if name == "" && state.Condition != "" {
		name = fmt.Sprintf("%s study, ages %d-%d", titleCase(state.Condition), state.MinAge, state.MaxAge)
	}

	return outreach.Campaign{
		Name:             name,
		AgentName:        state.AgentName,
		AgentTitle:       state.AgentTitle,
		StudyURL:         state.StudyURL,
		ChallengeSummary: state.ChallengeSummary,
		SuccessSummary:   m.config.SuccessSummary,
		SenderEmail:      m.config.SenderEmail,
	}
}

func titleCase(s string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}

func isStudyURL(s string) bool {
	if !strings.HasPrefix(strings.ToLower(s), "http") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isRestart(message string) bool {
	switch strings.ToLower(message) {
	case "restart", "start over", "reset":
		return true
	}
	return false
}
