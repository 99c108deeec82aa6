package session

import (
	"time"

	"github.com/spigell/outreach-matcher/internal/matching"
)

// Step is the position of a conversation in the outreach intake flow.
type Step int

const (
	StepGreeting Step = iota
	StepAgentName
	StepAgentTitle
	StepStudyURL
	StepChallenge
	StepResults
)

var stepNames = map[Step]string{
	StepGreeting:   "greeting",
	StepAgentName:  "agent_name",
	StepAgentTitle: "agent_title",
	StepStudyURL:   "study_url",
	StepChallenge:  "challenge",
	StepResults:    "results",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// State is everything remembered about one conversation.
type State struct {
	ID               string `json:"id"`
	Step             Step   `json:"step"`
	AgentName        string `json:"agent_name,omitempty"`
	AgentTitle       string `json:"agent_title,omitempty"`
	StudyURL         string `json:"study_url,omitempty"`
	ChallengeSummary string `json:"challenge_summary,omitempty"`

	Condition string `json:"condition,omitempty"`
	MinAge    int    `json:"min_age"`
	MaxAge    int    `json:"max_age"`
	// CriteriaDegraded is set when any extracted criterion fell back to a default.
	CriteriaDegraded bool `json:"criteria_degraded,omitempty"`

	// Matches is the ranked, deduplicated list. It is replaced, never mutated.
	Matches []*matching.Result `json:"matches,omitempty"`
	// Sent counts how many matches were already emitted.
	Sent          int  `json:"sent"`
	DedupDegraded bool `json:"dedup_degraded,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newState(id string, now time.Time) *State {
	return &State{ID: id, Step: StepGreeting, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a copy that shares the immutable match results.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.Matches != nil {
		c.Matches = append([]*matching.Result(nil), s.Matches...)
	}
	return &c
}
