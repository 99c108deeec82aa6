package matching

import (
	"fmt"
	"strings"

	"github.com/spigell/outreach-matcher/internal/catalog"
)

const (
	// DefaultConditionThreshold is the minimum similarity ratio accepted for a condition match.
	DefaultConditionThreshold = 0.6
	// DefaultAgeTolerance widens the age overlap check on both sides, in years.
	DefaultAgeTolerance = 3
)

// Config holds the tunable constants of the matching pipeline.
type Config struct {
	ConditionThreshold float64
	AgeTolerance       int
}

func DefaultConfig() *Config {
	return &Config{
		ConditionThreshold: DefaultConditionThreshold,
		AgeTolerance:       DefaultAgeTolerance,
	}
}

// Criteria describes the campaign a match run is performed for.
type Criteria struct {
	Condition           string
	MinAge              int
	MaxAge              int
	ChallengeSummary    string
	RequireContactEmail bool
	// TopN bounds the result list when positive.
	TopN int
}

// Fallback names a fail-open path taken while evaluating a record.
type Fallback string

const (
	FallbackAgeDefault Fallback = "age_default"
	FallbackAgeError   Fallback = "age_error"
	FallbackScoreError Fallback = "score_error"
	FallbackCondError  Fallback = "condition_error"
)

// ConditionMatch explains why a condition filter accepted a record.
type ConditionMatch struct {
	Token string
	Ratio float64
}

// Result is a catalog record that survived the hard filters, along with its score.
type Result struct {
	Study        *catalog.Study
	Score        int
	MatchedTerms []string
	Reason       string
	Ages         catalog.AgeRange
	Condition    ConditionMatch
	Fallbacks    []Fallback

	passed []string
}

func newResult(study *catalog.Study) *Result {
	return &Result{Study: study}
}

// TrialID returns the normalized identifier of the underlying study.
func (r *Result) TrialID() string {
	if r == nil {
		return ""
	}
	return r.Study.TrialID()
}

// Degraded reports whether any fail-open path was taken for this result.
func (r *Result) Degraded() bool {
	return len(r.Fallbacks) > 0
}

// HasFallback reports whether the given fail-open path was taken.
func (r *Result) HasFallback(f Fallback) bool {
	for _, got := range r.Fallbacks {
		if got == f {
			return true
		}
	}
	return false
}

func (r *Result) pass(reason string) {
	r.passed = append(r.passed, reason)
}

func (r *Result) fallback(f Fallback) {
	if !r.HasFallback(f) {
		r.Fallbacks = append(r.Fallbacks, f)
	}
}

func (r *Result) buildReason() {
	parts := append([]string(nil), r.passed...)
	if len(r.MatchedTerms) > 0 {
		parts = append(parts, fmt.Sprintf("demographics: %s", strings.Join(r.MatchedTerms, ", ")))
	}
	r.Reason = strings.Join(parts, "; ")
}
