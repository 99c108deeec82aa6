package matching

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// DemographicCategory groups vocabulary entries for reporting.
type DemographicCategory string

const (
	CategoryEthnicity DemographicCategory = "race_ethnicity"
	CategorySex       DemographicCategory = "sex"
	CategoryAgeGroup  DemographicCategory = "age_group"
	CategorySeniority DemographicCategory = "seniority"
)

type demographicEntry struct {
	category DemographicCategory
	triggers []string
	terms    []string
	pattern  *regexp.Regexp
}

// vocabulary maps words found in a challenge summary to the canonical terms
// searched for in study texts.
var vocabulary = compileVocabulary([]demographicEntry{
	{
		category: CategoryEthnicity,
		triggers: []string{"hispanic", "hispanics", "latino", "latinos", "latina", "latinas", "latinx"},
		terms:    []string{"hispanic", "latino"},
	},
	{
		category: CategoryEthnicity,
		triggers: []string{"black", "african american", "african americans", "african-american"},
		terms:    []string{"black", "african american"},
	},
	{
		category: CategoryEthnicity,
		triggers: []string{"asian", "asians", "asian american", "asian americans"},
		terms:    []string{"asian"},
	},
	{
		category: CategoryEthnicity,
		triggers: []string{"native american", "native americans", "american indian", "american indians", "alaska native", "indigenous"},
		terms:    []string{"native american", "american indian"},
	},
	{
		category: CategoryEthnicity,
		triggers: []string{"pacific islander", "pacific islanders", "native hawaiian", "native hawaiians"},
		terms:    []string{"pacific islander", "native hawaiian"},
	},
	{
		category: CategoryEthnicity,
		triggers: []string{"white", "caucasian", "caucasians"},
		terms:    []string{"white", "caucasian"},
	},
	{
		category: CategorySex,
		triggers: []string{"female", "females", "woman", "women", "girl", "girls", "mothers"},
		terms:    []string{"female", "women"},
	},
	{
		category: CategorySex,
		triggers: []string{"male", "males", "man", "men", "boy", "boys", "fathers"},
		terms:    []string{"male", "men"},
	},
	{
		category: CategoryAgeGroup,
		triggers: []string{"child", "children", "kid", "kids", "pediatric", "paediatric"},
		terms:    []string{"child", "pediatric"},
	},
	{
		category: CategoryAgeGroup,
		triggers: []string{"adolescent", "adolescents", "teen", "teens", "teenager", "teenagers", "youth"},
		terms:    []string{"adolescent", "teen"},
	},
	{
		category: CategoryAgeGroup,
		triggers: []string{"infant", "infants", "toddler", "toddlers", "baby", "babies"},
		terms:    []string{"infant", "toddler"},
	},
	{
		category: CategoryAgeGroup,
		triggers: []string{"young adult", "young adults", "college students"},
		terms:    []string{"young adult"},
	},
	{
		category: CategorySeniority,
		triggers: []string{"older adult", "older adults", "elderly", "senior", "seniors", "geriatric", "aging", "retirees"},
		terms:    []string{"older adult", "elderly", "senior"},
	},
})

func compileVocabulary(entries []demographicEntry) []demographicEntry {
	for i := range entries {
		alternatives := make([]string, 0, len(entries[i].triggers))
		for _, trigger := range entries[i].triggers {
			alternatives = append(alternatives, regexp.QuoteMeta(trigger))
		}
		entries[i].pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)
	}
	return entries
}

// DemographicTerms derives the canonical demographic terms mentioned in a free-text summary.
// Terms are returned in vocabulary order without duplicates.
func DemographicTerms(summary string) []string {
	var terms []string
	seen := make(map[string]struct{})

	for _, entry := range vocabulary {
		if !entry.pattern.MatchString(summary) {
			continue
		}
		for _, term := range entry.terms {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			terms = append(terms, term)
		}
	}

	return terms
}

// ScoreText counts how many of terms occur in text, case-insensitively, and returns the matched ones.
// Matching is by substring, so "male" is also found inside "female".
func ScoreText(terms []string, text string) (int, []string) {
	text = strings.ToLower(text)

	var matched []string
	for _, term := range terms {
		if strings.Contains(text, term) {
			matched = append(matched, term)
		}
	}
	return len(matched), matched
}

type demographicsFilter struct {
	disabled bool
	reason   string
}

// NewDemographics creates the scoring step. It never drops records.
func NewDemographics() Filter {
	return &demographicsFilter{}
}

func (f *demographicsFilter) Name() string { return "demographics" }

func (f *demographicsFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *demographicsFilter) IsEnabled() bool { return !f.disabled }

func (f *demographicsFilter) Apply(_ context.Context, c *Criteria, candidates []*Result) ([]*Result, Step) {
	initial := len(candidates)
	terms := DemographicTerms(c.ChallengeSummary)
	if len(terms) == 0 {
		return candidates, Step{Initial: initial, Left: initial}
	}

	degraded := 0
	for _, r := range candidates {
		var (
			score   int
			matched []string
		)
		_, panicked := safely(func() bool {
			score, matched = ScoreText(terms, r.Study.Eligibility+" "+r.Study.Summary)
			return true
		})

		if panicked {
			r.fallback(FallbackScoreError)
			r.Score = 0
			r.MatchedTerms = nil
			degraded++
			continue
		}

		r.Score = score
		r.MatchedTerms = matched
	}

	return candidates, Step{Initial: initial, Left: initial, Degraded: degraded}
}

func (f *demographicsFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"vocabulary_entries": strconv.Itoa(len(vocabulary))},
	}
}
