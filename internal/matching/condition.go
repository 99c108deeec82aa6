package matching

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

type conditionFilter struct {
	disabled  bool
	reason    string
	threshold float64
}

// NewCondition creates a filter keeping records whose condition text matches the campaign condition.
func NewCondition(threshold float64) Filter {
	return &conditionFilter{threshold: threshold}
}

func (f *conditionFilter) Name() string { return "condition" }

func (f *conditionFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *conditionFilter) IsEnabled() bool { return !f.disabled }

func (f *conditionFilter) Apply(_ context.Context, c *Criteria, candidates []*Result) ([]*Result, Step) {
	initial := len(candidates)
	kept := make([]*Result, 0, initial)
	degraded := 0

	for _, r := range candidates {
		var match ConditionMatch
		ok, panicked := safely(func() bool {
			var matched bool
			match, matched = MatchCondition(c.Condition, r.Study.Conditions, f.threshold)
			return matched
		})

		if panicked {
			r.fallback(FallbackCondError)
			r.pass("condition check skipped")
			kept = append(kept, r)
			degraded++
			continue
		}
		if !ok {
			continue
		}

		r.Condition = match
		r.pass(describeCondition(c.Condition, match))
		kept = append(kept, r)
	}

	return kept, Step{Initial: initial, Dropped: initial - len(kept), Left: len(kept), Degraded: degraded}
}

func (f *conditionFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"threshold": strconv.FormatFloat(f.threshold, 'f', 2, 64)},
	}
}

// MatchCondition reports whether a record's condition text matches the target condition.
// It accepts when any whitespace token of the target occurs as a substring of the text, or
// when the similarity ratio of the whole strings reaches threshold. This is a lexical check:
// short common tokens ("disorder", "of") match unrelated conditions.
// An empty target matches everything.
func MatchCondition(target, text string, threshold float64) (ConditionMatch, bool) {
	target = strings.ToLower(strings.TrimSpace(target))
	text = strings.ToLower(strings.TrimSpace(text))

	if target == "" {
		return ConditionMatch{Ratio: 1}, true
	}

	for _, token := range strings.Fields(target) {
		if strings.Contains(text, token) {
			return ConditionMatch{Token: token, Ratio: Similarity(target, text)}, true
		}
	}

	ratio := Similarity(target, text)
	return ConditionMatch{Ratio: ratio}, ratio >= threshold
}

// Similarity returns a case-sensitive ratio in [0, 1] derived from the Levenshtein distance
// of a and b: 1 - distance / max(len(a), len(b)), counted in runes.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

func describeCondition(target string, m ConditionMatch) string {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return "condition: any"
	case m.Token != "":
		return fmt.Sprintf("condition: %s", target)
	default:
		return fmt.Sprintf("condition: %s (similarity %.2f)", target, m.Ratio)
	}
}
