package matching

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spigell/outreach-matcher/internal/catalog"
)

type ageOverlapFilter struct {
	disabled  bool
	reason    string
	tolerance int
}

// NewAgeOverlap creates a filter keeping records whose eligible ages overlap the campaign window.
func NewAgeOverlap(tolerance int) Filter {
	return &ageOverlapFilter{tolerance: tolerance}
}

func (f *ageOverlapFilter) Name() string { return "age_overlap" }

func (f *ageOverlapFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *ageOverlapFilter) IsEnabled() bool { return !f.disabled }

func (f *ageOverlapFilter) Apply(_ context.Context, c *Criteria, candidates []*Result) ([]*Result, Step) {
	initial := len(candidates)
	kept := make([]*Result, 0, initial)
	degraded := 0

	for _, r := range candidates {
		var ages catalog.AgeRange
		ok, panicked := safely(func() bool {
			var overlaps bool
			overlaps, ages = AgeOverlap(r.Study, c.MinAge, c.MaxAge, f.tolerance)
			return overlaps
		})

		switch {
		case panicked:
			r.fallback(FallbackAgeError)
			r.pass("age check skipped")
			degraded++
		case !ok:
			continue
		case ages.Source == catalog.AgeDefault:
			r.Ages = ages
			r.fallback(FallbackAgeDefault)
			r.pass("age: no eligibility limits")
			degraded++
		default:
			r.Ages = ages
			r.pass(fmt.Sprintf("age: %d-%d overlaps %d-%d", ages.Min, ages.Max, c.MinAge, c.MaxAge))
		}

		kept = append(kept, r)
	}

	return kept, Step{Initial: initial, Dropped: initial - len(kept), Left: len(kept), Degraded: degraded}
}

func (f *ageOverlapFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"tolerance": strconv.Itoa(f.tolerance)},
	}
}

// AgeOverlap reports whether the study's effective age window overlaps [minAge, maxAge]
// widened by tolerance on both sides. Studies without any age data always overlap.
func AgeOverlap(study *catalog.Study, minAge, maxAge, tolerance int) (bool, catalog.AgeRange) {
	ages := catalog.EffectiveAges(study)
	if ages.Source == catalog.AgeDefault {
		return true, ages
	}

	return ages.Max+tolerance >= minAge && ages.Min-tolerance <= maxAge, ages
}
