package catalog

import (
	"regexp"
	"strconv"
)

// AgeSource tells where an effective age range came from.
type AgeSource string

const (
	AgeStructured AgeSource = "structured"
	AgeExtracted  AgeSource = "eligibility_text"
	AgeDefault    AgeSource = "default"
)

// AgeRange is an inclusive eligible age window in years.
type AgeRange struct {
	Min    int
	Max    int
	Source AgeSource
}

var (
	// "aged 5 to 17", "Ages: 18 through 65", "age 6-12", "ages between 10 and 14".
	// "and" only separates bounds after "between" or "of".
	boundedAgeRe = regexp.MustCompile(`(?i)\b(?:aged|ages|age)\s*:?\s*(?:(?:between|of)\s+(\d{1,3})\s*(?:years?\s*)?(?:and|to|through|thru|–|—|-)\s*(\d{1,3})|(?:from\s+)?(\d{1,3})\s*(?:years?\s*)?(?:to|through|thru|–|—|-)\s*(\d{1,3}))`)
	// "aged 18+", "Age: 65 and up", "age 50 years or older".
	openAgeRe = regexp.MustCompile(`(?i)\b(?:aged|ages|age)\s*:?\s*(\d{1,3})\s*(?:years?\s*)?(?:\+|and up|and over|and older|or older|or over)`)
)

// ExtractAges looks for an age window in free-text eligibility criteria.
func ExtractAges(text string) (AgeRange, bool) {
	if m := boundedAgeRe.FindStringSubmatch(text); m != nil {
		bounds := m[1:3]
		if bounds[0] == "" {
			bounds = m[3:5]
		}
		lo, errLo := strconv.Atoi(bounds[0])
		hi, errHi := strconv.Atoi(bounds[1])
		if errLo == nil && errHi == nil {
			if lo > hi {
				lo, hi = hi, lo
			}
			return AgeRange{Min: lo, Max: hi, Source: AgeExtracted}, true
		}
	}

	if m := openAgeRe.FindStringSubmatch(text); m != nil {
		if lo, err := strconv.Atoi(m[1]); err == nil {
			return AgeRange{Min: lo, Max: DefaultMaxAge, Source: AgeExtracted}, true
		}
	}

	return AgeRange{}, false
}

// EffectiveAges resolves the eligible age window of a study. Structured fields win,
// eligibility text fills the gaps and anything still missing falls back to [0, 100].
func EffectiveAges(s *Study) AgeRange {
	r := AgeRange{Min: DefaultMinAge, Max: DefaultMaxAge, Source: AgeDefault}
	if s == nil {
		return r
	}

	if s.MinAge != nil && s.MaxAge != nil {
		return AgeRange{Min: *s.MinAge, Max: *s.MaxAge, Source: AgeStructured}
	}

	if extracted, ok := ExtractAges(s.Eligibility); ok {
		r = extracted
	}

	if s.MinAge != nil {
		r.Min = *s.MinAge
		if r.Source == AgeDefault {
			r.Source = AgeStructured
		}
	}

	if s.MaxAge != nil {
		r.Max = *s.MaxAge
		if r.Source == AgeDefault {
			r.Source = AgeStructured
		}
	}

	return r
}
