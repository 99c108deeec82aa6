package dedup

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultFetchTimeout = 10 * time.Second

var trialIDRe = regexp.MustCompile(`(?i)\bNCT\d{8}\b`)

// IDSet is a set of canonical trial identifiers.
type IDSet map[string]struct{}

// NewIDSet builds a set from raw identifiers or study URLs.
func NewIDSet(values ...string) IDSet {
	set := make(IDSet, len(values))
	for _, v := range values {
		set.Add(v)
	}
	return set
}

// Add inserts the canonical form of value. Empty values are ignored.
func (s IDSet) Add(value string) {
	if id := CanonicalID(value); id != "" {
		s[id] = struct{}{}
	}
}

func (s IDSet) Has(value string) bool {
	_, ok := s[CanonicalID(value)]
	return ok
}

// CanonicalID extracts the trial identifier from a full study URL or a bare id.
// Values without an NCT number are upper-cased and trimmed as-is.
func CanonicalID(value string) string {
	if m := trialIDRe.FindString(value); m != "" {
		return strings.ToUpper(m)
	}
	return strings.ToUpper(strings.TrimSpace(value))
}

// ExtractIDs returns every trial identifier mentioned in text, upper-cased.
func ExtractIDs(text string) []string {
	matches := trialIDRe.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.ToUpper(m)
	}
	return matches
}

// Identified is implemented by anything carrying a trial identifier.
type Identified interface {
	TrialID() string
}

// Source returns the identifiers of studies that were already contacted.
type Source interface {
	ContactedTrialIDs(ctx context.Context) (IDSet, error)
}

// FilterUnseen returns the candidates whose identifier is not in contacted, preserving order.
func FilterUnseen[T Identified](candidates []T, contacted IDSet) []T {
	kept := make([]T, 0, len(candidates))
	for _, c := range candidates {
		if len(contacted) > 0 && contacted.Has(c.TrialID()) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// Outcome reports how a deduplication pass went.
type Outcome struct {
	Initial  int
	Dropped  []string
	Degraded bool
}

// Filter removes already-contacted studies using an external source.
// Fetch failures fail open: nothing is removed and the outcome is marked degraded.
type Filter struct {
	source  Source
	timeout time.Duration
	logger  *zap.Logger
}

func New(source Source, timeout time.Duration, logger *zap.Logger) *Filter {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Filter{
		source:  source,
		timeout: timeout,
		logger:  logger,
	}
}

// Contacted fetches the already-contacted set once. On failure it returns an empty set and false.
func (f *Filter) Contacted(ctx context.Context) (IDSet, bool) {
	if f == nil || f.source == nil {
		return IDSet{}, true
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	contacted, err := f.source.ContactedTrialIDs(fetchCtx)
	if err != nil {
		f.logger.Warn("fetching already contacted studies failed; duplicates are not suppressed",
			zap.Error(err),
			zap.Duration("timeout", f.timeout),
		)
		return IDSet{}, false
	}
	if contacted == nil {
		contacted = IDSet{}
	}

	return contacted, true
}

// Apply fetches the contacted set and filters candidates with it.
func Apply[T Identified](ctx context.Context, f *Filter, candidates []T) ([]T, Outcome) {
	contacted, ok := f.Contacted(ctx)

	kept := FilterUnseen(candidates, contacted)
	outcome := Outcome{Initial: len(candidates), Degraded: !ok}

	if len(kept) != len(candidates) {
		for _, c := range candidates {
			if contacted.Has(c.TrialID()) {
				outcome.Dropped = append(outcome.Dropped, CanonicalID(c.TrialID()))
			}
		}
	}

	if f != nil && len(outcome.Dropped) > 0 {
		f.logger.Info("excluding already contacted studies",
			zap.Strings("excluded_studies", outcome.Dropped),
			zap.Int("studies_left", len(kept)),
		)
	}

	return kept, outcome
}
