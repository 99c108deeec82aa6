package matching

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/spigell/outreach-matcher/internal/catalog"
)

// Filter represents a single step of the matching pipeline.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, c *Criteria, candidates []*Result) ([]*Result, Step)
}

// Step describes the result of executing a pipeline step.
type Step struct {
	Initial  int
	Dropped  int
	Left     int
	Degraded int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// Engine runs catalog records through the matching pipeline.
type Engine struct {
	source  catalog.Source
	config  *Config
	filters []Filter
	logger  *zap.Logger
}

// New builds an engine with the standard pipeline: condition, age overlap,
// contact completeness and demographic scoring.
func New(source catalog.Source, cfg *Config, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ConditionThreshold <= 0 {
		cfg.ConditionThreshold = DefaultConditionThreshold
	}
	if cfg.AgeTolerance < 0 {
		cfg.AgeTolerance = DefaultAgeTolerance
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		source: source,
		config: cfg,
		filters: []Filter{
			NewCondition(cfg.ConditionThreshold),
			NewAgeOverlap(cfg.AgeTolerance),
			NewContact(),
			NewDemographics(),
		},
		logger: logger,
	}
}

// Match loads the catalog and returns the ranked results for the criteria.
// A catalog load failure is returned; per-record problems never abort the run.
func (e *Engine) Match(ctx context.Context, c Criteria) ([]*Result, error) {
	studies, err := e.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	candidates := make([]*Result, 0, studies.Len())
	for _, study := range studies.Items {
		if study == nil {
			continue
		}
		candidates = append(candidates, newResult(study))
	}

	e.logger.Debug("starting match run",
		zap.String("condition", c.Condition),
		zap.Int("min_age", c.MinAge),
		zap.Int("max_age", c.MaxAge),
		zap.Bool("require_contact_email", c.RequireContactEmail),
		zap.Int("candidates", len(candidates)),
	)

	for _, f := range e.filters {
		if !f.IsEnabled() {
			e.logger.Debug("filter disabled", zap.String("name", f.Name()))
			continue
		}

		var info Step
		candidates, info = f.Apply(ctx, &c, candidates)

		e.logger.Info("filter step",
			zap.String("name", f.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
			zap.Int("degraded", info.Degraded),
		)
	}

	for _, r := range candidates {
		r.buildReason()
	}

	return Rank(candidates, c.TopN), nil
}

// Describe returns status entries for the engine filters.
func (e *Engine) Describe() []Status {
	statuses := make([]Status, 0, len(e.filters))
	for _, f := range e.filters {
		if reporter, ok := f.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    f.Name(),
			Enabled: f.IsEnabled(),
		})
	}
	return statuses
}

// Rank stable-sorts results by demographic score, highest first, and truncates to topN when positive.
func Rank(results []*Result, topN int) []*Result {
	ranked := make([]*Result, len(results))
	copy(ranked, results)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// safely runs check and reports whether it panicked. Panics are treated as fail-open by callers.
func safely(check func() bool) (ok bool, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			ok, panicked = true, true
		}
	}()
	return check(), false
}
