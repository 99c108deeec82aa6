package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	DefaultCondition = "general"
	DefaultMinAge    = 5
	DefaultMaxAge    = 17

	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "spigell/outreach-matcher"
	// Landing pages bigger than this are truncated before parsing.
	maxBodyBytes = 5 << 20
)

// Config controls fetching and the permissive defaults returned on failure.
type Config struct {
	Timeout          time.Duration
	UserAgent        string
	DefaultCondition string
	DefaultMinAge    int
	DefaultMaxAge    int
}

// Criteria are the campaign parameters derived from a reference study page.
type Criteria struct {
	Condition string
	MinAge    int
	MaxAge    int

	ConditionDetected bool
	AgesDetected      bool
	// Err holds the fetch or parse failure that forced the defaults, if any.
	Err error
}

// Degraded reports whether any default value was used.
func (c Criteria) Degraded() bool {
	return c.Err != nil || !c.ConditionDetected || !c.AgesDetected
}

type conditionKeywords struct {
	condition string
	keywords  []string
}

// Order matters: the first condition with a matching keyword wins.
var knownConditions = []conditionKeywords{
	{condition: "autism", keywords: []string{"autism", "asd", "autistic"}},
	{condition: "adhd", keywords: []string{"adhd", "attention deficit"}},
	{condition: "diabetes", keywords: []string{"diabetes"}},
}

var ageRangeRe = regexp.MustCompile(`\bages?\s*:?\s*(\d+)[\s–-]+(\d+)`)

// Extractor derives campaign criteria from a study landing page.
type Extractor struct {
	config     Config
	HTTPClient *http.Client
	logger     *zap.Logger
}

func New(cfg *Config, logger *zap.Logger) *Extractor {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaultUserAgent
	}
	if strings.TrimSpace(c.DefaultCondition) == "" {
		c.DefaultCondition = DefaultCondition
	}
	if c.DefaultMinAge <= 0 {
		c.DefaultMinAge = DefaultMinAge
	}
	if c.DefaultMaxAge <= 0 {
		c.DefaultMaxAge = DefaultMaxAge
	}
	if c.DefaultMinAge > c.DefaultMaxAge {
		c.DefaultMinAge, c.DefaultMaxAge = c.DefaultMaxAge, c.DefaultMinAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Extractor{
		config:     c,
		HTTPClient: &http.Client{Timeout: c.Timeout},
		logger:     logger,
	}
}

// Defaults returns the criteria used when nothing could be derived.
func (e *Extractor) Defaults() Criteria {
	return Criteria{
		Condition: e.config.DefaultCondition,
		MinAge:    e.config.DefaultMinAge,
		MaxAge:    e.config.DefaultMaxAge,
	}
}

// Extract fetches the page and derives criteria from its text. It never fails:
// any problem yields the configured defaults with Err set.
func (e *Extractor) Extract(ctx context.Context, rawURL string) Criteria {
	text, err := e.fetchText(ctx, rawURL)
	if err != nil {
		e.logger.Warn("extracting study criteria failed; using defaults",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		c := e.Defaults()
		c.Err = err
		return c
	}

	c := FromText(text, e.Defaults())

	e.logger.Debug("extracted study criteria",
		zap.String("url", rawURL),
		zap.String("condition", c.Condition),
		zap.Int("min_age", c.MinAge),
		zap.Int("max_age", c.MaxAge),
		zap.Bool("condition_detected", c.ConditionDetected),
		zap.Bool("ages_detected", c.AgesDetected),
	)

	return c
}

// FromText derives criteria from page text, filling undetected parts from defaults.
func FromText(text string, defaults Criteria) Criteria {
	text = strings.ToLower(text)
	c := defaults
	c.Err = nil

	for _, known := range knownConditions {
		if containsAny(text, known.keywords) {
			c.Condition = known.condition
			c.ConditionDetected = true
			break
		}
	}

	if m := ageRangeRe.FindStringSubmatch(text); m != nil {
		lo, errLo := strconv.Atoi(m[1])
		hi, errHi := strconv.Atoi(m[2])
		if errLo == nil && errHi == nil {
			if lo > hi {
				lo, hi = hi, lo
			}
			c.MinAge, c.MaxAge = lo, hi
			c.AgesDetected = true
		}
	}

	return c
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (e *Extractor) fetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", e.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	return doc.Text(), nil
}
