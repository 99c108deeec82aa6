package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"github.com/spigell/outreach-matcher/internal/ai/gemini"
	"github.com/spigell/outreach-matcher/internal/catalog"
	"github.com/spigell/outreach-matcher/internal/dedup"
	"github.com/spigell/outreach-matcher/internal/extractor"
	"github.com/spigell/outreach-matcher/internal/logger"
	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/monday"
	"github.com/spigell/outreach-matcher/internal/outreach"
	"github.com/spigell/outreach-matcher/internal/secrets"
	"github.com/spigell/outreach-matcher/internal/session"
	"go.uber.org/zap"
)

// components are the wired collaborators shared by the commands.
type components struct {
	config    *Config
	logger    *zap.Logger
	engine    *matching.Engine
	dedup     *dedup.Filter
	crm       *monday.Client
	renderer  *outreach.FileRenderer
	extractor *extractor.Extractor
	store     session.Store
	machine   *session.Machine
}

func mustLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

func build(ctx context.Context, config *Config, log *zap.Logger) (*components, error) {
	c := &components{config: config, logger: log}

	c.engine = matching.New(
		catalog.NewFileSource(config.Catalog.Path, log.Named("catalog")),
		&matching.Config{
			ConditionThreshold: config.Matching.ConditionThreshold,
			AgeTolerance:       config.Matching.AgeTolerance,
		},
		log.Named("matching"),
	)

	c.extractor = extractor.New(&extractor.Config{
		Timeout:          config.Extractor.Timeout,
		UserAgent:        config.Extractor.UserAgent,
		DefaultCondition: config.Extractor.DefaultCondition,
		DefaultMinAge:    config.Extractor.DefaultMinAge,
		DefaultMaxAge:    config.Extractor.DefaultMaxAge,
	}, log.Named("extractor"))

	var recorder outreach.Recorder
	var contacted dedup.Source
	if config.CRM.Enabled {
		crm, err := newCRM(&config.CRM, log.Named("crm"))
		if err != nil {
			return nil, err
		}
		c.crm = crm
		recorder = crm
		contacted = crm
	} else {
		log.Info("crm integration disabled; already contacted studies are not excluded")
	}
	c.dedup = dedup.New(contacted, config.CRM.FetchTimeout, log.Named("dedup"))

	var renderer outreach.Renderer
	if config.Outreach.Enabled {
		var personalizer outreach.Personalizer
		if config.AI.Enabled {
			drafter, err := newDrafter(ctx, &config.AI, log.Named("ai"))
			if err != nil {
				log.Warn("skipping ai personalization", zap.Error(err))
			} else {
				personalizer = drafter
			}
		}
		c.renderer = outreach.NewFileRenderer(config.Outreach.OutputDir, personalizer, log.Named("outreach"))
		renderer = c.renderer
	}

	store, err := newStore(&config.Session)
	if err != nil {
		return nil, err
	}
	c.store = store

	c.machine = session.NewMachine(store, session.Dependencies{
		Extractor: c.extractor,
		Matcher:   c.engine,
		Dedup:     c.dedup,
		Deliverer: outreach.NewDispatcher(renderer, recorder, config.Outreach.Concurrency, log.Named("outreach")),
	}, &session.Config{
		PageSize:            config.Matching.PageSize,
		RequireContactEmail: config.Matching.RequireContactEmail,
		TopN:                config.Matching.TopN,
		CampaignName:        config.Outreach.CampaignName,
		SuccessSummary:      config.Outreach.SuccessSummary,
		SenderEmail:         config.Outreach.SenderEmail,
	}, log.Named("session"))

	return c, nil
}

func newStore(cfg *SessionConfig) (session.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}

func newCRM(cfg *CRMConfig, log *zap.Logger) (*monday.Client, error) {
	token, err := secrets.Load(secrets.Source{
		Name:  "monday api key",
		File:  cfg.APIKeyFile,
		Env:   "MONDAY_API_KEY",
		Value: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set crm.api-key-file, MONDAY_API_KEY_FILE or MONDAY_API_KEY)", err)
	}

	return monday.New(&monday.Config{
		APIURL:  cfg.APIURL,
		BoardID: cfg.BoardID,
		GroupID: cfg.GroupID,
		Columns: cfg.Columns,
	}, token, log), nil
}

func newDrafter(ctx context.Context, cfg *AIConfig, log *zap.Logger) (*gemini.Drafter, error) {
	g := cfg.Gemini
	if g == nil {
		g = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  g.APIKeyFile,
		Env:   "GEMINI_API_KEY",
		Value: g.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, g.Model, g.MaxRetries, log)
	if err != nil {
		return nil, err
	}

	return gemini.NewDrafter(generator, logger.WithCommonFields(log, "gemini", generator.Model()), g.MaxLogLength), nil
}
