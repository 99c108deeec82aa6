package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/outreach-matcher/internal/dedup"
	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/outreach"
	"go.uber.org/zap"
)

const (
	PromptEmail = "Generate outreach email"
	PromptCRM   = "Push to CRM"
	PromptBack  = "back"
	PromptDone  = "done"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match the catalog against a campaign given by flags",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("condition", "", "condition of the reference campaign, e.g. autism")
	matchCmd.Flags().Int("min-age", 0, "minimum participant age of the reference campaign")
	matchCmd.Flags().Int("max-age", 100, "maximum participant age of the reference campaign")
	matchCmd.Flags().String("summary", "", "recruitment challenge summary")
	matchCmd.Flags().String("success", "", "what the reference campaign achieved")
	matchCmd.Flags().String("title", "", "name of the reference campaign")
	matchCmd.Flags().String("agent", "", "name of the outreach agent")
	matchCmd.Flags().Int("top", 10, "number of matches to show")
	matchCmd.Flags().BoolP("yes", "y", false, "print matches and exit without prompting")
}

func match(cmd *cobra.Command) {
	logger := mustLogger()
	defer logger.Sync()

	config, err := getConfig(viper.GetViper())
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	ctx := context.Background()

	c, err := build(ctx, config, logger)
	if err != nil {
		logger.Fatal("wiring components", zap.Error(err))
	}
	defer c.store.Close()

	flags := cmd.Flags()
	condition, _ := flags.GetString("condition")
	minAge, _ := flags.GetInt("min-age")
	maxAge, _ := flags.GetInt("max-age")
	summary, _ := flags.GetString("summary")
	top, _ := flags.GetInt("top")

	results, err := c.engine.Match(ctx, matching.Criteria{
		Condition:           condition,
		MinAge:              minAge,
		MaxAge:              maxAge,
		ChallengeSummary:    summary,
		RequireContactEmail: config.Matching.RequireContactEmail,
	})
	if err != nil {
		logger.Fatal("matching failed", zap.Error(err))
	}

	results, outcome := dedup.Apply(ctx, c.dedup, results)
	results = matching.Rank(results, top)

	logger.Info("matching studies", zap.Int("count", len(results)), zap.Bool("dedup_degraded", outcome.Degraded))
	if len(results) == 0 {
		logger.Info("exiting", zap.String("reason", "no matching studies found"))
		return
	}

	for i, r := range results {
		fmt.Printf("%d. %s (%s)\n   Why: %s\n   Contact: %s\n   Link: %s\n",
			i+1, r.Study.DisplayTitle(), r.TrialID(), r.Reason, r.Study.Contact(), r.Study.URL())
	}

	if yes, _ := flags.GetBool("yes"); yes {
		return
	}

	title, _ := flags.GetString("title")
	success, _ := flags.GetString("success")
	agent, _ := flags.GetString("agent")
	campaign := outreach.Campaign{
		Name:             firstNonEmpty(title, config.Outreach.CampaignName),
		AgentName:        agent,
		ChallengeSummary: summary,
		SuccessSummary:   firstNonEmpty(success, config.Outreach.SuccessSummary),
		SenderEmail:      config.Outreach.SenderEmail,
	}

	if err := manualActions(ctx, c, campaign, results); err != nil && !errors.Is(err, promptui.ErrInterrupt) {
		logger.Fatal("exiting", zap.Error(err))
	}
}

// manualActions lets the user pick matches and run outreach actions on them.
func manualActions(ctx context.Context, c *components, campaign outreach.Campaign, results []*matching.Result) error {
	for {
		items := make([]string, 0, len(results)+1)
		for _, r := range results {
			items = append(items, fmt.Sprintf("%s %s", r.TrialID(), r.Study.DisplayTitle()))
		}

		studyPrompt := promptui.Select{
			Label: "Choose a study and press ENTER",
			Items: append(items, PromptDone),
		}

		_, selected, err := studyPrompt.Run()
		if err != nil {
			return err
		}
		if selected == PromptDone {
			return nil
		}

		id := strings.Split(selected, " ")[0]
		var chosen *matching.Result
		for _, r := range results {
			if r.TrialID() == id {
				chosen = r
				break
			}
		}
		if chosen == nil {
			return fmt.Errorf("there is no such study id %s", id)
		}

		if err := studyActions(ctx, c, campaign, chosen); err != nil {
			return err
		}
	}
}

func studyActions(ctx context.Context, c *components, campaign outreach.Campaign, result *matching.Result) error {
	actionPrompt := promptui.Select{
		Label: "What should be done with " + result.TrialID() + "?",
		Items: []string{PromptEmail, PromptCRM, PromptBack},
	}

	for {
		_, action, err := actionPrompt.Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptBack:
			return nil
		case PromptEmail:
			if c.renderer == nil {
				c.logger.Warn("outreach documents are disabled", zap.String("hint", "set outreach.enabled"))
				continue
			}
			path, err := c.renderer.Render(ctx, result, campaign)
			if err != nil {
				c.logger.Error("generating outreach email", zap.Error(err))
				continue
			}
			c.logger.Info("outreach email saved", zap.String("path", path))
		case PromptCRM:
			if c.crm == nil {
				c.logger.Warn("crm integration is disabled", zap.String("hint", "set crm.enabled"))
				continue
			}
			outcome, err := c.crm.Record(ctx, result, campaign.Name)
			if err != nil {
				c.logger.Error("pushing study to crm", zap.Error(err))
				continue
			}
			c.logger.Info("crm push finished", zap.String("nct_id", result.TrialID()), zap.String("outcome", string(outcome)))
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
