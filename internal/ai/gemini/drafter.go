package gemini

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spigell/outreach-matcher/internal/ai"
	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/outreach"
	"github.com/spigell/outreach-matcher/internal/utils"
	"go.uber.org/zap"
)

//go:embed prompt.md
var systemPrompt string

const defaultMaxLogLength = 200

// Drafter personalizes outreach letters with a generated paragraph.
type Drafter struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewDrafter(generator ai.Generator, logger *zap.Logger, maxLogLength int) *Drafter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Drafter{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (d *Drafter) Personalize(ctx context.Context, result *matching.Result, campaign outreach.Campaign) (string, error) {
	if result == nil || result.Study == nil {
		return "", fmt.Errorf("matched study is required")
	}

	message := buildMessage(result, campaign)

	d.logger.Debug("gemini generate content request",
		zap.String("nct_id", result.TrialID()),
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, d.maxLogLen)),
	)

	raw, err := d.generator.GenerateContent(ctx, systemPrompt, message)
	if err != nil {
		return "", err
	}

	d.logger.Debug("gemini generate content response",
		zap.String("nct_id", result.TrialID()),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, d.maxLogLen)),
	)

	return cleanParagraph(raw), nil
}

func buildMessage(result *matching.Result, campaign outreach.Campaign) string {
	study := result.Study

	var b strings.Builder
	fmt.Fprintf(&b, "Recipient study: %s (%s)\n", study.DisplayTitle(), result.TrialID())
	if study.Conditions != "" {
		fmt.Fprintf(&b, "Conditions: %s\n", study.Conditions)
	}
	if study.Locations != "" {
		fmt.Fprintf(&b, "Locations: %s\n", study.Locations)
	}
	if result.Reason != "" {
		fmt.Fprintf(&b, "Why it matches: %s\n", result.Reason)
	}
	fmt.Fprintf(&b, "\nSender campaign: %s\n", strings.TrimSpace(campaign.Name))
	fmt.Fprintf(&b, "Recruitment challenge: %s\n", strings.TrimSpace(campaign.ChallengeSummary))
	if s := strings.TrimSpace(campaign.SuccessSummary); s != "" {
		fmt.Fprintf(&b, "What was achieved: %s\n", s)
	}

	return b.String()
}

// cleanParagraph strips code fences and surrounding quotes models like to add.
func cleanParagraph(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```markdown")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	return strings.TrimSpace(raw)
}
