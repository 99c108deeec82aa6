package outreach

import (
	"context"
	"strings"

	"github.com/spigell/outreach-matcher/internal/matching"
)

const (
	DefaultSender     = "The CliniContact Team"
	DefaultSenderMail = "info@clinicontact.com"
)

// Campaign describes the reference campaign an outreach is written on behalf of.
type Campaign struct {
	// Name identifies the campaign in the CRM and in the letter.
	Name             string
	AgentName        string
	AgentTitle       string
	StudyURL         string
	ChallengeSummary string
	SuccessSummary   string
	SenderEmail      string
}

// Signature returns the sign-off name of the letter.
func (c Campaign) Signature() string {
	name := strings.TrimSpace(c.AgentName)
	if name == "" {
		return DefaultSender
	}
	if title := strings.TrimSpace(c.AgentTitle); title != "" {
		return name + ", " + title
	}
	return name
}

// Renderer produces an outreach document for a matched study and returns its location.
type Renderer interface {
	Render(ctx context.Context, result *matching.Result, campaign Campaign) (string, error)
}

// Personalizer drafts a tailored paragraph for the outreach letter.
type Personalizer interface {
	Personalize(ctx context.Context, result *matching.Result, campaign Campaign) (string, error)
}

// Outcome is the result of recording a matched study in the CRM.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeSkipped is returned for studies without a contact email.
	OutcomeSkipped  Outcome = "skipped"
	OutcomeDisabled Outcome = "disabled"
)

// Recorder creates CRM records for matched studies. Duplicates are no-ops.
type Recorder interface {
	Record(ctx context.Context, result *matching.Result, campaignName string) (Outcome, error)
}

// PageRecorder is a Recorder that can load the CRM state once and reuse it for a whole page.
type PageRecorder interface {
	Recorder
	ForPage(ctx context.Context) (Recorder, error)
}
