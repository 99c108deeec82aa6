package session

import (
	"fmt"
	"strings"

	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/outreach"
)

const (
	replyGreeting         = "Hi! I find clinical trials that could use the same recruitment support as your campaign. What's your name?"
	replyAskName          = "What's your name?"
	replyAskTitle         = "Nice to meet you, %s. What's your title?"
	replyAskURL           = "Thanks. Please paste the URL of the study you recruited for."
	replyBadURL           = "That doesn't look like a link. Please paste the full study URL, starting with http:// or https://."
	replyCriteria         = "Got it. This looks like a %s study for ages %d-%d."
	replyCriteriaDefaults = " I couldn't read everything from the page, so some defaults were used."
	replyAskChallenge     = "What made recruitment hard? A sentence or two is enough."
	replyCatalogDown      = "Sorry, I couldn't load the study catalog right now. Please send your challenge summary again in a moment."
	replyFound            = "I found %d matching studies. Reply \"show more\" to see them, %d at a time."
	replyDedupDegraded    = " I couldn't check the CRM, so some of them may have been contacted already."
	replyNoMatches        = "I couldn't find any new matching studies for this campaign. Reply \"restart\" to try another one."
	replyExhausted        = "No more matches. Reply \"restart\" to start a new search."
	replyRestart          = "Let's start over. What's your name?"
	replyUnavailable      = "Sorry, something went wrong on my side. Please try again in a moment."
)

// Reply is the outcome of a transition. Page is set when matches are emitted.
type Reply struct {
	Text    string
	Page    []*matching.Result
	Offset  int
	Total   int
	HasMore bool
}

// Render formats the reply. Deliveries, when given, follow page order.
func (r Reply) Render(deliveries []outreach.Delivery) string {
	if len(r.Page) == 0 {
		return r.Text
	}

	var b strings.Builder
	if r.Text != "" {
		b.WriteString(r.Text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Matches %d-%d of %d:\n", r.Offset+1, r.Offset+len(r.Page), r.Total)

	for i, result := range r.Page {
		study := result.Study
		fmt.Fprintf(&b, "\n%d. %s (%s)\n", r.Offset+i+1, study.DisplayTitle(), result.TrialID())
		if result.Reason != "" {
			fmt.Fprintf(&b, "   Why: %s\n", result.Reason)
		}
		fmt.Fprintf(&b, "   Contact: %s\n", study.Contact())
		if loc := strings.TrimSpace(study.Locations); loc != "" {
			fmt.Fprintf(&b, "   Locations: %s\n", loc)
		}
		fmt.Fprintf(&b, "   Link: %s\n", study.URL())

		if i < len(deliveries) {
			writeDelivery(&b, deliveries[i])
		}
	}

	if r.HasMore {
		b.WriteString("\nReply \"show more\" for the next matches.")
	} else {
		b.WriteString("\nThat's all of them.")
	}

	return b.String()
}

func writeDelivery(b *strings.Builder, d outreach.Delivery) {
	switch {
	case d.DocumentErr != nil:
		b.WriteString("   Outreach email: not available\n")
	case d.Document != "":
		fmt.Fprintf(b, "   Outreach email: %s\n", d.Document)
	}

	switch {
	case d.RecordErr != nil:
		b.WriteString("   CRM: failed\n")
	case d.Outcome == outreach.OutcomeCreated:
		b.WriteString("   CRM: added\n")
	case d.Outcome == outreach.OutcomeDuplicate:
		b.WriteString("   CRM: already there\n")
	case d.Outcome == outreach.OutcomeSkipped:
		b.WriteString("   CRM: skipped, no contact email\n")
	}
}
