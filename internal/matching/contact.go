package matching

import (
	"context"
)

type contactFilter struct {
	disabled bool
	reason   string
}

// NewContact creates a filter that removes records without a contact email
// when the campaign requires one.
func NewContact() Filter {
	return &contactFilter{}
}

func (f *contactFilter) Name() string { return "contact_email" }

func (f *contactFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *contactFilter) IsEnabled() bool { return !f.disabled }

func (f *contactFilter) Apply(_ context.Context, c *Criteria, candidates []*Result) ([]*Result, Step) {
	initial := len(candidates)
	if !c.RequireContactEmail {
		return candidates, Step{Initial: initial, Left: initial}
	}

	kept := make([]*Result, 0, initial)
	for _, r := range candidates {
		if !r.Study.HasContactEmail() {
			continue
		}
		r.pass("contact email present")
		kept = append(kept, r)
	}

	return kept, Step{Initial: initial, Dropped: initial - len(kept), Left: len(kept)}
}
