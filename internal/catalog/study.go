package catalog

import (
	"fmt"
	"strings"
)

const (
	// DefaultMinAge is used when neither structured fields nor eligibility text carry a lower bound.
	DefaultMinAge = 0
	// DefaultMaxAge is used when neither structured fields nor eligibility text carry an upper bound.
	DefaultMaxAge = 100

	studyURL = "https://clinicaltrials.gov/study/"
)

// Studies is an ordered collection of catalog records.
type Studies struct {
	Items []*Study
}

// Study is a single record of the read-only catalog snapshot.
type Study struct {
	NCTID        string `json:"nct_id" mapstructure:"nct_id"`
	Title        string `json:"official_title,omitempty" mapstructure:"official_title"`
	BriefTitle   string `json:"brief_title,omitempty" mapstructure:"brief_title"`
	Conditions   string `json:"conditions,omitempty" mapstructure:"conditions"`
	Summary      string `json:"brief_summary,omitempty" mapstructure:"brief_summary"`
	Eligibility  string `json:"eligibility,omitempty" mapstructure:"eligibility"`
	MinAge       *int   `json:"min_age,omitempty" mapstructure:"min_age"`
	MaxAge       *int   `json:"max_age,omitempty" mapstructure:"max_age"`
	ContactName  string `json:"contact_name,omitempty" mapstructure:"contact_name"`
	ContactEmail string `json:"contact_email,omitempty" mapstructure:"contact_email"`
	Locations    string `json:"locations,omitempty" mapstructure:"locations"`
}

// TrialID returns the normalized trial identifier of the study.
func (s *Study) TrialID() string {
	if s == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(s.NCTID))
}

// URL returns the public registry page of the study.
func (s *Study) URL() string {
	return studyURL + s.TrialID()
}

// DisplayTitle prefers the official title and falls back to the brief one.
func (s *Study) DisplayTitle() string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(s.BriefTitle); t != "" {
		return t
	}
	return "Untitled"
}

// HasContactEmail reports whether the record carries a usable contact email.
func (s *Study) HasContactEmail() bool {
	return strings.TrimSpace(s.ContactEmail) != ""
}

// Contact formats the contact person for display.
func (s *Study) Contact() string {
	name := strings.TrimSpace(s.ContactName)
	email := strings.TrimSpace(s.ContactEmail)

	switch {
	case name == "" && email == "":
		return "N/A"
	case email == "":
		return name
	case name == "":
		return email
	default:
		return fmt.Sprintf("%s <%s>", name, email)
	}
}

func (s *Studies) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}

func (s *Studies) FindByID(id string) *Study {
	id = strings.ToUpper(strings.TrimSpace(id))
	for _, study := range s.Items {
		if study.TrialID() == id {
			return study
		}
	}
	return nil
}

// IDs returns the trial identifiers in catalog order.
func (s *Studies) IDs() []string {
	ids := make([]string, 0, s.Len())
	for _, study := range s.Items {
		ids = append(ids, study.TrialID())
	}
	return ids
}
