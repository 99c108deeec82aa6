package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const snapshot = `[
  {"nct_id": "nct01234567", "official_title": "Autism Parent Trial", "conditions": ["Autism", "ASD"],
   "brief_summary": "Parent coaching", "eligibility": "aged 5 to 12", "min_age": "5 Years", "max_age": 12,
   "contact_name": "Dr. Smith", "contact_email": "smith@example.org", "locations": "Fresno, CA"},
  {"nct_id": "NCT07654321", "official_title": "Diabetes Study", "conditions": "Type 1 Diabetes",
   "min_age": "N/A", "max_age": null},
  {"official_title": "No identifier"},
  {"nct_id": "NCT01234567", "official_title": "Duplicate"},
  {"nct_id": "NCT99999999", "official_title": {"nested": true}}
]`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexed_studies.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}
	return path
}

func TestFileSourceLoad(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	src := NewFileSource(writeSnapshot(t, snapshot), zap.New(core))

	studies, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if studies.Len() != 2 {
		t.Fatalf("expected 2 studies, got %d: %v", studies.Len(), studies.IDs())
	}

	autism := studies.FindByID("NCT01234567")
	if autism == nil {
		t.Fatalf("expected study to be found by normalized id")
	}
	if autism.Title != "Autism Parent Trial" {
		t.Fatalf("expected first occurrence to win, got %q", autism.Title)
	}
	if autism.Conditions != "Autism, ASD" {
		t.Fatalf("expected joined conditions, got %q", autism.Conditions)
	}
	if autism.MinAge == nil || *autism.MinAge != 5 {
		t.Fatalf("expected min age 5, got %v", autism.MinAge)
	}
	if autism.MaxAge == nil || *autism.MaxAge != 12 {
		t.Fatalf("expected max age 12, got %v", autism.MaxAge)
	}

	diabetes := studies.FindByID("NCT07654321")
	if diabetes.MinAge != nil || diabetes.MaxAge != nil {
		t.Fatalf("expected unparseable ages to be absent, got %v/%v", diabetes.MinAge, diabetes.MaxAge)
	}
	if got := EffectiveAges(diabetes); got.Min != DefaultMinAge || got.Max != DefaultMaxAge {
		t.Fatalf("expected permissive defaults, got %+v", got)
	}

	if len(observed.FilterMessage("skipping malformed catalog record").All()) != 1 {
		t.Fatalf("expected malformed record to be logged")
	}

	again, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on cached load: %v", err)
	}
	if again != studies {
		t.Fatalf("expected cached snapshot to be returned")
	}
}

func TestFileSourceLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.json") },
		},
		{
			name: "invalid json",
			path: func(t *testing.T) string { return writeSnapshot(t, "{not json") },
		},
		{
			name:    "empty snapshot",
			path:    func(t *testing.T) string { return writeSnapshot(t, `[{"official_title": "no id"}]`) },
			wantErr: ErrEmptySnapshot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewFileSource(tt.path(t), nil).Load(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStudyHelpers(t *testing.T) {
	t.Parallel()

	s := &Study{NCTID: " nct00000001 ", BriefTitle: "Brief", ContactName: "Dr. Who"}
	if s.TrialID() != "NCT00000001" {
		t.Fatalf("unexpected trial id %q", s.TrialID())
	}
	if s.URL() != "https://clinicaltrials.gov/study/NCT00000001" {
		t.Fatalf("unexpected url %q", s.URL())
	}
	if s.DisplayTitle() != "Brief" {
		t.Fatalf("unexpected title %q", s.DisplayTitle())
	}
	if s.HasContactEmail() {
		t.Fatalf("expected no contact email")
	}
	if s.Contact() != "Dr. Who" {
		t.Fatalf("unexpected contact %q", s.Contact())
	}
}
