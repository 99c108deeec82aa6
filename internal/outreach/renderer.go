package outreach

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/spigell/outreach-matcher/internal/matching"
	"go.uber.org/zap"
)

const (
	DefaultOutputDir = "emails"

	defaultPitch = "Given the similarities between your study and ours (especially in terms of condition and participant age range), " +
		"we believe our services could meaningfully accelerate your recruitment goals."
)

//go:embed email.md.tmpl
var emailTemplate string

var letter = template.Must(template.New("email").Parse(emailTemplate))

type letterData struct {
	Date        string
	Recipient   string
	StudyTitle  string
	TrialID     string
	StudyURL    string
	Campaign    string
	Challenge   string
	Success     string
	Pitch       string
	Signature   string
	SenderEmail string
}

// FileRenderer writes one markdown letter per study into OutputDir.
type FileRenderer struct {
	OutputDir    string
	personalizer Personalizer
	logger       *zap.Logger
	now          func() time.Time
}

// NewFileRenderer creates a renderer. The personalizer is optional.
func NewFileRenderer(outputDir string, personalizer Personalizer, logger *zap.Logger) *FileRenderer {
	if strings.TrimSpace(outputDir) == "" {
		outputDir = DefaultOutputDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileRenderer{
		OutputDir:    outputDir,
		personalizer: personalizer,
		logger:       logger,
		now:          time.Now,
	}
}

// Render writes <OutputDir>/<NCT>_outreach.md and returns its path.
func (r *FileRenderer) Render(ctx context.Context, result *matching.Result, campaign Campaign) (string, error) {
	if result == nil || result.Study == nil {
		return "", fmt.Errorf("no study to render")
	}

	body, err := r.compose(ctx, result, campaign)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	name := result.TrialID()
	if name == "" {
		name = "study"
	}
	path := filepath.Join(r.OutputDir, name+"_outreach.md")

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("writing outreach email: %w", err)
	}

	return path, nil
}

func (r *FileRenderer) compose(ctx context.Context, result *matching.Result, campaign Campaign) ([]byte, error) {
	study := result.Study

	recipient := strings.TrimSpace(study.ContactName)
	if recipient == "" {
		recipient = "Research Team"
	}

	sender := strings.TrimSpace(campaign.SenderEmail)
	if sender == "" {
		sender = DefaultSenderMail
	}

	data := letterData{
		Date:        r.now().Format("January 02, 2006"),
		Recipient:   recipient,
		StudyTitle:  study.DisplayTitle(),
		TrialID:     result.TrialID(),
		StudyURL:    study.URL(),
		Campaign:    campaignTitle(campaign),
		Challenge:   strings.TrimSpace(campaign.ChallengeSummary),
		Success:     strings.TrimSpace(campaign.SuccessSummary),
		Pitch:       defaultPitch,
		Signature:   campaign.Signature(),
		SenderEmail: sender,
	}

	if r.personalizer != nil {
		pitch, err := r.personalizer.Personalize(ctx, result, campaign)
		switch {
		case err != nil:
			r.logger.Warn("personalizing outreach failed; using template paragraph",
				zap.String("nct_id", result.TrialID()),
				zap.Error(err),
			)
		case strings.TrimSpace(pitch) != "":
			data.Pitch = strings.TrimSpace(pitch)
		}
	}

	var buf bytes.Buffer
	if err := letter.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering outreach email: %w", err)
	}

	return buf.Bytes(), nil
}

func campaignTitle(c Campaign) string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	if u := strings.TrimSpace(c.StudyURL); u != "" {
		return u
	}
	return "our recent campaign"
}
