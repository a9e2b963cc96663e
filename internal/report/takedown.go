package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"

	"github.com/brandguard/brandguard/internal/config"
	"github.com/brandguard/brandguard/internal/domain"
)

const (
	letterFont     = "Helvetica"
	letterFontSize = 11.0
	lineHeight     = 14.0
	marginPt       = 72.0 // 1 inch
)

// Generator produces takedown-request PDF letters addressed to the Google
// Play legal team, citing the fake score and the extracted technical
// indicators as evidence.
type Generator struct {
	cfg       *config.ReportConfig
	outputDir string
	logger    *logrus.Logger
}

func NewGenerator(cfg *config.ReportConfig, outputDir string, logger *logrus.Logger) *Generator {
	return &Generator{
		cfg:       cfg,
		outputDir: outputDir,
		logger:    logger,
	}
}

// Generate writes the letter for a completed scan and returns the PDF path.
// The scan's metadata association must be loaded.
func (g *Generator) Generate(scan *domain.Scan, brand *domain.Brand) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	packageName := scan.PackageName
	if packageName == "" {
		packageName = "<unknown package>"
	}
	appName := scan.AppName
	if appName == "" {
		appName = "(unknown app name)"
	}
	certHash := "(not available)"
	if scan.Metadata != nil && scan.Metadata.CertSHA256 != "" {
		certHash = scan.Metadata.CertSHA256
	}

	score := scan.FakeScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	organization := g.cfg.Organization
	if organization == "" {
		organization = "BrandGuard Enforcement Team"
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(marginPt, marginPt, marginPt)
	pdf.AddPage()
	pdf.SetFont(letterFont, "", letterFontSize)

	writeLines(pdf, []string{
		time.Now().Format("January 2, 2006"),
		"",
		"Google Play Legal Team",
		"Google LLC",
		"1600 Amphitheatre Parkway",
		"Mountain View, CA 94043",
		"",
		"Subject: Takedown Request for Infringing Application",
		"",
		"To the Google Play Legal Team:",
		"",
	})

	brandClause := ""
	if brand != nil {
		brandClause = fmt.Sprintf(" of our product '%s' (package '%s')", brand.Name, brand.PackageName)
	}

	paragraphs := []string{
		fmt.Sprintf(
			"I am writing to formally notify you of a mobile application listed on the "+
				"Google Play Store that appears to infringe on our brand rights and has "+
				"a high risk of misleading users. The application identified by package "+
				"name '%s' (displayed to users as '%s') is not an authorized or official "+
				"version%s.",
			packageName, appName, brandClause),
		fmt.Sprintf(
			"Using the BrandGuard Fake App Detector, we evaluated this application "+
				"and obtained a Fake Score of %.1f out of 100. This score is computed "+
				"from independent similarity signals (including app name, icon likeness, "+
				"and requested permissions) and indicates a strong likelihood that this "+
				"app is attempting to impersonate our official brand.",
			score),
		"In light of this evidence, we respectfully request that Google Play " +
			"review this application and take appropriate enforcement action, " +
			"including removal from the store if your policies deem it to be " +
			"infringing or misleading. We believe prompt action is necessary to " +
			"protect users from potential confusion, fraud, or abuse.",
		"For your reference, a subset of the technical indicators supporting this " +
			"request includes the following:",
	}
	for _, p := range paragraphs {
		pdf.MultiCell(0, lineHeight, p, "", "L", false)
		pdf.Ln(lineHeight)
	}

	bullets := []string{
		fmt.Sprintf("- Package name under review: %s", packageName),
		fmt.Sprintf("- Display name observed in metadata: %s", appName),
		fmt.Sprintf("- BrandGuard Fake Score: %.1f / 100", score),
		fmt.Sprintf("- Signing certificate hash (if available): %s", certHash),
	}
	if scan.Metadata != nil && scan.Metadata.SHA256 != "" {
		bullets = append(bullets, fmt.Sprintf("- APK SHA-256: %s", scan.Metadata.SHA256))
	}
	for _, b := range bullets {
		pdf.MultiCell(0, lineHeight, b, "", "L", false)
	}
	pdf.Ln(lineHeight)

	closing := "Thank you for your attention to this matter and for your ongoing work " +
		"to keep the Google Play ecosystem safe for users and rights holders. " +
		"If you require any additional information or supporting documentation, " +
		"please do not hesitate to contact us."
	if g.cfg.ContactEmail != "" {
		closing += fmt.Sprintf(" We can be reached at %s.", g.cfg.ContactEmail)
	}
	pdf.MultiCell(0, lineHeight, closing, "", "L", false)
	pdf.Ln(lineHeight)

	signLines := []string{"Sincerely,", ""}
	if g.cfg.SignerName != "" {
		signLines = append(signLines, g.cfg.SignerName)
	}
	signLines = append(signLines, organization)
	writeLines(pdf, signLines)

	outPath := filepath.Join(g.outputDir, fmt.Sprintf("takedown_%s.pdf", scan.ID))
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return "", fmt.Errorf("failed to write PDF: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"scan_id":    scan.ID,
		"fake_score": score,
		"path":       outPath,
	}).Info("Takedown report generated")

	return outPath, nil
}

func writeLines(pdf *fpdf.Fpdf, lines []string) {
	for _, line := range lines {
		if line == "" {
			pdf.Ln(lineHeight)
			continue
		}
		pdf.CellFormat(0, lineHeight, line, "", 1, "L", false, 0, "")
	}
}
