// Package reports builds the downloadable analysis report and delivers it to a sink.
package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/johnrirwin/skinlens/internal/models"
)

// Fixed report metadata describing the analysis pipeline.
const (
	AnalysisMethod = "CLIP (OpenAI)"
	ModelVersion   = "clip-vit-base-patch32"
	ModelUsed      = "CLIP Vision-Language Model"
	AITechnology   = "OpenAI CLIP"

	// UnnamedUser is written when no display name was given.
	UnnamedUser = "Not specified"

	ContentType = "application/json"

	analysisDateLayout = "2006-01-02T15:04:05.000Z"
	filenameDateLayout = "2006-01-02"
)

var processingCapabilities = []string{
	"Skin Type Classification",
	"Problem Detection",
	"Condition Assessment",
}

// Build assembles the export document for result. The skin_analysis and
// personalized_recommendations members carry the result's own JSON unchanged.
func Build(userName string, now time.Time, result *models.AnalysisResult) (models.Report, error) {
	if result == nil {
		return models.Report{}, fmt.Errorf("build report: no analysis result")
	}

	fields, err := result.WireFields()
	if err != nil {
		return models.Report{}, fmt.Errorf("build report: %w", err)
	}

	name := strings.TrimSpace(userName)
	if name == "" {
		name = UnnamedUser
	}

	return models.Report{
		UserName:       name,
		AnalysisDate:   now.UTC().Format(analysisDateLayout),
		AnalysisMethod: AnalysisMethod,
		ModelVersion:   ModelVersion,
		AnalysisID:     result.ID,
		SkinAnalysis: models.SkinAnalysis{
			SkinType:         orDefault(fields["skin_type"], "null"),
			ProblemsDetected: orDefault(fields["problems_detected"], "[]"),
			SkinCondition:    orDefault(fields["skin_condition"], "null"),
			ConfidenceNote:   fields["confidence_note"],
		},
		PersonalizedRecommendations: orDefault(fields["recommendations"], "null"),
		Metadata: models.ReportMetadata{
			ModelUsed:              ModelUsed,
			ProcessingCapabilities: append([]string(nil), processingCapabilities...),
			AITechnology:           AITechnology,
		},
		Disclaimer: result.Recommendations.Disclaimer,
	}, nil
}

func orDefault(raw json.RawMessage, fallback string) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(fallback)
	}
	return raw
}

// Render builds the report and encodes it as indented JSON ready for download.
func Render(userName string, now time.Time, result *models.AnalysisResult) (*models.ReportFile, error) {
	if result == nil {
		return nil, fmt.Errorf("render report: no analysis result")
	}

	report, err := Build(userName, now, result)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	return &models.ReportFile{
		Filename:    Filename(userName, now),
		ContentType: ContentType,
		Content:     bytes.TrimRight(buf.Bytes(), "\n"),
	}, nil
}

// Filename returns skincare_analysis_<name>_<YYYY-MM-DD>.json with a filesystem-safe name.
func Filename(userName string, now time.Time) string {
	return fmt.Sprintf("skincare_analysis_%s_%s.json", safeName(userName), now.UTC().Format(filenameDateLayout))
}

// safeName strips diacritics and replaces anything outside [A-Za-z0-9._-] with '_'.
func safeName(name string) string {
	name = strings.TrimSpace(name)

	var b strings.Builder
	for _, r := range norm.NFD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	if strings.Trim(out, "_") == "" {
		return "user"
	}
	return out
}
