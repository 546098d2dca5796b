// Package render formats an analysis result for the terminal.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/johnrirwin/skinlens/internal/models"
)

// Output formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Formats lists every supported output format.
var Formats = []string{FormatText, FormatYAML, FormatJSON}

// Write renders result to w in the given format.
func Write(w io.Writer, format string, result *models.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("nothing to render")
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText, "":
		return Text(w, result)
	case FormatYAML, "yml":
		return YAML(w, result)
	case FormatJSON:
		return JSON(w, result)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// JSON writes the result as indented JSON.
func JSON(w io.Writer, result *models.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

// yamlResult mirrors the wire field names so YAML and JSON output agree.
type yamlResult struct {
	ID               string                 `yaml:"id"`
	SkinType         yamlScored             `yaml:"skin_type"`
	SkinCondition    yamlScored             `yaml:"skin_condition"`
	ProblemsDetected []yamlScored           `yaml:"problems_detected"`
	Recommendations  models.Recommendations `yaml:"recommendations"`
	ConfidenceNote   string                 `yaml:"confidence_note,omitempty"`
}

type yamlScored struct {
	Label      string             `yaml:"label"`
	Confidence float64            `yaml:"confidence"`
	Band       string             `yaml:"band"`
	AllScores  map[string]float64 `yaml:"all_scores,omitempty"`
}

// YAML writes the result as YAML, annotating each score with its confidence band.
func YAML(w io.Writer, result *models.AnalysisResult) error {
	out := yamlResult{
		ID: result.ID,
		SkinType: yamlScored{
			Label:      result.SkinType.Category,
			Confidence: result.SkinType.Confidence,
			Band:       string(models.ClassifyConfidence(result.SkinType.Confidence)),
			AllScores:  result.SkinType.AllScores,
		},
		SkinCondition: yamlScored{
			Label:      result.SkinCondition.Category,
			Confidence: result.SkinCondition.Confidence,
			Band:       string(models.ClassifyConfidence(result.SkinCondition.Confidence)),
		},
		ProblemsDetected: make([]yamlScored, 0, len(result.ProblemsDetected)),
		Recommendations:  result.Recommendations,
		ConfidenceNote:   result.ConfidenceNote,
	}
	for _, p := range result.ProblemsDetected {
		out.ProblemsDetected = append(out.ProblemsDetected, yamlScored{
			Label:      p.Condition,
			Confidence: p.Confidence,
			Band:       string(models.ClassifyConfidence(p.Confidence)),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// Text writes a human readable summary.
func Text(w io.Writer, result *models.AnalysisResult) error {
	b := &strings.Builder{}

	fmt.Fprintf(b, "Analysis %s\n\n", result.ID)
	fmt.Fprintf(b, "Skin type:       %s\n", scored(result.SkinType.Category, result.SkinType.Confidence))
	fmt.Fprintf(b, "Skin condition:  %s\n", scored(result.SkinCondition.Category, result.SkinCondition.Confidence))

	if len(result.SkinType.AllScores) > 0 {
		b.WriteString("\nAll skin type scores:\n")
		for _, label := range sortedByScore(result.SkinType.AllScores) {
			fmt.Fprintf(b, "  %-12s %3d%%\n", label, models.ConfidencePercent(result.SkinType.AllScores[label]))
		}
	}

	b.WriteString("\nDetected problems:\n")
	if len(result.ProblemsDetected) == 0 {
		b.WriteString("  none\n")
	}
	for _, p := range result.ProblemsDetected {
		fmt.Fprintf(b, "  - %s\n", scored(p.Condition, p.Confidence))
	}

	rec := result.Recommendations
	writeList(b, "Routine", rec.RoutineSteps, true)
	writeList(b, "Recommended products", rec.ProductsRecommended, false)
	writeList(b, "Ingredients to look for", rec.IngredientsToLookFor, false)
	writeList(b, "Ingredients to avoid", rec.IngredientsToAvoid, false)
	writeList(b, "Lifestyle tips", rec.LifestyleTips, false)

	if rec.ConsultDermatologist {
		b.WriteString("\nConsider consulting a dermatologist.\n")
	}
	if result.ConfidenceNote != "" {
		fmt.Fprintf(b, "\nNote: %s\n", result.ConfidenceNote)
	}
	if rec.Disclaimer != "" {
		fmt.Fprintf(b, "\n%s\n", rec.Disclaimer)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func scored(label string, confidence float64) string {
	return fmt.Sprintf("%s (%d%%, %s)", label, models.ConfidencePercent(confidence), models.ClassifyConfidence(confidence))
}

func writeList(b *strings.Builder, title string, items []string, numbered bool) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for i, item := range items {
		if numbered {
			fmt.Fprintf(b, "  %d. %s\n", i+1, item)
		} else {
			fmt.Fprintf(b, "  - %s\n", item)
		}
	}
}

func sortedByScore(scores map[string]float64) []string {
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if scores[labels[i]] != scores[labels[j]] {
			return scores[labels[i]] > scores[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}
