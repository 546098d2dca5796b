package models

import (
	"bytes"
	"encoding/json"
	"math"
)

// SkinType is the skin type classification returned by the inference service.
type SkinType struct {
	Category   string             `json:"category"`
	Confidence float64            `json:"confidence"`
	AllScores  map[string]float64 `json:"all_scores"`
}

// SkinCondition is the overall skin condition classification.
type SkinCondition struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// DetectedProblem is a single condition flagged on the photo.
type DetectedProblem struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
}

// Recommendations is the personalised routine produced for a result.
type Recommendations struct {
	RoutineSteps         []string `json:"routine_steps" yaml:"routine_steps"`
	ProductsRecommended  []string `json:"products_recommended" yaml:"products_recommended,omitempty"`
	IngredientsToLookFor []string `json:"ingredients_to_look_for" yaml:"ingredients_to_look_for,omitempty"`
	IngredientsToAvoid   []string `json:"ingredients_to_avoid" yaml:"ingredients_to_avoid,omitempty"`
	LifestyleTips        []string `json:"lifestyle_tips" yaml:"lifestyle_tips,omitempty"`
	ConsultDermatologist bool     `json:"consult_dermatologist" yaml:"consult_dermatologist"`
	Disclaimer           string   `json:"disclaimer" yaml:"disclaimer"`
}

// AnalysisResult is the structured payload returned by POST /api/analyze.
// The client treats it as opaque beyond display and export: a decoded result
// keeps the service's bytes in Raw and encodes back to exactly those bytes.
type AnalysisResult struct {
	ID               string            `json:"id"`
	SkinType         SkinType          `json:"skin_type"`
	SkinCondition    SkinCondition     `json:"skin_condition"`
	ProblemsDetected []DetectedProblem `json:"problems_detected"`
	Recommendations  Recommendations   `json:"recommendations"`
	ConfidenceNote   string            `json:"confidence_note"`

	// Raw is the payload as received. It wins over the typed fields on encode.
	Raw json.RawMessage `json:"-"`
}

type analysisResultFields AnalysisResult

// UnmarshalJSON decodes the typed view and keeps a copy of data in Raw.
func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var fields analysisResultFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = AnalysisResult(fields)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns Raw when the result was decoded, the typed fields otherwise.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(analysisResultFields(r)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WireFields splits the encoded result into its top-level members.
func (r *AnalysisResult) WireFields() (map[string]json.RawMessage, error) {
	encoded, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ConfidenceLevel buckets a confidence score for display.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ClassifyConfidence maps a 0..1 score to a display band.
func ClassifyConfidence(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.8:
		return ConfidenceHigh
	case confidence >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConfidencePercent rounds a 0..1 score to a whole percentage.
func ConfidencePercent(confidence float64) int {
	return int(math.Round(confidence * 100))
}
