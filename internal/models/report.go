package models

import (
	"encoding/json"
	"time"
)

// SkinAnalysis is the classification part of an exported report. Members are
// copied verbatim from the analysis result; ConfidenceNote is nil when the
// result carried none.
type SkinAnalysis struct {
	SkinType         json.RawMessage `json:"skin_type"`
	ProblemsDetected json.RawMessage `json:"problems_detected"`
	SkinCondition    json.RawMessage `json:"skin_condition"`
	ConfidenceNote   json.RawMessage `json:"confidence_note,omitempty"`
}

// ReportMetadata describes how the analysis was produced.
type ReportMetadata struct {
	ModelUsed              string   `json:"model_used"`
	ProcessingCapabilities []string `json:"processing_capabilities"`
	AITechnology           string   `json:"ai_technology"`
}

// Report is the user-downloadable export of one analysis.
type Report struct {
	UserName                    string          `json:"user_name"`
	AnalysisDate                string          `json:"analysis_date"`
	AnalysisMethod              string          `json:"analysis_method"`
	ModelVersion                string          `json:"model_version"`
	AnalysisID                  string          `json:"analysis_id"`
	SkinAnalysis                SkinAnalysis    `json:"skin_analysis"`
	PersonalizedRecommendations json.RawMessage `json:"personalized_recommendations"`
	Metadata                    ReportMetadata  `json:"metadata"`
	Disclaimer                  string          `json:"disclaimer"`
}

// ReportFile is a rendered report ready to be delivered.
type ReportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// StoredReport is a rendered report kept for later download by its owning session.
type StoredReport struct {
	ID          string
	OwnerID     string
	Filename    string
	ContentType string
	Content     []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}
