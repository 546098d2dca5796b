package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/johnrirwin/skinlens/internal/models"
)

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		ID: "abc123",
		SkinType: models.SkinType{
			Category:   "oily",
			Confidence: 0.82,
			AllScores:  map[string]float64{"oily": 0.82, "dry": 0.1, "normal": 0.08},
		},
		SkinCondition:    models.SkinCondition{Category: "healthy", Confidence: 0.61},
		ProblemsDetected: []models.DetectedProblem{{Condition: "acne", Confidence: 0.4}},
		Recommendations: models.Recommendations{
			RoutineSteps:         []string{"cleanse", "moisturize"},
			IngredientsToAvoid:   []string{"heavy oils"},
			ConsultDermatologist: true,
			Disclaimer:           "Not medical advice.",
		},
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	if err := Text(&buf, sampleResult()); err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"oily (82%, high)",
		"healthy (61%, medium)",
		"acne (40%, low)",
		"1. cleanse",
		"- heavy oils",
		"dermatologist",
		"Not medical advice.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if strings.Index(out, "oily ") > strings.Index(out, "dry ") {
		t.Error("scores should be listed highest first")
	}
}

func TestText_NoProblems(t *testing.T) {
	result := sampleResult()
	result.ProblemsDetected = nil

	var buf bytes.Buffer
	if err := Text(&buf, result); err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if !strings.Contains(buf.String(), "none") {
		t.Error("expected 'none' when nothing was detected")
	}
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := YAML(&buf, sampleResult()); err != nil {
		t.Fatalf("YAML() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}

	skinType, ok := decoded["skin_type"].(map[string]interface{})
	if !ok {
		t.Fatalf("skin_type missing: %v", decoded)
	}
	if skinType["label"] != "oily" || skinType["band"] != "high" {
		t.Errorf("unexpected skin_type: %v", skinType)
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
		check   func(t *testing.T, out []byte)
	}{
		{format: "json", check: func(t *testing.T, out []byte) {
			var r models.AnalysisResult
			if err := json.Unmarshal(out, &r); err != nil || r.ID != "abc123" {
				t.Errorf("bad json output: %v", err)
			}
		}},
		{format: "YAML", check: func(t *testing.T, out []byte) {
			if !strings.Contains(string(out), "id: abc123") {
				t.Errorf("bad yaml output:\n%s", out)
			}
		}},
		{format: "", check: func(t *testing.T, out []byte) {
			if !strings.HasPrefix(string(out), "Analysis abc123") {
				t.Errorf("bad text output:\n%s", out)
			}
		}},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := Write(&buf, tt.format, sampleResult())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Write() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, buf.Bytes())
			}
		})
	}

	if err := Write(&bytes.Buffer{}, "text", nil); err == nil {
		t.Error("Write(nil) should fail")
	}
}
