package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/johnrirwin/skinlens/internal/facecheck"
	"github.com/johnrirwin/skinlens/internal/models"
)

const analysisJSON = `{
  "id": "abc123",
  "skin_type": {"category": "oily", "confidence": 0.82},
  "skin_condition": {"category": "healthy", "confidence": 0.7},
  "problems_detected": [{"condition": "acne", "confidence": 0.65}],
  "recommendations": {"routine_steps": ["cleanse"], "disclaimer": "Not medical advice."}
}`

// executeCommand is a helper to run a cobra command and capture its output
func executeCommand(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resetCommands(ctx, rootCmd)

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// resetCommands restores flag defaults and hands every command the run's context,
// since commands are package globals shared across runs and cobra only fills in a
// subcommand's context when it has none.
func resetCommands(ctx context.Context, cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	cmd.SetContext(ctx)
	for _, sub := range cmd.Commands() {
		resetCommands(ctx, sub)
	}
}

func newInferenceServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/api/analyze":
			_, _ = io.Copy(io.Discard, r.Body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

var jpegFixture = append([]byte{0xFF, 0xD8, 0xFF, 0xDB}, make([]byte, 64)...)

func TestAnalyzeCommand(t *testing.T) {
	server := newInferenceServer(t, http.StatusOK, analysisJSON)
	image := writeFixture(t, "face.jpg", jpegFixture)
	outDir := t.TempDir()

	out, errOut, err := executeCommand("analyze", image, "--api-url", server.URL, "--name", "Ana Lima", "--out", outDir)
	if err != nil {
		t.Fatalf("command execution failed: %v, output: %s", err, errOut)
	}

	if !strings.Contains(out, "Skin type:       oily (82%, high)") {
		t.Errorf("expected skin type line in output, got:\n%s", out)
	}
	if !strings.Contains(errOut, "Report saved to") {
		t.Errorf("expected report notice, got: %s", errOut)
	}

	matches, _ := filepath.Glob(filepath.Join(outDir, "skincare_analysis_Ana_Lima_*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected one report in %s, found %v", outDir, matches)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.UserName != "Ana Lima" || report.AnalysisID != "abc123" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestAnalyzeCommand_RepeatedRuns(t *testing.T) {
	server := newInferenceServer(t, http.StatusOK, analysisJSON)
	image := writeFixture(t, "face.jpg", jpegFixture)

	for i := 0; i < 3; i++ {
		out, errOut, err := executeCommand("analyze", image, "--api-url", server.URL, "--no-report")
		if err != nil {
			t.Fatalf("run %d failed: %v, output: %s", i+1, err, errOut)
		}
		if !strings.Contains(out, "oily") {
			t.Errorf("run %d: unexpected output:\n%s", i+1, out)
		}
	}
}

func TestAnalyzeCommand_FormatsAndNoReport(t *testing.T) {
	server := newInferenceServer(t, http.StatusOK, analysisJSON)
	image := writeFixture(t, "face.jpg", jpegFixture)

	t.Run("json", func(t *testing.T) {
		outDir := t.TempDir()
		out, errOut, err := executeCommand("analyze", image, "--api-url", server.URL, "--format", "json", "--no-report", "--out", outDir)
		if err != nil {
			t.Fatalf("command execution failed: %v, output: %s", err, errOut)
		}

		var result models.AnalysisResult
		if err := json.Unmarshal([]byte(out), &result); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if result.ID != "abc123" {
			t.Errorf("ID = %q", result.ID)
		}

		if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
			t.Errorf("--no-report still wrote %d files", len(entries))
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, errOut, err := executeCommand("analyze", image, "--api-url", server.URL, "--format", "yaml", "--no-report")
		if err != nil {
			t.Fatalf("command execution failed: %v, output: %s", err, errOut)
		}
		if !strings.Contains(out, "label: oily") {
			t.Errorf("expected YAML output, got:\n%s", out)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if _, _, err := executeCommand("analyze", image, "--api-url", server.URL, "--format", "xml"); err == nil {
			t.Fatal("expected error for unknown format")
		}
	})
}

func TestAnalyzeCommand_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		file    string
		data    []byte
		wantErr string
	}{
		{
			name:    "service error",
			status:  http.StatusUnprocessableEntity,
			body:    `{"error":{"error":"bad face"}}`,
			file:    "face.jpg",
			data:    jpegFixture,
			wantErr: "bad face",
		},
		{
			name:    "malformed response",
			status:  http.StatusOK,
			body:    `not json`,
			file:    "face.jpg",
			data:    jpegFixture,
			wantErr: models.ErrMalformedResponse.Message,
		},
		{
			name:    "not an image",
			status:  http.StatusOK,
			body:    analysisJSON,
			file:    "notes.txt",
			data:    []byte("plain text"),
			wantErr: models.ErrInvalidType.Message,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newInferenceServer(t, tt.status, tt.body)
			image := writeFixture(t, tt.file, tt.data)

			_, _, err := executeCommand("analyze", image, "--api-url", server.URL, "--no-report")
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAnalyzeCommand_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	image := writeFixture(t, "face.jpg", jpegFixture)
	_, _, err := executeCommand("analyze", image, "--api-url", url, "--no-report")
	if err == nil || !strings.Contains(err.Error(), models.ErrServiceUnreachable.Message) {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestHealthCommand(t *testing.T) {
	server := newInferenceServer(t, http.StatusOK, analysisJSON)

	out, _, err := executeCommand("health", "--api-url", server.URL)
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if !strings.Contains(out, "connected") {
		t.Errorf("output = %q", out)
	}

	server.Close()
	out, _, err = executeCommand("health", "--api-url", server.URL)
	if !errors.Is(err, models.ErrServiceUnreachable) {
		t.Fatalf("expected ServiceUnreachable, got %v", err)
	}
	if !strings.Contains(out, "error") {
		t.Errorf("output = %q", out)
	}
}

type fakeDetector struct {
	faces []models.DetectedFace
}

func (f fakeDetector) DetectFaces(ctx context.Context, imageBytes []byte) ([]models.DetectedFace, error) {
	return f.faces, nil
}

func TestFacecheckCommand(t *testing.T) {
	original := newDetector
	t.Cleanup(func() { newDetector = original })
	newDetector = func(ctx context.Context, region string) (facecheck.Detector, error) {
		return fakeDetector{faces: []models.DetectedFace{{Confidence: 99.5, AreaRatio: 0.2}}}, nil
	}

	image := writeFixture(t, "face.jpg", jpegFixture)
	out, errOut, err := executeCommand("facecheck", image, "--region", "us-east-1")
	if err != nil {
		t.Fatalf("facecheck failed: %v, output: %s", err, errOut)
	}
	if !strings.Contains(out, "Usable: true") || !strings.Contains(out, "Faces:  1") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestAnalyzeCommand_FaceCheckRejects(t *testing.T) {
	original := newDetector
	t.Cleanup(func() { newDetector = original })
	newDetector = func(ctx context.Context, region string) (facecheck.Detector, error) {
		return fakeDetector{}, nil
	}

	server := newInferenceServer(t, http.StatusOK, analysisJSON)
	image := writeFixture(t, "face.jpg", jpegFixture)

	_, _, err := executeCommand("analyze", image, "--api-url", server.URL, "--face-check", "--no-report")
	if err == nil || err.Error() != facecheck.NoFaceMessage {
		t.Fatalf("expected %q, got %v", facecheck.NoFaceMessage, err)
	}
}
