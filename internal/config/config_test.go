package config

import (
	"flag"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func loadWithArgs(t *testing.T, args ...string) *Config {
	t.Helper()

	if len(args) == 0 {
		args = []string{"test"}
	}

	oldCommandLine := flag.CommandLine
	oldArgs := os.Args

	flag.CommandLine = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flag.CommandLine.SetOutput(io.Discard)
	os.Args = args

	t.Cleanup(func() {
		flag.CommandLine = oldCommandLine
		os.Args = oldArgs
	})

	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("INFERENCE_API_URL", "")
	t.Setenv("MAX_IMAGE_BYTES", "")
	t.Setenv("INFERENCE_ANALYZE_TIMEOUT", "")

	cfg := loadWithArgs(t, "test")

	if cfg.Inference.BaseURL != DefaultInferenceURL {
		t.Errorf("BaseURL = %q, want %q", cfg.Inference.BaseURL, DefaultInferenceURL)
	}
	if cfg.Inference.AnalyzeTimeout != 120*time.Second {
		t.Errorf("AnalyzeTimeout = %v, want 2m", cfg.Inference.AnalyzeTimeout)
	}
	if cfg.Inference.MaxImageBytes != 15*1024*1024 {
		t.Errorf("MaxImageBytes = %d", cfg.Inference.MaxImageBytes)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.FaceCheck.Enabled {
		t.Error("face check must be disabled by default")
	}
}

func TestLoad_InferenceURL_FromEnv(t *testing.T) {
	t.Setenv("INFERENCE_API_URL", "https://inference.example.com/")
	cfg := loadWithArgs(t, "test")
	if cfg.Inference.BaseURL != "https://inference.example.com" {
		t.Fatalf("BaseURL = %q, want trailing slash trimmed", cfg.Inference.BaseURL)
	}
}

func TestLoad_InferenceURL_FromFlag(t *testing.T) {
	t.Setenv("INFERENCE_API_URL", "")
	cfg := loadWithArgs(t, "test", "-api-url", "http://10.0.0.5:9000")
	if cfg.Inference.BaseURL != "http://10.0.0.5:9000" {
		t.Fatalf("BaseURL = %q", cfg.Inference.BaseURL)
	}
}

func TestLoad_EnvOverridesFlag(t *testing.T) {
	t.Setenv("INFERENCE_API_URL", "http://from-env:8000")
	cfg := loadWithArgs(t, "test", "-api-url", "http://from-flag:8000")
	if cfg.Inference.BaseURL != "http://from-env:8000" {
		t.Fatalf("BaseURL = %q, want env to win", cfg.Inference.BaseURL)
	}
}

func TestLoad_FaceCheck_FromEnv(t *testing.T) {
	t.Setenv("FACE_CHECK_ENABLED", "1")
	t.Setenv("FACE_CHECK_MIN_CONFIDENCE", "75")
	t.Setenv("FACE_CHECK_MIN_AREA", "2")
	cfg := loadWithArgs(t, "test")

	if !cfg.FaceCheck.Enabled {
		t.Fatal("expected face check enabled")
	}
	if cfg.FaceCheck.MinConfidence != 75 {
		t.Errorf("MinConfidence = %v", cfg.FaceCheck.MinConfidence)
	}
	if cfg.FaceCheck.MinAreaRatio != 0.05 {
		t.Errorf("MinAreaRatio = %v, want default for out-of-range value", cfg.FaceCheck.MinAreaRatio)
	}
}

func TestLoad_ReportEncryptionKey(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		t.Setenv("REPORT_ENCRYPTION_KEY", "this-is-a-32-byte-test-key-12345")
		cfg := loadWithArgs(t, "test")
		if len(cfg.Reports.EncryptionKey) != 32 {
			t.Fatalf("expected key to be loaded")
		}
	})

	t.Run("wrong length ignored", func(t *testing.T) {
		t.Setenv("REPORT_ENCRYPTION_KEY", "short")
		cfg := loadWithArgs(t, "test")
		if cfg.Reports.EncryptionKey != nil {
			t.Fatalf("expected short key to be ignored")
		}
	})
}

func TestLoadFromEnv_DoesNotTouchFlags(t *testing.T) {
	t.Setenv("MAX_IMAGE_BYTES", "1024")
	t.Setenv("SESSION_TTL", "5m")

	cfg := LoadFromEnv()
	if cfg.Inference.MaxImageBytes != 1024 {
		t.Errorf("MaxImageBytes = %d", cfg.Inference.MaxImageBytes)
	}
	if cfg.Server.SessionTTL != 5*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.Server.SessionTTL)
	}
	if flag.CommandLine.Lookup("api-url") != nil {
		t.Error("LoadFromEnv must not register flags on the process flag set")
	}
}

func TestLoad_ServerSecurity(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantToken   time.Duration
		wantProxies []string
	}{
		{
			name:      "defaults",
			env:       map[string]string{"SESSION_TTL": "", "SESSION_TOKEN_TTL": "", "TRUSTED_PROXIES": ""},
			wantToken: 12 * time.Hour,
		},
		{
			name:      "token never shorter than the idle timeout",
			env:       map[string]string{"SESSION_TTL": "2h", "SESSION_TOKEN_TTL": "1h", "TRUSTED_PROXIES": ""},
			wantToken: 2 * time.Hour,
		},
		{
			name:        "trusted proxies",
			env:         map[string]string{"SESSION_TTL": "", "SESSION_TOKEN_TTL": "", "TRUSTED_PROXIES": " 10.0.0.1, 192.168.0.0/16 ,,"},
			wantToken:   12 * time.Hour,
			wantProxies: []string{"10.0.0.1", "192.168.0.0/16"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := loadWithArgs(t, "test")

			if cfg.Server.TokenTTL != tt.wantToken {
				t.Errorf("TokenTTL = %v, want %v", cfg.Server.TokenTTL, tt.wantToken)
			}
			if cfg.Server.TokenTTL < cfg.Server.SessionTTL {
				t.Errorf("TokenTTL %v shorter than SessionTTL %v", cfg.Server.TokenTTL, cfg.Server.SessionTTL)
			}
			if strings.Join(cfg.Server.TrustedProxies, "|") != strings.Join(tt.wantProxies, "|") {
				t.Errorf("TrustedProxies = %q, want %q", cfg.Server.TrustedProxies, tt.wantProxies)
			}
		})
	}
}
