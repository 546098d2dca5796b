package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/skinlens/internal/config"
	"github.com/johnrirwin/skinlens/internal/inference"
	"github.com/johnrirwin/skinlens/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "skinlens",
	Short: "Analyze a facial photo with the skin analysis service",
	Long: strings.TrimSpace(`
Upload a facial photo to the skin analysis service, print the classification and
recommendations, and save a JSON report of the result.
    `),
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("api-url", "", "Base URL of the inference service (default from INFERENCE_API_URL)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Upper bound for one analysis request (default from INFERENCE_ANALYZE_TIMEOUT)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the environment and applies any persistent flags the user set.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.LoadFromEnv()

	if cmd.Flags().Changed("api-url") {
		v, _ := cmd.Flags().GetString("api-url")
		cfg.Inference.BaseURL = strings.TrimRight(v, "/")
	}
	if cmd.Flags().Changed("timeout") {
		if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
			cfg.Inference.AnalyzeTimeout = v
		}
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	} else if os.Getenv("LOG_LEVEL") == "" {
		// Keep the terminal quiet unless asked.
		cfg.Logging.Level = "warn"
	}

	return cfg
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	return logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
}

func newClient(cfg *config.Config, logger *logging.Logger) *inference.Client {
	return inference.NewClient(inference.Config{
		BaseURL:        cfg.Inference.BaseURL,
		AnalyzeTimeout: cfg.Inference.AnalyzeTimeout,
		HealthTimeout:  cfg.Inference.HealthTimeout,
		UserAgent:      cfg.Inference.UserAgent,
	}, logger)
}
