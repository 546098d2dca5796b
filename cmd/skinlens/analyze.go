package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/skinlens/internal/analysis"
	"github.com/johnrirwin/skinlens/internal/images"
	"github.com/johnrirwin/skinlens/internal/logging"
	"github.com/johnrirwin/skinlens/internal/models"
	"github.com/johnrirwin/skinlens/internal/render"
	"github.com/johnrirwin/skinlens/internal/reports"
)

// analyzeCmd runs one upload, analyze, display and export cycle
var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Analyze a facial photo and save a JSON report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "yml" && !slices.Contains(render.Formats, format) {
			return fmt.Errorf("unknown format %q (want one of %v)", format, render.Formats)
		}
		name, _ := cmd.Flags().GetString("name")
		noReport, _ := cmd.Flags().GetBool("no-report")
		useFaceCheck, _ := cmd.Flags().GetBool("face-check")

		cfg := loadConfig(cmd)
		if cmd.Flags().Changed("out") {
			cfg.Reports.Dir, _ = cmd.Flags().GetString("out")
		}
		logger := newLogger(cmd, cfg)
		client := newClient(cfg, logger)

		var faces analysis.FaceChecker
		if useFaceCheck || cfg.FaceCheck.Enabled {
			checker, err := newFaceService(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Warn("Face pre-check disabled", logging.WithField("error", err.Error()))
			} else {
				faces = checker
			}
		}

		var sink analysis.ReportSink
		if !noReport {
			sink = reports.NewDirSink(cfg.Reports.Dir)
		}

		session := analysis.NewSession(client, sink, analysis.Options{
			ID:            "cli",
			MaxImageBytes: cfg.Inference.MaxImageBytes,
			FaceChecker:   faces,
			Logger:        logger,
		})
		session.SetUserName(name)

		img, err := images.FromFile(args[0])
		if err != nil {
			return err
		}
		if err := session.SelectImage(img); err != nil {
			return err
		}

		if !session.CheckServiceHealth(cmd.Context()) {
			return fmt.Errorf("%s at %s", models.ErrServiceUnreachable.Message, client.BaseURL())
		}

		result, err := session.RunAnalysis(cmd.Context())
		if err != nil {
			return err
		}

		if err := render.Write(cmd.OutOrStdout(), format, result); err != nil {
			return err
		}

		if noReport {
			return nil
		}
		_, path, err := session.ExportReport(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report saved to %s\n", path)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringP("name", "n", "", "Name to print in the report")
	analyzeCmd.Flags().StringP("out", "o", ".", "Directory the JSON report is written to")
	analyzeCmd.Flags().StringP("format", "f", "text", "Output format: text, yaml or json")
	analyzeCmd.Flags().Bool("no-report", false, "Skip writing the JSON report")
	analyzeCmd.Flags().Bool("face-check", false, "Reject photos without a clear face (AWS Rekognition)")
	rootCmd.AddCommand(analyzeCmd)
}
