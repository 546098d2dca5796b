package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/skinlens/internal/config"
	"github.com/johnrirwin/skinlens/internal/facecheck"
	"github.com/johnrirwin/skinlens/internal/images"
	"github.com/johnrirwin/skinlens/internal/logging"
)

// newDetector is replaced in tests.
var newDetector = func(ctx context.Context, region string) (facecheck.Detector, error) {
	return facecheck.NewAWSDetector(ctx, region)
}

func newFaceService(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*facecheck.Service, error) {
	detector, err := newDetector(ctx, cfg.FaceCheck.AWSRegion)
	if err != nil {
		return nil, err
	}
	return facecheck.NewService(detector, facecheck.Config{
		MinConfidence: cfg.FaceCheck.MinConfidence,
		MinAreaRatio:  cfg.FaceCheck.MinAreaRatio,
		Timeout:       cfg.FaceCheck.Timeout,
	}, logger), nil
}

// facecheckCmd prints what the face pre-check sees in a photo
var facecheckCmd = &cobra.Command{
	Use:   "facecheck <image>",
	Short: "Run the Rekognition face pre-check on a photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		if region, _ := cmd.Flags().GetString("region"); region != "" {
			cfg.FaceCheck.AWSRegion = region
		}
		logger := newLogger(cmd, cfg)

		img, err := images.FromFile(args[0])
		if err != nil {
			return err
		}

		service, err := newFaceService(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("face detector unavailable: %w", err)
		}

		decision, err := service.Evaluate(cmd.Context(), img.Data)
		if err != nil {
			return fmt.Errorf("face detection failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Usable: %t\n", decision.Usable)
		fmt.Fprintf(out, "Reason: %s\n", decision.Reason)
		fmt.Fprintf(out, "Faces:  %d\n", len(decision.Faces))
		for i, face := range decision.Faces {
			fmt.Fprintf(out, "  #%d confidence=%.1f area=%.3f\n", i+1, face.Confidence, face.AreaRatio)
		}
		return nil
	},
}

func init() {
	facecheckCmd.Flags().String("region", "", "AWS region (default from AWS_REGION)")
	rootCmd.AddCommand(facecheckCmd)
}
