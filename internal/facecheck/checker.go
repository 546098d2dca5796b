// Package facecheck rejects photos without a usable face before they are uploaded.
package facecheck

import (
	"context"
	"time"

	"github.com/johnrirwin/skinlens/internal/logging"
	"github.com/johnrirwin/skinlens/internal/models"
)

// NoFaceMessage is the error shown when the pre-check finds no usable face.
const NoFaceMessage = "no face detected"

// Detector is the low-level provider abstraction that finds faces in image bytes.
type Detector interface {
	DetectFaces(ctx context.Context, imageBytes []byte) ([]models.DetectedFace, error)
}

// Config holds the thresholds a face must meet.
type Config struct {
	MinConfidence float64 // 0..100
	MinAreaRatio  float64 // 0..1
	Timeout       time.Duration
}

// Service evaluates detected faces against the configured thresholds.
type Service struct {
	detector Detector
	cfg      Config
	logger   *logging.Logger
}

// NewService creates a face check service using the configured detector.
func NewService(detector Detector, cfg Config, logger *logging.Logger) *Service {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 90
	}
	if cfg.MinAreaRatio <= 0 {
		cfg.MinAreaRatio = 0.05
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Service{
		detector: detector,
		cfg:      cfg,
		logger:   logger,
	}
}

// Evaluate runs the detector and reports whether a usable face is present.
func (s *Service) Evaluate(ctx context.Context, imageBytes []byte) (*models.FaceCheckDecision, error) {
	faces, err := s.detector.DetectFaces(ctx, imageBytes)
	if err != nil {
		return nil, err
	}

	decision := &models.FaceCheckDecision{
		Reason: NoFaceMessage,
		Faces:  faces,
	}

	for i := range faces {
		face := faces[i]
		if decision.Best == nil || face.AreaRatio > decision.Best.AreaRatio {
			decision.Best = &face
		}
		if face.Confidence >= s.cfg.MinConfidence && face.AreaRatio >= s.cfg.MinAreaRatio {
			decision.Usable = true
			decision.Reason = "face detected"
		}
	}

	if !decision.Usable && len(faces) > 0 {
		decision.Reason = "face too small or unclear"
	}

	return decision, nil
}

// Check returns a ServiceError when the image has no usable face. Detector failures and
// timeouts skip the check so the upload can proceed.
func (s *Service) Check(ctx context.Context, img models.SelectedImage) error {
	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	decision, err := s.Evaluate(checkCtx, img.Data)
	if err != nil {
		s.logger.Warn("Face pre-check skipped", logging.WithFields(map[string]interface{}{
			"error": err.Error(),
			"file":  img.Filename,
		}))
		return nil
	}

	if !decision.Usable {
		s.logger.Info("Face pre-check rejected image", logging.WithFields(map[string]interface{}{
			"faces":  len(decision.Faces),
			"reason": decision.Reason,
		}))
		return models.ServiceErrorf("%s", NoFaceMessage)
	}
	return nil
}
