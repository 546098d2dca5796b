package facecheck

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rekognitiontypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/johnrirwin/skinlens/internal/models"
)

// AWSDetector calls Rekognition DetectFaces with byte payloads (no S3 dependency).
type AWSDetector struct {
	client *rekognition.Client
}

// NewAWSDetector creates a detector that uses ambient AWS credentials/profile.
func NewAWSDetector(ctx context.Context, region string) (*AWSDetector, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{}
	trimmedRegion := strings.TrimSpace(region)
	if trimmedRegion != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(trimmedRegion))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &AWSDetector{
		client: rekognition.NewFromConfig(cfg),
	}, nil
}

// DetectFaces calls Rekognition DetectFaces with raw image bytes.
func (d *AWSDetector) DetectFaces(ctx context.Context, imageBytes []byte) ([]models.DetectedFace, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("image bytes are required")
	}

	output, err := d.client.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image: &rekognitiontypes.Image{
			Bytes: imageBytes,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition detect faces failed: %w", err)
	}

	faces := make([]models.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		faces = append(faces, toDetectedFace(detail))
	}
	return faces, nil
}

func toDetectedFace(detail rekognitiontypes.FaceDetail) models.DetectedFace {
	face := models.DetectedFace{}
	if detail.Confidence != nil {
		face.Confidence = float64(*detail.Confidence)
	}
	if box := detail.BoundingBox; box != nil && box.Width != nil && box.Height != nil {
		face.AreaRatio = float64(*box.Width) * float64(*box.Height)
	}
	return face
}
