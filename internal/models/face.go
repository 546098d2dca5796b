package models

// DetectedFace is one face reported by a face detector.
type DetectedFace struct {
	Confidence float64 `json:"confidence"` // 0..100
	AreaRatio  float64 `json:"areaRatio"`  // bounding box area over frame area, 0..1
}

// FaceCheckDecision is the outcome of the local face pre-check.
type FaceCheckDecision struct {
	Usable bool           `json:"usable"`
	Reason string         `json:"reason"`
	Faces  []DetectedFace `json:"faces"`
	Best   *DetectedFace  `json:"best,omitempty"`
}
