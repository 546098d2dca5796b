package models

import "time"

// SelectedImage is a photo staged for analysis. It is held in memory only.
type SelectedImage struct {
	Filename string
	MIMEType string
	Size     int64
	Data     []byte
}

// ImageInfo describes the staged image without its bytes.
type ImageInfo struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// ServiceStatus is the outcome of the liveness probe against the inference service.
type ServiceStatus string

const (
	ServiceChecking  ServiceStatus = "checking"
	ServiceConnected ServiceStatus = "connected"
	ServiceError     ServiceStatus = "error"
)

// SessionState is a point-in-time snapshot of one analysis session.
type SessionState struct {
	SessionID        string          `json:"sessionId,omitempty"`
	Image            *ImageInfo      `json:"image,omitempty"`
	Preview          string          `json:"preview,omitempty"`
	Result           *AnalysisResult `json:"result,omitempty"`
	IsAnalyzing      bool            `json:"isAnalyzing"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	ErrorKind        ErrorKind       `json:"errorKind,omitempty"`
	ServiceStatus    ServiceStatus   `json:"serviceStatus"`
	ServiceReachable bool            `json:"serviceReachable"`
	UserName         string          `json:"userName,omitempty"`
	CanAnalyze       bool            `json:"canAnalyze"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}
