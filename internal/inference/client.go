// Package inference talks to the external skin-analysis service over HTTP.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/johnrirwin/skinlens/internal/logging"
	"github.com/johnrirwin/skinlens/internal/models"
)

const (
	healthPath  = "/health"
	analyzePath = "/api/analyze"

	// maxResponseBytes caps how much of any response body is read.
	maxResponseBytes = 10 * 1024 * 1024
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	AnalyzeTimeout time.Duration
	HealthTimeout  time.Duration
	UserAgent      string
}

// Client is the HTTP client for the inference service.
type Client struct {
	baseURL        string
	analyzeTimeout time.Duration
	healthTimeout  time.Duration
	userAgent      string
	httpClient     *http.Client
	logger         *logging.Logger
}

// NewClient creates a client. Zero timeouts fall back to 120s for analysis and 10s for health.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if cfg.AnalyzeTimeout <= 0 {
		cfg.AnalyzeTimeout = 120 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "skinlens/1.0"
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		analyzeTimeout: cfg.AnalyzeTimeout,
		healthTimeout:  cfg.HealthTimeout,
		userAgent:      cfg.UserAgent,
		httpClient:     &http.Client{},
		logger:         logger,
	}
}

// BaseURL returns the service root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AnalyzeTimeout returns the upper bound applied to one analysis request.
func (c *Client) AnalyzeTimeout() time.Duration {
	return c.analyzeTimeout
}

// Health probes the liveness endpoint. A nil error means the service answered 2xx.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Analyze uploads the staged image and decodes the analysis result.
// Every failure is an *models.AnalysisError.
func (c *Client) Analyze(ctx context.Context, img models.SelectedImage) (*models.AnalysisResult, error) {
	body, contentType, err := buildMultipart(img)
	if err != nil {
		return nil, models.NewAnalysisError(models.ErrorServiceUnreachable, models.ErrServiceUnreachable.Message, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.analyzeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, body)
	if err != nil {
		return nil, models.NewAnalysisError(models.ErrorServiceUnreachable, models.ErrServiceUnreachable.Message, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	c.logger.Debug("Analysis response received", logging.WithFields(map[string]interface{}{
		"status":   resp.StatusCode,
		"bytes":    len(payload),
		"duration": time.Since(start).String(),
	}))

	if !isSuccess(resp.StatusCode) {
		return nil, models.ServiceErrorf("%s", ErrorMessage(resp.StatusCode, resp.Header.Get("Content-Type"), payload))
	}

	if !isJSONObject(payload) {
		return nil, models.NewAnalysisError(models.ErrorMalformedResponse, models.ErrMalformedResponse.Message, nil)
	}
	var result models.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, models.NewAnalysisError(models.ErrorMalformedResponse, models.ErrMalformedResponse.Message, err)
	}

	return &result, nil
}

// transportError classifies a failed exchange: expiry of our own window is a timeout,
// everything else means the service could not be reached.
func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("analysis timed out after %s", c.analyzeTimeout)
		return models.NewAnalysisError(models.ErrorTimeout, msg, err)
	}
	return models.NewAnalysisError(models.ErrorServiceUnreachable, models.ErrServiceUnreachable.Message, err)
}

func buildMultipart(img models.SelectedImage) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := img.Filename
	if filename == "" {
		filename = "image"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", img.MIMEType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isJSONObject(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// ErrorMessage extracts the human readable message from a non-2xx response body.
// Precedence: error.error, error.reason, "validation error" for an error object,
// then a non-empty error string, then "HTTP <status>" (with the page title for HTML bodies).
func ErrorMessage(status int, contentType string, body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		var detail struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(envelope.Error, &detail); err == nil {
			switch {
			case detail.Error != "":
				return detail.Error
			case detail.Reason != "":
				return detail.Reason
			default:
				return "validation error"
			}
		}

		var msg string
		if err := json.Unmarshal(envelope.Error, &msg); err == nil && msg != "" {
			return msg
		}
	}

	fallback := fmt.Sprintf("HTTP %d", status)
	if title := htmlTitle(contentType, body); title != "" {
		return fallback + ": " + title
	}
	return fallback
}

func htmlTitle(contentType string, body []byte) string {
	if !strings.Contains(strings.ToLower(contentType), "html") && !bytes.Contains(bytes.ToLower(body), []byte("<title")) {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}
