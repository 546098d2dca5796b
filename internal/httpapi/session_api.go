package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/johnrirwin/skinlens/internal/analysis"
	"github.com/johnrirwin/skinlens/internal/auth"
	"github.com/johnrirwin/skinlens/internal/cache"
	"github.com/johnrirwin/skinlens/internal/images"
	"github.com/johnrirwin/skinlens/internal/logging"
	"github.com/johnrirwin/skinlens/internal/models"
	"github.com/johnrirwin/skinlens/internal/ratelimit"
	"github.com/johnrirwin/skinlens/internal/reports"
	"github.com/johnrirwin/skinlens/internal/sessions"
)

// multipartOverhead is allowed on top of the image cap for form boundaries and headers.
const multipartOverhead = 1024 * 1024

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// SessionAPI handles the analysis session routes
type SessionAPI struct {
	registry       *sessions.Registry
	reports        reports.Store
	health         *cache.HealthStatus
	authSvc        *auth.Service
	authMiddleware *auth.Middleware
	limiter        *ratelimit.Limiter
	cfg            Config
	trusted        []netip.Prefix
	logger         *logging.Logger
	upgrader       websocket.Upgrader
}

// NewSessionAPI creates a new session API handler
func NewSessionAPI(registry *sessions.Registry, reportStore reports.Store, health *cache.HealthStatus, authSvc *auth.Service, authMiddleware *auth.Middleware, limiter *ratelimit.Limiter, cfg Config, logger *logging.Logger) *SessionAPI {
	api := &SessionAPI{
		registry:       registry,
		reports:        reportStore,
		health:         health,
		authSvc:        authSvc,
		authMiddleware: authMiddleware,
		limiter:        limiter,
		cfg:            cfg,
		trusted:        parseTrustedProxies(cfg.TrustedProxies, logger),
		logger:         logger,
	}
	api.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     api.checkOrigin,
	}
	return api
}

// RegisterRoutes registers session routes on the given mux
func (api *SessionAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/sessions", corsMiddleware(api.handleCreateSession))

	// Session scoped routes
	mux.HandleFunc("/api/session", corsMiddleware(api.authMiddleware.RequireSession(api.handleSession)))
	mux.HandleFunc("/api/session/token", corsMiddleware(api.authMiddleware.RequireSession(api.handleRefreshToken)))
	mux.HandleFunc("/api/session/image", corsMiddleware(api.authMiddleware.RequireSession(api.handleSelectImage)))
	mux.HandleFunc("/api/session/name", corsMiddleware(api.authMiddleware.RequireSession(api.handleSetName)))
	mux.HandleFunc("/api/session/analyze", corsMiddleware(api.authMiddleware.RequireSession(api.handleAnalyze)))
	mux.HandleFunc("/api/session/report", corsMiddleware(api.authMiddleware.RequireSession(api.handleExportReport)))
	mux.HandleFunc("/api/session/reset", corsMiddleware(api.authMiddleware.RequireSession(api.handleReset)))
	mux.HandleFunc("/api/session/events", api.authMiddleware.RequireSession(api.handleEvents))
	mux.HandleFunc("/api/reports/", corsMiddleware(api.authMiddleware.RequireSession(api.handleDownloadReport)))
}

type createSessionResponse struct {
	SessionID string              `json:"sessionId"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expiresAt"`
	State     models.SessionState `json:"state"`
}

type tokenResponse struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type stateResponse struct {
	Error string              `json:"error,omitempty"`
	Kind  models.ErrorKind    `json:"kind,omitempty"`
	State models.SessionState `json:"state"`
}

type exportResponse struct {
	ReportID    string `json:"reportId"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"downloadUrl"`
}

// handleCreateSession starts a session and probes the inference service in the background
func (api *SessionAPI) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !api.limiter.Allow(clientIP(r, api.trusted)) {
		writeError(w, http.StatusTooManyRequests, "too many sessions, try again shortly")
		return
	}

	session := api.registry.Create()

	token, expiresAt, err := api.authSvc.IssueSessionToken(session.ID())
	if err != nil {
		api.registry.Delete(session.ID())
		api.logger.Error("Failed to issue session token", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	go api.probe(session)

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.ID(),
		Token:     token,
		ExpiresAt: expiresAt,
		State:     session.State(),
	})
}

func (api *SessionAPI) probe(session *analysis.Session) {
	reachable := session.CheckServiceHealth(context.Background())
	if api.health != nil {
		api.health.Record(reachable)
	}
}

// handleRefreshToken issues a fresh token for a live session
func (api *SessionAPI) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := api.session(w, r)
	if !ok {
		return
	}

	token, expiresAt, err := api.authSvc.IssueSessionToken(session.ID())
	if err != nil {
		api.logger.Error("Failed to refresh session token", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		SessionID: session.ID(),
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// handleSession returns or drops the caller's session
func (api *SessionAPI) handleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, session.State())
	case http.MethodDelete:
		api.registry.Delete(session.ID())
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSelectImage stages the uploaded file
func (api *SessionAPI) handleSelectImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := api.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, api.cfg.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// The body was cut off, so only its size reaches the session.
			rejected := session.SelectImage(models.SelectedImage{Size: tooLarge.Limit + 1})
			if rejected == nil {
				rejected = models.FileTooLargeError(api.cfg.MaxUploadBytes)
			}
			writeJSON(w, http.StatusBadRequest, stateResponse{
				Error: rejected.Error(),
				Kind:  models.KindOf(rejected),
				State: session.State(),
			})
			return
		}
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	if err := session.SelectImage(images.FromUpload(header, data)); err != nil {
		writeJSON(w, http.StatusBadRequest, stateResponse{
			Error: err.Error(),
			Kind:  models.KindOf(err),
			State: session.State(),
		})
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{State: session.State()})
}

// handleSetName sets the display name used in the exported report
func (api *SessionAPI) handleSetName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := api.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session.SetUserName(strings.TrimSpace(body.Name))
	writeJSON(w, http.StatusOK, session.State())
}

// handleAnalyze runs one analysis for the staged image
func (api *SessionAPI) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := api.session(w, r)
	if !ok {
		return
	}

	// A dropped client must not abort the upstream request; the outcome lands in the
	// session and reaches the event stream.
	_, err := session.RunAnalysis(context.WithoutCancel(r.Context()))
	if err != nil {
		writeJSON(w, analyzeStatus(err), stateResponse{
			Error: err.Error(),
			Kind:  models.KindOf(err),
			State: session.State(),
		})
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{State: session.State()})
}

func analyzeStatus(err error) int {
	if errors.Is(err, analysis.ErrSuperseded) {
		return http.StatusConflict
	}

	switch models.KindOf(err) {
	case models.ErrorAnalysisInProgress:
		return http.StatusConflict
	case models.ErrorNoImageSelected, models.ErrorFileTooLarge, models.ErrorInvalidType:
		return http.StatusBadRequest
	case models.ErrorTimeout:
		return http.StatusGatewayTimeout
	case models.ErrorServiceUnreachable, models.ErrorServiceError, models.ErrorMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleExportReport renders the current result and stores it for download
func (api *SessionAPI) handleExportReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := api.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	file, reportID, err := session.ExportReport(ctx)
	if err != nil {
		api.logger.Error("Failed to export report", logging.WithFields(map[string]interface{}{
			"session": session.ID(),
			"error":   err.Error(),
		}))
		writeError(w, http.StatusInternalServerError, "failed to export report")
		return
	}
	if file == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusCreated, exportResponse{
		ReportID:    reportID,
		Filename:    file.Filename,
		DownloadURL: "/api/reports/" + reportID,
	})
}

// handleDownloadReport streams a stored report as an attachment, once
func (api *SessionAPI) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reportID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/reports/"))
	if reportID == "" || strings.Contains(reportID, "/") {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	report, err := api.reports.Get(ctx, auth.GetSessionID(r.Context()), reportID)
	if errors.Is(err, reports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		api.logger.Error("Failed to load report", logging.WithFields(map[string]interface{}{
			"report": reportID,
			"error":  err.Error(),
		}))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.Filename}))
	w.Header().Set("Content-Length", fmt.Sprint(len(report.Content)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(report.Content); err != nil {
		api.logger.Warn("Report download interrupted", logging.WithFields(map[string]interface{}{
			"report": reportID,
			"error":  err.Error(),
		}))
		return
	}

	if err := api.reports.Delete(context.WithoutCancel(ctx), reportID); err != nil {
		api.logger.Warn("Failed to delete downloaded report", logging.WithFields(map[string]interface{}{
			"report": reportID,
			"error":  err.Error(),
		}))
	}
}

// handleReset clears the session for a new analysis
func (api *SessionAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := api.session(w, r)
	if !ok {
		return
	}

	session.Reset()
	writeJSON(w, http.StatusOK, session.State())
}

// handleEvents pushes a state message on connect and after every change
func (api *SessionAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}

	conn, err := api.upgrader.Upgrade(w, r, nil)
	if err != nil {
		api.logger.Warn("WebSocket upgrade failed", logging.WithField("error", err.Error()))
		return
	}
	defer conn.Close()

	// Holds at most the latest state; older snapshots are superseded.
	updates := make(chan models.SessionState, 1)
	push := func(state models.SessionState) {
		for {
			select {
			case updates <- state:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	unsubscribe := session.Subscribe(push)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case state := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(eventMessage{Type: "state", Data: state}); err != nil {
				api.logger.Debug("Event stream closed", logging.WithFields(map[string]interface{}{
					"session": session.ID(),
					"error":   err.Error(),
				}))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

type eventMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (api *SessionAPI) checkOrigin(r *http.Request) bool {
	if api.cfg.CORSOrigin == "*" || api.cfg.CORSOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == api.cfg.CORSOrigin
}

// session resolves the authenticated session, writing 404 when it is gone.
func (api *SessionAPI) session(w http.ResponseWriter, r *http.Request) (*analysis.Session, bool) {
	session, ok := api.registry.Get(auth.GetSessionID(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}
