// Package analysis holds the per-user session around one upload, analyze, display and
// export cycle.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johnrirwin/skinlens/internal/images"
	"github.com/johnrirwin/skinlens/internal/logging"
	"github.com/johnrirwin/skinlens/internal/models"
	"github.com/johnrirwin/skinlens/internal/reports"
)

// ErrSuperseded is returned by RunAnalysis when the staged image changed while the
// request was in flight. The late result is dropped.
var ErrSuperseded = errors.New("analysis discarded: the image changed while it was running")

// Backend is the inference service as seen by a session.
type Backend interface {
	Health(ctx context.Context) error
	Analyze(ctx context.Context, img models.SelectedImage) (*models.AnalysisResult, error)
}

// FaceChecker optionally rejects images without a usable face before upload.
type FaceChecker interface {
	Check(ctx context.Context, img models.SelectedImage) error
}

// ReportSink receives an exported report and returns where it went (a path or an id).
type ReportSink interface {
	Deliver(ctx context.Context, file models.ReportFile) (string, error)
}

// Options tune a Session. Zero values fall back to defaults.
type Options struct {
	ID            string
	MaxImageBytes int64
	FaceChecker   FaceChecker
	Logger        *logging.Logger
	Now           func() time.Time
}

// Session is the state machine for one user. It is safe for concurrent use.
type Session struct {
	mu sync.Mutex
	// notifyMu is taken before mu is released so subscribers see snapshots in order.
	notifyMu sync.Mutex

	id       string
	backend  Backend
	sink     ReportSink
	faces    FaceChecker
	maxBytes int64
	logger   *logging.Logger
	now      func() time.Time

	image      *models.SelectedImage
	preview    string
	result     *models.AnalysisResult
	analyzing  bool
	errMessage string
	errKind    models.ErrorKind
	status     models.ServiceStatus
	userName   string
	updatedAt  time.Time

	// generation changes whenever the staged image is replaced or cleared.
	generation uint64

	subscribers map[int]func(models.SessionState)
	nextSubID   int
}

// NewSession creates an idle session. sink may be nil, in which case ExportReport only
// renders the file.
func NewSession(backend Backend, sink ReportSink, opts Options) *Session {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 15 * 1024 * 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		id:          opts.ID,
		backend:     backend,
		sink:        sink,
		faces:       opts.FaceChecker,
		maxBytes:    opts.MaxImageBytes,
		logger:      opts.Logger,
		now:         opts.Now,
		status:      models.ServiceChecking,
		updatedAt:   opts.Now(),
		subscribers: make(map[int]func(models.SessionState)),
	}
}

// ID returns the session id given at construction.
func (s *Session) ID() string {
	return s.id
}

// SelectImage validates and stages img. A rejected image only updates the error slot.
func (s *Session) SelectImage(img models.SelectedImage) error {
	if err := images.Validate(img, s.maxBytes); err != nil {
		s.update(func() { s.setErrorLocked(err) })
		return err
	}

	preview := images.PreviewDataURL(img)
	s.update(func() {
		staged := img
		s.image = &staged
		s.preview = preview
		s.result = nil
		s.clearErrorLocked()
		s.generation++
	})

	s.logger.Debug("Image staged", logging.WithFields(map[string]interface{}{
		"session": s.id,
		"file":    img.Filename,
		"type":    img.MIMEType,
		"size":    img.Size,
	}))
	return nil
}

// CheckServiceHealth probes the inference service once and records whether it answered.
func (s *Session) CheckServiceHealth(ctx context.Context) bool {
	s.update(func() { s.status = models.ServiceChecking })

	err := s.backend.Health(ctx)
	reachable := err == nil

	s.update(func() {
		if reachable {
			s.status = models.ServiceConnected
		} else {
			s.status = models.ServiceError
		}
	})

	if !reachable {
		s.logger.Warn("Inference service unreachable", logging.WithFields(map[string]interface{}{
			"session": s.id,
			"error":   err.Error(),
		}))
	}
	return reachable
}

// RunAnalysis sends the staged image for analysis. Only one request runs at a time;
// a second call while one is pending fails with AnalysisInProgress.
func (s *Session) RunAnalysis(ctx context.Context) (*models.AnalysisResult, error) {
	var (
		img        models.SelectedImage
		generation uint64
		startErr   error
	)

	s.update(func() {
		switch {
		case s.image == nil:
			startErr = models.NewAnalysisError(models.ErrorNoImageSelected, models.ErrNoImageSelected.Message, nil)
			s.setErrorLocked(startErr)
		case s.analyzing:
			startErr = models.NewAnalysisError(models.ErrorAnalysisInProgress, models.ErrAnalysisInProgress.Message, nil)
		default:
			s.analyzing = true
			s.clearErrorLocked()
			img = *s.image
			generation = s.generation
		}
	})
	if startErr != nil {
		return nil, startErr
	}

	start := s.now()
	result, err := s.analyze(ctx, img)

	var outcome error
	s.update(func() {
		s.analyzing = false

		if generation != s.generation {
			outcome = ErrSuperseded
			return
		}
		if err != nil {
			s.setErrorLocked(err)
			outcome = err
			return
		}
		s.result = result
		s.clearErrorLocked()
	})

	fields := map[string]interface{}{
		"session":  s.id,
		"duration": s.now().Sub(start).String(),
	}
	switch {
	case outcome == nil:
		fields["analysis_id"] = result.ID
		s.logger.Info("Analysis completed", logging.WithFields(fields))
	case errors.Is(outcome, ErrSuperseded):
		s.logger.Info("Analysis result discarded", logging.WithFields(fields))
	default:
		fields["error"] = outcome.Error()
		fields["kind"] = string(models.KindOf(outcome))
		s.logger.Warn("Analysis failed", logging.WithFields(fields))
	}

	if outcome != nil {
		return nil, outcome
	}
	return result, nil
}

func (s *Session) analyze(ctx context.Context, img models.SelectedImage) (*models.AnalysisResult, error) {
	if s.faces != nil {
		if err := s.faces.Check(ctx, img); err != nil {
			return nil, err
		}
	}

	result, err := s.backend.Analyze(ctx, img)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, models.NewAnalysisError(models.ErrorMalformedResponse, models.ErrMalformedResponse.Message, nil)
	}
	return result, nil
}

// ExportReport renders the current result and hands it to the sink. With no result it
// does nothing and returns a nil file. location is what the sink reported.
func (s *Session) ExportReport(ctx context.Context) (file *models.ReportFile, location string, err error) {
	s.mu.Lock()
	result := s.result
	userName := s.userName
	s.mu.Unlock()

	if result == nil {
		return nil, "", nil
	}

	file, err = reports.Render(userName, s.now(), result)
	if err != nil {
		return nil, "", err
	}

	if s.sink != nil {
		location, err = s.sink.Deliver(ctx, *file)
		if err != nil {
			return nil, "", fmt.Errorf("deliver report: %w", err)
		}
	}

	s.logger.Info("Report exported", logging.WithFields(map[string]interface{}{
		"session":  s.id,
		"filename": file.Filename,
	}))
	return file, location, nil
}

// SetUserName sets the optional display name used in exported reports.
func (s *Session) SetUserName(name string) {
	s.update(func() { s.userName = name })
}

// Reset starts a new analysis: the image, preview, result, name and error are cleared.
// The service status is kept.
func (s *Session) Reset() {
	s.update(func() {
		s.image = nil
		s.preview = ""
		s.result = nil
		s.userName = ""
		s.clearErrorLocked()
		s.generation++
	})
}

// State returns a snapshot of the session.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn and immediately hands it the current snapshot, then one
// after every state change, in the order the changes were applied. fn must not call
// back into the session. The returned func removes the subscription.
func (s *Session) Subscribe(fn func(models.SessionState)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	state := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()

	fn(state)
	s.notifyMu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// update applies mutate under the lock, then notifies subscribers outside it.
func (s *Session) update(mutate func()) {
	s.mu.Lock()
	mutate()
	s.updatedAt = s.now()
	state := s.snapshotLocked()
	subs := make([]func(models.SessionState), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func (s *Session) snapshotLocked() models.SessionState {
	state := models.SessionState{
		SessionID:        s.id,
		Preview:          s.preview,
		Result:           s.result,
		IsAnalyzing:      s.analyzing,
		ErrorMessage:     s.errMessage,
		ErrorKind:        s.errKind,
		ServiceStatus:    s.status,
		ServiceReachable: s.status == models.ServiceConnected,
		UserName:         s.userName,
		UpdatedAt:        s.updatedAt,
	}
	if s.image != nil {
		state.Image = &models.ImageInfo{
			Filename: s.image.Filename,
			MIMEType: s.image.MIMEType,
			Size:     s.image.Size,
		}
	}
	state.CanAnalyze = s.image != nil && !s.analyzing && state.ServiceReachable
	return state
}

func (s *Session) setErrorLocked(err error) {
	s.errMessage = err.Error()
	s.errKind = models.KindOf(err)
}

func (s *Session) clearErrorLocked() {
	s.errMessage = ""
	s.errKind = ""
}
